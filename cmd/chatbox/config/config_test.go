package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/chatbox/cmd/chatbox/config"
	"github.com/papercomputeco/chatbox/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	execute := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		out = &bytes.Buffer{}

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .chatbox dir so the manager picks it up
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".chatbox"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(func() { _ = os.Chdir(origDir) })
		GinkgoT().Setenv("HOME", tmpDir)
	})

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(execute("set", "backend.base_url", "http://ai:9000")).To(Succeed())

			_, err := os.Stat(filepath.Join(tmpDir, ".chatbox", "config.toml"))
			Expect(err).NotTo(HaveOccurred())

			cfger, err := config.NewConfiger("")
			Expect(err).NotTo(HaveOccurred())
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Backend.BaseURL).To(Equal("http://ai:9000"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("set", "invalid_key", "value")).NotTo(Succeed())
		})

		It("requires exactly two arguments", func() {
			Expect(execute("set", "backend.mode")).NotTo(Succeed())
			Expect(execute("set")).NotTo(Succeed())
		})

		It("rejects invalid duration values", func() {
			Expect(execute("set", "backend.timeout", "not-a-duration")).NotTo(Succeed())
		})

		It("rejects invalid uint values", func() {
			Expect(execute("set", "backend.max_retries", "not-a-number")).NotTo(Succeed())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(execute("set", "backend.mode", "production")).To(Succeed())

			out.Reset()
			Expect(execute("get", "backend.mode")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("production"))
		})

		It("shows the default for an unset key", func() {
			Expect(execute("get", "backend.timeout")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("30s"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("get", "invalid_key")).NotTo(Succeed())
		})

		It("requires exactly one argument", func() {
			Expect(execute("get")).NotTo(Succeed())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key when no config exists", func() {
			Expect(execute("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("shows values from the config file", func() {
			Expect(execute("set", "log.format", "json")).To(Succeed())

			out.Reset()
			Expect(execute("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(`= "json"`))
		})

		It("rejects any arguments", func() {
			Expect(execute("list", "extra")).NotTo(Succeed())
		})
	})
})
