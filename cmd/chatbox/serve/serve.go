// Package servecmder provides the serve command that runs the chat proxy.
package servecmder

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/chatbox/pkg/backend"
	"github.com/papercomputeco/chatbox/pkg/config"
	"github.com/papercomputeco/chatbox/pkg/logger"
	"github.com/papercomputeco/chatbox/proxy"
)

type serveCommander struct {
	listen       string
	metrics      bool
	chatURL      string
	baseURL      string
	mode         string
	timeout      time.Duration
	maxRetries   uint
	retryBackoff time.Duration
	logFormat    string
	logFile      string

	watchConfig bool
	debug       bool

	viper  *viper.Viper
	logger *slog.Logger
}

// serveFlags are the registry flags bound into viper for this command.
var serveFlags = []string{
	config.FlagListen,
	config.FlagMetrics,
	config.FlagChatURL,
	config.FlagBaseURL,
	config.FlagMode,
	config.FlagTimeout,
	config.FlagMaxRetries,
	config.FlagRetryBackoff,
	config.FlagLogFormat,
	config.FlagLogFile,
}

const serveLongDesc string = `Run the chat proxy.

The proxy accepts POST /chat, validates the chat box request, forwards it to
the AI service and returns a reply that always has the complete shape. The
AI service address comes from, in order:
  --chat-url / AI_SERVICE_URL          full chat endpoint
  --base-url / AI_SERVICE_BASE_URL     service root, /chat is appended
  --mode / NODE_ENV                    production: http://ai:8000
                                       development: http://127.0.0.1:8000

With --watch-config the backend address is resolved again whenever
config.toml changes. Requests already in flight keep their address.`

const serveShortDesc string = "Run the chatbox proxy server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Registry, serveFlags)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagListen, &cmder.listen)
	config.AddBoolFlag(cmd, config.Registry, config.FlagMetrics, &cmder.metrics)
	config.AddStringFlag(cmd, config.Registry, config.FlagChatURL, &cmder.chatURL)
	config.AddStringFlag(cmd, config.Registry, config.FlagBaseURL, &cmder.baseURL)
	config.AddStringFlag(cmd, config.Registry, config.FlagMode, &cmder.mode)
	config.AddDurationFlag(cmd, config.Registry, config.FlagTimeout, &cmder.timeout)
	config.AddUintFlag(cmd, config.Registry, config.FlagMaxRetries, &cmder.maxRetries)
	config.AddDurationFlag(cmd, config.Registry, config.FlagRetryBackoff, &cmder.retryBackoff)
	config.AddStringFlag(cmd, config.Registry, config.FlagLogFormat, &cmder.logFormat)
	config.AddStringFlag(cmd, config.Registry, config.FlagLogFile, &cmder.logFile)
	cmd.Flags().BoolVarP(&cmder.watchConfig, "watch-config", "w", false, "Reload the backend address when config.toml changes")

	return cmd
}

func (c *serveCommander) run() error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(c.viper.GetString("log.format")),
		logger.WithFile(c.viper.GetString("log.file")),
	)

	cfg := proxyConfig(c.viper)
	p, err := proxy.New(cfg, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	c.logger.Info("starting chatbox proxy",
		"listen", cfg.ListenAddr,
		"backend", p.BackendURL(),
		"timeout", cfg.Timeout,
		"max_retries", cfg.MaxRetries,
		"metrics", cfg.Metrics,
	)

	if c.watchConfig {
		c.watch(p)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("proxy error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}

// watch re-resolves the backend address whenever the config file changes.
func (c *serveCommander) watch(p *proxy.Proxy) {
	file := c.viper.ConfigFileUsed()
	if file == "" {
		c.logger.Warn("no config file to watch, --watch-config ignored")
		return
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.logger.Debug("config file changed", "file", e.Name, "op", e.Op.String())
		// RefreshBackend logs failures and keeps the current address.
		_ = p.RefreshBackend(backendSources(c.viper))
	})
	c.viper.WatchConfig()
	c.logger.Info("watching config for backend changes", "file", file)
}

// proxyConfig reads the runtime proxy settings from the merged viper layers.
func proxyConfig(v *viper.Viper) proxy.Config {
	return proxy.Config{
		ListenAddr:   v.GetString("proxy.listen"),
		Backend:      backendSources(v),
		Timeout:      v.GetDuration("backend.timeout"),
		MaxRetries:   v.GetUint("backend.max_retries"),
		RetryBackoff: v.GetDuration("backend.retry_backoff"),
		Metrics:      v.GetBool("proxy.metrics"),
	}
}

func backendSources(v *viper.Viper) backend.Sources {
	return backend.Sources{
		ChatURL: v.GetString("backend.chat_url"),
		BaseURL: v.GetString("backend.base_url"),
		Mode:    v.GetString("backend.mode"),
	}
}
