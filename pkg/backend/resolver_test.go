package backend_test

import (
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatbox/pkg/backend"
)

var _ = Describe("Resolve", func() {
	DescribeTable("precedence",
		func(s backend.Sources, expected string) {
			resolved, err := backend.Resolve(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved).To(Equal(expected))
		},
		Entry("full endpoint override wins",
			backend.Sources{ChatURL: "http://x/chat", BaseURL: "http://y/v1", Mode: backend.ModeProduction},
			"http://x/chat"),
		Entry("override is used verbatim",
			backend.Sources{ChatURL: "http://x:9000/api/talk/"},
			"http://x:9000/api/talk/"),
		Entry("base url gets the chat path",
			backend.Sources{BaseURL: "http://y/v1"},
			"http://y/v1/chat"),
		Entry("trailing slash on the base is removed",
			backend.Sources{BaseURL: "http://y/v1/"},
			"http://y/v1/chat"),
		Entry("base url beats the mode default",
			backend.Sources{BaseURL: "http://y", Mode: backend.ModeProduction},
			"http://y/chat"),
		Entry("production default",
			backend.Sources{Mode: backend.ModeProduction},
			"http://ai:8000/chat"),
		Entry("development default",
			backend.Sources{Mode: backend.ModeDevelopment},
			"http://127.0.0.1:8000/chat"),
		Entry("empty mode is development",
			backend.Sources{},
			"http://127.0.0.1:8000/chat"),
		Entry("unknown mode is development",
			backend.Sources{Mode: "staging"},
			"http://127.0.0.1:8000/chat"),
		Entry("mode is case insensitive",
			backend.Sources{Mode: " Production "},
			"http://ai:8000/chat"),
		Entry("blank override falls through",
			backend.Sources{ChatURL: "   ", BaseURL: "http://y"},
			"http://y/chat"),
	)
})

var _ = Describe("Address", func() {
	It("resolves once and serves the value", func() {
		addr, err := backend.NewAddress(backend.Sources{BaseURL: "http://a"})
		Expect(err).NotTo(HaveOccurred())
		Expect(addr.URL()).To(Equal("http://a/chat"))
	})

	It("swaps in a refreshed value", func() {
		addr, err := backend.NewAddress(backend.Sources{BaseURL: "http://a"})
		Expect(err).NotTo(HaveOccurred())

		changed, err := addr.Refresh(backend.Sources{ChatURL: "http://b/chat"})
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeTrue())
		Expect(addr.URL()).To(Equal("http://b/chat"))

		changed, err = addr.Refresh(backend.Sources{BaseURL: "http://b/"})
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeFalse())
	})

	It("rejects malformed urls on refresh and keeps the address", func() {
		addr, err := backend.NewAddress(backend.Sources{BaseURL: "http://a"})
		Expect(err).NotTo(HaveOccurred())

		for _, s := range []backend.Sources{
			{ChatURL: "not a url"},
			{BaseURL: "relative/path"},
		} {
			changed, err := addr.Refresh(s)
			var cfgErr *backend.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue(), "sources %+v", s)
			Expect(cfgErr.Field).To(HavePrefix("Sources."))
			Expect(changed).To(BeFalse())
			Expect(addr.URL()).To(Equal("http://a/chat"))
		}
	})

	It("is safe for concurrent reads during a refresh", func() {
		addr, err := backend.NewAddress(backend.Sources{})
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for j := 0; j < 100; j++ {
					Expect(addr.URL()).To(HaveSuffix("/chat"))
				}
			}()
		}
		for j := 0; j < 100; j++ {
			_, err := addr.Refresh(backend.Sources{Mode: backend.ModeProduction})
			Expect(err).NotTo(HaveOccurred())
		}
		wg.Wait()
		Expect(addr.URL()).To(Equal("http://ai:8000/chat"))
	})
})

var _ = Describe("Errors", func() {
	It("names the backend failure kind", func() {
		err := &backend.BackendUnavailableError{Status: 503}
		Expect(err.Kind()).To(Equal("BackendUnavailableError"))
		Expect(err.Error()).To(Equal("backend unavailable: status 503"))
	})

	It("names the configuration kind", func() {
		err := &backend.ConfigurationError{Field: "backend.timeout"}
		Expect(err.Kind()).To(Equal("ConfigurationError"))
	})
})
