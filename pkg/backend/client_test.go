package backend_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatbox/pkg/backend"
	"github.com/papercomputeco/chatbox/pkg/chat"
	"github.com/papercomputeco/chatbox/pkg/metrics"
	"github.com/papercomputeco/chatbox/pkg/schema"
)

const fullReply = `{
	"chat_box": {"message": "hi there"},
	"model_used": "x",
	"timestamp": "2024-01-01T00:00:00Z",
	"processing_time_ms": 5,
	"prompt_tokens": 1,
	"completion_tokens": 1,
	"total_tokens": 2,
	"session_id": "s1",
	"chat_id": "c1"
}`

func newClient(url string, cfg backend.ClientConfig, opts ...backend.ClientOption) *backend.Client {
	addr, err := backend.NewAddress(backend.Sources{ChatURL: url})
	Expect(err).NotTo(HaveOccurred())
	return backend.NewClient(addr, cfg, opts...)
}

func unavailable(err error) *backend.BackendUnavailableError {
	var unavailableErr *backend.BackendUnavailableError
	Expect(errors.As(err, &unavailableErr)).To(BeTrue(), "expected a backend unavailable error, got %v", err)
	return unavailableErr
}

var _ = Describe("Client", func() {
	var (
		req      *chat.ChatRequest
		hits     atomic.Int32
		upstream *httptest.Server
	)

	BeforeEach(func() {
		hits.Store(0)
		model := "llama3"
		req = &chat.ChatRequest{
			ChatBox:   chat.ChatBox{Message: "hello"},
			SessionID: "s1",
			Model:     model,
		}
	})

	AfterEach(func() {
		if upstream != nil {
			upstream.Close()
			upstream = nil
		}
	})

	serve := func(h http.HandlerFunc) string {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			h(w, r)
		}))
		return upstream.URL + "/chat"
	}

	It("posts the encoded request as JSON", func() {
		var gotBody []byte
		var gotHeader http.Header
		var gotMethod, gotPath string
		url := serve(func(w http.ResponseWriter, r *http.Request) {
			gotMethod, gotPath = r.Method, r.URL.Path
			gotHeader = r.Header.Clone()
			gotBody, _ = io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, fullReply)
		})

		hdr := http.Header{}
		hdr.Set("X-Request-ID", "req-1")
		hdr.Set("Content-Type", "text/plain")

		_, err := newClient(url, backend.ClientConfig{}).Forward(context.Background(), req, hdr)
		Expect(err).NotTo(HaveOccurred())

		Expect(gotMethod).To(Equal(http.MethodPost))
		Expect(gotPath).To(Equal("/chat"))
		Expect(gotHeader.Get("Content-Type")).To(Equal("application/json"))
		Expect(gotHeader.Get("X-Request-ID")).To(Equal("req-1"))
		Expect(gotBody).To(MatchJSON(`{"chat_box":{"message":"hello"},"session_id":"s1","model":"llama3"}`))
	})

	It("returns a full backend response unchanged", func() {
		url := serve(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, fullReply)
		})

		resp, err := newClient(url, backend.ClientConfig{}).Forward(context.Background(), req, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.ChatBox.Message).To(Equal("hi there"))
		Expect(resp.ModelUsed).To(Equal("x"))
		Expect(resp.ChatID).To(Equal("c1"))
		Expect(resp.Validate()).To(Succeed())
	})

	It("fills the fallback message and defaults", func() {
		url := serve(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"chat_box":{"message":""}}`)
		})
		collector := metrics.New()

		before := time.Now().UTC()
		resp, err := newClient(url, backend.ClientConfig{}, backend.WithMetrics(collector)).Forward(context.Background(), req, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.ChatBox.Message).To(Equal(chat.FallbackMessage))
		Expect(resp.ModelUsed).To(Equal("llama3"))
		Expect(resp.SessionID).To(Equal("s1"))
		Expect(resp.ChatID).To(BeEmpty())

		ts, err := time.Parse(time.RFC3339, resp.Timestamp)
		Expect(err).NotTo(HaveOccurred())
		Expect(ts).To(BeTemporally(">=", before.Truncate(time.Second)))
		ms, err := resp.ProcessingTimeMs.Int64()
		Expect(err).NotTo(HaveOccurred())
		Expect(ms).To(BeNumerically(">=", 0))
		Expect(resp.Validate()).To(Succeed())
	})

	It("accepts the legacy response field", func() {
		url := serve(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"response":"legacy"}`)
		})

		resp, err := newClient(url, backend.ClientConfig{}).Forward(context.Background(), req, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.ChatBox.Message).To(Equal("legacy"))
	})

	It("treats a non-2xx status as unavailable without retrying by default", func() {
		url := serve(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := newClient(url, backend.ClientConfig{}).Forward(context.Background(), req, nil)
		Expect(unavailable(err).Status).To(Equal(http.StatusInternalServerError))
		Expect(hits.Load()).To(BeEquivalentTo(1))
	})

	It("retries 5xx statuses when enabled", func() {
		url := serve(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Load() < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = io.WriteString(w, fullReply)
		})
		collector := metrics.New()

		client := newClient(url, backend.ClientConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}, backend.WithMetrics(collector))
		resp, err := client.Forward(context.Background(), req, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.ChatBox.Message).To(Equal("hi there"))
		Expect(hits.Load()).To(BeEquivalentTo(3))
	})

	It("stops after the configured retries", func() {
		url := serve(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		client := newClient(url, backend.ClientConfig{MaxRetries: 2, RetryBackoff: time.Millisecond})
		_, err := client.Forward(context.Background(), req, nil)
		Expect(unavailable(err).Status).To(Equal(http.StatusBadGateway))
		Expect(hits.Load()).To(BeEquivalentTo(3))
	})

	It("never retries a 4xx status", func() {
		url := serve(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		client := newClient(url, backend.ClientConfig{MaxRetries: 3, RetryBackoff: time.Millisecond})
		_, err := client.Forward(context.Background(), req, nil)
		Expect(unavailable(err).Status).To(Equal(http.StatusNotFound))
		Expect(hits.Load()).To(BeEquivalentTo(1))
	})

	It("fails within the timeout when the backend hangs", func() {
		url := serve(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		})

		start := time.Now()
		_, err := newClient(url, backend.ClientConfig{Timeout: 100 * time.Millisecond}).Forward(context.Background(), req, nil)
		Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))

		unavailableErr := unavailable(err)
		Expect(unavailableErr.Status).To(BeZero())
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("fails when the connection is refused", func() {
		closed := httptest.NewServer(http.NotFoundHandler())
		url := closed.URL + "/chat"
		closed.Close()

		_, err := newClient(url, backend.ClientConfig{}).Forward(context.Background(), req, nil)
		Expect(unavailable(err).Status).To(BeZero())
	})

	It("gives up when the caller cancels", func() {
		url := serve(func(_ http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		_, err := newClient(url, backend.ClientConfig{MaxRetries: 5}).Forward(ctx, req, nil)
		unavailable(err)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(hits.Load()).To(BeEquivalentTo(1))
	})

	It("treats a body that is not an object as unavailable", func() {
		url := serve(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `"just a string"`)
		})

		_, err := newClient(url, backend.ClientConfig{}).Forward(context.Background(), req, nil)
		unavailableErr := unavailable(err)
		Expect(unavailableErr.Status).To(Equal(http.StatusOK))

		var vErr *schema.ValidationError
		Expect(errors.As(err, &vErr)).To(BeTrue())
	})

	It("treats wrong-typed fields as unavailable", func() {
		url := serve(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"chat_box":{"message":["a"]}}`)
		})

		_, err := newClient(url, backend.ClientConfig{}).Forward(context.Background(), req, nil)
		var vErr *schema.ValidationError
		Expect(errors.As(err, &vErr)).To(BeTrue())
		Expect(vErr.Paths()).To(Equal([]string{"chatBox.message"}))
	})

	It("rejects an oversized reply", func() {
		url := serve(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"response":"`+strings.Repeat("a", backend.MaxResponseBytes)+`"}`)
		})

		_, err := newClient(url, backend.ClientConfig{}).Forward(context.Background(), req, nil)
		unavailable(err)
		Expect(errors.Is(err, backend.ErrResponseTooLarge)).To(BeTrue())
	})

	It("reads the address on every call", func() {
		first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"response":"first"}`)
		}))
		defer first.Close()
		second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"response":"second"}`)
		}))
		defer second.Close()

		addr, err := backend.NewAddress(backend.Sources{BaseURL: first.URL})
		Expect(err).NotTo(HaveOccurred())
		client := backend.NewClient(addr, backend.ClientConfig{})

		resp, err := client.Forward(context.Background(), req, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.ChatBox.Message).To(Equal("first"))

		_, err = addr.Refresh(backend.Sources{BaseURL: second.URL})
		Expect(err).NotTo(HaveOccurred())

		resp, err = client.Forward(context.Background(), req, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.ChatBox.Message).To(Equal("second"))
	})
})
