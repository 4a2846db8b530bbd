package transcriber

import (
	"crypto/tls"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"
)

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
	RateLimit   string // "remaining/limit" as reported by the API
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// tracingTransport times every phase of a request and keeps the metrics of
// the most recent one.
type tracingTransport struct {
	base http.RoundTripper

	mu      sync.Mutex
	metrics *NetworkMetrics
}

func newTracingTransport(base http.RoundTripper) *tracingTransport {
	return &tracingTransport{base: base}
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m := &NetworkMetrics{}
	var getConnStart, dnsStart, tcpStart, tlsStart time.Time
	var gotConn, wroteHeaders, wroteRequest time.Time

	trace := &httptrace.ClientTrace{
		GetConn: func(string) { getConnStart = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			gotConn = time.Now()
			m.ConnWait = gotConn.Sub(getConnStart)
			m.ConnReused = info.Reused
		},
		DNSStart:          func(httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { m.DNS = time.Since(dnsStart) },
		ConnectStart:      func(_, _ string) { tcpStart = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { m.TCP = time.Since(tcpStart) },
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone: func(cs tls.ConnectionState, _ error) {
			m.TLS = time.Since(tlsStart)
			m.TLSProtocol = tls.VersionName(cs.Version)
		},
		WroteHeaders: func() {
			wroteHeaders = time.Now()
			m.ReqHeaders = wroteHeaders.Sub(gotConn)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			wroteRequest = time.Now()
			m.ReqBody = wroteRequest.Sub(wroteHeaders)
		},
		GotFirstResponseByte: func() { m.TTFB = time.Since(wroteRequest) },
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req.WithContext(httptrace.WithClientTrace(req.Context(), trace)))
	m.Total = time.Since(start)
	if err != nil {
		return nil, err
	}
	m.RateLimit = firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests") + "/" +
		firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	t.mu.Lock()
	t.metrics = m
	t.mu.Unlock()
	return resp, nil
}

func (t *tracingTransport) last() *NetworkMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}
