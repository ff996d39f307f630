// Package nettrace captures connection-level timings of a single HTTP request.
package nettrace

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"
)

// Timings is filled by the client trace installed with WithTimings. Read it
// through Snapshot.
type Timings struct {
	mu sync.Mutex

	dns, connect, tls, ttfb time.Duration
	reused                  bool

	start                         time.Time
	dnsStart, connStart, tlsStart time.Time
}

// WithTimings returns a context carrying an httptrace.ClientTrace that records
// into the returned Timings. TTFB is measured from this call.
func WithTimings(ctx context.Context) (context.Context, *Timings) {
	td := &Timings{start: time.Now()}
	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) { td.set(func() { td.dnsStart = time.Now() }) },
		DNSDone: func(httptrace.DNSDoneInfo) {
			td.set(func() {
				if !td.dnsStart.IsZero() {
					td.dns = time.Since(td.dnsStart)
				}
			})
		},
		ConnectStart: func(_, _ string) { td.set(func() { td.connStart = time.Now() }) },
		ConnectDone: func(_, _ string, err error) {
			td.set(func() {
				if err == nil && !td.connStart.IsZero() {
					td.connect = time.Since(td.connStart)
				}
			})
		},
		TLSHandshakeStart: func() { td.set(func() { td.tlsStart = time.Now() }) },
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			td.set(func() {
				if err == nil && !td.tlsStart.IsZero() {
					td.tls = time.Since(td.tlsStart)
				}
			})
		},
		GotConn: func(info httptrace.GotConnInfo) { td.set(func() { td.reused = info.Reused }) },
		GotFirstResponseByte: func() {
			td.set(func() {
				if td.ttfb == 0 {
					td.ttfb = time.Since(td.start)
				}
			})
		},
	}
	return httptrace.WithClientTrace(ctx, trace), td
}

func (t *Timings) set(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn()
}

// Snapshot returns a copy safe to read after the request finished.
func (t *Timings) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{DNS: t.dns, Connect: t.connect, TLS: t.tls, TTFB: t.ttfb, ConnReused: t.reused}
}

// Snapshot is a lock-free copy of Timings.
type Snapshot struct {
	DNS        time.Duration
	Connect    time.Duration
	TLS        time.Duration
	TTFB       time.Duration
	ConnReused bool
}

// Cold reports whether the request paid for a new connection.
func (s Snapshot) Cold() bool {
	return !s.ConnReused
}
