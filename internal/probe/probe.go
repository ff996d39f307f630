// Package probe measures how much a warm pooled connection saves over a cold
// one against the shop, so the burst settings can be tuned per host.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/SkyZonDev/scrappex/internal/nettrace"
)

type Sample struct {
	Seq        int           `json:"seq"`
	StatusCode int           `json:"status_code,omitempty"`
	Total      time.Duration `json:"total_ns"`
	TTFB       time.Duration `json:"ttfb_ns"`
	Connect    time.Duration `json:"connect_ns"`
	TLS        time.Duration `json:"tls_ns"`
	ConnReused bool          `json:"conn_reused"`
	Error      string        `json:"error,omitempty"`
}

type Stats struct {
	Count  int           `json:"count"`
	Min    time.Duration `json:"min_ns"`
	Median time.Duration `json:"median_ns"`
	P95    time.Duration `json:"p95_ns"`
	Max    time.Duration `json:"max_ns"`
}

func (s Stats) String() string {
	if s.Count == 0 {
		return "n=0"
	}
	return fmt.Sprintf("n=%d min=%s median=%s p95=%s max=%s", s.Count, s.Min, s.Median, s.P95, s.Max)
}

type Report struct {
	URL     string   `json:"url"`
	Samples []Sample `json:"samples"`
	Cold    Stats    `json:"cold"`
	Warm    Stats    `json:"warm"`
	Failed  int      `json:"failed"`
}

// Run issues n sequential GETs to target through client. The first request
// normally opens the connection and the rest reuse it.
func Run(ctx context.Context, client *http.Client, target string, n int) (Report, error) {
	if n <= 0 {
		return Report{}, fmt.Errorf("probe: n must be positive, got %d", n)
	}
	rep := Report{URL: target, Samples: make([]Sample, 0, n)}
	var cold, warm []time.Duration
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		s := once(ctx, client, target, i)
		rep.Samples = append(rep.Samples, s)
		switch {
		case s.Error != "":
			rep.Failed++
		case s.ConnReused:
			warm = append(warm, s.Total)
		default:
			cold = append(cold, s.Total)
		}
	}
	rep.Cold = Summarize(cold)
	rep.Warm = Summarize(warm)
	return rep, nil
}

func once(ctx context.Context, client *http.Client, target string, seq int) Sample {
	s := Sample{Seq: seq}
	tctx, timings := nettrace.WithTimings(ctx)
	req, err := http.NewRequestWithContext(tctx, http.MethodGet, target, nil)
	if err != nil {
		s.Error = err.Error()
		return s
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		s.Error = err.Error()
		return s
	}
	// Drain so the connection goes back to the pool.
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	s.Total = time.Since(start)
	s.StatusCode = resp.StatusCode

	snap := timings.Snapshot()
	s.TTFB = snap.TTFB
	s.Connect = snap.Connect
	s.TLS = snap.TLS
	s.ConnReused = snap.ConnReused
	return s
}

// Summarize returns min, median, p95 and max of values.
func Summarize(values []time.Duration) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := make([]time.Duration, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	pick := func(q float64) time.Duration {
		idx := int(q * float64(len(sorted)))
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	return Stats{
		Count:  len(sorted),
		Min:    sorted[0],
		Median: pick(0.5),
		P95:    pick(0.95),
		Max:    sorted[len(sorted)-1],
	}
}
