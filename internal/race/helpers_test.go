package race

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock advances by step on every Now and by the requested duration plus
// oversleep on every Sleep or After.
type fakeClock struct {
	mu        sync.Mutex
	now       time.Time
	step      time.Duration
	oversleep time.Duration
	sleeps    int
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps++
	c.now = c.now.Add(d + c.oversleep)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession(t *testing.T, srv *httptest.Server) *Session {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return &Session{
		Client:    srv.Client(),
		BaseURL:   u,
		Token:     "csrf-123",
		BuyerCode: "buyer-9",
	}
}

// shopHandler answers the warm-up route and delegates purchases to buy.
func shopHandler(buy http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/achat/action", buy)
	return mux
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.AttemptTimeout = 2 * time.Second
	cfg.WarmupTimeout = 500 * time.Millisecond
	return cfg
}
