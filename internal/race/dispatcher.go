package race

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SkyZonDev/scrappex/internal/models"
	"github.com/SkyZonDev/scrappex/internal/nettrace"
)

// Attempt pairs a dispatched record with the response it produced, before
// classification.
type Attempt struct {
	Record   models.AttemptRecord
	Response RawResponse
}

// Dispatcher fires bursts of identical purchase requests.
type Dispatcher struct {
	attempts int
	timeout  time.Duration
	path     string
	maxBody  int64
	clock    Clock
}

func NewDispatcher(cfg Config, clock Clock) *Dispatcher {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = SystemClock()
	}
	return &Dispatcher{
		attempts: cfg.Attempts,
		timeout:  cfg.AttemptTimeout,
		path:     cfg.PurchasePath,
		maxBody:  cfg.MaxBodyBytes,
		clock:    clock,
	}
}

// Burst is a set of armed attempts waiting on a start gate.
type Burst struct {
	gate     chan struct{}
	abort    chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	attempts []Attempt
}

// Arm starts one goroutine per attempt, each blocked until Fire or Abort.
// Attempts outlive ctx cancellation once fired: a request already on the
// wire cannot be taken back, so only its own timeout bounds it.
func (d *Dispatcher) Arm(ctx context.Context, sess *Session, lotID int64) *Burst {
	form := url.Values{
		"ceo_csrf_token": {sess.Token},
		"lot":            {strconv.FormatInt(lotID, 10)},
		"code":           {sess.BuyerCode},
	}
	body := form.Encode()
	target := sess.URL(d.path)
	base := context.WithoutCancel(ctx)

	b := &Burst{
		gate:     make(chan struct{}),
		abort:    make(chan struct{}),
		attempts: make([]Attempt, d.attempts),
	}
	for i := range b.attempts {
		i := i
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			select {
			case <-b.gate:
			case <-b.abort:
				return
			}
			b.attempts[i] = d.attempt(base, sess, target, body, lotID, i+1)
		}()
	}
	return b
}

// Fire opens the gate and waits for every attempt to finish, whatever its
// outcome. A slower response may still be the authoritative win.
func (b *Burst) Fire() []Attempt {
	b.once.Do(func() { close(b.gate) })
	b.wg.Wait()
	return b.attempts
}

// Abort releases armed attempts without sending anything.
func (b *Burst) Abort() {
	b.once.Do(func() { close(b.abort) })
	b.wg.Wait()
}

func (d *Dispatcher) attempt(ctx context.Context, sess *Session, target, body string, lotID int64, seq int) Attempt {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ctx, timings := nettrace.WithTimings(ctx)

	a := Attempt{Record: models.AttemptRecord{LotID: lotID, Seq: seq}}
	a.Record.DispatchedAt = d.clock.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err == nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		var resp *http.Response
		resp, err = sess.Client.Do(req)
		if err == nil {
			a.Response.StatusCode = resp.StatusCode
			a.Response.FinalURL = resp.Request.URL.String()
			a.Response.Body, err = io.ReadAll(io.LimitReader(resp.Body, d.maxBody))
			resp.Body.Close()
		}
	}
	a.Response.Err = err

	a.Record.CompletedAt = d.clock.Now()
	if a.Record.CompletedAt.Before(a.Record.DispatchedAt) {
		a.Record.CompletedAt = a.Record.DispatchedAt
	}
	a.Record.Elapsed = a.Record.CompletedAt.Sub(a.Record.DispatchedAt)
	a.Record.StatusCode = a.Response.StatusCode
	a.Record.ConnReused = timings.Snapshot().ConnReused
	return a
}
