package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"brotherowl/internal/application/port"
	"brotherowl/internal/domain"
)

// manualClock fires timers only from Advance.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	c       *manualClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, running due timers in order on the caller's goroutine.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*manualTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeConn is an open push connection driven by the test.
type fakeConn struct {
	msgs     chan []byte
	closed   chan struct{}
	once     sync.Once
	mu       sync.Mutex
	closeErr error
	written  []any
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.msgs:
		return websocket.TextMessage, b, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closeErr != nil {
			return 0, nil, c.closeErr
		}
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Drop simulates the remote side going away with the given close code.
func (c *fakeConn) Drop(code int) {
	c.mu.Lock()
	c.closeErr = &websocket.CloseError{Code: code}
	c.mu.Unlock()
	_ = c.Close()
}

func (c *fakeConn) Send(s string) { c.msgs <- []byte(s) }

type dialMode int

const (
	dialOpen dialMode = iota
	dialFail
	dialBlock
	dialPanic
)

type fakeDialer struct {
	mu    sync.Mutex
	mode  dialMode
	ctxs  []context.Context
	conns []*fakeConn
}

func (d *fakeDialer) SetMode(m dialMode) {
	d.mu.Lock()
	d.mode = m
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(ctx context.Context) (port.StreamConn, error) {
	d.mu.Lock()
	d.ctxs = append(d.ctxs, ctx)
	mode := d.mode
	d.mu.Unlock()

	switch mode {
	case dialFail:
		return nil, errors.New("connection refused")
	case dialPanic:
		panic("dialer exploded")
	case dialBlock:
		<-ctx.Done()
		return nil, ctx.Err()
	}
	conn := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ctxs)
}

func (d *fakeDialer) Conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) Ctx(i int) context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctxs[i]
}

type testAPIError struct{ code int }

func (e *testAPIError) Error() string { return fmt.Sprintf("api error %d", e.code) }
func (e *testAPIError) APICode() int  { return e.code }

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
	panic bool
}

func (f *fakeFetcher) FetchChain(ctx context.Context) (*port.ChainData, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	err := f.err
	p := f.panic
	f.mu.Unlock()

	if p {
		panic("fetcher exploded")
	}
	if err != nil {
		return nil, err
	}
	return &port.ChainData{
		Chain:   json.RawMessage(fmt.Sprintf(`{"current":%d,"timeout":250,"modifier":1}`, n)),
		Faction: json.RawMessage(`{"ID":123,"name":"Owls"}`),
	}, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) SetErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// recorder collects delivered payloads.
type recorder struct {
	mu       sync.Mutex
	payloads []domain.FeedPayload
}

func (r *recorder) OnData(p domain.FeedPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
}

func (r *recorder) All() []domain.FeedPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.FeedPayload(nil), r.payloads...)
}

func (r *recorder) Count(src domain.Source) int {
	n := 0
	for _, p := range r.All() {
		if p.Source == src {
			n++
		}
	}
	return n
}

type panicMonitor struct {
	mu    sync.Mutex
	calls int
}

func (m *panicMonitor) ProcessChainData(client port.Messenger, p domain.FeedPayload) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	panic("monitor exploded")
}

func (m *panicMonitor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle gives background goroutines a moment to act on anything they shouldn't.
func settle() { time.Sleep(20 * time.Millisecond) }

type timerSlots struct {
	reconnect, poll, health bool
	fetching                bool
}

func (c *Controller) slots() timerSlots {
	c.mu.Lock()
	defer c.mu.Unlock()
	return timerSlots{
		reconnect: c.reconnectTimer != nil,
		poll:      c.pollTimer != nil,
		health:    c.healthTimer != nil,
		fetching:  c.fetching,
	}
}

type harness struct {
	clock   *manualClock
	dialer  *fakeDialer
	fetcher *fakeFetcher
	rec     *recorder
	ctrl    *Controller
}

func newHarness(t *testing.T, cfg Config, mode dialMode, monitor port.ChainMonitor) *harness {
	t.Helper()
	h := &harness{
		clock:   newManualClock(),
		dialer:  &fakeDialer{mode: mode},
		fetcher: &fakeFetcher{},
		rec:     &recorder{},
	}
	h.ctrl = New(cfg, Deps{
		Dialer:  h.dialer,
		Fetcher: h.fetcher,
		Monitor: monitor,
		Clock:   h.clock,
		APIKey:  func() string { return "test-key" },
	})
	t.Cleanup(h.ctrl.Stop)
	return h
}

// idleFetchDone waits until no fetch is in flight.
func (h *harness) idleFetchDone(t *testing.T) {
	t.Helper()
	waitFor(t, "fetch to finish", func() bool { return !h.ctrl.slots().fetching })
}
