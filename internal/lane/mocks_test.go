package lane

import (
	"context"
	"io"
	"sync"
	"time"

	"parking-access-backend/internal/model"
	"parking-access-backend/internal/notification"
)

// mockStore is a mock implementation of the lane store interfaces.
type mockStore struct {
	HasOpenUnpaidSessionFunc  func(ctx context.Context, plate string) (bool, error)
	CreateEntryFunc           func(ctx context.Context, plate string, entryTime time.Time) (int64, error)
	MostRecentPaidSessionFunc func(ctx context.Context, plate string) (*model.ParkingSession, error)

	mu          sync.Mutex
	createCalls []string
}

func (m *mockStore) HasOpenUnpaidSession(ctx context.Context, plate string) (bool, error) {
	if m.HasOpenUnpaidSessionFunc == nil {
		return false, nil
	}
	return m.HasOpenUnpaidSessionFunc(ctx, plate)
}

func (m *mockStore) CreateEntry(ctx context.Context, plate string, entryTime time.Time) (int64, error) {
	m.mu.Lock()
	m.createCalls = append(m.createCalls, plate)
	n := int64(len(m.createCalls))
	m.mu.Unlock()
	if m.CreateEntryFunc == nil {
		return n, nil
	}
	return m.CreateEntryFunc(ctx, plate, entryTime)
}

func (m *mockStore) MostRecentPaidSession(ctx context.Context, plate string) (*model.ParkingSession, error) {
	return m.MostRecentPaidSessionFunc(ctx, plate)
}

func (m *mockStore) creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.createCalls)
}

// fakeGate records commands.
type fakeGate struct {
	mu       sync.Mutex
	opens    int
	alerts   int
	closes   int
	attached io.Writer
}

func (g *fakeGate) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opens++
	return nil
}

func (g *fakeGate) Alert() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.alerts++
	return nil
}

func (g *fakeGate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes++
	return nil
}

func (g *fakeGate) Attach(w io.Writer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attached = w
}

func (g *fakeGate) counts() (opens, alerts, closes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opens, g.alerts, g.closes
}

// recordingNotifier collects events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Notify(e notification.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) all() []notification.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Event(nil), n.events...)
}

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
