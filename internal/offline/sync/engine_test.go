package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/refill/internal/offline/queue"
	"github.com/mamadbah2/refill/pkg/clients/refill"
)

// fakeReplayer scripts per-path responses and records replay order.
type fakeReplayer struct {
	mu        stdsync.Mutex
	healthErr error
	responses map[string]error
	replayed  []string
	entered   chan struct{}
	block     chan struct{}
}

func (f *fakeReplayer) Do(_ context.Context, _ string, path string, _ json.RawMessage) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replayed = append(f.replayed, path)
	return f.responses[path]
}

func (f *fakeReplayer) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthErr
}

func (f *fakeReplayer) setHealth(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthErr = err
}

func (f *fakeReplayer) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replayed...)
}

func openTestQueue(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func enqueue(t *testing.T, store *queue.Store, method, path string) queue.Entry {
	t.Helper()
	entry, err := store.Enqueue(context.Background(), method, path, nil)
	require.NoError(t, err)
	return entry
}

func TestDrainReplaysInEnqueueOrder(t *testing.T) {
	store := openTestQueue(t)
	replayer := &fakeReplayer{responses: map[string]error{}}
	engine := NewEngine(replayer, store, nil)

	enqueue(t, store, "POST", "/api/deliveries")
	enqueue(t, store, "POST", "/api/deliveries")
	enqueue(t, store, "POST", "/api/deliveries")
	enqueue(t, store, "POST", "/api/visits/v1/submit")

	result, err := engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Done: 4, Left: 0, Dropped: 0}, result)

	order := replayer.order()
	require.Len(t, order, 4)
	assert.Equal(t, "/api/visits/v1/submit", order[3])

	depth, err := engine.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestDrainStopsOnNetworkFailure(t *testing.T) {
	store := openTestQueue(t)
	replayer := &fakeReplayer{responses: map[string]error{
		"/api/visits/v1/note": errors.New("dial tcp: connection refused"),
	}}
	engine := NewEngine(replayer, store, nil)

	enqueue(t, store, "POST", "/api/deliveries")
	enqueue(t, store, "PATCH", "/api/visits/v1/note")
	enqueue(t, store, "POST", "/api/visits/v1/submit")

	result, err := engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Done: 1, Left: 2, Dropped: 0}, result)

	// The failed entry and everything behind it stay put, in order.
	entries, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/api/visits/v1/note", entries[0].Path)
	assert.Equal(t, "/api/visits/v1/submit", entries[1].Path)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Zero(t, entries[1].Attempts)
}

func TestDrainStopsOnServerError(t *testing.T) {
	store := openTestQueue(t)
	replayer := &fakeReplayer{responses: map[string]error{
		"/api/deliveries": &refill.APIError{StatusCode: http.StatusBadGateway},
	}}
	engine := NewEngine(replayer, store, nil)

	enqueue(t, store, "POST", "/api/deliveries")
	enqueue(t, store, "POST", "/api/visits/v1/submit")

	result, err := engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Done: 0, Left: 2, Dropped: 0}, result)
}

func TestDrainDropsTerminalRejections(t *testing.T) {
	store := openTestQueue(t)
	replayer := &fakeReplayer{responses: map[string]error{
		"/api/visits/v1/submit": &refill.APIError{
			StatusCode: http.StatusBadRequest,
			Message:    "all boxes must be refilled before submitting a completed visit",
		},
	}}
	engine := NewEngine(replayer, store, nil)

	enqueue(t, store, "POST", "/api/visits/v1/submit")
	enqueue(t, store, "POST", "/api/deliveries")

	result, err := engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Done: 1, Left: 0, Dropped: 1}, result)

	// A rejection does not block the entries behind it.
	assert.Equal(t, []string{"/api/visits/v1/submit", "/api/deliveries"}, replayer.order())

	depth, err := engine.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestDrainIsSingleFlight(t *testing.T) {
	store := openTestQueue(t)
	replayer := &fakeReplayer{
		responses: map[string]error{},
		entered:   make(chan struct{}),
		block:     make(chan struct{}),
	}
	engine := NewEngine(replayer, store, nil)

	enqueue(t, store, "POST", "/api/deliveries")

	done := make(chan Result, 1)
	go func() {
		result, err := engine.Drain(context.Background())
		assert.NoError(t, err)
		done <- result
	}()

	// Wait until the first drain is inside a replay, then race a second one.
	<-replayer.entered
	_, err := engine.Drain(context.Background())
	require.ErrorIs(t, err, ErrDrainInFlight)

	close(replayer.block)
	select {
	case result := <-done:
		assert.Equal(t, Result{Done: 1, Left: 0, Dropped: 0}, result)
	case <-time.After(2 * time.Second):
		t.Fatal("first drain never finished")
	}
}

func TestDrainEmptyQueue(t *testing.T) {
	store := openTestQueue(t)
	engine := NewEngine(&fakeReplayer{responses: map[string]error{}}, store, nil)

	result, err := engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}

func TestEngineDrainsWhenConnectivityReturns(t *testing.T) {
	store := openTestQueue(t)
	replayer := &fakeReplayer{responses: map[string]error{}}
	replayer.setHealth(errors.New("dial tcp: connection refused"))

	enqueue(t, store, "POST", "/api/deliveries")
	enqueue(t, store, "POST", "/api/visits/v1/submit")

	results := make(chan Result, 1)
	engine := NewEngine(replayer, store, nil,
		WithProbeInterval(5*time.Millisecond),
		WithOnResult(func(r Result) {
			select {
			case results <- r:
			default:
			}
		}))

	engine.Start()
	defer engine.Stop()

	// Offline: probes keep failing and nothing is replayed.
	time.Sleep(25 * time.Millisecond)
	assert.False(t, engine.Online())
	assert.Empty(t, replayer.order())

	replayer.setHealth(nil)

	select {
	case result := <-results:
		assert.Equal(t, Result{Done: 2, Left: 0, Dropped: 0}, result)
	case <-time.After(2 * time.Second):
		t.Fatal("drain never ran after connectivity returned")
	}
	assert.True(t, engine.Online())
}

func TestStartTwiceIsNoOp(t *testing.T) {
	store := openTestQueue(t)
	engine := NewEngine(&fakeReplayer{responses: map[string]error{}}, store, nil,
		WithProbeInterval(time.Hour))

	engine.Start()
	engine.Start()
	engine.Stop()
	engine.Stop()
}
