// Package sync drains the mutation queue against the server whenever
// connectivity allows. One engine instance owns the whole lifecycle; there
// is no package-level state, so tests can run engines side by side.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/refill/internal/offline/queue"
	"github.com/mamadbah2/refill/pkg/clients/refill"
)

// ErrDrainInFlight reports that a drain cycle is already running. A second
// trigger is a no-op rather than a parallel drain, so replays never race.
var ErrDrainInFlight = errors.New("drain already in flight")

// Result summarizes one drain cycle. Dropped counts entries the server
// rejected terminally (4xx) and that were removed with a surfaced notice.
type Result struct {
	Done    int `json:"done"`
	Left    int `json:"left"`
	Dropped int `json:"dropped"`
}

// Replayer issues one queued mutation exactly as enqueued and probes
// connectivity. *refill.Client satisfies it.
type Replayer interface {
	Do(ctx context.Context, method, path string, body json.RawMessage) error
	Health(ctx context.Context) error
}

// Engine owns the connectivity observer and the single-flight drain loop.
type Engine struct {
	client        Replayer
	store         *queue.Store
	logger        *zap.Logger
	probeInterval time.Duration
	onResult      func(Result)

	online   atomic.Bool
	draining atomic.Bool

	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes an Engine.
type Option func(*Engine)

// WithProbeInterval sets how often connectivity is probed in watch mode.
func WithProbeInterval(d time.Duration) Option {
	return func(e *Engine) { e.probeInterval = d }
}

// WithOnResult registers a subscriber notified after every drain cycle, for
// "synced N change(s)" style UI surfaces.
func WithOnResult(fn func(Result)) Option {
	return func(e *Engine) { e.onResult = fn }
}

// NewEngine constructs a sync engine over the queue store and API client.
func NewEngine(client Replayer, store *queue.Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		client:        client,
		store:         store,
		logger:        logger,
		probeInterval: 30 * time.Second,
		kick:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the connectivity loop: an eager drain attempt right away,
// then probe-driven drains until Stop. Calling Start twice is a no-op.
func (e *Engine) Start() {
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.Kick()
	e.wg.Add(1)
	go e.run(ctx)
}

// Stop halts the loop and waits for an in-flight drain to finish.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.cancel = nil
}

// Kick requests a drain attempt, coalescing with any pending request. Use
// it when a mutation was just enqueued or connectivity is known restored.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Online reports the last observed connectivity state.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// Depth returns the current queue length.
func (e *Engine) Depth(ctx context.Context) (int, error) {
	return e.store.Len(ctx)
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.kick:
		}
		e.probeAndDrain(ctx)
	}
}

func (e *Engine) probeAndDrain(ctx context.Context) {
	wasOnline := e.online.Load()
	err := e.client.Health(ctx)
	nowOnline := err == nil
	e.online.Store(nowOnline)

	if !nowOnline {
		if wasOnline {
			e.logger.Info("connectivity lost")
		}
		return
	}
	if !wasOnline {
		e.logger.Info("connectivity restored")
	}

	result, err := e.Drain(ctx)
	if err != nil {
		if !errors.Is(err, ErrDrainInFlight) {
			e.logger.Error("drain failed", zap.Error(err))
		}
		return
	}
	if e.onResult != nil && (result.Done > 0 || result.Dropped > 0 || result.Left > 0) {
		e.onResult(result)
	}
}

// Drain replays pending mutations strictly in enqueue order. Success
// deletes the entry; a network failure or 5xx keeps the entry and ends the
// pass so everything behind it waits (a later submit may depend on an
// earlier create); a 4xx rejection drops the entry with a notice, since the
// server has seen the request and will reject it forever. Only one drain
// runs at a time; concurrent callers get ErrDrainInFlight.
func (e *Engine) Drain(ctx context.Context) (Result, error) {
	if !e.draining.CompareAndSwap(false, true) {
		return Result{}, ErrDrainInFlight
	}
	defer e.draining.Store(false)

	entries, err := e.store.List(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result
	remaining := len(entries)
	for _, entry := range entries {
		err := e.client.Do(ctx, entry.Method, entry.Path, entry.Body)
		if err == nil {
			if derr := e.store.Delete(ctx, entry.ID); derr != nil {
				result.Left = remaining
				return result, derr
			}
			result.Done++
			remaining--
			continue
		}

		var apiErr *refill.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			e.logger.Warn("queued change rejected by server, dropping",
				zap.String("id", entry.ID),
				zap.String("method", entry.Method),
				zap.String("path", entry.Path),
				zap.Int("status", apiErr.StatusCode),
				zap.String("cause", apiErr.Message))
			if derr := e.store.Delete(ctx, entry.ID); derr != nil {
				result.Left = remaining
				return result, derr
			}
			result.Dropped++
			remaining--
			continue
		}

		// Network failure or server 5xx: keep the entry, preserve order,
		// retry on the next pass.
		e.logger.Info("replay interrupted, will retry",
			zap.String("id", entry.ID),
			zap.String("path", entry.Path),
			zap.Error(err))
		if merr := e.store.MarkFailed(ctx, entry.ID, err.Error()); merr != nil {
			e.logger.Error("failed recording replay attempt", zap.Error(merr))
		}
		break
	}

	result.Left = remaining
	e.logger.Info("drain finished",
		zap.Int("done", result.Done),
		zap.Int("left", result.Left),
		zap.Int("dropped", result.Dropped))
	return result, nil
}
