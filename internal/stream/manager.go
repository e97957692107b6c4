// Package stream tracks the request streams in flight on one session.
package stream

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrClosed is the cancellation cause of streams aborted by Manager.Close.
	ErrClosed = errors.New("session closed")
	// ErrCancelled is the cause callers pass to Cancel to abort one stream.
	ErrCancelled = errors.New("stream cancelled")
)

type State int

const (
	StateOpen State = iota
	StateDone
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Summary struct {
	ID        string
	Method    string
	Path      string
	State     State
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

type CompletionHook func(summary Summary)

type Manager struct {
	mu      sync.RWMutex
	streams map[string]*Handle
	recent  *ringBuffer
	hooks   []CompletionHook
	closed  bool
	now     func() time.Time
}

// Handle is one registered stream. Done must be called exactly when the
// stream reaches a terminal state; extra calls are ignored.
type Handle struct {
	m       *Manager
	ctx     context.Context
	cancel  context.CancelCauseFunc
	summary Summary
	once    sync.Once
}

// NewManager keeps the last historySize finished streams for Recent.
func NewManager(historySize int) *Manager {
	return &Manager{
		streams: make(map[string]*Handle),
		recent:  newRingBuffer(historySize),
		now:     time.Now,
	}
}

// Register adds a stream derived from parent. The returned context is
// cancelled by Cancel, Close or the parent.
func (m *Manager) Register(parent context.Context, method, path string) (context.Context, *Handle, error) {
	ctx, cancel := context.WithCancelCause(parent)
	h := &Handle{
		m:      m,
		ctx:    ctx,
		cancel: cancel,
		summary: Summary{
			ID:        uuid.NewString(),
			Method:    method,
			Path:      path,
			State:     StateOpen,
			StartedAt: m.now(),
		},
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel(ErrClosed)
		return nil, nil, ErrClosed
	}
	m.streams[h.summary.ID] = h
	m.mu.Unlock()

	return ctx, h, nil
}

func (h *Handle) ID() string {
	return h.summary.ID
}

func (h *Handle) Context() context.Context {
	return h.ctx
}

// Done removes the stream from the in-flight set and runs completion hooks.
func (h *Handle) Done(err error) {
	h.once.Do(func() {
		m := h.m
		summary := h.summary
		summary.EndedAt = m.now()
		summary.Err = err
		switch {
		case err == nil:
			summary.State = StateDone
		case errors.Is(context.Cause(h.ctx), ErrClosed), errors.Is(context.Cause(h.ctx), ErrCancelled):
			summary.State = StateCancelled
		default:
			summary.State = StateFailed
		}

		m.mu.Lock()
		delete(m.streams, summary.ID)
		m.recent.append(summary)
		hooks := append([]CompletionHook(nil), m.hooks...)
		m.mu.Unlock()

		h.cancel(nil)
		for _, hook := range hooks {
			hook(summary)
		}
	})
}

// Cancel aborts the in-flight stream id with cause. It reports false when no
// such stream is open.
func (m *Manager) Cancel(id string, cause error) bool {
	m.mu.RLock()
	h := m.streams[id]
	m.mu.RUnlock()
	if h == nil {
		return false
	}
	h.cancel(cause)
	return true
}

// Close refuses new streams and cancels every stream still in flight with
// ErrClosed. It returns the number of streams it cancelled.
func (m *Manager) Close() int {
	m.mu.Lock()
	m.closed = true
	handles := make([]*Handle, 0, len(m.streams))
	for _, h := range m.streams {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.cancel(ErrClosed)
	}
	return len(handles)
}

func (m *Manager) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// List returns the in-flight streams ordered by start time.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	summaries := make([]Summary, 0, len(m.streams))
	for _, h := range m.streams {
		summaries = append(summaries, h.summary)
	}
	m.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.Before(summaries[j].StartedAt)
	})
	return summaries
}

// Recent returns finished streams, oldest first.
func (m *Manager) Recent() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recent.snapshot()
}

func (m *Manager) AddCompletionHook(hook CompletionHook) {
	if hook == nil {
		return
	}
	m.mu.Lock()
	m.hooks = append(m.hooks, hook)
	m.mu.Unlock()
}
