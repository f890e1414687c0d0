package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Reporter receives progress snapshots from a running executor. Last write
// wins; only the owning executor may call it.
type Reporter func(Progress)

// RunContext is the immutable per-execution descriptor handed to an executor.
// Payload carries job-specific options; executors type-assert it and fall back
// to zero-value options when absent.
type RunContext struct {
	JobID   uuid.UUID
	UserID  string
	Payload any
	Report  Reporter
}

// Executor is a unit of work keyed by job type. Execute must emit an initial
// progress report before doing work and a terminal one before returning, and
// must honor ctx cancellation at every loop iteration and around every
// external call.
type Executor interface {
	Type() Type
	Execute(ctx context.Context, run RunContext) error
}

// Registry maps job types to executor instances. It is assembled once at
// startup and read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	executors map[Type]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[Type]Executor)}
}

func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Type()] = e
}

func (r *Registry) Get(t Type) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[t]
	if !ok {
		return nil, fmt.Errorf("no executor registered for job type: %s", t)
	}
	return e, nil
}

func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}
