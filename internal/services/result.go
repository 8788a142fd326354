package services

import (
	"context"
	"time"

	"salvadanaio/internal/core"
)

// PushState is the outcome of sending one snapshot towards the remote store.
type PushState string

const (
	PushPending    PushState = "pending"
	PushDelivered  PushState = "delivered"
	PushQueued     PushState = "queued"
	PushSuperseded PushState = "superseded"
	PushFailed     PushState = "failed"
)

// PushStatus is what PushStatus reports for a revision.
type PushStatus struct {
	Revision  uint64    `json:"revision"`
	State     PushState `json:"state"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PushResult resolves once the asynchronous push of a snapshot finishes.
type PushResult struct {
	Revision uint64

	done  chan struct{}
	state PushState
	err   error
}

func newPushResult(revision uint64) *PushResult {
	return &PushResult{Revision: revision, done: make(chan struct{}), state: PushPending}
}

func (r *PushResult) resolve(state PushState, err error) {
	r.state = state
	r.err = err
	close(r.done)
}

// Done is closed when the push has finished.
func (r *PushResult) Done() <-chan struct{} { return r.done }

// Wait blocks until the push finishes or ctx is done. The returned error is
// the push failure, a *core.DomainError of kind sync, or ctx.Err().
func (r *PushResult) Wait(ctx context.Context) (PushState, error) {
	select {
	case <-r.done:
		return r.state, r.err
	case <-ctx.Done():
		return PushPending, ctx.Err()
	}
}

// Result is returned by every command that produced a new snapshot.
type Result struct {
	Revision uint64
	// ID of the entity the command created, if any.
	ID      string
	Profile core.Profile
	// LocalErr is set when the snapshot could not be written to the local
	// cache. The in-memory update stands regardless.
	LocalErr error
	Push     *PushResult
}
