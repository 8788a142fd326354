package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"salvadanaio/internal/core"
	"salvadanaio/internal/normalize"
	"salvadanaio/internal/remote"
)

// Pusher sends a snapshot towards the remote store. PushDelivered means the
// remote now holds it; PushQueued means another process will deliver it.
type Pusher interface {
	Push(ctx context.Context, p core.Profile) (PushState, error)
}

// RemotePusher normalizes the snapshot and writes it to the remote store.
type RemotePusher struct {
	remote remote.Writer
}

func NewRemotePusher(w remote.Writer) *RemotePusher {
	return &RemotePusher{remote: w}
}

func (rp *RemotePusher) Push(ctx context.Context, p core.Profile) (PushState, error) {
	doc, err := normalize.Encode(p)
	if err != nil {
		return PushFailed, fmt.Errorf("encode profile %s: %w", p.ID, err)
	}
	if err := rp.remote.Write(ctx, remote.ProfilePath(p.ID), doc); err != nil {
		return PushFailed, fmt.Errorf("write %s: %w", remote.ProfilePath(p.ID), err)
	}
	return PushDelivered, nil
}

// SnapshotPublisher is the AMQP side of a queued push.
type SnapshotPublisher interface {
	PublishSnapshotSync(ctx context.Context, profileID string, revision uint64) error
}

// QueuePusher hands the push to the worker through the message broker. The
// worker reads the snapshot from the shared local database.
type QueuePusher struct {
	publisher SnapshotPublisher
}

func NewQueuePusher(pub SnapshotPublisher) *QueuePusher {
	return &QueuePusher{publisher: pub}
}

func (qp *QueuePusher) Push(ctx context.Context, p core.Profile) (PushState, error) {
	if err := qp.publisher.PublishSnapshotSync(ctx, p.ID, p.Revision); err != nil {
		return PushFailed, fmt.Errorf("publish snapshot sync: %w", err)
	}
	return PushQueued, nil
}

// MultiPusher pushes to several targets in parallel. The snapshot counts as
// delivered only when every target delivered it.
type MultiPusher struct {
	pushers []Pusher
}

func NewMultiPusher(pushers ...Pusher) *MultiPusher {
	return &MultiPusher{pushers: pushers}
}

func (mp *MultiPusher) Push(ctx context.Context, p core.Profile) (PushState, error) {
	if len(mp.pushers) == 0 {
		return PushFailed, errors.New("no push targets configured")
	}

	states := make([]PushState, len(mp.pushers))
	g, gctx := errgroup.WithContext(ctx)
	for i, pusher := range mp.pushers {
		g.Go(func() error {
			state, err := pusher.Push(gctx, p)
			states[i] = state
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return PushFailed, err
	}

	for _, s := range states {
		if s != PushDelivered {
			return PushQueued, nil
		}
	}
	return PushDelivered, nil
}

// CachedSnapshotPusher re-pushes whatever snapshot the local cache holds.
// It serves processes that do not own the in-memory store, like the worker.
type CachedSnapshotPusher struct {
	local  LocalCache
	pusher Pusher
}

func NewCachedSnapshotPusher(local LocalCache, pusher Pusher) *CachedSnapshotPusher {
	return &CachedSnapshotPusher{local: local, pusher: pusher}
}

func (c *CachedSnapshotPusher) PushLatest(ctx context.Context, profileID string) (uint64, PushState, error) {
	p, err := c.local.LoadProfile(ctx, profileID)
	if err != nil {
		return 0, PushFailed, fmt.Errorf("load cached profile %s: %w", profileID, err)
	}
	state, err := c.pusher.Push(ctx, p)
	if err != nil {
		return p.Revision, PushFailed, err
	}
	return p.Revision, state, nil
}
