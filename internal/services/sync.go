package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"salvadanaio/internal/core"
	applog "salvadanaio/internal/log"
	"salvadanaio/internal/normalize"
	"salvadanaio/internal/remote"
)

// Load replaces the in-memory snapshot with the locally cached one. A
// missing cache entry starts an empty profile.
func (s *LedgerService) Load(ctx context.Context) (core.Profile, error) {
	p, err := s.local.LoadProfile(ctx, s.cfg.ProfileID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		p = core.NewProfile(s.cfg.ProfileID)
		s.logger.InfoContext(ctx, "No cached profile, starting empty",
			applog.FieldProfileID, s.cfg.ProfileID)
	case err != nil:
		return core.Profile{}, fmt.Errorf("load cached profile: %w", err)
	}
	p.ID = s.cfg.ProfileID

	s.writeMu.Lock()
	s.store.Replace(p)
	s.writeMu.Unlock()

	s.logger.InfoContext(ctx, "Profile loaded from local cache",
		applog.FieldProfileID, p.ID,
		applog.FieldRevision, p.Revision,
		"transactions", len(p.Transactions))
	return p, nil
}

// Subscribe holds the standing remote subscription until ctx is done.
// Every document received goes through the conflict policy before it may
// replace the in-memory snapshot.
func (s *LedgerService) Subscribe(ctx context.Context) error {
	path := remote.ProfilePath(s.cfg.ProfileID)
	docs, err := s.feed.Subscribe(ctx, path)
	if err != nil {
		return core.SyncError("subscribe", err)
	}
	s.logger.InfoContext(ctx, "Remote subscription started",
		applog.FieldRemotePath, path,
		"policy", string(s.cfg.ConflictPolicy))

	for {
		select {
		case <-ctx.Done():
			return nil
		case doc, ok := <-docs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return core.SyncError("subscribe", fmt.Errorf("subscription to %s closed", path))
			}
			s.ApplyRemote(ctx, doc)
		}
	}
}

// ApplyRemote decodes a remote document and applies it under the conflict
// policy. It reports whether the snapshot was accepted.
func (s *LedgerService) ApplyRemote(ctx context.Context, doc []byte) bool {
	incoming, shapeErrs, err := normalize.Decode(doc)
	if err != nil {
		s.logger.WarnContext(ctx, "Discarding undecodable remote document",
			applog.FieldErrorKind, string(core.KindDataShape),
			applog.FieldError, err)
		return false
	}
	for _, e := range shapeErrs {
		s.logger.WarnContext(ctx, "Omitted malformed remote entry",
			applog.FieldErrorKind, string(core.KindOf(e)),
			applog.FieldError, e)
	}
	incoming.ID = s.cfg.ProfileID

	s.writeMu.Lock()
	accepted := s.store.ReplaceIf(incoming, s.accept)
	var localErr error
	if accepted {
		localErr = s.local.SaveProfile(ctx, incoming)
	}
	s.writeMu.Unlock()

	if !accepted {
		s.logger.DebugContext(ctx, "Remote snapshot discarded",
			applog.FieldRevision, incoming.Revision,
			"current_revision", s.store.Revision())
		return false
	}

	if s.cfg.ConflictPolicy == PolicyArrival {
		s.remoteRev.Store(incoming.Revision)
	} else {
		raise(&s.remoteRev, incoming.Revision)
	}
	if localErr != nil {
		s.logger.ErrorContext(ctx, "Failed to cache remote snapshot",
			applog.FieldRevision, incoming.Revision,
			applog.FieldError, localErr)
	}
	s.logger.InfoContext(ctx, "Remote snapshot applied",
		applog.FieldProfileID, incoming.ID,
		applog.FieldRevision, incoming.Revision,
		"omitted_entries", len(shapeErrs))
	return true
}

func (s *LedgerService) accept(current, incoming core.Profile) bool {
	if s.cfg.ConflictPolicy == PolicyArrival {
		return true
	}
	return incoming.Revision > current.Revision
}

// Purge deletes the remote document and resets the local profile to empty.
// The revision keeps counting up so late echoes of the old document are
// discarded.
func (s *LedgerService) Purge(ctx context.Context) (*Result, error) {
	path := remote.ProfilePath(s.cfg.ProfileID)
	if err := s.feed.Delete(ctx, path); err != nil {
		return nil, core.SyncError("purge", err)
	}

	s.writeMu.Lock()
	next, err := s.store.Update(func(core.Profile) (core.Profile, error) {
		return core.NewProfile(s.cfg.ProfileID), nil
	})
	if err != nil {
		s.writeMu.Unlock()
		return nil, err
	}
	localErr := s.local.SaveProfile(ctx, next)
	s.writeMu.Unlock()

	raise(&s.remoteRev, next.Revision)
	if _, err := s.outbox.CompleteSyncsThrough(ctx, next.ID, next.Revision); err != nil {
		s.logger.WarnContext(ctx, "Failed to clear outbox after purge", applog.FieldError, err)
	}
	s.logger.InfoContext(ctx, "Profile purged",
		applog.FieldRemotePath, path,
		applog.FieldRevision, next.Revision)

	push := newPushResult(next.Revision)
	push.resolve(PushDelivered, nil)
	return &Result{Revision: next.Revision, Profile: next, LocalErr: localErr, Push: push}, nil
}

// Watch calls fn with every snapshot that becomes current, local or
// remote, until the returned cancel is called.
func (s *LedgerService) Watch(fn func(core.Profile)) (cancel func()) {
	return s.store.Subscribe(fn)
}

// PushStatus returns the last known push outcome of revision.
func (s *LedgerService) PushStatus(revision uint64) (PushStatus, bool) {
	return s.statuses.Get(strconv.FormatUint(revision, 10))
}

func (s *LedgerService) setStatus(revision uint64, state PushState, err error) {
	st := PushStatus{Revision: revision, State: state, UpdatedAt: s.now().UTC()}
	if err != nil {
		st.Error = err.Error()
	}
	s.statuses.Set(strconv.FormatUint(revision, 10), st)
}

func (s *LedgerService) schedulePush(p core.Profile) *PushResult {
	res := newPushResult(p.Revision)
	s.setStatus(p.Revision, PushPending, nil)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PushTimeout)
		defer cancel()

		state, err := s.push(ctx, p)
		s.setStatus(p.Revision, state, err)
		res.resolve(state, err)
	}()
	return res
}

// push sends p unless the remote already holds a newer revision. Failures
// are recorded in the outbox for the retry processor.
func (s *LedgerService) push(ctx context.Context, p core.Profile) (PushState, error) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	if p.Revision <= s.remoteRev.Load() {
		return PushSuperseded, nil
	}

	state, err := s.pusher.Push(ctx, p)
	if err != nil {
		syncErr := core.SyncError("push", err)
		s.logger.WarnContext(ctx, "Push failed, queued for retry",
			applog.FieldProfileID, p.ID,
			applog.FieldRevision, p.Revision,
			applog.FieldError, err)
		if _, qerr := s.outbox.EnqueueSync(context.WithoutCancel(ctx), p.ID, p.Revision); qerr != nil {
			s.logger.ErrorContext(ctx, "Failed to record push in outbox",
				applog.FieldRevision, p.Revision,
				applog.FieldError, qerr)
		}
		return PushFailed, syncErr
	}

	if state == PushDelivered {
		raise(&s.remoteRev, p.Revision)
		if _, err := s.outbox.CompleteSyncsThrough(ctx, p.ID, p.Revision); err != nil {
			s.logger.WarnContext(ctx, "Failed to complete outbox entries",
				applog.FieldRevision, p.Revision,
				applog.FieldError, err)
		}
	}
	s.logger.DebugContext(ctx, "Snapshot pushed",
		applog.FieldProfileID, p.ID,
		applog.FieldRevision, p.Revision,
		"state", string(state))
	return state, nil
}

// PushLatest pushes the current in-memory snapshot. The outbox processor
// calls it; failures are returned rather than queued again.
func (s *LedgerService) PushLatest(ctx context.Context, profileID string) (uint64, PushState, error) {
	if profileID != s.cfg.ProfileID {
		return 0, PushFailed, fmt.Errorf("profile %s is not held by this process", profileID)
	}

	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	p := s.store.Get()
	if p.Revision <= s.remoteRev.Load() {
		return p.Revision, PushSuperseded, nil
	}
	state, err := s.pusher.Push(ctx, p)
	if err != nil {
		return p.Revision, PushFailed, core.SyncError("push", err)
	}
	if state == PushDelivered {
		raise(&s.remoteRev, p.Revision)
	}
	s.setStatus(p.Revision, state, nil)
	return p.Revision, state, nil
}

func raise(v *atomic.Uint64, to uint64) {
	for {
		cur := v.Load()
		if to <= cur || v.CompareAndSwap(cur, to) {
			return
		}
	}
}
