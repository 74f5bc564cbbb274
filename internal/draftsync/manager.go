// Package draftsync keeps an in-progress form in sync with a local store on
// the device and the signed-in user's draft on the server.
//
// A Manager owns the authoritative in-memory payload for one form. Loading
// reconciles the two stores (the newer record wins, ties go to local). Saving
// always writes local first and then, when a user is signed in and the remote
// breaker is closed, pushes to the server. Remote problems degrade to
// local-only and are never reported as save failures.
package draftsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	dErrors "immimate/pkg/domain-errors"
	"immimate/pkg/platform/sentinel"
)

// Status is the outcome of the most recent save.
type Status string

const (
	StatusIdle   Status = ""
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

type phase int

const (
	phaseUnloaded phase = iota
	phaseLoading
	phaseReady
)

// Snapshot is a consistent copy of a manager's state.
type Snapshot struct {
	FormID            string
	Payload           Payload
	LastSavedAt       time.Time
	Source            Source
	Loaded            bool
	HasUnsavedChanges bool
	Saving            bool
	Status            Status
	// Err is the last local persistence failure, if the last save failed.
	Err error
	// Degraded is the last remote failure; saves still succeed locally.
	Degraded    error
	BreakerOpen bool
}

// Config holds a manager's collaborators. Remote and Identity are optional;
// without them the manager is local-only. Registry must be shared by every
// manager in the process.
type Config struct {
	FormID   string
	Initial  Payload
	Local    LocalStore
	Remote   RemoteStore
	Identity Identity
	Registry *Registry
	Breaker  *Breaker
}

// Manager is safe for concurrent use.
type Manager struct {
	formID   string
	key      string
	initial  Payload
	local    LocalStore
	remote   RemoteStore
	identity Identity
	registry *Registry
	breaker  *Breaker
	opts     options

	lifetime context.Context
	cancel   context.CancelFunc

	mu            sync.Mutex
	phase         phase
	loaded        chan struct{}
	claim         *Claim
	payload       Payload
	lastSaved     Payload
	lastSavedAt   time.Time
	source        Source
	dirty         bool
	status        Status
	err           error
	degraded      error
	inflight      Payload
	lastSaveStart time.Time
	epoch         uint64 // bumped by Discard; older work is superseded
	saveSeq       uint64
	writtenSeq    uint64
	timer         *time.Timer
	timerSeq      uint64
	closed        bool
}

func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.FormID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "form id is required")
	}
	if cfg.Local == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "local draft store is required")
	}
	if cfg.Registry == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "draft registry is required")
	}
	initial, err := normalize(cfg.Initial)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "initial payload is not serializable")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	identity := cfg.Identity
	if identity == nil {
		identity = Anonymous
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewBreaker(0, 0, WithStateHook(o.metrics.SetBreakerState))
	}

	lifetime, cancel := context.WithCancel(context.Background())
	m := &Manager{
		formID:   cfg.FormID,
		key:      LocalKey(cfg.FormID),
		initial:  initial,
		local:    cfg.Local,
		remote:   cfg.Remote,
		identity: identity,
		registry: cfg.Registry,
		breaker:  breaker,
		opts:     o,
		lifetime: lifetime,
		cancel:   cancel,
		payload:  clone(initial),
		source:   SourceNone,
	}
	if o.autosave > 0 {
		go m.autosaveLoop(o.autosave)
	}
	return m, nil
}

// FormID returns the form this manager tracks.
func (m *Manager) FormID() string {
	return m.formID
}

// Load reconciles the stores and makes the manager ready. Only the first
// manager to claim the form in this process reads the stores; others reuse its
// result. Repeated calls return the loaded state without reloading. Load does
// not fail because a store is unavailable.
func (m *Manager) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if m.phase != phaseUnloaded {
		done := m.loaded
		m.mu.Unlock()
		select {
		case <-done:
			return m.Snapshot(), nil
		case <-ctx.Done():
			return m.Snapshot(), ctx.Err()
		}
	}
	m.phase = phaseLoading
	m.loaded = make(chan struct{})
	m.claim = m.registry.Claim(m.formID)
	claim := m.claim
	epoch := m.epoch
	m.mu.Unlock()

	// Close cancels the load as well as the caller.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.lifetime, cancel)
	defer stop()

	var res LoadResult
	if claim.First() {
		res = m.resolve(ctx)
		claim.Complete(res)
	} else {
		shared, err := claim.Wait(ctx)
		switch {
		case errors.Is(err, ErrLoadAbandoned):
			m.opts.logger.InfoContext(ctx, "shared draft load was abandoned, using local draft",
				"form_id", m.formID,
			)
			res = m.localOnly(ctx)
		case err != nil:
			m.opts.logger.WarnContext(ctx, "stopped waiting for shared draft load, using local draft",
				"form_id", m.formID,
				"error", err,
			)
			res = m.localOnly(ctx)
		default:
			res = shared
			m.opts.metrics.incLoad("shared")
		}
	}
	m.adopt(res, epoch)
	return m.Snapshot(), nil
}

func (m *Manager) resolve(ctx context.Context) LoadResult {
	var local, remote *Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		local = m.readLocal(gctx)
		return nil
	})
	if m.remoteAllowed() {
		g.Go(func() error {
			remote = m.fetchRemote(gctx)
			return nil
		})
	}
	_ = g.Wait()

	rec, src := reconcile(local, remote)
	m.opts.metrics.incLoad(string(src))
	m.opts.logger.InfoContext(ctx, "draft loaded",
		"form_id", m.formID,
		"source", src,
		"local_found", local != nil,
		"remote_found", remote != nil,
	)
	return LoadResult{Record: rec, Source: src}
}

func (m *Manager) localOnly(ctx context.Context) LoadResult {
	if rec := m.readLocal(ctx); rec != nil {
		return LoadResult{Record: rec, Source: SourceLocal}
	}
	return LoadResult{Source: SourceInitial}
}

func (m *Manager) adopt(res LoadResult, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch {
		// Discarded while loading.
		res = LoadResult{}
	}
	if res.Record != nil {
		m.payload = clone(res.Record.Payload)
		m.lastSaved = clone(res.Record.Payload)
		m.lastSavedAt = res.Record.LastSavedAt
		m.source = res.Source
	} else {
		m.payload = clone(m.initial)
		m.lastSaved = nil
		m.lastSavedAt = time.Time{}
		m.source = SourceInitial
	}
	m.dirty = false
	m.phase = phaseReady
	close(m.loaded)
}

// readLocal returns the local record, removing entries that are expired or
// cannot be decoded.
func (m *Manager) readLocal(ctx context.Context) *Record {
	raw, ok, err := m.local.Get(ctx, m.key)
	if err != nil {
		m.opts.logger.WarnContext(ctx, "failed to read local draft", "form_id", m.formID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	env, rec, err := decodeEnvelope(raw, m.opts.now())
	if err != nil {
		reason := "malformed"
		if errors.Is(err, sentinel.ErrExpired) {
			reason = "expired"
		}
		m.opts.metrics.incEviction(reason)
		m.opts.logger.InfoContext(ctx, "removing unusable local draft",
			"form_id", m.formID,
			"reason", reason,
			"error", err,
		)
		unlock := m.registry.Lock(m.formID)
		if rmErr := m.local.Remove(ctx, m.key); rmErr != nil {
			m.opts.logger.WarnContext(ctx, "failed to remove local draft", "form_id", m.formID, "error", rmErr)
		}
		unlock()
		return nil
	}
	if env.FormID != m.formID || rec.FormID != m.formID {
		m.opts.logger.DebugContext(ctx, "local draft belongs to another form",
			"form_id", m.formID,
			"stored_form_id", rec.FormID,
		)
		return nil
	}
	return &rec
}

func (m *Manager) fetchRemote(ctx context.Context) *Record {
	start := time.Now()
	rec, err := callWithTimeout(ctx, m.opts.remoteTimeout, m.remote.Fetch)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		m.breaker.RecordSuccess()
		m.opts.metrics.observeRemote("fetch", "miss", elapsed)
		return nil
	case err != nil:
		m.opts.metrics.observeRemote("fetch", "failed", elapsed)
		m.recordRemoteFailure(ctx, "fetch", err)
		return nil
	}

	m.breaker.RecordSuccess()
	if rec == nil || rec.FormID != m.formID {
		m.opts.metrics.observeRemote("fetch", "other_form", elapsed)
		return nil
	}
	m.opts.metrics.observeRemote("fetch", "ok", elapsed)
	return rec
}

// Update applies fn to a copy of the payload. A change marks the draft dirty
// and reschedules the debounced save. fn runs under the manager's lock and
// must not call back into the manager.
func (m *Manager) Update(fn func(Payload) Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return err
	}

	next, err := normalize(fn(clone(m.payload)))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "draft payload is not serializable")
	}
	if equalPayload(next, m.payload) {
		return nil
	}
	m.payload = next
	m.dirty = true
	m.scheduleLocked(m.opts.debounce)
	return nil
}

// Set changes one field.
func (m *Manager) Set(field string, value any) error {
	return m.Update(func(p Payload) Payload {
		p[field] = value
		return p
	})
}

// Replace swaps the whole payload.
func (m *Manager) Replace(p Payload) error {
	return m.Update(func(Payload) Payload {
		return p
	})
}

// ScheduleSave requests a save after the debounce interval.
func (m *Manager) ScheduleSave() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	m.scheduleLocked(m.opts.debounce)
	return nil
}

func (m *Manager) scheduleLocked(delay time.Duration) {
	m.stopTimerLocked()
	epoch, seq := m.epoch, m.timerSeq
	m.timer = time.AfterFunc(delay, func() {
		m.fire(epoch, seq)
	})
}

// stopTimerLocked cancels the pending save. A callback that already fired
// sees a newer timerSeq and does nothing.
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

func (m *Manager) fire(epoch, seq uint64) {
	m.mu.Lock()
	if m.closed || epoch != m.epoch || seq != m.timerSeq {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	if err := m.save(m.lifetime, false); err != nil && !errors.Is(err, ErrClosed) {
		m.opts.logger.WarnContext(m.lifetime, "scheduled draft save failed", "form_id", m.formID, "error", err)
	}
}

// Save persists the current payload now. It is a no-op when the payload
// equals the last saved one or an identical save is in flight. Without force,
// a save within the minimum spacing of the previous one is deferred to the end
// of the spacing window. Save fails only when the local write fails.
func (m *Manager) Save(ctx context.Context, force bool) error {
	return m.save(ctx, force)
}

func (m *Manager) save(ctx context.Context, force bool) error {
	m.mu.Lock()
	if err := m.readyLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	payload := m.payload
	if m.lastSaved != nil && equalPayload(payload, m.lastSaved) {
		m.dirty = false
		m.mu.Unlock()
		m.opts.metrics.incSave("unchanged")
		return nil
	}
	if m.inflight != nil && equalPayload(payload, m.inflight) {
		m.mu.Unlock()
		m.opts.metrics.incSave("inflight")
		return nil
	}
	now := m.opts.now()
	if !force && !m.lastSaveStart.IsZero() {
		if wait := m.opts.minSpacing - now.Sub(m.lastSaveStart); wait > 0 {
			m.scheduleLocked(wait)
			m.mu.Unlock()
			m.opts.metrics.incSave("spacing")
			return nil
		}
	}
	m.stopTimerLocked()
	epoch := m.epoch
	m.saveSeq++
	seq := m.saveSeq
	snapshot := clone(payload)
	m.inflight = snapshot
	m.lastSaveStart = now
	m.status = StatusSaving
	m.mu.Unlock()

	rec := Record{FormID: m.formID, Payload: snapshot, LastSavedAt: now.UTC()}
	written, err := m.writeLocal(ctx, rec, epoch, seq)

	m.mu.Lock()
	latest := seq == m.saveSeq
	if latest {
		m.inflight = nil
	}
	if err != nil {
		if epoch != m.epoch {
			m.mu.Unlock()
			m.opts.metrics.incSave("superseded")
			return nil
		}
		failure := dErrors.Wrap(err, dErrors.CodePersistence, "draft could not be saved on this device")
		m.status = StatusError
		m.err = failure
		m.mu.Unlock()
		m.opts.metrics.incSave("failed")
		m.opts.logger.ErrorContext(ctx, "local draft save failed", "form_id", m.formID, "error", err)
		return failure
	}
	if !written {
		m.mu.Unlock()
		m.opts.metrics.incSave("superseded")
		return nil
	}
	m.lastSaved = snapshot
	m.lastSavedAt = rec.LastSavedAt
	m.dirty = !equalPayload(m.payload, snapshot)
	m.err = nil
	if latest {
		m.status = StatusSaved
	}
	m.mu.Unlock()

	m.opts.metrics.incSave("saved")
	m.registry.Publish(m.formID, LoadResult{Record: &rec, Source: SourceLocal})
	m.opts.logger.DebugContext(ctx, "draft saved locally", "form_id", m.formID, "saved_at", rec.LastSavedAt)

	if latest && m.remoteAllowed() {
		m.pushRemote(ctx, rec, epoch)
	}
	return nil
}

// writeLocal writes rec under the per-form lock. It reports false without
// writing when a discard or a newer save got there first.
func (m *Manager) writeLocal(ctx context.Context, rec Record, epoch, seq uint64) (bool, error) {
	unlock := m.registry.Lock(m.formID)
	defer unlock()

	m.mu.Lock()
	stale := epoch != m.epoch || seq < m.writtenSeq
	m.mu.Unlock()
	if stale {
		return false, nil
	}

	value, err := encodeEnvelope(rec, rec.LastSavedAt.Add(m.opts.localExpiration))
	if err != nil {
		return false, err
	}
	if err := m.local.Set(ctx, m.key, value); err != nil {
		return false, fmt.Errorf("write local draft: %w", err)
	}

	m.mu.Lock()
	m.writtenSeq = seq
	m.mu.Unlock()
	return true, nil
}

func (m *Manager) pushRemote(ctx context.Context, rec Record, epoch uint64) {
	start := time.Now()
	_, err := callWithTimeout(ctx, m.opts.remoteTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.remote.Push(ctx, rec)
	})
	elapsed := time.Since(start)
	if err != nil {
		m.opts.metrics.observeRemote("push", "failed", elapsed)
		m.recordRemoteFailure(ctx, "push", err)
		return
	}
	m.breaker.RecordSuccess()
	m.opts.metrics.observeRemote("push", "ok", elapsed)

	m.mu.Lock()
	discarded := epoch != m.epoch
	if !discarded {
		m.degraded = nil
	}
	m.mu.Unlock()
	if discarded {
		// The push landed after a discard; remove the stale server copy.
		m.discardRemote(ctx)
	}
}

// Discard removes the draft from both stores and resets the payload to the
// initial one. Pending and in-flight saves are superseded.
func (m *Manager) Discard(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.epoch++
	m.stopTimerLocked()
	m.payload = clone(m.initial)
	m.lastSaved = nil
	m.lastSavedAt = time.Time{}
	m.source = SourceInitial
	m.dirty = false
	m.status = StatusIdle
	m.err = nil
	m.degraded = nil
	m.inflight = nil
	m.mu.Unlock()

	unlock := m.registry.Lock(m.formID)
	err := m.local.Remove(ctx, m.key)
	unlock()
	m.registry.Reset(m.formID)

	if m.remoteAllowed() {
		m.discardRemote(ctx)
	}

	if err != nil {
		failure := dErrors.Wrap(err, dErrors.CodePersistence, "draft could not be removed from this device")
		m.mu.Lock()
		m.status = StatusError
		m.err = failure
		m.mu.Unlock()
		m.opts.logger.ErrorContext(ctx, "local draft discard failed", "form_id", m.formID, "error", err)
		return failure
	}
	m.opts.logger.InfoContext(ctx, "draft discarded", "form_id", m.formID)
	return nil
}

func (m *Manager) discardRemote(ctx context.Context) {
	start := time.Now()
	_, err := callWithTimeout(ctx, m.opts.remoteTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.remote.Discard(ctx, m.formID)
	})
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		m.opts.metrics.observeRemote("discard", "failed", elapsed)
		m.recordRemoteFailure(ctx, "discard", err)
		return
	}
	m.breaker.RecordSuccess()
	m.opts.metrics.observeRemote("discard", "ok", elapsed)
}

func (m *Manager) recordRemoteFailure(ctx context.Context, op string, err error) {
	if isTransportFailure(err) && m.breaker.RecordFailure() {
		m.opts.logger.WarnContext(ctx, "remote draft breaker opened, using local drafts only",
			"form_id", m.formID,
		)
	}
	m.mu.Lock()
	m.degraded = dErrors.Wrap(err, dErrors.CodeUnavailable, "draft server unavailable")
	m.mu.Unlock()
	m.opts.logger.WarnContext(ctx, "remote draft "+op+" failed",
		"form_id", m.formID,
		"error", err,
	)
}

func (m *Manager) remoteAllowed() bool {
	if m.remote == nil || m.identity.CurrentUser() == nil {
		return false
	}
	return m.breaker.Allow()
}

func (m *Manager) readyLocked() error {
	if m.closed {
		return ErrClosed
	}
	if m.phase != phaseReady {
		return ErrNotLoaded
	}
	return nil
}

// ResetBreaker closes the remote breaker so the next operation tries the
// server again.
func (m *Manager) ResetBreaker() {
	m.breaker.Reset()
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		FormID:            m.formID,
		Payload:           clone(m.payload),
		LastSavedAt:       m.lastSavedAt,
		Source:            m.source,
		Loaded:            m.phase == phaseReady,
		HasUnsavedChanges: m.dirty,
		Saving:            m.inflight != nil,
		Status:            m.status,
		Err:               m.err,
		Degraded:          m.degraded,
		BreakerOpen:       m.breaker.IsOpen(),
	}
}

// Close stops pending saves, cancels in-flight remote calls started by the
// manager, and releases its registry claim. Unsaved changes are not flushed;
// call Save with force first to keep them.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopTimerLocked()
	claim := m.claim
	m.mu.Unlock()

	m.cancel()
	if claim != nil {
		claim.Release()
	}
	return nil
}

func (m *Manager) autosaveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.lifetime.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			due := !m.closed && m.phase == phaseReady && m.dirty && m.inflight == nil
			m.mu.Unlock()
			if !due {
				continue
			}
			if err := m.save(m.lifetime, false); err != nil && !errors.Is(err, ErrClosed) {
				m.opts.logger.WarnContext(m.lifetime, "autosave failed", "form_id", m.formID, "error", err)
			}
		}
	}
}

// callWithTimeout runs fn bounded by d. The call is raced against the
// deadline, so a store that ignores its context cannot stall the caller.
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("remote draft call exceeded %s: %w", d, sentinel.ErrTimeout)
		}
		return zero, ctx.Err()
	}
}
