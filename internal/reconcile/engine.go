// Package reconcile implements the two-replica sync pass between the local
// note index and the remote note service.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/metrics"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/notes"
	"github.com/starford/notesync/internal/remote"
)

// Phases of a pass, as reported by PhaseError.
const (
	PhasePush   = "push"
	PhasePull   = "pull"
	PhasePrune  = "prune"
	PhaseCommit = "commit"
	PhaseImport = "import"
)

// PhaseError reports which phase of a pass failed and how many notes had
// been reconciled before it.
type PhaseError struct {
	Phase      string
	Reconciled int
	Err        error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("sync %s phase (%d reconciled): %v", e.Phase, e.Reconciled, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Summary counts what a pass did.
type Summary struct {
	Pushed     int
	PushFailed int
	Pulled     int // existing notes overwritten by a newer server copy
	Inserted   int // notes new to this replica
	Pruned     int
	Duration   time.Duration
}

// Reconciled returns the number of notes changed on either replica.
func (s Summary) Reconciled() int {
	return s.Pushed + s.Pulled + s.Inserted + s.Pruned
}

// Actions is zero for a pass that found both replicas already consistent.
func (s Summary) Actions() int {
	return s.Reconciled()
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records every pass on m.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine runs sync passes. Passes are serialized by the note index lock,
// so an Engine may be shared between goroutines.
type Engine struct {
	index   *notes.Index
	remote  remote.Service
	logger  *slog.Logger
	metrics *metrics.SyncMetrics

	// Disk work a failed commit left behind. Only touched under the index lock.
	pending *staging
}

// New creates an engine over idx and svc.
func New(idx *notes.Index, svc remote.Service, opts ...Option) *Engine {
	e := &Engine{
		index:   idx,
		remote:  svc,
		logger:  slog.Default(),
		pending: newStaging(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// staging collects the keys a pass must write to or remove from disk.
// A delete may name the key whose save replaces the deleted file; it waits
// until that save has landed.
type staging struct {
	saves   map[string]struct{}
	deletes map[string]string
}

func newStaging() *staging {
	return &staging{saves: make(map[string]struct{}), deletes: make(map[string]string)}
}

func (s *staging) save(key string)   { s.saves[key] = struct{}{} }
func (s *staging) delete(key string) { s.deletes[key] = "" }

func (s *staging) replace(old, by string) { s.deletes[old] = by }

// pass is the state of one full sync run.
type pass struct {
	ctx   context.Context
	tx    *notes.Tx
	stage *staging
	sum   Summary
}

func (p *pass) fail(phase string, err error) *PhaseError {
	return &PhaseError{Phase: phase, Reconciled: p.sum.Reconciled(), Err: err}
}

// RunFullSync runs push, pull, prune and commit as one serialized pass.
// Whatever reached the index before a failure or cancellation is still
// committed to disk. The returned error is a *PhaseError.
func (e *Engine) RunFullSync(ctx context.Context) (Summary, error) {
	start := time.Now()
	var sum Summary
	var notesAfter int

	err := e.index.Exclusive(func(tx *notes.Tx) error {
		p := &pass{ctx: ctx, tx: tx, stage: e.pending}
		e.logger.Info("sync pass started", slog.Int("notes", tx.Len()))

		runErr := e.run(p)
		if cerr := e.commit(p); cerr != nil {
			if runErr != nil {
				e.logger.Error("sync pass failed before commit", slog.Any("error", runErr))
			}
			runErr = p.fail(PhaseCommit, cerr)
		}
		sum = p.sum
		notesAfter = tx.Len()
		return runErr
	})
	sum.Duration = time.Since(start)

	var phase string
	if err != nil {
		var pe *PhaseError
		if errors.As(err, &pe) {
			phase = pe.Phase
		}
		e.logger.Error("sync pass failed",
			slog.String("phase", phase),
			slog.Int("reconciled", sum.Reconciled()),
			slog.Any("error", err))
	} else {
		e.logger.Info("sync pass finished",
			slog.Int("pushed", sum.Pushed),
			slog.Int("push_failed", sum.PushFailed),
			slog.Int("pulled", sum.Pulled),
			slog.Int("inserted", sum.Inserted),
			slog.Int("pruned", sum.Pruned),
			slog.Duration("duration", sum.Duration))
	}

	e.metrics.ObservePass(metrics.Pass{
		FailedPhase: phase,
		Duration:    sum.Duration,
		Pushed:      sum.Pushed,
		PushFailed:  sum.PushFailed,
		Pulled:      sum.Pulled,
		Inserted:    sum.Inserted,
		Pruned:      sum.Pruned,
	})
	e.metrics.SetNotes(notesAfter)
	return sum, err
}

func (e *Engine) run(p *pass) error {
	if err := p.ctx.Err(); err != nil {
		return p.fail(PhasePush, err)
	}
	if err := e.push(p); err != nil {
		return err
	}
	if err := p.ctx.Err(); err != nil {
		return p.fail(PhasePull, err)
	}
	serverKeys, err := e.pull(p)
	if err != nil {
		return err
	}
	if err := p.ctx.Err(); err != nil {
		return p.fail(PhasePrune, err)
	}
	e.prune(p, serverKeys)
	return nil
}

// push sends every dirty note and replaces it with the canonical copy.
func (e *Engine) push(p *pass) error {
	for _, key := range p.tx.Keys() {
		n, _ := p.tx.Get(key)
		if !n.IsDirty() {
			continue
		}
		canon, err := e.remote.UpdateNote(p.ctx, n)
		if cerr := p.ctx.Err(); cerr != nil {
			return p.fail(PhasePush, cerr)
		}
		if err != nil {
			if errors.Is(err, apperr.ErrRemoteAuth) {
				return p.fail(PhasePush, err)
			}
			p.sum.PushFailed++
			e.logger.Warn("push failed, will retry next pass",
				slog.String("key", key),
				slog.Any("error", err))
			continue
		}

		canon.LocalKey = ""
		canon.LocalTouch = false
		canon.LModifyDate = n.LModifyDate
		p.tx.Remove(key)
		p.tx.Put(canon.Key, canon)
		p.stage.save(canon.Key)
		if key != canon.Key {
			p.stage.replace(key, canon.Key)
		}
		p.sum.Pushed++
		e.logger.Debug("pushed note",
			slog.String("key", canon.Key),
			slog.String("local_key", key),
			slog.Int("syncnum", canon.Syncnum))
	}
	return nil
}

type fetched struct {
	note   *models.Note
	insert bool
}

// pull fetches notes that are new or newer on the server. Nothing reaches
// the index unless every fetch succeeded. It returns the listed keys.
func (e *Engine) pull(p *pass) (map[string]struct{}, error) {
	list, err := e.remote.ListNotes(p.ctx)
	if cerr := p.ctx.Err(); cerr != nil {
		return nil, p.fail(PhasePull, cerr)
	}
	if err != nil {
		return nil, p.fail(PhasePull, err)
	}

	serverKeys := make(map[string]struct{}, len(list))
	var got []fetched
	for _, m := range list {
		if _, dup := serverKeys[m.Key]; dup {
			continue
		}
		serverKeys[m.Key] = struct{}{}
		local, exists := p.tx.Get(m.Key)
		if exists {
			// A failed push keeps the local edit until the next pass.
			if local.IsDirty() || m.Syncnum <= local.Syncnum {
				continue
			}
		}

		n, err := e.remote.GetNote(p.ctx, m.Key)
		if cerr := p.ctx.Err(); cerr != nil {
			return nil, p.fail(PhasePull, cerr)
		}
		if errors.Is(err, apperr.ErrNotFound) {
			e.logger.Debug("note vanished between list and get", slog.String("key", m.Key))
			continue
		}
		if err != nil {
			return nil, p.fail(PhasePull, err)
		}
		n.Key = m.Key
		n.LocalKey = ""
		n.LocalTouch = false
		got = append(got, fetched{note: n, insert: !exists})
	}

	for _, f := range got {
		p.tx.Put(f.note.Key, f.note)
		p.stage.save(f.note.Key)
		if f.insert {
			p.sum.Inserted++
		} else {
			p.sum.Pulled++
		}
		e.logger.Debug("pulled note",
			slog.String("key", f.note.Key),
			slog.Bool("new", f.insert),
			slog.Int("syncnum", f.note.Syncnum))
	}
	return serverKeys, nil
}

// prune drops synced notes the server no longer lists. Notes that were
// never pushed are kept.
func (e *Engine) prune(p *pass, serverKeys map[string]struct{}) {
	for _, key := range p.tx.Keys() {
		n, _ := p.tx.Get(key)
		if n.IsNew() {
			continue
		}
		if _, ok := serverKeys[key]; ok {
			continue
		}
		p.tx.Remove(key)
		p.stage.delete(key)
		p.sum.Pruned++
		e.logger.Debug("pruned note", slog.String("key", key))
	}
}

// commit writes staged keys present in the index and removes staged keys
// that are not. Keys that fail stay staged for the next pass, and so does
// the delete of a file whose replacement could not be written.
func (e *Engine) commit(p *pass) error {
	store := e.index.Store()
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(p.stage.saves)) {
		n, ok := p.tx.Get(key)
		if !ok {
			delete(p.stage.saves, key)
			continue
		}
		if err := store.Save(key, n); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(p.stage.saves, key)
	}
	for _, key := range slices.Sorted(maps.Keys(p.stage.deletes)) {
		if p.tx.Has(key) {
			delete(p.stage.deletes, key)
			continue
		}
		if by := p.stage.deletes[key]; by != "" {
			if _, pending := p.stage.saves[by]; pending {
				continue
			}
		}
		if err := store.Delete(key); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(p.stage.deletes, key)
	}
	return errors.Join(errs...)
}

// RunBootstrapImport fills an empty replica with every server note. It
// refuses to run when the index already holds notes.
func (e *Engine) RunBootstrapImport(ctx context.Context) (int, error) {
	imported := 0
	err := e.index.Exclusive(func(tx *notes.Tx) error {
		if n := tx.Len(); n > 0 {
			return &PhaseError{Phase: PhaseImport, Err: fmt.Errorf("index holds %d notes: %w", n, apperr.ErrAlreadyExists)}
		}
		fail := func(err error) error {
			return &PhaseError{Phase: PhaseImport, Reconciled: imported, Err: err}
		}

		list, err := e.remote.ListNotes(ctx)
		if cerr := ctx.Err(); cerr != nil {
			return fail(cerr)
		}
		if err != nil {
			return fail(err)
		}
		store := e.index.Store()
		for _, m := range list {
			n, err := e.remote.GetNote(ctx, m.Key)
			if cerr := ctx.Err(); cerr != nil {
				return fail(cerr)
			}
			if err != nil {
				return fail(err)
			}
			n.Key = m.Key
			if err := store.Save(m.Key, n); err != nil {
				return fail(err)
			}
			tx.Put(m.Key, n)
			imported++
		}
		return nil
	})
	if err != nil {
		e.logger.Error("bootstrap import failed", slog.Int("imported", imported), slog.Any("error", err))
		return imported, err
	}
	e.logger.Info("bootstrap import finished", slog.Int("imported", imported))
	e.metrics.SetNotes(e.index.Len())
	return imported, nil
}
