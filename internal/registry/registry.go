// Package registry implements the Stage Registry & Factory and the
// Dispatcher (spec.md §4.10, §6): the process-global stage_id→Stage map,
// the upfront stage_type→constructor registration, and the routing layer
// that turns inbound transport events into mailbox entries on the right
// stage.
//
// Adapted from the teacher's domain/registry.Hub, which held the
// equivalent id→*Cell map and connector-registration pattern; here the
// map holds *stage.Stage instead of *Cell and construction is keyed by a
// stage_type string rather than a single hardcoded cell kind.
package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/stage"
	"github.com/webitel/stagehub/internal/timer"
)

// ErrUnknownStageType is returned by CreateStage when no factory was
// registered for the requested type.
var ErrUnknownStageType = errors.New("registry: unknown stage type")

// ErrStageNotFound is returned when an operation names a stage_id the
// registry has no record of.
var ErrStageNotFound = errors.New("registry: stage not found")

// Factory builds the user-supplied callback implementation for a new
// stage. It must not block; any setup work belongs in OnCreate.
type Factory func(stageID int64) stage.UserStage

// Options tunes every stage the registry creates.
type Options struct {
	MailboxSize      int
	HighWatermark    int
	DrainLimit       int
	ReconnectTimeout time.Duration
	Spawn            func(func())
}

// Registry owns the process-wide stage_id→Stage map and the upfront
// stage_type→Factory map (spec.md §4.10: "stage types are registered at
// startup; CreateStage for an unregistered type fails closed").
type Registry struct {
	mu        sync.RWMutex
	stages    map[int64]*stage.Stage
	factories map[string]Factory

	idSeq    atomic.Int64
	timers   *timer.Manager
	sessions stage.SessionLookup
	opts     Options
}

// New builds an empty Registry. sessions resolves session_id to a
// sendable session for stages to reply/broadcast through.
func New(sessions stage.SessionLookup, opts Options) *Registry {
	return &Registry{
		stages:    make(map[int64]*stage.Stage),
		factories: make(map[string]Factory),
		timers:    timer.NewManager(),
		sessions:  sessions,
		opts:      opts,
	}
}

// RegisterFactory associates a stage_type with its constructor. Call
// this during startup, before any CreateStage call names the type --
// the registry does not support registering factories dynamically at
// runtime (spec.md §4.10).
func (r *Registry) RegisterFactory(stageType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[stageType] = f
}

// CreateStage allocates a new stage_id, constructs the stage, and posts
// SystemPacket{Create} to run OnCreate (spec.md §4.7).
func (r *Registry) CreateStage(stageType string, initPayload []byte) (*stage.Stage, error) {
	r.mu.RLock()
	f, ok := r.factories[stageType]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownStageType
	}

	id := r.idSeq.Add(1)
	user := f(id)
	s := stage.New(stage.Config{
		ID:               id,
		StageType:        stageType,
		User:             user,
		Sessions:         r.sessions,
		Locator:          r.locate,
		Timers:           r.timers,
		Spawn:            r.opts.Spawn,
		MailboxSize:      r.opts.MailboxSize,
		HighWatermark:    r.opts.HighWatermark,
		DrainLimit:       r.opts.DrainLimit,
		ReconnectTimeout: r.opts.ReconnectTimeout,
	})

	r.mu.Lock()
	r.stages[id] = s
	r.mu.Unlock()

	s.Post(model.SystemPacket{Kind: model.SystemCreate, InitPayload: initPayload})
	return s, nil
}

// Find looks up a stage by id.
func (r *Registry) Find(stageID int64) (*stage.Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[stageID]
	return s, ok
}

func (r *Registry) locate(stageID int64) (model.MailboxPoster, bool) {
	s, ok := r.Find(stageID)
	if !ok {
		return nil, false
	}
	return s, true
}

// DestroyStage closes a stage and reaps it from the registry once it
// finishes draining to Closed.
func (r *Registry) DestroyStage(stageID int64) error {
	s, ok := r.Find(stageID)
	if !ok {
		return ErrStageNotFound
	}
	s.Close()
	go r.reapWhenClosed(stageID, s)
	return nil
}

func (r *Registry) reapWhenClosed(stageID int64, s *stage.Stage) {
	for s.State() != model.StageClosed {
		time.Sleep(10 * time.Millisecond)
	}
	r.mu.Lock()
	delete(r.stages, stageID)
	r.mu.Unlock()
}

// Shutdown closes every live stage concurrently and waits for the
// registry to drain empty or ctx to expire, whichever comes first --
// used from the fx.Lifecycle OnStop hook during process shutdown.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.stages))
	for id := range r.stages {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	g, _ := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return r.DestroyStage(id)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		r.mu.RLock()
		n := len(r.stages)
		r.mu.RUnlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats snapshots every live stage for the operator dashboard and test
// assertions (SPEC_FULL.md §4, supplemented stats surface).
func (r *Registry) Stats() model.HubStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hs := model.HubStats{TotalStages: len(r.stages)}
	for id, s := range r.stages {
		hs.Stages = append(hs.Stages, model.StageStats{
			StageID:      id,
			StageType:    s.StageType,
			State:        s.State(),
			ActorCount:   s.ActorCount(),
			MailboxDepth: s.Depth(),
			Running:      s.Running(),
		})
		hs.TotalActors += s.ActorCount()
	}
	hs.TotalConnections = hs.TotalActors
	return hs
}
