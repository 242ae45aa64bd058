package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
)

// Entity owns the state of a single key. Handle is only ever called from the
// entity's own goroutine, one message at a time.
type Entity interface {
	Handle(ctx context.Context, msg Message) error
	// Idle reports whether the entity holds no transient state and may be
	// passivated.
	Idle() bool
}

// EntityHandle addresses an entity by key regardless of whether it is
// currently live.
type EntityHandle interface {
	Key() string
	Tell(msg Message) error
	Ask(ctx context.Context, msg Message) error
}

type EntityLookup interface {
	ResolveOrCreate(key string) (EntityHandle, error)
}

// EntityFactory activates an entity. It runs on the entity goroutine before
// the first message is handled, so recovery work belongs here.
type EntityFactory func(ctx context.Context, key string, self EntityHandle) (Entity, error)

type entityCell struct {
	key string
	box *mailbox
}

type Registry struct {
	name        string
	factory     EntityFactory
	idleTimeout time.Duration
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	entities map[string]*entityCell
	closed   bool
}

func NewRegistry(name string, factory EntityFactory, idleTimeout time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		name:        name,
		factory:     factory,
		idleTimeout: idleTimeout,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		entities:    make(map[string]*entityCell),
	}
}

// ResolveOrCreate returns a handle for key, activating the entity if it is
// not live.
func (r *Registry) ResolveOrCreate(key string) (EntityHandle, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: entity key is required", domain.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, domain.ErrEntityStopped
	}
	r.cellLocked(key)
	return &entityRef{key: key, reg: r}, nil
}

// Close stops every entity loop. Pending asks fail with ErrEntityStopped.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

func (r *Registry) deliver(key string, d delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrEntityStopped
	}
	cell := r.cellLocked(key)
	if !cell.box.Enqueue(d) {
		return domain.ErrEntityStopped
	}
	return nil
}

func (r *Registry) cellLocked(key string) *entityCell {
	if cell, ok := r.entities[key]; ok {
		return cell
	}
	cell := &entityCell{key: key, box: newMailbox()}
	r.entities[key] = cell
	r.wg.Add(1)
	go r.run(cell)
	return cell
}

// detachLocked removes the cell from the registry and closes its mailbox.
// Messages enqueued before the detach are returned to the caller.
func (r *Registry) detachLocked(cell *entityCell) []delivery {
	if current, ok := r.entities[cell.key]; ok && current == cell {
		delete(r.entities, cell.key)
	}
	return cell.box.Close()
}

func (r *Registry) run(cell *entityCell) {
	defer r.wg.Done()

	entity, err := r.factory(r.ctx, cell.key, &entityRef{key: cell.key, reg: r})
	if err != nil {
		r.logger.ErrorContext(r.ctx, "entity activation failed",
			"module", "application.registry",
			"layer", "application",
			"operation", "activate",
			"outcome", "failure",
			"registry", r.name,
			"entity_key", cell.key,
			"error", err,
		)
		r.mu.Lock()
		rest := r.detachLocked(cell)
		r.mu.Unlock()
		failPending(rest, err)
		return
	}

	for {
		if d, ok := cell.box.TryDequeue(); ok {
			r.handle(cell.key, entity, d)
			continue
		}

		var idle <-chan time.Time
		var timer *time.Timer
		if r.idleTimeout > 0 {
			timer = time.NewTimer(r.idleTimeout)
			idle = timer.C
		}
		select {
		case <-r.ctx.Done():
			r.mu.Lock()
			rest := r.detachLocked(cell)
			r.mu.Unlock()
			failPending(rest, domain.ErrEntityStopped)
			return
		case <-cell.box.Wait():
		case <-idle:
			if r.tryPassivate(cell, entity) {
				return
			}
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (r *Registry) handle(key string, entity Entity, d delivery) {
	err := safeHandle(r.ctx, entity, d.msg)
	if d.ack != nil {
		d.ack <- err
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.WarnContext(r.ctx, "entity rejected message",
			"module", "application.registry",
			"layer", "application",
			"operation", d.msg.messageName(),
			"outcome", "rejected",
			"registry", r.name,
			"entity_key", key,
			"error", err,
		)
	}
}

func (r *Registry) tryPassivate(cell *entityCell, entity Entity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cell.box.Len() > 0 || !entity.Idle() {
		return false
	}
	r.detachLocked(cell)
	r.logger.DebugContext(r.ctx, "entity passivated",
		"module", "application.registry",
		"layer", "application",
		"operation", "passivate",
		"outcome", "success",
		"registry", r.name,
		"entity_key", cell.key,
	)
	return true
}

func safeHandle(ctx context.Context, entity Entity, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("entity panic handling %s: %v", msg.messageName(), rec)
		}
	}()
	return entity.Handle(ctx, msg)
}

func failPending(rest []delivery, err error) {
	for _, d := range rest {
		if d.ack != nil {
			d.ack <- err
		}
	}
}

type entityRef struct {
	key string
	reg *Registry
}

func (e *entityRef) Key() string { return e.key }

func (e *entityRef) Tell(msg Message) error {
	return e.reg.deliver(e.key, delivery{msg: msg})
}

// Ask delivers msg and waits until the entity has handled it.
func (e *entityRef) Ask(ctx context.Context, msg Message) error {
	ack := make(chan error, 1)
	if err := e.reg.deliver(e.key, delivery{msg: msg, ack: ack}); err != nil {
		return err
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
