package service

import (
	"context"
	"time"

	"go-seedvault/internal/ws"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher pushes committed events to live clients.
type EventPublisher interface {
	Publish(msg ws.Message) error
}

// ReadModelCache is the cache-aside store behind ReadModelService.
type ReadModelCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

type OperationRecorder interface {
	ObserveOperation(operation, outcome string, d time.Duration)
	AdvisoryFailure(channel string)
}

const (
	channelWebsocket = "websocket"
	channelCache     = "cache"
)

func chamberMapKey(chamberID uuid.UUID) string {
	return "chamber-map:" + chamberID.String()
}

func chamberOccupancyKey(chamberID uuid.UUID) string {
	return "chamber-occupancy:" + chamberID.String()
}

// Event describes a committed state change.
type Event struct {
	Action     string
	Actor      Actor
	ChamberIDs []uuid.UUID
	Data       interface{}
	Message    string
}

// Advisor runs the post-commit side channel: websocket broadcast, read-model
// cache invalidation and operation metrics. Nothing it does can fail a
// committed operation. Every dependency is optional.
type Advisor struct {
	publisher   EventPublisher
	cache       ReadModelCache
	recorder    OperationRecorder
	log         *zap.Logger
	invalidated []func(keys []string)
}

func NewAdvisor(publisher EventPublisher, cache ReadModelCache, recorder OperationRecorder, log *zap.Logger) *Advisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Advisor{publisher: publisher, cache: cache, recorder: recorder, log: log}
}

// Committed fans a committed event out to the side channel and returns the
// advisory failures it swallowed.
func (a *Advisor) Committed(ctx context.Context, ev Event) []*AdvisoryError {
	if a == nil {
		return nil
	}
	var failures []*AdvisoryError

	keys := make([]string, 0, len(ev.ChamberIDs)*2)
	for _, id := range uniqueIDs(ev.ChamberIDs) {
		keys = append(keys, chamberMapKey(id), chamberOccupancyKey(id))
	}
	if len(keys) > 0 {
		for _, fn := range a.invalidated {
			fn(keys)
		}
		if a.cache != nil {
			if err := a.cache.Delete(ctx, keys...); err != nil {
				failures = append(failures, &AdvisoryError{Channel: channelCache, Event: ev.Action, Err: err})
			}
		}
	}

	if a.publisher != nil {
		msg := ws.Message{
			Type:    "allocation",
			Action:  ev.Action,
			Data:    ev.Data,
			Message: ev.Message,
		}
		if ev.Actor.ID != uuid.Nil {
			msg.User = &ws.User{ID: ev.Actor.ID.String(), Name: ev.Actor.Name}
		}
		if err := a.publisher.Publish(msg); err != nil {
			failures = append(failures, &AdvisoryError{Channel: channelWebsocket, Event: ev.Action, Err: err})
		}
	}

	for _, f := range failures {
		a.Failed(f)
	}
	return failures
}

// Failed logs and counts a side channel failure.
func (a *Advisor) Failed(err *AdvisoryError) {
	if a == nil || err == nil {
		return
	}
	a.log.Warn("advisory side channel failed",
		zap.String("channel", err.Channel),
		zap.String("event", err.Event),
		zap.Error(err.Err),
	)
	if a.recorder != nil {
		a.recorder.AdvisoryFailure(err.Channel)
	}
}

// Observe records the outcome of an operation. It is meant to be deferred
// with a pointer to the operation's named error result.
func (a *Advisor) Observe(operation string, start time.Time, errp *error) {
	if a == nil || a.recorder == nil {
		return
	}
	var err error
	if errp != nil {
		err = *errp
	}
	a.recorder.ObserveOperation(operation, Code(err), time.Since(start))
}

// onInvalidate registers fn to run with the read-model keys of every
// committed event, before the cache entries are deleted. Registration must
// happen before the advisor is shared.
func (a *Advisor) onInvalidate(fn func(keys []string)) {
	if a == nil {
		return
	}
	a.invalidated = append(a.invalidated, fn)
}

func (a *Advisor) readCache() ReadModelCache {
	if a == nil {
		return nil
	}
	return a.cache
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
