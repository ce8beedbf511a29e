package lifecycle

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Component is anything with a managed lifetime: background loops that must
// come up before updates flow and drain on shutdown.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type entry struct {
	name      string
	component Component
}

// Runtime starts registered components in order and stops them in reverse.
type Runtime struct {
	entries []entry
}

func NewRuntime() *Runtime {
	return &Runtime{}
}

func (r *Runtime) Register(name string, component Component) {
	if component == nil {
		return
	}
	r.entries = append(r.entries, entry{name: name, component: component})
}

// Start brings components up in registration order. On failure the already
// started ones are stopped in reverse before the error is returned.
func (r *Runtime) Start(ctx context.Context) error {
	for i, e := range r.entries {
		if err := e.component.Start(ctx); err != nil {
			_ = stopEntries(ctx, r.entries[:i])
			return errors.WithMessagef(err, "cant start %s", e.name)
		}
		log.WithField("component", e.name).Debug("component started")
	}
	return nil
}

// Stop shuts components down in reverse registration order. Every component
// gets its Stop call even when an earlier one fails; the first error wins.
func (r *Runtime) Stop(ctx context.Context) error {
	return stopEntries(ctx, r.entries)
}

func stopEntries(ctx context.Context, entries []entry) error {
	var firstErr error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := e.component.Stop(ctx); err != nil {
			log.WithError(err).WithField("component", e.name).Error("cant stop component")
			if firstErr == nil {
				firstErr = errors.WithMessagef(err, "cant stop %s", e.name)
			}
		}
	}
	return firstErr
}
