package gateway

import (
	"context"
	"time"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run tracks the processing of one inbound event on its lane.
type Run struct {
	ID        types.RunID
	Lane      types.LaneKey
	Event     *types.InboundEvent
	Status    RunStatus
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     error
	Ctx       context.Context
	// OnComplete receives a short text for the sender: the callback answer
	// for button presses, or a failure notice.
	OnComplete func(response string)
}

// NewRun creates a Run in the Queued state for the given lane and event.
func NewRun(lane types.LaneKey, event *types.InboundEvent) *Run {
	return &Run{
		ID:        types.NewRunID(),
		Lane:      lane,
		Event:     event,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}

func (r *Run) complete(response string) {
	if r.OnComplete != nil {
		r.OnComplete(response)
	}
}
