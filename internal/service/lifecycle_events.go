package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/internship-placement-api/internal/models"
	"github.com/noah-isme/internship-placement-api/pkg/jobs"
)

// JobLifecycleEvent is the job type carrying a models.LifecycleEvent.
const JobLifecycleEvent = "internship.lifecycle_event"

// Notifier delivers lifecycle events to the notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, event models.LifecycleEvent) error
}

// LogNotifier writes events to the log. It is the default when no delivery service is wired.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, event models.LifecycleEvent) error {
	n.logger.Info("internship lifecycle event",
		zap.String("internship_id", event.InternshipID),
		zap.String("student_id", event.StudentID),
		zap.String("event", string(event.Event)),
		zap.String("from", string(event.From)),
		zap.String("to", string(event.To)),
		zap.String("actor_id", event.ActorID),
	)
	return nil
}

// LifecycleEventHandler adapts a Notifier to the job queue.
func LifecycleEventHandler(notifier Notifier) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(models.LifecycleEvent)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
		}
		return notifier.Notify(ctx, event)
	}
}

// EventPublisher hands committed transitions to the background queue. Delivery
// failures are logged and never reach the caller.
type EventPublisher struct {
	queue  jobSubmitter
	logger *zap.Logger
}

// NewEventPublisher constructs an EventPublisher; a nil queue drops events.
func NewEventPublisher(queue jobSubmitter, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{queue: queue, logger: logger}
}

// Publish enqueues event.
func (p *EventPublisher) Publish(event models.LifecycleEvent) {
	if p == nil || p.queue == nil {
		return
	}
	if err := p.queue.Submit(JobLifecycleEvent, event); err != nil {
		p.logger.Warn("lifecycle event dropped",
			zap.String("internship_id", event.InternshipID), zap.String("event", string(event.Event)), zap.Error(err))
	}
}
