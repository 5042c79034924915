package task

import (
	"context"
	"encoding/json"
)

// RunMessage is the queue payload of a dispatched run.
type RunMessage struct {
	TaskID  string `json:"task_id"`
	Attempt int    `json:"attempt"`
}

// Publisher sends a message body to the run queue.
type Publisher interface {
	PublishTask(ctx context.Context, body []byte) error
}

// QueueDispatcher dispatches runs through a message queue; a worker process
// consumes them and calls Runner.Process.
type QueueDispatcher struct {
	pub Publisher
}

// NewQueueDispatcher builds a QueueDispatcher.
func NewQueueDispatcher(pub Publisher) *QueueDispatcher {
	return &QueueDispatcher{pub: pub}
}

// Dispatch implements Dispatcher.
func (d *QueueDispatcher) Dispatch(ctx context.Context, taskID string) error {
	body, err := json.Marshal(RunMessage{TaskID: taskID})
	if err != nil {
		return err
	}
	return d.pub.PublishTask(ctx, body)
}
