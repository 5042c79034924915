package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	logger "github.com/sirupsen/logrus"

	"PdfVault/internal/mq"
	"PdfVault/internal/rowsource"
	"PdfVault/internal/task"
)

type dlqMessage struct {
	TaskID   string    `json:"task_id"`
	Attempt  int       `json:"attempt"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// Processor executes one run.
type Processor interface {
	Process(ctx context.Context, taskID string) error
}

// RetryPublisher re-queues or dead-letters run messages.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, body []byte) error
}

// Options configures a Worker.
type Options struct {
	Prefetch    int
	RetryMax    int
	RetryDelays []time.Duration
}

// Worker consumes run messages and processes them one per prefetch slot.
type Worker struct {
	proc Processor
	pub  RetryPublisher
	opts Options
	now  func() time.Time
}

// New builds a Worker.
func New(proc Processor, pub RetryPublisher, opts Options) *Worker {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	return &Worker{proc: proc, pub: pub, opts: opts, now: time.Now}
}

// Run consumes the run queue of client until ctx is done.
func Run(ctx context.Context, client *mq.Client, proc Processor, opts Options) error {
	if err := client.DeclareTopology(); err != nil {
		return err
	}
	w := New(proc, client, opts)
	if err := client.Channel.Qos(w.opts.Prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := client.Channel.Consume(
		mq.QueueRuns,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, w.opts.Prefetch)
	for {
		select {
		case <-ctx.Done():
			// wait for in-flight runs to flush their final counters
			for i := 0; i < cap(sem); i++ {
				sem <- struct{}{}
			}
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("run worker: delivery channel closed")
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				if w.handle(ctx, d.Body) {
					_ = d.Ack(false)
				} else {
					_ = d.Nack(false, true)
				}
			}(delivery)
		}
	}
}

// handle processes one message body. It reports whether the message is
// settled (ack) or must be redelivered (nack with requeue).
func (w *Worker) handle(ctx context.Context, body []byte) bool {
	var msg task.RunMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.TaskID == "" {
		logger.WithField("body", string(body)).Warn("run worker: invalid message")
		return true
	}
	log := logger.WithFields(logger.Fields{"task_id": msg.TaskID, "attempt": msg.Attempt})

	err := w.proc.Process(ctx, msg.TaskID)
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if shouldRetry(err) {
		if err := w.scheduleRetry(ctx, msg, err); err != nil {
			log.WithError(err).Error("run worker: retry schedule failed")
			return false
		}
		return true
	}
	w.deadLetter(ctx, msg, err)
	return true
}

func shouldRetry(err error) bool {
	if errors.Is(err, task.ErrTaskNotFound) || errors.Is(err, fs.ErrNotExist) {
		return false
	}
	var formatErr *rowsource.FormatError
	return !errors.As(err, &formatErr)
}

func (w *Worker) scheduleRetry(ctx context.Context, msg task.RunMessage, procErr error) error {
	nextAttempt := msg.Attempt + 1
	if w.opts.RetryMax == 0 || nextAttempt > w.opts.RetryMax {
		w.deadLetter(ctx, msg, procErr)
		return nil
	}
	delay := pickRetryDelay(nextAttempt, w.opts.RetryDelays)
	msg.Attempt = nextAttempt
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	logger.WithFields(logger.Fields{"task_id": msg.TaskID, "attempt": nextAttempt, "delay": delay}).
		WithError(procErr).Warn("run failed, retrying")
	return w.pub.PublishRetry(ctx, body, delay)
}

func (w *Worker) deadLetter(ctx context.Context, msg task.RunMessage, procErr error) {
	body, err := json.Marshal(dlqMessage{
		TaskID:   msg.TaskID,
		Attempt:  msg.Attempt,
		Error:    procErr.Error(),
		FailedAt: w.now(),
	})
	if err != nil {
		return
	}
	if err := w.pub.PublishDLQ(ctx, body); err != nil {
		logger.WithError(err).WithField("task_id", msg.TaskID).Error("run worker: dlq publish failed")
	}
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
