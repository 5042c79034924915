package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PdfVault/internal/rowsource"
	"PdfVault/internal/task"
)

type fakeProcessor struct {
	err   error
	calls []string
}

func (p *fakeProcessor) Process(_ context.Context, taskID string) error {
	p.calls = append(p.calls, taskID)
	return p.err
}

type retry struct {
	body  []byte
	delay time.Duration
}

type fakePublisher struct {
	retries  []retry
	dlq      [][]byte
	retryErr error
}

func (p *fakePublisher) PublishRetry(_ context.Context, body []byte, delay time.Duration) error {
	if p.retryErr != nil {
		return p.retryErr
	}
	p.retries = append(p.retries, retry{body: body, delay: delay})
	return nil
}

func (p *fakePublisher) PublishDLQ(_ context.Context, body []byte) error {
	p.dlq = append(p.dlq, body)
	return nil
}

func message(t *testing.T, id string, attempt int) []byte {
	t.Helper()
	body, err := json.Marshal(task.RunMessage{TaskID: id, Attempt: attempt})
	require.NoError(t, err)
	return body
}

func TestHandleSuccess(t *testing.T) {
	proc := &fakeProcessor{}
	pub := &fakePublisher{}
	w := New(proc, pub, Options{RetryMax: 2})

	assert.True(t, w.handle(context.Background(), message(t, "t1", 0)))
	assert.Equal(t, []string{"t1"}, proc.calls)
	assert.Empty(t, pub.retries)
	assert.Empty(t, pub.dlq)
}

func TestHandleInvalidMessage(t *testing.T) {
	proc := &fakeProcessor{}
	w := New(proc, &fakePublisher{}, Options{})
	assert.True(t, w.handle(context.Background(), []byte("{")))
	assert.True(t, w.handle(context.Background(), []byte(`{"attempt":1}`)))
	assert.Empty(t, proc.calls)
}

func TestHandleRetriesThenDeadLetters(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("database is locked")}
	pub := &fakePublisher{}
	w := New(proc, pub, Options{RetryMax: 2, RetryDelays: []time.Duration{time.Second, time.Minute}})

	assert.True(t, w.handle(context.Background(), message(t, "t1", 0)))
	require.Len(t, pub.retries, 1)
	assert.Equal(t, time.Second, pub.retries[0].delay)
	var next task.RunMessage
	require.NoError(t, json.Unmarshal(pub.retries[0].body, &next))
	assert.Equal(t, 1, next.Attempt)

	assert.True(t, w.handle(context.Background(), pub.retries[0].body))
	require.Len(t, pub.retries, 2)
	assert.Equal(t, time.Minute, pub.retries[1].delay)

	assert.True(t, w.handle(context.Background(), pub.retries[1].body))
	assert.Len(t, pub.retries, 2)
	require.Len(t, pub.dlq, 1)
	var dead dlqMessage
	require.NoError(t, json.Unmarshal(pub.dlq[0], &dead))
	assert.Equal(t, "t1", dead.TaskID)
	assert.Equal(t, 2, dead.Attempt)
	assert.Equal(t, "database is locked", dead.Error)
}

func TestHandlePermanentErrors(t *testing.T) {
	for _, err := range []error{
		task.ErrTaskNotFound,
		&rowsource.FormatError{Ext: ".txt"},
		fmt.Errorf("open: %w", os.ErrNotExist),
	} {
		pub := &fakePublisher{}
		w := New(&fakeProcessor{err: err}, pub, Options{RetryMax: 5})
		assert.True(t, w.handle(context.Background(), message(t, "t", 0)))
		assert.Empty(t, pub.retries, "%v", err)
		assert.Len(t, pub.dlq, 1, "%v", err)
	}
}

func TestHandleRequeuesOnShutdownOrPublishFailure(t *testing.T) {
	w := New(&fakeProcessor{err: context.Canceled}, &fakePublisher{}, Options{RetryMax: 1})
	assert.False(t, w.handle(context.Background(), message(t, "t", 0)))

	w = New(&fakeProcessor{err: errors.New("boom")}, &fakePublisher{retryErr: errors.New("closed")}, Options{RetryMax: 1})
	assert.False(t, w.handle(context.Background(), message(t, "t", 0)))
}

func TestPickRetryDelay(t *testing.T) {
	delays := []time.Duration{time.Second, 2 * time.Second}
	assert.Equal(t, time.Second, pickRetryDelay(0, delays))
	assert.Equal(t, 2*time.Second, pickRetryDelay(2, delays))
	assert.Equal(t, 2*time.Second, pickRetryDelay(9, delays))
	assert.Zero(t, pickRetryDelay(1, nil))
}
