package messaging_test

import (
	"audio-tagging/internal/messaging"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueueRoundTrip(t *testing.T) {
	queue := messaging.NewInMemoryQueue()
	defer queue.Close()

	ctx := context.Background()
	runId := uuid.New()

	require.NoError(t, queue.PublishBatchTask(ctx, messaging.BatchTaskPayload{RunId: runId}))
	require.NoError(t, queue.PublishBatchCompleted(ctx, messaging.BatchCompletedPayload{
		RunId: runId, Status: "COMPLETED", Total: 3, Succeeded: 2, Failed: 1,
	}))

	task := <-queue.Tasks()
	assert.Equal(t, messaging.BatchQueue, task.Type())
	var batch messaging.BatchTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &batch))
	assert.Equal(t, runId, batch.RunId)
	assert.NoError(t, task.Ack())

	task = <-queue.Tasks()
	assert.Equal(t, messaging.BatchCompletedQueue, task.Type())
	var done messaging.BatchCompletedPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &done))
	assert.Equal(t, 3, done.Total)
	assert.Equal(t, 1, done.Failed)
}

func TestInMemoryQueuePublishAfterClose(t *testing.T) {
	queue := messaging.NewInMemoryQueue()
	queue.Close()
	queue.Close()

	select {
	case <-queue.Done():
	default:
		t.Fatal("done channel should be closed")
	}

	// fill the buffer so the only ready case is the closed queue
	for {
		err := queue.PublishBatchTask(context.Background(), messaging.BatchTaskPayload{RunId: uuid.New()})
		if err != nil {
			assert.ErrorIs(t, err, messaging.ErrQueueClosed)
			break
		}
	}
}

func TestInMemoryQueuePublishHonorsContext(t *testing.T) {
	queue := messaging.NewInMemoryQueue()
	defer queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var err error
	for err == nil {
		err = queue.PublishBatchTask(ctx, messaging.BatchTaskPayload{RunId: uuid.New()})
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
