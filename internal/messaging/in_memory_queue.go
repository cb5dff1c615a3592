package messaging

import (
	"context"
	"encoding/json"
	"sync"
)

type inMemoryTask struct {
	queue   string
	payload []byte
}

func (t *inMemoryTask) Type() string {
	return t.queue
}

func (t *inMemoryTask) Payload() []byte {
	return t.payload
}

func (t *inMemoryTask) Ack() error {
	return nil
}

func (t *inMemoryTask) Nack() error {
	return nil
}

func (t *inMemoryTask) Reject() error {
	return nil
}

// InMemoryQueue is both the Publisher and the Reciever for single process
// deployments. Batch tasks and completion notices share one channel.
type InMemoryQueue struct {
	tasks chan Task
	done  chan struct{}
	once  sync.Once
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make(chan Task, 100),
		done:  make(chan struct{}),
	}
}

func (q *InMemoryQueue) publishTaskInternal(ctx context.Context, queue string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	select {
	case q.tasks <- &inMemoryTask{queue: queue, payload: data}:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) PublishBatchTask(ctx context.Context, payload BatchTaskPayload) error {
	return q.publishTaskInternal(ctx, BatchQueue, payload)
}

func (q *InMemoryQueue) PublishBatchCompleted(ctx context.Context, payload BatchCompletedPayload) error {
	return q.publishTaskInternal(ctx, BatchCompletedQueue, payload)
}

func (q *InMemoryQueue) Tasks() <-chan Task {
	return q.tasks
}

// Done is closed once Close has been called. Consumers select on it next to
// Tasks, since the tasks channel itself is never closed.
func (q *InMemoryQueue) Done() <-chan struct{} {
	return q.done
}

func (q *InMemoryQueue) Close() {
	q.once.Do(func() {
		close(q.done)
	})
}
