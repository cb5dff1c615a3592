package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	BatchQueue          = "batch_queue"
	BatchCompletedQueue = "batch_completed_queue"
	RetryDelay          = 5 * time.Second
	MaxConnectRetry     = 5
)

var ErrQueueClosed = errors.New("queue is closed")

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// BatchTaskPayload asks a worker to run the batch stored in the ledger under
// RunId.
type BatchTaskPayload struct {
	RunId uuid.UUID
}

type BatchCompletedPayload struct {
	RunId     uuid.UUID
	Status    string
	Total     int
	Succeeded int
	Failed    int
	LogKey    string
	Error     string `json:",omitempty"`
}

type Publisher interface {
	PublishBatchTask(ctx context.Context, payload BatchTaskPayload) error

	PublishBatchCompleted(ctx context.Context, payload BatchCompletedPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
