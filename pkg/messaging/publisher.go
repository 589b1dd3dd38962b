package messaging

import (
	"context"
)

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

// Identifiable events carry a stable id used for publish deduplication.
type Identifiable interface {
	MessageID() string
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// BatchJobsSubject is the default subject for deferred batch jobs.
const BatchJobsSubject = "batches.jobs"
