package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/abgdnv/shopassist/pkg/messaging"
)

// JobKind selects what the worker does with a batch.
type JobKind string

const (
	JobApply  JobKind = "apply"
	JobRevert JobKind = "revert"
)

// BatchJob is a deferred apply or revert of one batch. The uploaded file of an apply job
// travels in the object store under Upload; Content only holds it in process, before
// scheduling and after the worker fetched it.
type BatchJob struct {
	Kind        JobKind   `json:"kind"`
	BatchID     string    `json:"batch_id"`
	FileName    string    `json:"file_name,omitempty"`
	Upload      string    `json:"upload,omitempty"`
	Content     []byte    `json:"-"`
	RunAt       time.Time `json:"run_at"`
	RequestedBy string    `json:"requested_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	Topic string `json:"-"`
}

func (j BatchJob) Subject() string {
	if j.Topic != "" {
		return j.Topic
	}
	return messaging.BatchJobsSubject
}

func (j BatchJob) Payload() ([]byte, error) {
	return json.Marshal(j)
}

func (j BatchJob) MessageID() string {
	return fmt.Sprintf("%s:%s:%d", j.Kind, j.BatchID, j.RunAt.Unix())
}

// Validate checks the fields the worker relies on.
func (j BatchJob) Validate() error {
	switch j.Kind {
	case JobApply:
		if len(j.Content) == 0 && j.Upload == "" {
			return fmt.Errorf("apply job %s has no file content", j.BatchID)
		}
	case JobRevert:
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	if j.BatchID == "" {
		return fmt.Errorf("job has no batch id")
	}
	if j.RunAt.IsZero() {
		return fmt.Errorf("job %s has no run_at", j.BatchID)
	}
	return nil
}
