package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/pkg/config"
	"github.com/abgdnv/shopassist/pkg/messaging"
	"github.com/abgdnv/shopassist/pkg/messaging/events"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []messaging.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type memUploads struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
	deleted []string
}

func newMemUploads() *memUploads {
	return &memUploads{objects: map[string][]byte{}}
}

func (u *memUploads) PutBytes(_ context.Context, name string, data []byte) (*jetstream.ObjectInfo, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.putErr != nil {
		return nil, u.putErr
	}
	u.objects[name] = append([]byte(nil), data...)
	return &jetstream.ObjectInfo{ObjectMeta: jetstream.ObjectMeta{Name: name}, Size: uint64(len(data))}, nil
}

func (u *memUploads) GetBytes(_ context.Context, name string, _ ...jetstream.GetObjectOpt) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.getErr != nil {
		return nil, u.getErr
	}
	data, ok := u.objects[name]
	if !ok {
		return nil, jetstream.ErrObjectNotFound
	}
	return data, nil
}

func (u *memUploads) Delete(_ context.Context, name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, name)
	u.deleted = append(u.deleted, name)
	return nil
}

func (u *memUploads) stored(name string) ([]byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.objects[name]
	return data, ok
}

func newTestScheduler(p messaging.Publisher, uploads Uploads, now time.Time) *Scheduler {
	s := NewScheduler(p, uploads, config.SchedulerConfig{Stream: "BATCH_JOBS", Subject: "batches.jobs.test", Bucket: "uploads"}, slog.New(slog.DiscardHandler))
	s.now = func() time.Time { return now }
	return s
}

func TestScheduler_Schedule(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name          string
		job           events.BatchJob
		expectedRunAt time.Time
	}{
		{
			name:          "zero run_at runs now",
			job:           events.BatchJob{Kind: events.JobRevert, BatchID: "b1"},
			expectedRunAt: now,
		},
		{
			name:          "future run_at kept in UTC",
			job:           events.BatchJob{Kind: events.JobApply, BatchID: "b1", Content: []byte("sku\n"), RunAt: now.Add(time.Hour).In(time.FixedZone("CET", 3600))},
			expectedRunAt: now.Add(time.Hour),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			p := &recordingPublisher{}
			s := newTestScheduler(p, newMemUploads(), now)

			// when
			err := s.Schedule(context.Background(), tc.job)

			// then
			require.NoError(t, err)
			require.Len(t, p.events, 1)
			job := p.events[0].(events.BatchJob)
			assert.Equal(t, "batches.jobs.test", job.Subject())
			assert.True(t, tc.expectedRunAt.Equal(job.RunAt))
			assert.Equal(t, time.UTC, job.RunAt.Location())
			assert.Equal(t, now, job.CreatedAt)
		})
	}
}

func TestScheduler_Schedule_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		job    events.BatchJob
		err    error
		putErr error
	}{
		{name: "apply without content", job: events.BatchJob{Kind: events.JobApply, BatchID: "b1"}},
		{name: "unknown kind", job: events.BatchJob{Kind: "cancel", BatchID: "b1"}},
		{name: "publish failure", job: events.BatchJob{Kind: events.JobRevert, BatchID: "b1"}, err: errors.New("no responders")},
		{name: "publish failure removes upload", job: events.BatchJob{Kind: events.JobApply, BatchID: "b1", Content: []byte("sku\n")}, err: errors.New("no responders")},
		{name: "object store failure", job: events.BatchJob{Kind: events.JobApply, BatchID: "b1", Content: []byte("sku\n")}, putErr: errors.New("bucket unavailable")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			p := &recordingPublisher{err: tc.err}
			uploads := newMemUploads()
			uploads.putErr = tc.putErr
			s := newTestScheduler(p, uploads, time.Now())

			// when
			err := s.Schedule(context.Background(), tc.job)

			// then
			assert.ErrorIs(t, err, apperrors.ErrSchedule)
			assert.Empty(t, p.events)
			assert.Empty(t, uploads.objects)
		})
	}
}

func TestScheduler_Schedule_StoresFileOutsideMessage(t *testing.T) {
	// given
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &recordingPublisher{}
	uploads := newMemUploads()
	s := newTestScheduler(p, uploads, now)
	content := bytes.Repeat([]byte("A1,19.99\n"), 300_000)

	// when
	err := s.Schedule(context.Background(), events.BatchJob{
		Kind: events.JobApply, BatchID: "b9", FileName: "big.csv", Content: content,
	})

	// then
	require.NoError(t, err)
	require.Len(t, p.events, 1)
	job := p.events[0].(events.BatchJob)
	assert.Equal(t, "b9/1772366400", job.Upload)
	assert.Nil(t, job.Content)
	stored, ok := uploads.stored(job.Upload)
	require.True(t, ok)
	assert.Equal(t, content, stored)

	data, err := job.Payload()
	require.NoError(t, err)
	assert.Less(t, len(data), 1024)
}
