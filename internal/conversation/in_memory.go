package conversation

import (
	"context"
	"sync"
	"time"
)

type inMemory struct {
	mu     sync.RWMutex
	turns  []Turn
	nextID int64
	now    func() time.Time
}

// NewInMemoryLog keeps turns for the lifetime of the process.
func NewInMemoryLog() Log {
	return &inMemory{nextID: 1, now: time.Now}
}

func (l *inMemory) Append(_ context.Context, turn Turn) (*Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	turn.ID = l.nextID
	turn.CreatedAt = l.now()
	l.nextID++
	l.turns = append(l.turns, turn)
	return &turn, nil
}

func (l *inMemory) Recent(_ context.Context, limit int32) ([]Turn, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []Turn{}
	for i := len(l.turns) - 1; i >= 0 && int32(len(out)) < limit; i-- {
		out = append(out, l.turns[i])
	}
	return out, nil
}
