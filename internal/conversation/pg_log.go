package conversation

import (
	"context"
	"fmt"

	"github.com/abgdnv/shopassist/internal/conversation/db"
	apperrors "github.com/abgdnv/shopassist/internal/errors"
)

type PgLog struct {
	q *db.Queries
}

var _ Log = (*PgLog)(nil)

// NewPgLog creates a Log backed by the conversation_turns table.
func NewPgLog(dbtx db.DBTX) *PgLog {
	return &PgLog{q: db.New(dbtx)}
}

func (p *PgLog) Append(ctx context.Context, turn Turn) (*Turn, error) {
	row, err := p.q.CreateTurn(ctx, db.CreateTurnParams{
		RequestedBy: turn.RequestedBy,
		Prompt:      turn.Prompt,
		Attachment:  turn.Attachment,
		Answer:      turn.Answer,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRecordTurn, err)
	}
	created := fromRow(row)
	return &created, nil
}

func (p *PgLog) Recent(ctx context.Context, limit int32) ([]Turn, error) {
	rows, err := p.q.ListTurns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrListTurns, err)
	}
	turns := make([]Turn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, fromRow(row))
	}
	return turns, nil
}

func fromRow(row db.ConversationTurn) Turn {
	return Turn{
		ID:          row.ID,
		RequestedBy: row.RequestedBy,
		Prompt:      row.Prompt,
		Attachment:  row.Attachment,
		Answer:      row.Answer,
		CreatedAt:   row.CreatedAt,
	}
}
