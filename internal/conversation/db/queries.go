// Package db holds the typed queries against the conversation_turns table.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

const createTurn = `
INSERT INTO conversation_turns (requested_by, prompt, attachment, answer)
VALUES ($1, $2, $3, $4)
RETURNING id, requested_by, prompt, attachment, answer, created_at`

type CreateTurnParams struct {
	RequestedBy string
	Prompt      string
	Attachment  *string
	Answer      string
}

func (q *Queries) CreateTurn(ctx context.Context, arg CreateTurnParams) (ConversationTurn, error) {
	row := q.db.QueryRow(ctx, createTurn, arg.RequestedBy, arg.Prompt, arg.Attachment, arg.Answer)
	return scanTurn(row)
}

const listTurns = `
SELECT id, requested_by, prompt, attachment, answer, created_at
FROM conversation_turns
ORDER BY id DESC
LIMIT $1`

func (q *Queries) ListTurns(ctx context.Context, limit int32) ([]ConversationTurn, error) {
	rows, err := q.db.Query(ctx, listTurns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ConversationTurn{}
	for rows.Next() {
		i, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanTurn(row pgx.Row) (ConversationTurn, error) {
	var i ConversationTurn
	err := row.Scan(
		&i.ID,
		&i.RequestedBy,
		&i.Prompt,
		&i.Attachment,
		&i.Answer,
		&i.CreatedAt,
	)
	return i, err
}
