package conversation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PgxPool is the subset of pgxpool.Pool the store needs, so pgxmock can
// stand in during tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HistoryStore persists conversation turns in Postgres. The log is
// append-only: turns are never mutated or deleted by the pipeline.
type HistoryStore struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewHistoryStore(pool PgxPool) *HistoryStore {
	if pool == nil {
		return nil
	}
	return &HistoryStore{
		pool:   pool,
		tracer: otel.Tracer("juliobot.internal.conversation.history"),
	}
}

// Append records one turn for a number. Failures surface as wrapped errors;
// callers log and keep going so a storage hiccup never blocks the reply.
func (s *HistoryStore) Append(ctx context.Context, number, role, content string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.append_turn")
	defer span.End()
	span.SetAttributes(attribute.String("juliobot.role", role))

	query := `
		INSERT INTO historico (numero, role, content)
		VALUES ($1, $2, $3)
	`
	if _, err := s.pool.Exec(ctx, query, number, role, content); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: append turn: %w", err)
	}
	return nil
}

// Recent returns at most limit turns for a number in chronological order.
// Retrieval is newest-first for the LIMIT, then reversed, because the LLM
// context must read oldest to newest.
func (s *HistoryStore) Recent(ctx context.Context, number string, limit int) ([]ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.recent_turns")
	defer span.End()

	query := `
		SELECT role, content
		FROM historico
		WHERE numero = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, number, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load recent turns: %w", err)
	}
	defer rows.Close()

	var turns []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: scan turn: %w", err)
		}
		turns = append(turns, msg)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: iterate turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
