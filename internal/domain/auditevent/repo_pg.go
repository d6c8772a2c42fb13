package auditevent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

// Audit writes intentionally do not join the caller's transaction: an audit
// row for a committed action should survive even when written late, and a
// failed write must not undo the action.
func (r *repoPG) conn(ctx context.Context) queryable {
	return r.pool
}

const eventCols = `id, actor, actor_role, action, entity_type, entity_id, before, after,
	request_id, recorded_at`

func (r *repoPG) Create(ctx context.Context, e *Event) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_events (id, actor, actor_role, action, entity_type, entity_id,
			before, after, request_id, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.Actor, e.ActorRole, e.Action, e.EntityType, e.EntityID,
		e.Before, e.After, e.RequestID, e.RecordedAt)
	return err
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Event, int, error) {
	query := `SELECT ` + eventCols + ` FROM audit_events WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM audit_events WHERE 1=1`
	var args []interface{}
	idx := 1

	for _, col := range []struct{ param, column string }{
		{"actor", "actor"},
		{"action", "action"},
		{"entity_type", "entity_type"},
		{"entity_id", "entity_id"},
	} {
		if p, ok := params[col.param]; ok {
			query += fmt.Sprintf(` AND %s = $%d`, col.column, idx)
			countQuery += fmt.Sprintf(` AND %s = $%d`, col.column, idx)
			args = append(args, p)
			idx++
		}
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY recorded_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Actor, &e.ActorRole, &e.Action, &e.EntityType,
			&e.EntityID, &e.Before, &e.After, &e.RequestID, &e.RecordedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, nil
}
