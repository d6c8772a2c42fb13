// Package codes issues human-readable entity codes backed by a database
// counter table, so codes stay gapless-per-scope and safe under concurrency.
//
// Two shapes are produced:
//
//	RX-20260310-00001   date-scoped, 5 digit counter per prefix and day
//	MED-000001          global, 6 digit counter per prefix
package codes

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Generator allocates sequential codes from the code_sequences table. When the
// caller is inside a db.WithTx transaction the increment joins it, so a rolled
// back operation does not burn a code.
type Generator struct {
	pool *pgxpool.Pool
}

func NewGenerator(pool *pgxpool.Pool) *Generator {
	return &Generator{pool: pool}
}

func (g *Generator) conn(ctx context.Context) queryable {
	if tx := db.ConnFromContext(ctx); tx != nil {
		return tx
	}
	return g.pool
}

func (g *Generator) next(ctx context.Context, scope string) (int64, error) {
	var n int64
	err := g.conn(ctx).QueryRow(ctx, `
		INSERT INTO code_sequences (scope, last_value) VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE SET last_value = code_sequences.last_value + 1
		RETURNING last_value`, scope).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next code for scope %s: %w", scope, err)
	}
	return n, nil
}

// NextDated returns the next code for the prefix on the given day, e.g.
// "RX-20260310-00001".
func (g *Generator) NextDated(ctx context.Context, prefix string, date time.Time) (string, error) {
	day := date.Format("20060102")
	n, err := g.next(ctx, prefix+"-"+day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%05d", prefix, day, n), nil
}

// NextGlobal returns the next code for the prefix across all time, e.g.
// "MED-000001".
func (g *Generator) NextGlobal(ctx context.Context, prefix string) (string, error) {
	n, err := g.next(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%06d", prefix, n), nil
}
