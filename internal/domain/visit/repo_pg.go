package visit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
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

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewVisitRepoPG(pool *pgxpool.Pool) VisitRepository { return &visitRepoPG{pool: pool} }

func (r *visitRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const visitCols = `id, code, appointment_id, patient_id, doctor_id, status, checked_in_at,
	symptoms, diagnosis, notes, signature_hash, signed_at, created_at, updated_at`

func (r *visitRepoPG) scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.Code, &v.AppointmentID, &v.PatientID, &v.DoctorID, &v.Status,
		&v.CheckedInAt, &v.Symptoms, &v.Diagnosis, &v.Notes, &v.SignatureHash, &v.SignedAt,
		&v.CreatedAt, &v.UpdatedAt)
	return &v, err
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visits (id, code, appointment_id, patient_id, doctor_id, status,
			checked_in_at, symptoms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		v.ID, v.Code, v.AppointmentID, v.PatientID, v.DoctorID, v.Status, v.CheckedInAt, v.Symptoms)
	return err
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return r.scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visits WHERE id = $1`, id))
}

func (r *visitRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return r.scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visits WHERE id = $1 FOR UPDATE`, id))
}

func (r *visitRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Visit, error) {
	v, err := r.scanVisit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+visitCols+` FROM visits WHERE appointment_id = $1`, appointmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *visitRepoPG) Update(ctx context.Context, v *Visit) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE visits SET status=$2, symptoms=$3, diagnosis=$4, notes=$5,
			signature_hash=$6, signed_at=$7, updated_at=NOW()
		WHERE id = $1`,
		v.ID, v.Status, v.Symptoms, v.Diagnosis, v.Notes, v.SignatureHash, v.SignedAt)
	return err
}

func (r *visitRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Visit, int, error) {
	query := `SELECT ` + visitCols + ` FROM visits WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM visits WHERE 1=1`
	var args []interface{}
	idx := 1

	for _, col := range []struct{ param, column string }{
		{"patient_id", "patient_id"},
		{"doctor_id", "doctor_id"},
		{"status", "status"},
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

	query += fmt.Sprintf(` ORDER BY checked_in_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := r.scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, nil
}
