package prescription

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

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const prescriptionCols = `id, code, visit_id, patient_id, doctor_id, status, notes, total,
	created_at, updated_at`

func (r *prescriptionRepoPG) scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.Code, &p.VisitID, &p.PatientID, &p.DoctorID, &p.Status,
		&p.Notes, &p.Total, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescriptions (id, code, visit_id, patient_id, doctor_id, status, notes, total)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Code, p.VisitID, p.PatientID, p.DoctorID, p.Status, p.Notes, p.Total)
	return err
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1`, id))
}

func (r *prescriptionRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1 FOR UPDATE`, id))
}

func (r *prescriptionRepoPG) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Prescription, error) {
	p, err := r.scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE visit_id = $1
		 ORDER BY created_at DESC LIMIT 1`, visitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *prescriptionRepoPG) Update(ctx context.Context, p *Prescription) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions SET status=$2, notes=$3, total=$4, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Status, p.Notes, p.Total)
	return err
}

func (r *prescriptionRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error) {
	query := `SELECT ` + prescriptionCols + ` FROM prescriptions WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM prescriptions WHERE 1=1`
	var args []interface{}
	idx := 1

	for _, col := range []struct{ param, column string }{
		{"visit_id", "visit_id"},
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

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

type detailRepoPG struct{ pool *pgxpool.Pool }

func NewDetailRepoPG(pool *pgxpool.Pool) DetailRepository { return &detailRepoPG{pool: pool} }

func (r *detailRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *detailRepoPG) Create(ctx context.Context, d *Detail) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription_details (id, prescription_id, medicine_id, medicine_name,
			unit, unit_price, quantity, amount, instructions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		d.ID, d.PrescriptionID, d.MedicineID, d.MedicineName, d.Unit, d.UnitPrice,
		d.Quantity, d.Amount, d.Instructions)
	return err
}

func (r *detailRepoPG) ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*Detail, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, medicine_id, medicine_name, unit, unit_price,
			quantity, amount, instructions, created_at
		FROM prescription_details WHERE prescription_id = $1 ORDER BY created_at`,
		prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Detail
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.PrescriptionID, &d.MedicineID, &d.MedicineName,
			&d.Unit, &d.UnitPrice, &d.Quantity, &d.Amount, &d.Instructions, &d.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

func (r *detailRepoPG) DeleteByPrescription(ctx context.Context, prescriptionID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM prescription_details WHERE prescription_id = $1`, prescriptionID)
	return err
}
