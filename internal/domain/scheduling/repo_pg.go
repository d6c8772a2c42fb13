package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// =========== Shift Repository ===========

type shiftRepoPG struct{ pool *pgxpool.Pool }

func NewShiftRepoPG(pool *pgxpool.Pool) ShiftRepository { return &shiftRepoPG{pool: pool} }

func (r *shiftRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *shiftRepoPG) Create(ctx context.Context, s *Shift) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO shifts (id, name, start_time, end_time)
		VALUES ($1,$2,$3,$4)`,
		s.ID, s.Name, s.StartTime, s.EndTime)
	return err
}

func (r *shiftRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Shift, error) {
	var s Shift
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, start_time, end_time, created_at FROM shifts WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.StartTime, &s.EndTime, &s.CreatedAt)
	return &s, err
}

func (r *shiftRepoPG) List(ctx context.Context) ([]*Shift, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, start_time, end_time, created_at FROM shifts ORDER BY start_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Shift
	for rows.Next() {
		var s Shift
		if err := rows.Scan(&s.ID, &s.Name, &s.StartTime, &s.EndTime, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

// =========== Duty Repository ===========

type dutyRepoPG struct{ pool *pgxpool.Pool }

func NewDutyRepoPG(pool *pgxpool.Pool) DutyRepository { return &dutyRepoPG{pool: pool} }

func (r *dutyRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const dutyCols = `id, doctor_id, shift_id, date, max_slots, status, replaced_by, cancel_reason, created_at, updated_at`

func (r *dutyRepoPG) scanDuty(row pgx.Row) (*Duty, error) {
	var d Duty
	err := row.Scan(&d.ID, &d.DoctorID, &d.ShiftID, &d.Date, &d.MaxSlots, &d.Status,
		&d.ReplacedBy, &d.CancelReason, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *dutyRepoPG) Create(ctx context.Context, d *Duty) error {
	d.ID = uuid.New()
	if d.Status == "" {
		d.Status = DutyActive
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO duties (id, doctor_id, shift_id, date, max_slots, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		d.ID, d.DoctorID, d.ShiftID, d.Date, d.MaxSlots, d.Status)
	return err
}

func (r *dutyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Duty, error) {
	return r.scanDuty(r.conn(ctx).QueryRow(ctx, `SELECT `+dutyCols+` FROM duties WHERE id = $1`, id))
}

func (r *dutyRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Duty, error) {
	return r.scanDuty(r.conn(ctx).QueryRow(ctx, `SELECT `+dutyCols+` FROM duties WHERE id = $1 FOR UPDATE`, id))
}

func (r *dutyRepoPG) GetForUpdate(ctx context.Context, doctorID, shiftID uuid.UUID, date time.Time) (*Duty, error) {
	d, err := r.scanDuty(r.conn(ctx).QueryRow(ctx,
		`SELECT `+dutyCols+` FROM duties WHERE doctor_id = $1 AND shift_id = $2 AND date = $3 FOR UPDATE`,
		doctorID, shiftID, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *dutyRepoPG) Update(ctx context.Context, d *Duty) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE duties SET max_slots=$2, status=$3, replaced_by=$4, cancel_reason=$5, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.MaxSlots, d.Status, d.ReplacedBy, d.CancelReason)
	return err
}

func (r *dutyRepoPG) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Duty, error) {
	return r.listDuties(ctx,
		`SELECT `+dutyCols+` FROM duties WHERE doctor_id = $1 AND date = $2 FOR UPDATE`,
		doctorID, date)
}

func (r *dutyRepoPG) ListByDate(ctx context.Context, date time.Time) ([]*Duty, error) {
	return r.listDuties(ctx, `SELECT `+dutyCols+` FROM duties WHERE date = $1 ORDER BY created_at`, date)
}

func (r *dutyRepoPG) listDuties(ctx context.Context, query string, args ...interface{}) ([]*Duty, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Duty
	for rows.Next() {
		d, err := r.scanDuty(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *dutyRepoPG) ListReplacementCandidates(ctx context.Context, specialty string, shiftID uuid.UUID, date time.Time, excludeDoctor uuid.UUID) ([]*ReplacementCandidate, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, d.doctor_id, COUNT(a.id) AS workload
		FROM duties d
		JOIN doctors doc ON doc.id = d.doctor_id
		LEFT JOIN appointments a ON a.doctor_id = d.doctor_id
			AND a.shift_id = d.shift_id AND a.date = d.date
			AND a.status IN ('WAITING','CHECKED_IN')
		WHERE d.shift_id = $1 AND d.date = $2 AND d.status = 'ACTIVE'
			AND doc.specialty = $3 AND doc.status = 'ACTIVE'
			AND d.doctor_id <> $4
		GROUP BY d.id, d.doctor_id
		ORDER BY workload ASC, d.created_at ASC`,
		shiftID, date, specialty, excludeDoctor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ReplacementCandidate
	for rows.Next() {
		var c ReplacementCandidate
		if err := rows.Scan(&c.DutyID, &c.DoctorID, &c.Workload); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

// =========== Appointment Repository ===========

type apptRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository { return &apptRepoPG{pool: pool} }

func (r *apptRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, code, patient_id, doctor_id, shift_id, date, slot_number, queue_number,
	booking_type, booked_by, status, reason, walk_in_name, starts_at, created_at, updated_at`

func (r *apptRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Code, &a.PatientID, &a.DoctorID, &a.ShiftID, &a.Date, &a.SlotNumber,
		&a.QueueNumber, &a.BookingType, &a.BookedBy, &a.Status, &a.Reason, &a.WalkInName,
		&a.StartsAt, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *apptRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, code, patient_id, doctor_id, shift_id, date, slot_number,
			queue_number, booking_type, booked_by, status, reason, walk_in_name, starts_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.Code, a.PatientID, a.DoctorID, a.ShiftID, a.Date, a.SlotNumber,
		a.QueueNumber, a.BookingType, a.BookedBy, a.Status, a.Reason, a.WalkInName, a.StartsAt)
	return err
}

func (r *apptRepoPG) LockDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		doctorID.String()+":"+date.Format("2006-01-02"))
	return err
}

func (r *apptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *apptRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

func (r *apptRepoPG) Update(ctx context.Context, a *Appointment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET doctor_id=$2, shift_id=$3, slot_number=$4, queue_number=$5,
			status=$6, reason=$7, starts_at=$8, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.DoctorID, a.ShiftID, a.SlotNumber, a.QueueNumber, a.Status, a.Reason, a.StartsAt)
	return err
}

func (r *apptRepoPG) MaxSlot(ctx context.Context, doctorID, shiftID uuid.UUID, date time.Time) (int, error) {
	// Locks the duty's appointment rows so concurrent readers serialize; the
	// unique index still backstops the race with inserts that hold no lock.
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT slot_number FROM appointments
		WHERE doctor_id = $1 AND shift_id = $2 AND date = $3
			AND status NOT IN ('CANCELLED','NO_SHOW')
		ORDER BY slot_number FOR UPDATE`,
		doctorID, shiftID, date)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	max := 0
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
		if n > max {
			max = n
		}
	}
	return max, rows.Err()
}

func (r *apptRepoPG) MaxQueue(ctx context.Context, doctorID, shiftID uuid.UUID, date time.Time) (int, error) {
	var max int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_number), 0) FROM appointments
		WHERE doctor_id = $1 AND shift_id = $2 AND date = $3`,
		doctorID, shiftID, date).Scan(&max)
	return max, err
}

func (r *apptRepoPG) CountActiveForDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE doctor_id = $1 AND date = $2 AND status NOT IN ('CANCELLED','NO_SHOW')`,
		doctorID, date).Scan(&n)
	return n, err
}

func (r *apptRepoPG) ListActiveByPatientDate(ctx context.Context, patientID uuid.UUID, date time.Time) ([]*Appointment, error) {
	return r.listAppts(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE patient_id = $1 AND date = $2 AND status NOT IN ('CANCELLED','NO_SHOW')`,
		patientID, date)
}

func (r *apptRepoPG) ListActiveByDuty(ctx context.Context, doctorID, shiftID uuid.UUID, date time.Time) ([]*Appointment, error) {
	return r.listAppts(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND shift_id = $2 AND date = $3 AND status IN ('WAITING','CHECKED_IN')
		ORDER BY slot_number`,
		doctorID, shiftID, date)
}

func (r *apptRepoPG) listAppts(ctx context.Context, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *apptRepoPG) DecrementQueuesAfter(ctx context.Context, doctorID, shiftID uuid.UUID, date time.Time, after int) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET queue_number = queue_number - 1, updated_at = NOW()
		WHERE doctor_id = $1 AND shift_id = $2 AND date = $3
			AND queue_number > $4 AND status NOT IN ('CANCELLED','NO_SHOW')`,
		doctorID, shiftID, date, after)
	return err
}

func (r *apptRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	query := `SELECT ` + apptCols + ` FROM appointments WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM appointments WHERE 1=1`
	var args []interface{}
	idx := 1

	for _, col := range []struct{ param, column string }{
		{"patient_id", "patient_id"},
		{"doctor_id", "doctor_id"},
		{"shift_id", "shift_id"},
		{"date", "date"},
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

	query += fmt.Sprintf(` ORDER BY date DESC, slot_number LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}
