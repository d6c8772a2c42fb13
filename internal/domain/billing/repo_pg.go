package billing

import (
	"context"
	"errors"

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

// =========== Invoice Repository ===========

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository { return &invoiceRepoPG{pool: pool} }

func (r *invoiceRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const invoiceCols = `id, visit_id, examination_fee, medicine_total, discount, total_amount, status, created_at, updated_at`

func (r *invoiceRepoPG) scanInvoice(row pgx.Row) (*Invoice, error) {
	var i Invoice
	err := row.Scan(&i.ID, &i.VisitID, &i.ExaminationFee, &i.MedicineTotal, &i.Discount,
		&i.TotalAmount, &i.Status, &i.CreatedAt, &i.UpdatedAt)
	return &i, err
}

func (r *invoiceRepoPG) Create(ctx context.Context, i *Invoice) error {
	i.ID = uuid.New()
	if i.Status == "" {
		i.Status = InvoiceUnpaid
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoices (id, visit_id, examination_fee, medicine_total, discount, total_amount, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		i.ID, i.VisitID, i.ExaminationFee, i.MedicineTotal, i.Discount, i.TotalAmount, i.Status)
	return err
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = $1`, id))
}

func (r *invoiceRepoPG) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Invoice, error) {
	i, err := r.scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE visit_id = $1`, visitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return i, nil
}

func (r *invoiceRepoPG) Update(ctx context.Context, i *Invoice) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoices SET examination_fee=$2, medicine_total=$3, discount=$4, total_amount=$5, status=$6, updated_at=NOW()
		WHERE id = $1`,
		i.ID, i.ExaminationFee, i.MedicineTotal, i.Discount, i.TotalAmount, i.Status)
	return err
}

// =========== Invoice Item Repository ===========

type invoiceItemRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceItemRepoPG(pool *pgxpool.Pool) InvoiceItemRepository {
	return &invoiceItemRepoPG{pool: pool}
}

func (r *invoiceItemRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *invoiceItemRepoPG) Create(ctx context.Context, it *InvoiceItem) error {
	it.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice_items (id, invoice_id, type, description, quantity, unit_price, amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		it.ID, it.InvoiceID, it.Type, it.Description, it.Quantity, it.UnitPrice, it.Amount)
	return err
}

func (r *invoiceItemRepoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, type, description, quantity, unit_price, amount, created_at
		FROM invoice_items WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*InvoiceItem
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Type, &it.Description, &it.Quantity,
			&it.UnitPrice, &it.Amount, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *invoiceItemRepoPG) DeleteByInvoiceAndType(ctx context.Context, invoiceID uuid.UUID, itemType string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1 AND type = $2`, invoiceID, itemType)
	return err
}
