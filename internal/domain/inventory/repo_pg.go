package inventory

import (
	"context"
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

// =========== Medicine Repository ===========

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository { return &medicineRepoPG{pool: pool} }

func (r *medicineRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const medicineCols = `id, code, name, unit, sale_price, quantity, min_stock_level, status, created_at, updated_at`

func (r *medicineRepoPG) scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.Unit, &m.SalePrice, &m.Quantity,
		&m.MinStockLevel, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	if m.Status == "" {
		m.Status = MedicineActive
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medicines (id, code, name, unit, sale_price, quantity, min_stock_level, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.Code, m.Name, m.Unit, m.SalePrice, m.Quantity, m.MinStockLevel, m.Status)
	return err
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return r.scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineCols+` FROM medicines WHERE id = $1`, id))
}

func (r *medicineRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return r.scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineCols+` FROM medicines WHERE id = $1 FOR UPDATE`, id))
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicines SET name=$2, unit=$3, sale_price=$4, quantity=$5, min_stock_level=$6, status=$7, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Name, m.Unit, m.SalePrice, m.Quantity, m.MinStockLevel, m.Status)
	return err
}

func (r *medicineRepoPG) SetQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE medicines SET quantity=$2, updated_at=NOW() WHERE id = $1`, id, quantity)
	return err
}

func (r *medicineRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Medicine, int, error) {
	query := `SELECT ` + medicineCols + ` FROM medicines WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM medicines WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["name"]; ok {
		query += fmt.Sprintf(` AND name ILIKE $%d`, idx)
		countQuery += fmt.Sprintf(` AND name ILIKE $%d`, idx)
		args = append(args, "%"+p+"%")
		idx++
	}
	if _, ok := params["low_stock"]; ok {
		query += ` AND quantity <= min_stock_level`
		countQuery += ` AND quantity <= min_stock_level`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Medicine
	for rows.Next() {
		m, err := r.scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, nil
}

// =========== Stock Export Repository ===========

type stockExportRepoPG struct{ pool *pgxpool.Pool }

func NewStockExportRepoPG(pool *pgxpool.Pool) StockExportRepository {
	return &stockExportRepoPG{pool: pool}
}

func (r *stockExportRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *stockExportRepoPG) Create(ctx context.Context, e *StockExport) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO stock_exports (id, medicine_id, quantity, reason)
		VALUES ($1,$2,$3,$4)`,
		e.ID, e.MedicineID, e.Quantity, e.Reason)
	return err
}

func (r *stockExportRepoPG) ListByReason(ctx context.Context, reason string) ([]*StockExport, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, medicine_id, quantity, reason, created_at
		FROM stock_exports WHERE reason = $1 ORDER BY created_at`, reason)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StockExport
	for rows.Next() {
		var e StockExport
		if err := rows.Scan(&e.ID, &e.MedicineID, &e.Quantity, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}

func (r *stockExportRepoPG) DeleteByReason(ctx context.Context, reason string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM stock_exports WHERE reason = $1`, reason)
	return err
}

// =========== Stock Import Repository ===========

type stockImportRepoPG struct{ pool *pgxpool.Pool }

func NewStockImportRepoPG(pool *pgxpool.Pool) StockImportRepository {
	return &stockImportRepoPG{pool: pool}
}

func (r *stockImportRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *stockImportRepoPG) Create(ctx context.Context, i *StockImport) error {
	i.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO stock_imports (id, medicine_id, quantity, note)
		VALUES ($1,$2,$3,$4)`,
		i.ID, i.MedicineID, i.Quantity, i.Note)
	return err
}

func (r *stockImportRepoPG) ListByMedicine(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockImport, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM stock_imports WHERE medicine_id = $1`, medicineID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, medicine_id, quantity, note, created_at
		FROM stock_imports WHERE medicine_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		medicineID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*StockImport
	for rows.Next() {
		var i StockImport
		if err := rows.Scan(&i.ID, &i.MedicineID, &i.Quantity, &i.Note, &i.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &i)
	}
	return items, total, nil
}
