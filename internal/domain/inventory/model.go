package inventory

import (
	"time"

	"github.com/google/uuid"
)

const (
	MedicineActive  = "ACTIVE"
	MedicineExpired = "EXPIRED"
	MedicineRemoved = "REMOVED"
)

// Medicine maps to the medicines table. Quantity is the on-hand stock and is
// only ever changed under a row lock.
type Medicine struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	Name          string    `db:"name" json:"name"`
	Unit          string    `db:"unit" json:"unit"`
	SalePrice     int64     `db:"sale_price" json:"sale_price"`
	Quantity      int       `db:"quantity" json:"quantity"`
	MinStockLevel int       `db:"min_stock_level" json:"min_stock_level"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

func (m *Medicine) IsActive() bool { return m.Status == MedicineActive }

// LowStock reports whether on-hand stock has fallen to the reorder threshold.
func (m *Medicine) LowStock() bool { return m.Quantity <= m.MinStockLevel }

// StockExport records stock leaving inventory, one row per deduction. Reason
// ties the row back to the operation that caused it, e.g. "PRESCRIPTION_RX-...".
type StockExport struct {
	ID         uuid.UUID `db:"id" json:"id"`
	MedicineID uuid.UUID `db:"medicine_id" json:"medicine_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	Reason     string    `db:"reason" json:"reason"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// StockImport records stock entering inventory (restocks, adjustments).
type StockImport struct {
	ID         uuid.UUID `db:"id" json:"id"`
	MedicineID uuid.UUID `db:"medicine_id" json:"medicine_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	Note       *string   `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
