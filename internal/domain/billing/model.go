package billing

import (
	"time"

	"github.com/google/uuid"
)

const (
	InvoiceUnpaid = "UNPAID"
	InvoicePaid   = "PAID"
)

const (
	ItemExamination = "EXAMINATION"
	ItemMedicine    = "MEDICINE"
)

// Invoice maps to the invoices table, one per visit. TotalAmount is always
// ExaminationFee + MedicineTotal - Discount.
type Invoice struct {
	ID             uuid.UUID `db:"id" json:"id"`
	VisitID        uuid.UUID `db:"visit_id" json:"visit_id"`
	ExaminationFee int64     `db:"examination_fee" json:"examination_fee"`
	MedicineTotal  int64     `db:"medicine_total" json:"medicine_total"`
	Discount       int64     `db:"discount" json:"discount"`
	TotalAmount    int64     `db:"total_amount" json:"total_amount"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Recalculate refreshes TotalAmount from the fee components.
func (i *Invoice) Recalculate() {
	i.TotalAmount = i.ExaminationFee + i.MedicineTotal - i.Discount
}

// InvoiceItem maps to the invoice_items table.
type InvoiceItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	InvoiceID   uuid.UUID `db:"invoice_id" json:"invoice_id"`
	Type        string    `db:"type" json:"type"`
	Description string    `db:"description" json:"description"`
	Quantity    int       `db:"quantity" json:"quantity"`
	UnitPrice   int64     `db:"unit_price" json:"unit_price"`
	Amount      int64     `db:"amount" json:"amount"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// MedicineLine is one dispensed prescription line to be billed.
type MedicineLine struct {
	Description string
	Quantity    int
	UnitPrice   int64
}
