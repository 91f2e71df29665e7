package costs

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tana-fms/tana-fms/internal/shared"
)

// Category partitions cost entries.
type Category string

const (
	CategoryLabor     Category = "labor"
	CategoryLubricant Category = "lubricant"
	CategoryOutsource Category = "outsource"
)

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	switch c {
	case CategoryLabor, CategoryLubricant, CategoryOutsource:
		return c, nil
	default:
		return "", shared.Validationf("category", "unknown cost category %q", s)
	}
}

// Entry is one posted cost line against a work order. The category-specific
// inputs are kept alongside the computed total so the ledger stays auditable.
type Entry struct {
	ID          uuid.UUID
	WorkOrderID uuid.UUID
	Category    Category
	Description string

	// Labor: hours x rate.
	Hours decimal.Decimal
	Rate  decimal.Decimal
	// Lubricant: quantity x unit cost.
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
	// Outsource: vendor invoice.
	Vendor    string
	InvoiceNo string

	Total     decimal.Decimal
	PostedBy  uuid.UUID
	PostedAt  time.Time
}

// ComputeTotal derives the line total from the category inputs. An explicit
// outsource amount is passed through; labor and lubricant are products.
func (e Entry) ComputeTotal() decimal.Decimal {
	switch e.Category {
	case CategoryLabor:
		return e.Hours.Mul(e.Rate)
	case CategoryLubricant:
		return e.Quantity.Mul(e.UnitCost)
	default:
		return e.Total
	}
}

// Summary is the derived planned vs actual picture of one work order. It is
// recomputed from entry rows on every read, never stored.
type Summary struct {
	WorkOrderID      uuid.UUID
	PlannedLabor     decimal.Decimal
	ActualLabor      decimal.Decimal
	PlannedLubricant decimal.Decimal
	ActualLubricant  decimal.Decimal
	PlannedOutsource decimal.Decimal
	ActualOutsource  decimal.Decimal
	TotalPlanned     decimal.Decimal
	TotalActual      decimal.Decimal
	Variance         decimal.Decimal
}

// Window is a half-open [Start, End) filter supplied by the caller, for
// example a dashboard's custom or weekly drill-down range. The rollup
// intersects it with each quarter instead of re-deriving the period, so
// drill-down and summary views agree.
type Window struct {
	Start time.Time
	End   time.Time
}

// Intersect clips [start, end) to the window. The result may be empty.
func (w Window) Intersect(start, end time.Time) (time.Time, time.Time) {
	if w.Start.After(start) {
		start = w.Start
	}
	if w.End.Before(end) {
		end = w.End
	}
	return start, end
}

// QuarterRollup is one reporting row for a workshop and fiscal quarter.
type QuarterRollup struct {
	Quarter               int             `json:"quarter"`
	Label                 string          `json:"label"`
	PlannedCount          int             `json:"planned_count"`
	CompletedCount        int             `json:"completed_count"`
	AccomplishmentPercent decimal.Decimal `json:"accomplishment_percent"`
	Cost                  decimal.Decimal `json:"cost"`
}

// AccomplishmentPercent computes completed/planned*100, defined as zero when
// nothing was planned.
func AccomplishmentPercent(completed, planned int) decimal.Decimal {
	if planned == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(completed)).
		Div(decimal.NewFromInt(int64(planned))).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}
