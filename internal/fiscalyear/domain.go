// Package fiscalyear owns the Ethiopian fiscal year state and the year-end
// closure batch: archiving completed work orders, resetting workshop targets,
// and advancing the active year.
package fiscalyear

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// YearState is the process-wide fiscal singleton.
type YearState struct {
	CurrentEthiopianYear  int
	PlanningTargetsLocked bool
	UpdatedAt             time.Time
}

// ConsumedPart is one denormalized parts-usage row inside an archive record.
type ConsumedPart struct {
	PartNumber string    `json:"part_number"`
	PartName   string    `json:"part_name"`
	Qty        int       `json:"qty"`
	UnitCost   string    `json:"unit_cost"`
	IssuedAt   time.Time `json:"issued_at"`
}

// ArchivedWorkOrder is the frozen copy of a completed work order written at
// closure. Keyed additionally by the Ethiopian year it was closed under;
// never mutated after insert.
type ArchivedWorkOrder struct {
	ID            uuid.UUID
	Number        string
	EquipmentID   uuid.UUID
	WorkshopID    uuid.UUID
	GarageID      uuid.UUID
	WorkType      string
	Description   string
	Priority      string
	ActualHours   decimal.Decimal
	StartedAt     *time.Time
	CompletedAt   *time.Time
	EthiopianYear int

	TotalPlanned    decimal.Decimal
	TotalActual     decimal.Decimal
	Variance        decimal.Decimal
	ActualLabor     decimal.Decimal
	ActualLubricant decimal.Decimal
	ActualOutsource decimal.Decimal

	Parts      []ConsumedPart
	ArchivedAt time.Time
}

// ClosureLog is one append-only record of a completed year closure.
type ClosureLog struct {
	ID               int64
	ClosedYear       int
	NewYear          int
	OrdersArchived   int
	OrdersRolledOver int
	WorkshopsReset   int
	OperatorID       uuid.UUID
	Notes            string
	ClosedAt         time.Time
}

// ClosurePlan is the prepared input of the closure transaction: the snapshots
// are assembled before the transaction starts so nothing inside it has to
// call back into other services.
type ClosurePlan struct {
	ClosedYear int
	NewYear    int
	Snapshots  []ArchivedWorkOrder
	RolledOver int
	OperatorID uuid.UUID
	Notes      string
}
