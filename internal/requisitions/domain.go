package requisitions

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tana-fms/tana-fms/internal/shared"
)

// Status enumerates requisition lifecycle stages.
type Status string

const (
	StatusPendingForeman    Status = "pending_foreman"
	StatusPendingStore      Status = "pending_store"
	StatusApproved          Status = "approved"
	StatusPartiallyApproved Status = "partially_approved"
	StatusBackordered       Status = "backordered"
	StatusRejected          Status = "rejected"
	StatusFulfilled         Status = "fulfilled"
)

// ParseStatus validates a persisted status string.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	switch status {
	case StatusPendingForeman, StatusPendingStore, StatusApproved,
		StatusPartiallyApproved, StatusBackordered, StatusRejected, StatusFulfilled:
		return status, nil
	default:
		return "", shared.Validationf("status", "unknown requisition status %q", s)
	}
}

// resolved reports whether the requisition reached a terminal stage where no
// further approval decision is accepted.
func resolved(s Status) bool {
	switch s {
	case StatusApproved, StatusPartiallyApproved, StatusBackordered, StatusRejected, StatusFulfilled:
		return true
	default:
		return false
	}
}

// LineStatus enumerates per-line decisions.
type LineStatus string

const (
	LinePending     LineStatus = "pending"
	LineApproved    LineStatus = "approved"
	LineBackordered LineStatus = "backordered"
	LineRejected    LineStatus = "rejected"
)

// ParseLineStatus validates a line status string.
func ParseLineStatus(s string) (LineStatus, error) {
	status := LineStatus(s)
	switch status {
	case LinePending, LineApproved, LineBackordered, LineRejected:
		return status, nil
	default:
		return "", shared.Validationf("line status", "unknown line status %q", s)
	}
}

// Line is a single requested part within a requisition. Part number and name
// are denormalized for history; the catalog reference is optional.
type Line struct {
	ID           uuid.UUID
	RequisitionID uuid.UUID
	LineNo       int
	PartID       *uuid.UUID
	PartNumber   string
	PartName     string
	Description  string
	Unit         string
	QtyRequested int
	QtyApproved  int
	Status       LineStatus
}

// Requisition is a parts request owned by a work order.
type Requisition struct {
	ID          uuid.UUID
	Number      string
	WorkOrderID uuid.UUID
	WorkshopID  uuid.UUID
	Status      Status
	RequestedBy uuid.UUID
	Remarks     string

	ForemanApprovedBy *uuid.UUID
	ForemanApprovedAt *time.Time
	StoreResolvedBy   *uuid.UUID
	StoreResolvedAt   *time.Time
	FulfilledAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Lines []Line
}

// DeriveStatus computes the aggregate requisition status from its lines.
// It is the single authority for the aggregate: any backordered line makes
// the requisition backordered; a mix of rejected and approved lines is
// partially approved; otherwise all lines share one terminal state and the
// requisition takes it. The second return is false while any line is still
// pending (no aggregate can be derived yet).
func DeriveStatus(lines []Line) (Status, bool) {
	if len(lines) == 0 {
		return "", false
	}
	var approved, rejected, backordered, pending int
	for _, l := range lines {
		switch l.Status {
		case LineApproved:
			approved++
		case LineRejected:
			rejected++
		case LineBackordered:
			backordered++
		default:
			pending++
		}
	}
	if backordered > 0 {
		return StatusBackordered, true
	}
	if pending > 0 {
		return "", false
	}
	if rejected > 0 && approved > 0 {
		return StatusPartiallyApproved, true
	}
	if approved == len(lines) {
		return StatusApproved, true
	}
	return StatusRejected, true
}

// validateLines enforces submission rules: at least one line, every line with
// a description and a positive requested quantity.
func validateLines(lines []Line) error {
	if len(lines) == 0 {
		return shared.Validationf("lines", "at least one line required")
	}
	for i, l := range lines {
		if strings.TrimSpace(l.Description) == "" && strings.TrimSpace(l.PartName) == "" {
			return shared.Validationf("lines", "line %d: description required", i+1)
		}
		if l.QtyRequested < 1 {
			return shared.Validationf("lines", "line %d: quantity requested must be at least 1", i+1)
		}
	}
	return nil
}
