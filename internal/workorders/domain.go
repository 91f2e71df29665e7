package workorders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tana-fms/tana-fms/internal/shared"
)

// Status enumerates the work order lifecycle stages. The set is closed:
// unknown strings are rejected on read and write.
type Status string

const (
	StatusPendingApproval     Status = "pending_approval"
	StatusActive              Status = "active"
	StatusInProgress          Status = "in_progress"
	StatusAwaitingParts       Status = "awaiting_parts"
	StatusWaitingPurchase     Status = "waiting_purchase"
	StatusPendingVerification Status = "pending_verification"
	StatusPendingSupervisor   Status = "pending_supervisor"
	StatusCompleted           Status = "completed"
	StatusRejected            Status = "rejected"
)

// ParseStatus validates a persisted or submitted status string.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	switch status {
	case StatusPendingApproval, StatusActive, StatusInProgress, StatusAwaitingParts,
		StatusWaitingPurchase, StatusPendingVerification, StatusPendingSupervisor,
		StatusCompleted, StatusRejected:
		return status, nil
	default:
		return "", shared.Validationf("status", "unknown work order status %q", s)
	}
}

// transitions is the exhaustive edge table of the state machine.
// awaiting_parts and waiting_purchase are paused sub-states of execution;
// rejected is the verifier/supervisor loop back to the team.
var transitions = map[Status][]Status{
	StatusPendingApproval:     {StatusActive, StatusInProgress},
	StatusActive:              {StatusInProgress},
	StatusInProgress:          {StatusAwaitingParts, StatusWaitingPurchase, StatusPendingVerification},
	StatusAwaitingParts:       {StatusInProgress, StatusWaitingPurchase},
	StatusWaitingPurchase:     {StatusInProgress},
	StatusPendingVerification: {StatusPendingSupervisor, StatusRejected},
	StatusPendingSupervisor:   {StatusCompleted, StatusRejected},
	StatusRejected:            {StatusInProgress},
	StatusCompleted:           {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// edgeRoles restricts who may take an edge. An absent entry means any role
// that passed the route-level check may take it; admin is always allowed.
var edgeRoles = map[[2]Status][]shared.Role{
	{StatusPendingApproval, StatusActive}:                 {shared.RoleForeman, shared.RoleSupervisor},
	{StatusPendingApproval, StatusInProgress}:             {shared.RoleForeman, shared.RoleSupervisor},
	{StatusActive, StatusInProgress}:                      {shared.RoleTeamMember, shared.RoleForeman},
	{StatusInProgress, StatusPendingVerification}:         {shared.RoleTeamMember, shared.RoleForeman},
	{StatusPendingVerification, StatusPendingSupervisor}:  {shared.RoleVerifier},
	{StatusPendingVerification, StatusRejected}:           {shared.RoleVerifier},
	{StatusPendingSupervisor, StatusCompleted}:            {shared.RoleSupervisor},
	{StatusPendingSupervisor, StatusRejected}:             {shared.RoleSupervisor},
	{StatusRejected, StatusInProgress}:                    {shared.RoleTeamMember, shared.RoleForeman},
}

// roleMayTransition checks the per-edge role restriction.
func roleMayTransition(role shared.Role, from, to Status) bool {
	if role == shared.RoleAdmin {
		return true
	}
	allowed, ok := edgeRoles[[2]Status{from, to}]
	if !ok {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// notesRequired lists edges that must carry non-empty notes.
func notesRequired(from, to Status) bool {
	return to == StatusRejected && (from == StatusPendingVerification || from == StatusPendingSupervisor)
}

// Pause reasons shown while the timer is stopped.
const (
	PauseReasonAwaitingParts   = "Awaiting Parts"
	PauseReasonWaitingPurchase = "Waiting for Purchase"
	PauseReasonVerifierReject  = "Returned by Verifier"
)

// WorkOrder is the live maintenance job record.
type WorkOrder struct {
	ID          uuid.UUID
	Number      string
	EquipmentID uuid.UUID
	WorkshopID  uuid.UUID
	GarageID    uuid.UUID
	Priority    string
	WorkType    string
	Description string
	Status      Status

	TimerPaused bool
	PauseReason string

	// Planned baseline set at creation/approval time; actuals live in costs.
	EstimatedHours         decimal.Decimal
	PlannedLaborCost       decimal.Decimal
	PlannedLubricantCost   decimal.Decimal
	PlannedOutsourceCost   decimal.Decimal
	ActualHours            decimal.Decimal

	// Optional originating documents.
	ReceptionID  *uuid.UUID
	InspectionID *uuid.UUID

	// Set non-empty while the closure batch snapshots this order.
	ArchiveState string

	CreatedBy   uuid.UUID
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ArchiveStateInProgress marks an order mid-archival during year closure.
const ArchiveStateInProgress = "in_progress"

// EventKind tags entries in the append-only time-tracking stream.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventPause    EventKind = "pause"
	EventResume   EventKind = "resume"
	EventComplete EventKind = "complete"
)

// TimeEvent is one entry of the work order's time-tracking stream. Elapsed
// time is always derived from these rows, never from a live counter.
type TimeEvent struct {
	ID          int64
	WorkOrderID uuid.UUID
	Event       EventKind
	At          time.Time
	Note        string
}
