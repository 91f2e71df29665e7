package requisitions

import (
	"context"

	"github.com/google/uuid"
)

// RequisitionOpenedEvent fires when a team submits a parts request for a
// work order, so the lifecycle manager can pause its timer.
type RequisitionOpenedEvent struct {
	WorkOrderID   uuid.UUID
	RequisitionID uuid.UUID
}

// LinesResolvedEvent fires when every line of a requisition reached a
// terminal decision, or when a resolved requisition is fulfilled from stock.
type LinesResolvedEvent struct {
	WorkOrderID   uuid.UUID
	RequisitionID uuid.UUID
	Outcome       Status
}

// WorkOrderNotifier receives requisition outcomes. The engine pushes these;
// the work order lifecycle manager must never have to poll for parts state.
type WorkOrderNotifier interface {
	RequisitionOpened(ctx context.Context, evt RequisitionOpenedEvent) error
	LinesResolved(ctx context.Context, evt LinesResolvedEvent) error
}
