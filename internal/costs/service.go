package costs

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tana-fms/tana-fms/internal/ethcal"
	"github.com/tana-fms/tana-fms/internal/shared"
)

// RepositoryPort describes cost-entry persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, e Entry) (Entry, error)
	ListByWorkOrder(ctx context.Context, workOrderID uuid.UUID) ([]Entry, error)
	// SumActualInWindow totals posted entries for completed work orders of a
	// workshop inside [start, end). A nil workshop means fleet-wide.
	SumActualInWindow(ctx context.Context, workshopID *uuid.UUID, start, end time.Time) (decimal.Decimal, error)
	CountCompletedInWindow(ctx context.Context, workshopID *uuid.UUID, start, end time.Time) (int, error)
}

// PlannedBaselinePort reads the planned estimate columns of a work order.
type PlannedBaselinePort interface {
	PlannedBaseline(ctx context.Context, workOrderID uuid.UUID) (labor, lubricant, outsource decimal.Decimal, err error)
}

// TargetsPort answers planned work order counts per quarter from workshop
// planning targets. A nil workshop means fleet-wide.
type TargetsPort interface {
	PlannedCountForQuarter(ctx context.Context, workshopID *uuid.UUID, quarter int) (int, error)
}

// Service aggregates planned vs actual cost.
type Service struct {
	repo    RepositoryPort
	planned PlannedBaselinePort
	targets TargetsPort
	cache   *Cache
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the aggregator.
func NewService(repo RepositoryPort, planned PlannedBaselinePort, targets TargetsPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, planned: planned, targets: targets, logger: logger, now: time.Now}
}

// WithCache attaches a rollup cache. Without one every rollup read recomputes
// from the database.
func (s *Service) WithCache(c *Cache) {
	s.cache = c
}

// PostInput captures a new cost entry.
type PostInput struct {
	WorkOrderID uuid.UUID
	Category    Category
	Description string
	Hours       decimal.Decimal
	Rate        decimal.Decimal
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Vendor      string
	InvoiceNo   string
	Amount      decimal.Decimal
}

// Post records one cost line against a work order.
func (s *Service) Post(ctx context.Context, in PostInput, actor shared.Actor) (Entry, error) {
	if _, err := ParseCategory(string(in.Category)); err != nil {
		return Entry{}, err
	}
	if in.WorkOrderID == uuid.Nil {
		return Entry{}, shared.Validationf("work_order_id", "required")
	}
	e := Entry{
		ID:          uuid.New(),
		WorkOrderID: in.WorkOrderID,
		Category:    in.Category,
		Description: in.Description,
		Hours:       in.Hours,
		Rate:        in.Rate,
		Quantity:    in.Quantity,
		UnitCost:    in.UnitCost,
		Vendor:      in.Vendor,
		InvoiceNo:   in.InvoiceNo,
		Total:       in.Amount,
		PostedBy:    actor.ID,
		PostedAt:    s.now().UTC(),
	}
	switch e.Category {
	case CategoryLabor:
		if e.Hours.IsNegative() || e.Rate.IsNegative() {
			return Entry{}, shared.Validationf("labor", "hours and rate must not be negative")
		}
	case CategoryLubricant:
		if e.Quantity.IsNegative() || e.UnitCost.IsNegative() {
			return Entry{}, shared.Validationf("lubricant", "quantity and unit cost must not be negative")
		}
	case CategoryOutsource:
		if strings.TrimSpace(e.Vendor) == "" {
			return Entry{}, shared.Validationf("vendor", "required for outsourced work")
		}
		if e.Total.IsNegative() {
			return Entry{}, shared.Validationf("amount", "must not be negative")
		}
	}
	e.Total = e.ComputeTotal()
	return s.repo.Insert(ctx, e)
}

// Summarize computes the planned vs actual summary for one work order. A work
// order with no posted entries yields all-zero actuals.
func (s *Service) Summarize(ctx context.Context, workOrderID uuid.UUID) (Summary, error) {
	labor, lubricant, outsource, err := s.planned.PlannedBaseline(ctx, workOrderID)
	if err != nil {
		return Summary{}, err
	}
	entries, err := s.repo.ListByWorkOrder(ctx, workOrderID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		WorkOrderID:      workOrderID,
		PlannedLabor:     labor,
		PlannedLubricant: lubricant,
		PlannedOutsource: outsource,
	}
	for _, e := range entries {
		switch e.Category {
		case CategoryLabor:
			sum.ActualLabor = sum.ActualLabor.Add(e.Total)
		case CategoryLubricant:
			sum.ActualLubricant = sum.ActualLubricant.Add(e.Total)
		case CategoryOutsource:
			sum.ActualOutsource = sum.ActualOutsource.Add(e.Total)
		}
	}
	sum.TotalPlanned = sum.PlannedLabor.Add(sum.PlannedLubricant).Add(sum.PlannedOutsource)
	sum.TotalActual = sum.ActualLabor.Add(sum.ActualLubricant).Add(sum.ActualOutsource)
	sum.Variance = sum.TotalActual.Sub(sum.TotalPlanned)
	return sum, nil
}

// RollupByQuarter produces the four reporting rows of an Ethiopian fiscal
// year. Each quarter is an explicit half-open window so every timestamp in
// the year lands in exactly one row. A non-nil caller window is intersected
// with each quarter; quarters outside it keep their planned target but count
// no completions and no cost. Only the unfiltered rollup is cached.
func (s *Service) RollupByQuarter(ctx context.Context, workshopID *uuid.UUID, ethiopianYear int, window *Window) ([]QuarterRollup, error) {
	if ethiopianYear <= 0 {
		return nil, shared.Validationf("year", "must be positive")
	}
	if window != nil && !window.End.After(window.Start) {
		return nil, shared.Validationf("window", "end must be after start")
	}
	if window == nil {
		if cached, ok := s.cache.GetRollup(ctx, workshopID, ethiopianYear); ok {
			return cached, nil
		}
	}
	rollups := make([]QuarterRollup, 0, 4)
	for q := 1; q <= 4; q++ {
		start, end, err := ethcal.QuarterWindow(ethiopianYear, q)
		if err != nil {
			return nil, err
		}
		if window != nil {
			start, end = window.Intersect(start, end)
		}
		var completed int
		cost := decimal.Zero
		if end.After(start) {
			if completed, err = s.repo.CountCompletedInWindow(ctx, workshopID, start, end); err != nil {
				return nil, err
			}
			if cost, err = s.repo.SumActualInWindow(ctx, workshopID, start, end); err != nil {
				return nil, err
			}
		}
		var planned int
		if s.targets != nil {
			if planned, err = s.targets.PlannedCountForQuarter(ctx, workshopID, q); err != nil {
				return nil, err
			}
		}
		rollups = append(rollups, QuarterRollup{
			Quarter:               q,
			Label:                 ethcal.QuarterLabel(ethiopianYear, q),
			PlannedCount:          planned,
			CompletedCount:        completed,
			AccomplishmentPercent: AccomplishmentPercent(completed, planned),
			Cost:                  cost,
		})
	}
	if window == nil {
		s.cache.SetRollup(ctx, workshopID, ethiopianYear, rollups)
	}
	return rollups, nil
}

// Entries lists the posted cost lines of a work order.
func (s *Service) Entries(ctx context.Context, workOrderID uuid.UUID) ([]Entry, error) {
	return s.repo.ListByWorkOrder(ctx, workOrderID)
}
