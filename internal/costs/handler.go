package costs

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tana-fms/tana-fms/internal/platform/httpx"
	"github.com/tana-fms/tana-fms/internal/rbac"
	"github.com/tana-fms/tana-fms/internal/shared"
)

// Handler manages cost endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers cost routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionViewReports))
		r.Get("/work-orders/{id}/summary", h.summary)
		r.Get("/work-orders/{id}/entries", h.entries)
		r.Get("/rollup", h.rollup)
		r.Get("/rollup.csv", h.rollupCSV)
	})
	r.Post("/work-orders/{id}/entries", h.post)
}

type postEntryRequest struct {
	Category    string `json:"category" validate:"required,oneof=labor lubricant outsource"`
	Description string `json:"description"`
	Hours       string `json:"hours"`
	Rate        string `json:"rate"`
	Quantity    string `json:"quantity"`
	UnitCost    string `json:"unit_cost"`
	Vendor      string `json:"vendor"`
	InvoiceNo   string `json:"invoice_no"`
	Amount      string `json:"amount"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	workOrderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	var req postEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("body", "%s", err.Error()))
		return
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, &shared.UnauthorizedError{Action: "costs.post"})
		return
	}
	in := PostInput{
		WorkOrderID: workOrderID,
		Category:    Category(req.Category),
		Description: req.Description,
		Vendor:      req.Vendor,
		InvoiceNo:   req.InvoiceNo,
	}
	fields := []struct {
		raw  string
		name string
		dst  *decimal.Decimal
	}{
		{req.Hours, "hours", &in.Hours},
		{req.Rate, "rate", &in.Rate},
		{req.Quantity, "quantity", &in.Quantity},
		{req.UnitCost, "unit_cost", &in.UnitCost},
		{req.Amount, "amount", &in.Amount},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			httpx.RespondError(w, r, h.logger, shared.Validationf(f.name, "invalid amount %q", f.raw))
			return
		}
		*f.dst = d
	}
	entry, err := h.service.Post(r.Context(), in, actor)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

type entryResponse struct {
	ID          string `json:"id"`
	WorkOrderID string `json:"work_order_id"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Vendor      string `json:"vendor,omitempty"`
	InvoiceNo   string `json:"invoice_no,omitempty"`
	Total       string `json:"total"`
	PostedAt    string `json:"posted_at"`
}

func toEntryResponse(e Entry) entryResponse {
	return entryResponse{
		ID:          e.ID.String(),
		WorkOrderID: e.WorkOrderID.String(),
		Category:    string(e.Category),
		Description: e.Description,
		Vendor:      e.Vendor,
		InvoiceNo:   e.InvoiceNo,
		Total:       e.Total.String(),
		PostedAt:    e.PostedAt.Format(httpx.TimeFormat),
	}
}

func (h *Handler) entries(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	entries, err := h.service.Entries(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	sum, err := h.service.Summarize(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"work_order_id":     sum.WorkOrderID.String(),
		"planned_labor":     sum.PlannedLabor.String(),
		"actual_labor":      sum.ActualLabor.String(),
		"planned_lubricant": sum.PlannedLubricant.String(),
		"actual_lubricant":  sum.ActualLubricant.String(),
		"planned_outsource": sum.PlannedOutsource.String(),
		"actual_outsource":  sum.ActualOutsource.String(),
		"total_planned":     sum.TotalPlanned.String(),
		"total_actual":      sum.TotalActual.String(),
		"variance":          sum.Variance.String(),
	})
}

func (h *Handler) rollupParams(r *http.Request) (*uuid.UUID, int, *Window, error) {
	var workshopID *uuid.UUID
	if raw := r.URL.Query().Get("workshop_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, 0, nil, shared.Validationf("workshop_id", "invalid uuid")
		}
		workshopID = &id
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year <= 0 {
		return nil, 0, nil, shared.Validationf("year", "ethiopian year required")
	}
	window, err := h.windowParam(r)
	if err != nil {
		return nil, 0, nil, err
	}
	return workshopID, year, window, nil
}

// windowParam parses the optional start/end drill-down filter. Both bounds
// come together or not at all.
func (h *Handler) windowParam(r *http.Request) (*Window, error) {
	rawStart := r.URL.Query().Get("start")
	rawEnd := r.URL.Query().Get("end")
	if rawStart == "" && rawEnd == "" {
		return nil, nil
	}
	if rawStart == "" || rawEnd == "" {
		return nil, shared.Validationf("window", "start and end must be supplied together")
	}
	start, err := time.Parse(httpx.TimeFormat, rawStart)
	if err != nil {
		return nil, shared.Validationf("start", "must be RFC3339")
	}
	end, err := time.Parse(httpx.TimeFormat, rawEnd)
	if err != nil {
		return nil, shared.Validationf("end", "must be RFC3339")
	}
	return &Window{Start: start, End: end}, nil
}

func (h *Handler) rollup(w http.ResponseWriter, r *http.Request) {
	workshopID, year, window, err := h.rollupParams(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	rollups, err := h.service.RollupByQuarter(r.Context(), workshopID, year, window)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	rows := make([]map[string]any, 0, len(rollups))
	for _, q := range rollups {
		rows = append(rows, map[string]any{
			"quarter":                q.Quarter,
			"label":                  q.Label,
			"planned":                q.PlannedCount,
			"completed":              q.CompletedCount,
			"accomplishment_percent": q.AccomplishmentPercent.String(),
			"cost":                   q.Cost.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"year": year, "quarters": rows})
}

func (h *Handler) rollupCSV(w http.ResponseWriter, r *http.Request) {
	workshopID, year, window, err := h.rollupParams(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	rollups, err := h.service.RollupByQuarter(r.Context(), workshopID, year, window)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="rollup-%d.csv"`, year))
	if err := WriteRollupCSV(w, year, rollups); err != nil {
		h.logger.Error("write rollup csv", slog.Any("error", err))
	}
}
