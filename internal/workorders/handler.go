package workorders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tana-fms/tana-fms/internal/platform/httpx"
	"github.com/tana-fms/tana-fms/internal/rbac"
	"github.com/tana-fms/tana-fms/internal/shared"
)

// Handler manages work order endpoints.
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

// MountRoutes registers work order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionViewReports))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/elapsed", h.elapsed)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionCreateWorkOrder))
		r.Post("/", h.create)
	})
	r.Post("/{id}/transition", h.transition)
}

type createWorkOrderRequest struct {
	EquipmentID          string `json:"equipment_id" validate:"required,uuid"`
	WorkshopID           string `json:"workshop_id" validate:"required,uuid"`
	GarageID             string `json:"garage_id" validate:"omitempty,uuid"`
	Priority             string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	WorkType             string `json:"work_type" validate:"required"`
	Description          string `json:"description" validate:"required"`
	EstimatedHours       string `json:"estimated_hours" validate:"omitempty"`
	PlannedLaborCost     string `json:"planned_labor_cost" validate:"omitempty"`
	PlannedLubricantCost string `json:"planned_lubricant_cost" validate:"omitempty"`
	PlannedOutsourceCost string `json:"planned_outsource_cost" validate:"omitempty"`
	ReceptionID          string `json:"reception_id" validate:"omitempty,uuid"`
	InspectionID         string `json:"inspection_id" validate:"omitempty,uuid"`
}

type workOrderResponse struct {
	ID                   string  `json:"id"`
	Number               string  `json:"number"`
	EquipmentID          string  `json:"equipment_id"`
	WorkshopID           string  `json:"workshop_id"`
	GarageID             string  `json:"garage_id"`
	Priority             string  `json:"priority"`
	WorkType             string  `json:"work_type"`
	Description          string  `json:"description"`
	Status               string  `json:"status"`
	TimerPaused          bool    `json:"timer_paused"`
	PauseReason          string  `json:"pause_reason,omitempty"`
	EstimatedHours       string  `json:"estimated_hours"`
	PlannedLaborCost     string  `json:"planned_labor_cost"`
	PlannedLubricantCost string  `json:"planned_lubricant_cost"`
	PlannedOutsourceCost string  `json:"planned_outsource_cost"`
	ActualHours          string  `json:"actual_hours"`
	StartedAt            *string `json:"started_at,omitempty"`
	CompletedAt          *string `json:"completed_at,omitempty"`
	CreatedAt            string  `json:"created_at"`
}

func toWorkOrderResponse(wo WorkOrder) workOrderResponse {
	resp := workOrderResponse{
		ID:                   wo.ID.String(),
		Number:               wo.Number,
		EquipmentID:          wo.EquipmentID.String(),
		WorkshopID:           wo.WorkshopID.String(),
		GarageID:             wo.GarageID.String(),
		Priority:             wo.Priority,
		WorkType:             wo.WorkType,
		Description:          wo.Description,
		Status:               string(wo.Status),
		TimerPaused:          wo.TimerPaused,
		PauseReason:          wo.PauseReason,
		EstimatedHours:       wo.EstimatedHours.String(),
		PlannedLaborCost:     wo.PlannedLaborCost.String(),
		PlannedLubricantCost: wo.PlannedLubricantCost.String(),
		PlannedOutsourceCost: wo.PlannedOutsourceCost.String(),
		ActualHours:          wo.ActualHours.String(),
		CreatedAt:            wo.CreatedAt.Format(httpx.TimeFormat),
	}
	if wo.StartedAt != nil {
		v := wo.StartedAt.Format(httpx.TimeFormat)
		resp.StartedAt = &v
	}
	if wo.CompletedAt != nil {
		v := wo.CompletedAt.Format(httpx.TimeFormat)
		resp.CompletedAt = &v
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createWorkOrderRequest
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
		httpx.RespondError(w, r, h.logger, &shared.UnauthorizedError{Action: string(rbac.ActionCreateWorkOrder)})
		return
	}
	in := CreateInput{
		EquipmentID: uuid.MustParse(req.EquipmentID),
		WorkshopID:  uuid.MustParse(req.WorkshopID),
		Priority:    req.Priority,
		WorkType:    req.WorkType,
		Description: req.Description,
	}
	if req.GarageID != "" {
		in.GarageID = uuid.MustParse(req.GarageID)
	}
	var err error
	if in.EstimatedHours, err = parseAmount(req.EstimatedHours, "estimated_hours"); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if in.PlannedLaborCost, err = parseAmount(req.PlannedLaborCost, "planned_labor_cost"); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if in.PlannedLubricantCost, err = parseAmount(req.PlannedLubricantCost, "planned_lubricant_cost"); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if in.PlannedOutsourceCost, err = parseAmount(req.PlannedOutsourceCost, "planned_outsource_cost"); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if req.ReceptionID != "" {
		id := uuid.MustParse(req.ReceptionID)
		in.ReceptionID = &id
	}
	if req.InspectionID != "" {
		id := uuid.MustParse(req.InspectionID)
		in.InspectionID = &id
	}
	wo, err := h.service.Create(r.Context(), in, actor)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toWorkOrderResponse(wo))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	wo, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWorkOrderResponse(wo))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status, err := ParseStatus(defaultString(r.URL.Query().Get("status"), string(StatusInProgress)))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	orders, err := h.service.repo.ListByStatus(r.Context(), status, 100)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]workOrderResponse, 0, len(orders))
	for _, wo := range orders {
		out = append(out, toWorkOrderResponse(wo))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"work_orders": out})
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("status", "required"))
		return
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, &shared.UnauthorizedError{Action: "work_order.transition"})
		return
	}
	wo, err := h.service.Transition(r.Context(), id, Status(req.Status), actor, req.Notes)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWorkOrderResponse(wo))
}

func (h *Handler) elapsed(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	d, err := h.service.ElapsedFor(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"work_order_id":   id.String(),
		"elapsed_seconds": int64(d.Seconds()),
		"elapsed":         d.String(),
	})
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, shared.Validationf(field, "invalid amount %q", raw)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, shared.Validationf(field, "must not be negative")
	}
	return d, nil
}
