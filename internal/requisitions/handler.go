package requisitions

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tana-fms/tana-fms/internal/platform/httpx"
	"github.com/tana-fms/tana-fms/internal/rbac"
	"github.com/tana-fms/tana-fms/internal/shared"
)

// Handler manages requisition endpoints.
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

// MountRoutes registers requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionViewReports))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/approvals", h.approvals)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionSubmitRequisition))
		r.Post("/", h.submit)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionApproveForemanStage))
		r.Post("/{id}/foreman-approve", h.foremanApprove)
		r.Post("/{id}/foreman-reject", h.foremanReject)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionApproveStoreStage))
		r.Post("/{id}/store-review", h.storeReview)
		r.Post("/{id}/store-reject", h.storeReject)
		r.Post("/{id}/fulfill", h.fulfill)
	})
}

type submitLineRequest struct {
	PartID       string `json:"part_id" validate:"omitempty,uuid"`
	PartNumber   string `json:"part_number"`
	PartName     string `json:"part_name"`
	Description  string `json:"description"`
	Unit         string `json:"unit"`
	QtyRequested int    `json:"qty_requested" validate:"required,min=1"`
}

type submitRequest struct {
	WorkOrderID string              `json:"work_order_id" validate:"required,uuid"`
	WorkshopID  string              `json:"workshop_id" validate:"omitempty,uuid"`
	Remarks     string              `json:"remarks"`
	Lines       []submitLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type lineResponse struct {
	ID           string `json:"id"`
	LineNo       int    `json:"line_no"`
	PartID       string `json:"part_id,omitempty"`
	PartNumber   string `json:"part_number,omitempty"`
	PartName     string `json:"part_name,omitempty"`
	Description  string `json:"description"`
	Unit         string `json:"unit,omitempty"`
	QtyRequested int    `json:"qty_requested"`
	QtyApproved  int    `json:"qty_approved"`
	Status       string `json:"status"`
}

type requisitionResponse struct {
	ID          string         `json:"id"`
	Number      string         `json:"number"`
	WorkOrderID string         `json:"work_order_id"`
	Status      string         `json:"status"`
	Remarks     string         `json:"remarks,omitempty"`
	FulfilledAt *string        `json:"fulfilled_at,omitempty"`
	Lines       []lineResponse `json:"lines"`
}

func toRequisitionResponse(req Requisition) requisitionResponse {
	resp := requisitionResponse{
		ID:          req.ID.String(),
		Number:      req.Number,
		WorkOrderID: req.WorkOrderID.String(),
		Status:      string(req.Status),
		Remarks:     req.Remarks,
		Lines:       make([]lineResponse, 0, len(req.Lines)),
	}
	if req.FulfilledAt != nil {
		v := req.FulfilledAt.Format(httpx.TimeFormat)
		resp.FulfilledAt = &v
	}
	for _, l := range req.Lines {
		lr := lineResponse{
			ID:           l.ID.String(),
			LineNo:       l.LineNo,
			PartNumber:   l.PartNumber,
			PartName:     l.PartName,
			Description:  l.Description,
			Unit:         l.Unit,
			QtyRequested: l.QtyRequested,
			QtyApproved:  l.QtyApproved,
			Status:       string(l.Status),
		}
		if l.PartID != nil {
			lr.PartID = l.PartID.String()
		}
		resp.Lines = append(resp.Lines, lr)
	}
	return resp
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
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
		httpx.RespondError(w, r, h.logger, &shared.UnauthorizedError{Action: string(rbac.ActionSubmitRequisition)})
		return
	}
	in := SubmitInput{
		WorkOrderID: uuid.MustParse(req.WorkOrderID),
		Remarks:     req.Remarks,
	}
	if req.WorkshopID != "" {
		in.WorkshopID = uuid.MustParse(req.WorkshopID)
	}
	for _, l := range req.Lines {
		line := Line{
			PartNumber:   l.PartNumber,
			PartName:     l.PartName,
			Description:  l.Description,
			Unit:         l.Unit,
			QtyRequested: l.QtyRequested,
		}
		if l.PartID != "" {
			id := uuid.MustParse(l.PartID)
			line.PartID = &id
		}
		in.Lines = append(in.Lines, line)
	}
	created, err := h.service.Submit(r.Context(), in, actor)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRequisitionResponse(created))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequisitionResponse(req))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("work_order_id")
	if raw == "" {
		httpx.RespondError(w, r, h.logger, shared.Validationf("work_order_id", "required"))
		return
	}
	workOrderID, err := uuid.Parse(raw)
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("work_order_id", "invalid uuid"))
		return
	}
	reqs, err := h.service.ListByWorkOrder(r.Context(), workOrderID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]requisitionResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toRequisitionResponse(req))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requisitions": out})
}

type approvalResponse struct {
	Stage   string `json:"stage"`
	ActorID string `json:"actor_id"`
	Action  string `json:"action"`
	Note    string `json:"note,omitempty"`
	At      string `json:"at"`
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	logs, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]approvalResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, approvalResponse{
			Stage:   l.Stage,
			ActorID: l.ActorID.String(),
			Action:  string(l.Action),
			Note:    l.Note,
			At:      l.At.Format(httpx.TimeFormat),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvals": out})
}

func (h *Handler) foremanApprove(w http.ResponseWriter, r *http.Request) {
	h.stageAction(w, r, func(ctx *http.Request, id uuid.UUID, actor shared.Actor, _ string) (Requisition, error) {
		return h.service.ApproveForeman(ctx.Context(), id, actor)
	})
}

func (h *Handler) foremanReject(w http.ResponseWriter, r *http.Request) {
	h.stageAction(w, r, func(ctx *http.Request, id uuid.UUID, actor shared.Actor, notes string) (Requisition, error) {
		return h.service.RejectForeman(ctx.Context(), id, actor, notes)
	})
}

func (h *Handler) storeReject(w http.ResponseWriter, r *http.Request) {
	h.stageAction(w, r, func(ctx *http.Request, id uuid.UUID, actor shared.Actor, notes string) (Requisition, error) {
		return h.service.RejectStore(ctx.Context(), id, actor, notes)
	})
}

func (h *Handler) fulfill(w http.ResponseWriter, r *http.Request) {
	h.stageAction(w, r, func(ctx *http.Request, id uuid.UUID, actor shared.Actor, _ string) (Requisition, error) {
		return h.service.MarkFulfilled(ctx.Context(), id, actor)
	})
}

type stageRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) stageAction(w http.ResponseWriter, r *http.Request, fn func(*http.Request, uuid.UUID, shared.Actor, string) (Requisition, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	var req stageRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, &shared.UnauthorizedError{Action: "requisition.review"})
		return
	}
	result, err := fn(r, id, actor, req.Notes)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequisitionResponse(result))
}

type lineDecisionRequest struct {
	LineID      string `json:"line_id" validate:"required,uuid"`
	Status      string `json:"status" validate:"required,oneof=approved backordered rejected"`
	QtyApproved int    `json:"qty_approved" validate:"min=0"`
}

type storeReviewRequest struct {
	Decisions []lineDecisionRequest `json:"decisions" validate:"required,min=1,dive"`
	Remarks   string                `json:"remarks"`
}

func (h *Handler) storeReview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	var req storeReviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("decisions", "%s", err.Error()))
		return
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, &shared.UnauthorizedError{Action: string(rbac.ActionApproveStoreStage)})
		return
	}
	decisions := make([]LineDecision, 0, len(req.Decisions))
	for _, d := range req.Decisions {
		status, err := ParseLineStatus(d.Status)
		if err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
		decisions = append(decisions, LineDecision{
			LineID:      uuid.MustParse(d.LineID),
			Status:      status,
			QtyApproved: d.QtyApproved,
		})
	}
	result, err := h.service.ApproveStore(r.Context(), id, decisions, req.Remarks, actor)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequisitionResponse(result))
}
