package workshops

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

// Handler manages workshop endpoints.
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

// MountRoutes registers workshop routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionViewReports))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionEditTargets))
		r.Put("/{id}/targets", h.updateTargets)
	})
}

type targetsRequest struct {
	Monthly int `json:"monthly" validate:"min=0"`
	Q1      int `json:"q1" validate:"min=0"`
	Q2      int `json:"q2" validate:"min=0"`
	Q3      int `json:"q3" validate:"min=0"`
	Q4      int `json:"q4" validate:"min=0"`
	Annual  int `json:"annual" validate:"min=0"`
}

type workshopResponse struct {
	ID       string         `json:"id"`
	GarageID string         `json:"garage_id"`
	Name     string         `json:"name"`
	Targets  targetsRequest `json:"targets"`
}

func toWorkshopResponse(ws Workshop) workshopResponse {
	return workshopResponse{
		ID:       ws.ID.String(),
		GarageID: ws.GarageID.String(),
		Name:     ws.Name,
		Targets: targetsRequest{
			Monthly: ws.Targets.Monthly,
			Q1:      ws.Targets.Q1,
			Q2:      ws.Targets.Q2,
			Q3:      ws.Targets.Q3,
			Q4:      ws.Targets.Q4,
			Annual:  ws.Targets.Annual,
		},
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	workshops, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]workshopResponse, 0, len(workshops))
	for _, ws := range workshops {
		out = append(out, toWorkshopResponse(ws))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"workshops": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	ws, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWorkshopResponse(ws))
}

func (h *Handler) updateTargets(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "invalid uuid"))
		return
	}
	var req targetsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("targets", "%s", err.Error()))
		return
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, &shared.UnauthorizedError{Action: string(rbac.ActionEditTargets)})
		return
	}
	ws, err := h.service.UpdateTargets(r.Context(), id, Targets{
		Monthly: req.Monthly, Q1: req.Q1, Q2: req.Q2, Q3: req.Q3, Q4: req.Q4, Annual: req.Annual,
	}, actor)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWorkshopResponse(ws))
}
