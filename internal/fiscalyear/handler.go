package fiscalyear

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tana-fms/tana-fms/internal/platform/httpx"
	"github.com/tana-fms/tana-fms/internal/rbac"
	"github.com/tana-fms/tana-fms/internal/shared"
)

// Handler manages fiscal year endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers fiscal year routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/info", h.info)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionViewReports))
		r.Get("/closures", h.closures)
		r.Get("/archive/{year}", h.archived)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionCloseFiscalYear))
		r.Post("/close", h.close)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionToggleTargetLock))
		r.Post("/targets/lock", h.lockTargets)
		r.Post("/targets/unlock", h.unlockTargets)
	})
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.CurrentInfo(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"current_ethiopian_year":  info.State.CurrentEthiopianYear,
		"planning_targets_locked": info.State.PlanningTargetsLocked,
		"next_ethiopian_year":     info.Calendar.NextYear,
		"next_new_year_date":      info.Calendar.NextNewYearDate.Format(httpx.TimeFormat),
		"days_until_new_year":     info.Calendar.DaysUntilNewYear,
		"is_leap_year":            info.Calendar.IsLeapYear,
	})
}

type closeRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, &shared.UnauthorizedError{Action: string(rbac.ActionCloseFiscalYear)})
		return
	}
	log, err := h.service.Close(r.Context(), req.Notes, actor)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toClosureLogResponse(log))
}

func toClosureLogResponse(log ClosureLog) map[string]any {
	return map[string]any{
		"id":                 log.ID,
		"closed_year":        log.ClosedYear,
		"new_year":           log.NewYear,
		"orders_archived":    log.OrdersArchived,
		"orders_rolled_over": log.OrdersRolledOver,
		"workshops_reset":    log.WorkshopsReset,
		"operator_id":        log.OperatorID.String(),
		"notes":              log.Notes,
		"closed_at":          log.ClosedAt.Format(httpx.TimeFormat),
	}
}

func (h *Handler) closures(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.ClosureLogs(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]map[string]any, 0, len(logs))
	for _, l := range logs {
		out = append(out, toClosureLogResponse(l))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"closures": out})
}

func (h *Handler) archived(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year <= 0 {
		httpx.RespondError(w, r, h.logger, shared.Validationf("year", "ethiopian year required"))
		return
	}
	archived, err := h.service.Archived(r.Context(), year)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]map[string]any, 0, len(archived))
	for _, a := range archived {
		out = append(out, map[string]any{
			"id":             a.ID.String(),
			"number":         a.Number,
			"ethiopian_year": a.EthiopianYear,
			"actual_hours":   a.ActualHours.String(),
			"total_planned":  a.TotalPlanned.String(),
			"total_actual":   a.TotalActual.String(),
			"variance":       a.Variance.String(),
			"parts_consumed": a.Parts,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"year": year, "archived": out})
}

func (h *Handler) lockTargets(w http.ResponseWriter, r *http.Request) {
	h.toggleTargets(w, r, true)
}

func (h *Handler) unlockTargets(w http.ResponseWriter, r *http.Request) {
	h.toggleTargets(w, r, false)
}

func (h *Handler) toggleTargets(w http.ResponseWriter, r *http.Request, locked bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, &shared.UnauthorizedError{Action: string(rbac.ActionToggleTargetLock)})
		return
	}
	if err := h.service.SetTargetsLocked(r.Context(), locked, actor); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"planning_targets_locked": locked})
}
