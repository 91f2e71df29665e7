// Package rbac maps maintenance roles to the actions they may perform.
// Actor identity and role are resolved by the authentication gateway; this
// package only answers "may this role do that".
package rbac

import "github.com/tana-fms/tana-fms/internal/shared"

// Action names an authorizable operation on the maintenance core.
type Action string

const (
	ActionCreateWorkOrder     Action = "work_order.create"
	ActionStartWork           Action = "work_order.start"
	ActionMarkWorkDone        Action = "work_order.mark_done"
	ActionVerifyWork          Action = "work_order.verify"
	ActionApproveCompletion   Action = "work_order.approve_completion"
	ActionSubmitRequisition   Action = "requisition.submit"
	ActionApproveForemanStage Action = "requisition.approve_foreman"
	ActionApproveStoreStage   Action = "requisition.approve_store"
	ActionCloseFiscalYear     Action = "fiscal_year.close"
	ActionToggleTargetLock    Action = "fiscal_year.toggle_target_lock"
	ActionEditTargets         Action = "workshop.edit_targets"
	ActionViewReports         Action = "reports.view"
)

// grants lists the roles allowed to perform each action. Admin is implied
// everywhere and handled in Allowed.
var grants = map[Action][]shared.Role{
	ActionCreateWorkOrder:     {shared.RoleForeman, shared.RoleSupervisor},
	ActionStartWork:           {shared.RoleTeamMember, shared.RoleForeman},
	ActionMarkWorkDone:        {shared.RoleTeamMember, shared.RoleForeman},
	ActionVerifyWork:          {shared.RoleVerifier},
	ActionApproveCompletion:   {shared.RoleSupervisor},
	ActionSubmitRequisition:   {shared.RoleTeamMember, shared.RoleForeman},
	ActionApproveForemanStage: {shared.RoleForeman},
	ActionApproveStoreStage:   {shared.RoleStoreManager},
	ActionCloseFiscalYear:     {},
	ActionToggleTargetLock:    {},
	ActionEditTargets:         {shared.RoleForeman, shared.RoleSupervisor},
	ActionViewReports:         {shared.RoleForeman, shared.RoleSupervisor, shared.RoleStoreManager, shared.RoleVerifier, shared.RolePurchaser, shared.RoleTeamMember},
}

// Allowed reports whether the role may perform the action.
func Allowed(role shared.Role, action Action) bool {
	if role == shared.RoleAdmin {
		return true
	}
	for _, r := range grants[action] {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize returns an UnauthorizedError when the actor's role may not
// perform the action.
func Authorize(actor shared.Actor, action Action) error {
	if !Allowed(actor.Role, action) {
		return &shared.UnauthorizedError{Role: actor.Role, Action: string(action)}
	}
	return nil
}
