package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tana-fms/tana-fms/internal/shared"
)

func TestAllowed(t *testing.T) {
	require.True(t, Allowed(shared.RoleVerifier, ActionVerifyWork))
	require.False(t, Allowed(shared.RoleTeamMember, ActionVerifyWork))
	require.True(t, Allowed(shared.RoleStoreManager, ActionApproveStoreStage))
	require.False(t, Allowed(shared.RoleForeman, ActionApproveStoreStage))

	// Closure and target locking are admin-only.
	require.True(t, Allowed(shared.RoleAdmin, ActionCloseFiscalYear))
	require.False(t, Allowed(shared.RoleSupervisor, ActionCloseFiscalYear))
	require.False(t, Allowed(shared.RoleForeman, ActionToggleTargetLock))
}

func TestAuthorizeReturnsTypedError(t *testing.T) {
	actor := shared.Actor{Role: shared.RoleTeamMember}
	err := Authorize(actor, ActionVerifyWork)
	require.Error(t, err)
	require.True(t, shared.IsUnauthorized(err))

	require.NoError(t, Authorize(shared.Actor{Role: shared.RoleVerifier}, ActionVerifyWork))
}
