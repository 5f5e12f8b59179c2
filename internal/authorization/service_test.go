package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{
		Log:      zap.NewNop(),
		Config:   config.Config{AdminEmails: []string{"Root@Toolhub.dev"}},
		Enforcer: enforcer,
	})
}

func TestAdminEmailGrantsApproval(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := snowflake.ID(10)
	member := snowflake.ID(11)

	require.NoError(t, svc.SyncUserRoles(ctx, admin, "root@toolhub.dev"))
	require.NoError(t, svc.SyncUserRoles(ctx, member, "someone@example.com"))

	assert.NoError(t, svc.Authorize(ctx, UserActor(admin), ObjectTool, ActionToolApprove))
	assert.ErrorIs(t, svc.Authorize(ctx, UserActor(member), ObjectTool, ActionToolApprove), ErrForbidden)

	ok, err := svc.IsAdmin(ctx, admin)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSystemActor(t *testing.T) {
	svc := newTestService(t)
	assert.NoError(t, svc.Authorize(context.Background(), ActorSystem, ObjectSession, ActionSessionPurge))
	assert.ErrorIs(t, svc.Authorize(context.Background(), ActorSystem, ObjectContact, ActionContactView), ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	assert.ErrorIs(t, svc.Authorize(ctx, "user:abc", ObjectTool, ActionToolApprove), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "", ObjectTool, ActionToolApprove), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, ActorSystem, " ", ActionToolApprove), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, ActorSystem, ObjectTool, ""), ErrInvalidAction)
}

func TestRevokedAdmin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id := snowflake.ID(20)
	require.NoError(t, svc.SyncUserRoles(ctx, id, "root@toolhub.dev"))
	require.NoError(t, svc.SyncUserRoles(ctx, id, "changed@example.com"))

	ok, err := svc.IsAdmin(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}
