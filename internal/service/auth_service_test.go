package service

import (
	"testing"
	"time"

	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"
	"go-seedvault/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accessEnv struct {
	*testEnv
	users UserService
	auth  AuthService
}

func newAccessEnv(t *testing.T) *accessEnv {
	t.Helper()
	env := newTestEnv(t)
	userRepo := repository.NewUserRepo(env.db)
	users := NewUserService(userRepo, repository.NewPrivilegeRepo(env.db), repository.NewRoleRepo(env.db))
	require.NoError(t, users.SeedAccessControl(env.ctx))
	auth := NewAuthService(userRepo, jwt.NewManager("test-secret", "seedvault-test", time.Hour), nil)
	return &accessEnv{testEnv: env, users: users, auth: auth}
}

func (e *accessEnv) roleID(t *testing.T, code string) uint {
	t.Helper()
	roles, err := e.users.ListRoles(e.ctx)
	require.NoError(t, err)
	for _, r := range roles {
		if r.Code == code {
			return r.ID
		}
	}
	t.Fatalf("role %s not seeded", code)
	return 0
}

func TestSeedAccessControl(t *testing.T) {
	env := newAccessEnv(t)
	// Seeding twice is harmless.
	require.NoError(t, env.users.SeedAccessControl(env.ctx))

	privileges, err := env.users.ListPrivileges(env.ctx)
	require.NoError(t, err)
	assert.Len(t, privileges, len(model.DefaultPrivileges))

	roles, err := env.users.ListRoles(env.ctx)
	require.NoError(t, err)
	require.Len(t, roles, len(model.DefaultRoles))
	for _, r := range roles {
		switch r.Code {
		case model.RoleMasterAdmin:
			assert.Len(t, r.Privileges, len(model.DefaultPrivileges))
		default:
			assert.Len(t, r.Privileges, len(model.DefaultRolePrivileges[r.Code]), r.Code)
		}
	}
}

func TestLoginAndAuthenticate(t *testing.T) {
	env := newAccessEnv(t)
	user, err := env.users.CreateUser(env.ctx, &CreateUserRequest{
		Email:    "olga@example.com",
		Password: "secret123",
		FullName: "Olga Operator",
		RoleID:   env.roleID(t, model.RoleOperator),
	}, "system")
	require.NoError(t, err)
	assert.ElementsMatch(t, model.DefaultRolePrivileges[model.RoleOperator], user.PrivilegeCodes())

	_, err = env.auth.Login(env.ctx, "olga@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(env.ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	first, err := env.auth.Login(env.ctx, "olga@example.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, first.Token)
	assert.Equal(t, model.RoleOperator, first.User.Role)

	authed, err := env.auth.Authenticate(env.ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
	assert.True(t, authed.HasPrivilege(model.PrivWithdrawalRequest))

	// A second login replaces the first session.
	second, err := env.auth.Login(env.ctx, "olga@example.com", "secret123")
	require.NoError(t, err)
	_, err = env.auth.Authenticate(env.ctx, first.Token)
	assert.ErrorIs(t, err, ErrSessionReplaced)
	_, err = env.auth.Authenticate(env.ctx, second.Token)
	require.NoError(t, err)

	_, err = env.auth.Authenticate(env.ctx, "not-a-token")
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)
}

func TestChangePassword(t *testing.T) {
	env := newAccessEnv(t)
	user, err := env.users.CreateUser(env.ctx, &CreateUserRequest{
		Email: "sam@example.com", Password: "secret123", FullName: "Sam", RoleID: env.roleID(t, model.RoleSupervisor),
	}, "system")
	require.NoError(t, err)

	assert.ErrorIs(t, env.auth.ChangePassword(env.ctx, user.ID, "wrong", "newsecret"), ErrWrongPassword)
	assert.ErrorIs(t, env.auth.ChangePassword(env.ctx, user.ID, "secret123", "short"), ErrValidation)
	require.NoError(t, env.auth.ChangePassword(env.ctx, user.ID, "secret123", "newsecret"))

	_, err = env.auth.Login(env.ctx, "sam@example.com", "newsecret")
	require.NoError(t, err)
}

func TestUserManagement(t *testing.T) {
	env := newAccessEnv(t)
	req := &CreateUserRequest{
		Email: "ana@example.com", Password: "secret123", FullName: "Ana", RoleID: env.roleID(t, model.RoleOperator),
	}
	user, err := env.users.CreateUser(env.ctx, req, "system")
	require.NoError(t, err)

	_, err = env.users.CreateUser(env.ctx, req, "system")
	assert.ErrorIs(t, err, ErrEmailExists)

	bad := *req
	bad.Email = "other@example.com"
	bad.RoleID = 999
	_, err = env.users.CreateUser(env.ctx, &bad, "system")
	assert.ErrorIs(t, err, ErrRoleNotFound)

	updated, err := env.users.UpdateUserPrivileges(env.ctx, user.ID, []string{"product:view"}, "system")
	require.NoError(t, err)
	assert.Equal(t, []string{"product:view"}, updated.PrivilegeCodes())

	_, err = env.users.UpdateUserPrivileges(env.ctx, user.ID, []string{"product:fly"}, "system")
	assert.ErrorIs(t, err, ErrValidation)

	created, err := env.users.EnsureAdmin(env.ctx, "admin@example.com", "admin123", "Admin")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = env.users.EnsureAdmin(env.ctx, "admin@example.com", "admin123", "Admin")
	require.NoError(t, err)
	assert.False(t, created)

	users, err := env.users.GetAllUsers(env.ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
