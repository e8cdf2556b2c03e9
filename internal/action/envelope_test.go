package action

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/auth"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
	"github.com/dhandebaz/sangathan-sub001/internal/tenant"
)

type inviteInput struct {
	Email string      `json:"email" validate:"required,email"`
	Role  models.Role `json:"role" validate:"required,oneof=admin editor viewer member"`
	Note  string      `json:"note" validate:"max=20"`
}

type inviteOutput struct {
	InvitedBy uuid.UUID `json:"invited_by"`
}

type env struct {
	store    *tenant.MemoryStore
	jwt      *auth.JWTProvider
	envelope *Envelope
	org      *models.Tenant
}

func newEnv() *env {
	store := tenant.NewMemoryStore()
	jwt := auth.NewJWTProvider("envelope-test-secret-envelope-test-secret")
	return &env{
		store:    store,
		jwt:      jwt,
		envelope: NewEnvelope(auth.NewResolver(jwt, store), nil),
		org:      store.AddTenant(models.Tenant{Name: "Seva", Slug: "seva"}),
	}
}

func (e *env) token(t *testing.T, role models.Role) (string, uuid.UUID) {
	t.Helper()
	id := models.Identity{ID: uuid.New()}
	e.store.AddMembership(models.Membership{TenantID: e.org.ID, IdentityID: id.ID, Role: role, Status: models.MembershipActive})
	tok, err := e.jwt.Sign(id, time.Hour)
	require.NoError(t, err)
	return tok, id.ID
}

func invite(_ context.Context, in inviteInput, p auth.Principal) (inviteOutput, error) {
	return inviteOutput{InvitedBy: p.Identity.ID}, nil
}

var validInvite = inviteInput{Email: "new@example.org", Role: models.RoleMember}

func TestExecuteSuccess(t *testing.T) {
	e := newEnv()
	tok, id := e.token(t, models.RoleAdmin)

	res := Execute(context.Background(), e.envelope, tok, validInvite, invite, models.RoleAdmin)
	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, id, res.Data.InvitedBy)
	assert.Nil(t, res.Error)
}

func TestExecuteValidationFailsFirst(t *testing.T) {
	e := newEnv()
	called := false
	h := func(context.Context, inviteInput, auth.Principal) (inviteOutput, error) {
		called = true
		return inviteOutput{}, nil
	}

	res := Execute(context.Background(), e.envelope, "", inviteInput{Role: "owner"}, h)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, apperr.KindValidation, res.Error.Kind)
	assert.Equal(t, "email", res.Error.Field)
	assert.Equal(t, "email is required", res.Error.Message)
	assert.False(t, called)

	res = Execute(context.Background(), e.envelope, "", inviteInput{Email: "x@y.org", Role: "owner"}, h)
	assert.Equal(t, "role", res.Error.Field)
	assert.Equal(t, "role must be one of: admin editor viewer member", res.Error.Message)
}

func TestExecuteAuthorization(t *testing.T) {
	e := newEnv()
	viewer, _ := e.token(t, models.RoleViewer)

	res := Execute(context.Background(), e.envelope, "", validInvite, invite)
	assert.Equal(t, apperr.KindUnauthorized, res.Error.Kind)

	res = Execute(context.Background(), e.envelope, viewer, validInvite, invite, models.RoleAdmin)
	assert.Equal(t, apperr.KindForbidden, res.Error.Kind)

	res = Execute(context.Background(), e.envelope, viewer, validInvite, invite)
	assert.True(t, res.Success, "no roles means any member")
}

func TestExecuteRefusesSuspendedTenant(t *testing.T) {
	e := newEnv()
	tok, _ := e.token(t, models.RoleAdmin)
	e.store.SetSuspended(e.org.ID, true)

	res := Execute(context.Background(), e.envelope, tok, validInvite, invite)
	assert.Equal(t, apperr.KindForbidden, res.Error.Kind)
	assert.Equal(t, "organisation suspended", res.Error.Message)
}

func TestExecuteHidesInternalErrors(t *testing.T) {
	e := newEnv()
	tok, _ := e.token(t, models.RoleAdmin)

	res := Execute(context.Background(), e.envelope, tok, validInvite,
		func(context.Context, inviteInput, auth.Principal) (inviteOutput, error) {
			return inviteOutput{}, errors.New(`duplicate key value violates unique constraint "memberships_pkey"`)
		})
	assert.False(t, res.Success)
	assert.Equal(t, apperr.KindInternal, res.Error.Kind)
	assert.Equal(t, "something went wrong, please try again", res.Error.Message)

	res = Execute(context.Background(), e.envelope, tok, validInvite,
		func(context.Context, inviteInput, auth.Principal) (inviteOutput, error) {
			return inviteOutput{}, apperr.New(apperr.KindUnavailable, "email is temporarily unavailable")
		})
	assert.Equal(t, apperr.KindUnavailable, res.Error.Kind)
	assert.Equal(t, "email is temporarily unavailable", res.Error.Message)
}

func TestExecuteRecoversPanics(t *testing.T) {
	e := newEnv()
	tok, _ := e.token(t, models.RoleAdmin)

	var res Result[inviteOutput]
	require.NotPanics(t, func() {
		res = Execute(context.Background(), e.envelope, tok, validInvite,
			func(context.Context, inviteInput, auth.Principal) (inviteOutput, error) {
				var m map[string]int
				m["boom"]++
				return inviteOutput{}, nil
			})
	})
	assert.False(t, res.Success)
	assert.Equal(t, apperr.KindInternal, res.Error.Kind)
}

func TestWriteJSON(t *testing.T) {
	e := newEnv()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, Execute(context.Background(), e.envelope, "", validInvite, invite))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "unauthorized", body["error"].(map[string]any)["kind"])

	rec = httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, Result[string]{Success: true, Data: "ok"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}
