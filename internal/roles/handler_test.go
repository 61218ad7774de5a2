package roles

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dev-raymund/getwobble/internal/rbac"
	"github.com/dev-raymund/getwobble/internal/shared"
	"github.com/dev-raymund/getwobble/internal/view"
	_ "github.com/dev-raymund/getwobble/testing"
)

type stubStore struct {
	roles       []rbac.RoleWithPermissions
	permissions []string

	createErr error
	renameErr error
	deleteErr error
	assignErr error
	revokeErr error

	revoked []string
}

func (s *stubStore) ListRolesWithPermissions(ctx context.Context) ([]rbac.RoleWithPermissions, error) {
	return s.roles, nil
}

func (s *stubStore) ListPermissionNames(ctx context.Context) ([]string, error) {
	return s.permissions, nil
}

func (s *stubStore) CreateRole(ctx context.Context, name string) (rbac.Role, error) {
	if s.createErr != nil {
		return rbac.Role{}, s.createErr
	}
	return rbac.Role{ID: 1, Name: name, GuardName: rbac.DefaultGuard}, nil
}

func (s *stubStore) RenameRole(ctx context.Context, id int64, name string) (rbac.Role, error) {
	if s.renameErr != nil {
		return rbac.Role{}, s.renameErr
	}
	return rbac.Role{ID: id, Name: name, GuardName: rbac.DefaultGuard}, nil
}

func (s *stubStore) DeleteRole(ctx context.Context, id int64) error {
	return s.deleteErr
}

func (s *stubStore) AssignPermissionToRole(ctx context.Context, roleID int64, permissionName string) error {
	return s.assignErr
}

func (s *stubStore) RevokePermissionFromRole(ctx context.Context, roleID int64, permissionName string) error {
	if s.revokeErr != nil {
		return s.revokeErr
	}
	s.revoked = append(s.revoked, permissionName)
	return nil
}

func newRolesHandler(t *testing.T, store *stubStore) (*Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, NewService(store), templates, csrfManager, rbac.Middleware{Logger: logger})
	return handler, sessionManager
}

func sessionRequest(t *testing.T, sm *shared.SessionManager, method, target string, form url.Values, params map[string]string) *http.Request {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for key, value := range params {
			rctx.URLParams.Add(key, value)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func TestListRolesPage(t *testing.T) {
	store := &stubStore{
		roles: []rbac.RoleWithPermissions{
			{ID: 1, Name: "editor", Permissions: []string{"posts.edit"}},
		},
		permissions: []string{"posts.edit", "posts.view"},
	}
	handler, sm := newRolesHandler(t, store)

	req := sessionRequest(t, sm, http.MethodGet, "/roles-permissions", nil, nil)
	res := httptest.NewRecorder()
	handler.listRoles(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "editor")
	require.Contains(t, res.Body.String(), "posts.edit")
}

func TestCreateRoleDuplicateShowsFieldError(t *testing.T) {
	store := &stubStore{createErr: fmt.Errorf("rbac: role %q: %w", "editor", shared.ErrDuplicate)}
	handler, sm := newRolesHandler(t, store)

	form := url.Values{}
	form.Set("name", "editor")
	req := sessionRequest(t, sm, http.MethodPost, "/roles-permissions", form, nil)
	res := httptest.NewRecorder()
	handler.createRole(res, req)

	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	require.Contains(t, res.Body.String(), "A role with that name already exists.")
}

func TestCreateRoleBlankNameRejected(t *testing.T) {
	handler, sm := newRolesHandler(t, &stubStore{})

	form := url.Values{}
	form.Set("name", "   ")
	req := sessionRequest(t, sm, http.MethodPost, "/roles-permissions", form, nil)
	res := httptest.NewRecorder()
	handler.createRole(res, req)

	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	require.Contains(t, res.Body.String(), "Role name must be between 1 and 255 characters.")
}

func TestAssignUnknownPermissionShowsFieldError(t *testing.T) {
	store := &stubStore{assignErr: fmt.Errorf("rbac: permission %q: %w", "ghost", shared.ErrNotFound)}
	handler, sm := newRolesHandler(t, store)

	form := url.Values{}
	form.Set("permission", "ghost")
	req := sessionRequest(t, sm, http.MethodPost, "/roles-permissions/1/permissions", form, map[string]string{"id": "1"})
	res := httptest.NewRecorder()
	handler.assignPermission(res, req)

	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	require.Contains(t, res.Body.String(), "Selected permission does not exist.")
}

func TestDeleteRoleRedirects(t *testing.T) {
	handler, sm := newRolesHandler(t, &stubStore{})

	req := sessionRequest(t, sm, http.MethodPost, "/roles-permissions/1/delete", nil, map[string]string{"id": "1"})
	res := httptest.NewRecorder()
	handler.deleteRole(res, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "/roles-permissions", res.Header().Get("Location"))

	sess := shared.SessionFromContext(req.Context())
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	require.Equal(t, "success", flash.Kind)
}

func TestDeleteMissingRoleFlashesError(t *testing.T) {
	store := &stubStore{deleteErr: fmt.Errorf("rbac: role 9: %w", shared.ErrNotFound)}
	handler, sm := newRolesHandler(t, store)

	req := sessionRequest(t, sm, http.MethodPost, "/roles-permissions/9/delete", nil, map[string]string{"id": "9"})
	res := httptest.NewRecorder()
	handler.deleteRole(res, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	sess := shared.SessionFromContext(req.Context())
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	require.Equal(t, "error", flash.Kind)
}

func TestRevokePermissionUnescapesName(t *testing.T) {
	store := &stubStore{}
	handler, sm := newRolesHandler(t, store)

	req := sessionRequest(t, sm, http.MethodPost, "/roles-permissions/1/permissions/posts.edit/revoke", nil,
		map[string]string{"id": "1", "permission": url.PathEscape("posts.edit")})
	res := httptest.NewRecorder()
	handler.revokePermission(res, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, []string{"posts.edit"}, store.revoked)
}

func TestRevokePermissionBadID(t *testing.T) {
	handler, sm := newRolesHandler(t, &stubStore{})

	req := sessionRequest(t, sm, http.MethodPost, "/roles-permissions/x/permissions/p/revoke", nil,
		map[string]string{"id": "x", "permission": "p"})
	res := httptest.NewRecorder()
	handler.revokePermission(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
}
