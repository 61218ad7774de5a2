package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dev-raymund/getwobble/internal/rbac"
	"github.com/dev-raymund/getwobble/internal/shared"
	"github.com/dev-raymund/getwobble/internal/view"
)

// Handler manages role and permission management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, mw rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		rbac:      mw,
		validator: validator.New(),
	}
}

// MountRoutes registers role and permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesEdit))
		r.Post("/", h.createRole)
		r.Post("/{id}/rename", h.renameRole)
		r.Post("/{id}/delete", h.deleteRole)
		r.Post("/{id}/permissions", h.assignPermission)
		r.Post("/{id}/permissions/{permission}/revoke", h.revokePermission)
	})
}

type formErrors map[string]string

type roleForm struct {
	Name string `validate:"required,max=255"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, formErrors{}, roleForm{}, http.StatusOK)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := roleForm{Name: strings.TrimSpace(r.PostFormValue("name"))}
	if err := h.validator.Struct(form); err != nil {
		h.renderList(w, r, formErrors{"name": "Role name must be between 1 and 255 characters."}, form, http.StatusUnprocessableEntity)
		return
	}
	if _, err := h.service.CreateRole(r.Context(), form.Name); err != nil {
		h.logger.Error("create role failed", slog.Any("error", err))
		errs := formErrors{}
		if errors.Is(err, shared.ErrDuplicate) {
			errs["name"] = "A role with that name already exists."
		} else {
			errs["general"] = shared.UserSafeMessage(err)
		}
		h.renderList(w, r, errs, form, http.StatusUnprocessableEntity)
		return
	}
	h.redirectWithFlash(w, r, "/roles-permissions", "success", "Role created successfully.")
}

func (h *Handler) renameRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := roleForm{Name: strings.TrimSpace(r.PostFormValue("name"))}
	if err := h.validator.Struct(form); err != nil {
		h.renderList(w, r, formErrors{"name": "Role name must be between 1 and 255 characters."}, form, http.StatusUnprocessableEntity)
		return
	}
	if _, err := h.service.RenameRole(r.Context(), id, form.Name); err != nil {
		h.logger.Error("rename role failed", slog.Any("error", err), slog.Int64("id", id))
		errs := formErrors{}
		if errors.Is(err, shared.ErrDuplicate) {
			errs["name"] = "A role with that name already exists."
		} else {
			errs["general"] = shared.UserSafeMessage(err)
		}
		h.renderList(w, r, errs, form, http.StatusUnprocessableEntity)
		return
	}
	h.redirectWithFlash(w, r, "/roles-permissions", "success", "Role name updated successfully.")
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.logger.Error("delete role failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/roles-permissions", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/roles-permissions", "success", "Role deleted successfully.")
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	permission := strings.TrimSpace(r.PostFormValue("permission"))
	if permission == "" {
		h.renderList(w, r, formErrors{"permission": "Permission is required."}, roleForm{}, http.StatusUnprocessableEntity)
		return
	}
	if err := h.service.AssignPermission(r.Context(), id, permission); err != nil {
		h.logger.Error("assign permission failed", slog.Any("error", err), slog.Int64("role", id))
		errs := formErrors{}
		if errors.Is(err, shared.ErrNotFound) {
			errs["permission"] = "Selected permission does not exist."
		} else {
			errs["general"] = shared.UserSafeMessage(err)
		}
		h.renderList(w, r, errs, roleForm{}, http.StatusUnprocessableEntity)
		return
	}
	h.redirectWithFlash(w, r, "/roles-permissions", "success", "Permission assigned successfully.")
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	permission, err := url.PathUnescape(chi.URLParam(r, "permission"))
	if err != nil || permission == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.RevokePermission(r.Context(), id, permission); err != nil {
		h.logger.Error("revoke permission failed", slog.Any("error", err), slog.Int64("role", id))
		h.redirectWithFlash(w, r, "/roles-permissions", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/roles-permissions", "success", "Permission removed successfully.")
}

func (h *Handler) urlID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, errs formErrors, form roleForm, status int) {
	roles, err := h.service.ListRolesWithPermissions(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	}
	allPermissions, err := h.service.ListPermissionNames(r.Context())
	if err != nil {
		h.logger.Error("list permissions failed", slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err)
	}
	h.render(w, r, "pages/roles/list.html", map[string]any{
		"Roles":          roles,
		"AllPermissions": allPermissions,
		"Errors":         errs,
		"Form":           form,
	}, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Roles & Permissions", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
