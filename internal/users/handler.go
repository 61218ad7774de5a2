package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dev-raymund/getwobble/internal/rbac"
	"github.com/dev-raymund/getwobble/internal/shared"
	"github.com/dev-raymund/getwobble/internal/view"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	store     *rbac.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, store *rbac.Service, templates *view.Engine, csrf *shared.CSRFManager, mw rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		store:     store,
		templates: templates,
		csrf:      csrf,
		rbac:      mw,
		validator: validator.New(),
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersEdit))
		r.Post("/", h.createUser)
		r.Post("/{id}", h.updateUser)
		r.Post("/{id}/delete", h.deleteUser)
		r.Post("/{id}/roles", h.assignRole)
		r.Post("/{id}/roles/{roleID}/remove", h.removeRole)
	})
}

type formErrors map[string]string

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, formErrors{}, CreateUserRequest{}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	req := CreateUserRequest{
		Name:                 r.PostFormValue("name"),
		Email:                r.PostFormValue("email"),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
		Role:                 r.PostFormValue("role"),
	}
	errs := h.validateForm(req)
	if len(errs) > 0 {
		h.renderList(w, r, errs, req, http.StatusUnprocessableEntity)
		return
	}
	if _, err := h.service.CreateUser(r.Context(), req); err != nil {
		h.logger.Error("create user failed", slog.Any("error", err))
		errs := formErrors{}
		switch {
		case errors.Is(err, shared.ErrDuplicate):
			errs["email"] = "Email is already taken."
		case errors.Is(err, ErrUnknownRole):
			errs["role"] = "Selected role does not exist."
		default:
			errs["general"] = shared.UserSafeMessage(err)
		}
		h.renderList(w, r, errs, req, http.StatusUnprocessableEntity)
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "User created successfully.")
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	req := UpdateUserRequest{
		Name:  r.PostFormValue("name"),
		Email: r.PostFormValue("email"),
	}
	if errs := h.validateForm(req); len(errs) > 0 {
		h.renderList(w, r, errs, CreateUserRequest{}, http.StatusUnprocessableEntity)
		return
	}
	if _, err := h.service.UpdateUser(r.Context(), id, req); err != nil {
		h.logger.Error("update user failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/users", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "User updated successfully.")
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.logger.Error("delete user failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/users", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "User deleted successfully.")
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	role := r.PostFormValue("role")
	if role == "" {
		h.redirectWithFlash(w, r, "/users", "error", "Role is required.")
		return
	}
	if err := h.service.AssignRole(r.Context(), id, role); err != nil {
		h.logger.Error("assign role failed", slog.Any("error", err), slog.Int64("user", id))
		h.redirectWithFlash(w, r, "/users", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "Role added successfully.")
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.RemoveRole(r.Context(), id, roleID); err != nil {
		h.logger.Error("remove role failed", slog.Any("error", err), slog.Int64("user", id))
		h.redirectWithFlash(w, r, "/users", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "Role removed successfully.")
}

func (h *Handler) validateForm(form any) formErrors {
	errs := formErrors{}
	if err := h.validator.Struct(form); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			for _, fieldErr := range vErrs {
				errs[fieldName(fieldErr.Field())] = fieldMessage(fieldErr)
			}
		}
	}
	return errs
}

func fieldName(field string) string {
	switch field {
	case "Name":
		return "name"
	case "Email":
		return "email"
	case "Password":
		return "password"
	case "PasswordConfirmation":
		return "password_confirmation"
	case "Role":
		return "role"
	}
	return field
}

func fieldMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return "Must be at least " + err.Param() + " characters."
	case "max":
		return "Must be at most " + err.Param() + " characters."
	case "eqfield":
		return "Passwords do not match."
	}
	return "Invalid value."
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, errs formErrors, form CreateUserRequest, status int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	filters := ListFilters{
		SortBy:  r.URL.Query().Get("sort"),
		SortDir: r.URL.Query().Get("dir"),
		Page:    page,
	}
	users, pagination, err := h.service.ListUsersWithRoles(r.Context(), filters)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	}
	allRoles, err := h.store.ListRolesWithPermissions(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err)
	}
	roleNames := make([]string, 0, len(allRoles))
	for _, role := range allRoles {
		roleNames = append(roleNames, role.Name)
	}
	h.render(w, r, "pages/users/list.html", map[string]any{
		"Users":      users,
		"AllRoles":   roleNames,
		"Errors":     errs,
		"Form":       form,
		"Sort":       filters.SortBy,
		"Dir":        filters.SortDir,
		"Pagination": pagination,
	}, status)
}

func (h *Handler) urlID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
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
