package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/rbac"
	"huntdesk-ops/core/store"
	"huntdesk-ops/core/utils"
)

type AccountsHandler struct {
	users    store.UsersStore
	sessions store.SessionStore
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewAccountsHandler(users store.UsersStore, sessions store.SessionStore, audits store.AuditStore, logger *utils.Logger) *AccountsHandler {
	return &AccountsHandler{users: users, sessions: sessions, audits: audits, logger: logger}
}

func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	type accountView struct {
		store.User
		Roles []string `json:"roles"`
	}
	items := make([]accountView, 0, len(users))
	for _, u := range users {
		roles, _ := h.users.Roles(r.Context(), u.ID)
		items = append(items, accountView{User: u, Roles: roles})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string   `json:"username"`
		Email    string   `json:"email"`
		Password string   `json:"password"`
		Roles    []string `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" || len(req.Password) < 8 {
		http.Error(w, "username and password of 8+ chars required", http.StatusBadRequest)
		return
	}
	for _, role := range req.Roles {
		if !rbac.ValidRole(role) {
			http.Error(w, "unknown role "+role, http.StatusBadRequest)
			return
		}
	}
	if len(req.Roles) == 0 {
		req.Roles = []string{rbac.RoleOps}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	id, err := h.users.Create(r.Context(), req.Username, ops.MaskEmail(req.Email), string(hash), req.Roles)
	if err != nil {
		http.Error(w, "could not create user", http.StatusConflict)
		return
	}
	actor := actorFrom(r)
	_ = h.audits.Log(r.Context(), actor.Username, "accounts.create", req.Username)
	user, err := h.users.Get(r.Context(), id)
	if err != nil || user == nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "roles": req.Roles})
}

func (h *AccountsHandler) SetRoles(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(urlParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	var req struct {
		Roles []string `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	for _, role := range req.Roles {
		if !rbac.ValidRole(role) {
			http.Error(w, "unknown role "+role, http.StatusBadRequest)
			return
		}
	}
	if err := h.users.SetRoles(r.Context(), id, req.Roles); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	actor := actorFrom(r)
	_ = h.audits.Log(r.Context(), actor.Username, "accounts.set_roles", strconv.FormatInt(id, 10)+" "+strings.Join(req.Roles, ","))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AccountsHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(urlParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.users.SetActive(r.Context(), id, req.Active); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	actor := actorFrom(r)
	_ = h.audits.Log(r.Context(), actor.Username, "accounts.set_active", strconv.FormatInt(id, 10)+" "+strconv.FormatBool(req.Active))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
