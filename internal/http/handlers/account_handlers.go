package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/storehouse/accounts/internal/domain"
	"github.com/storehouse/accounts/internal/http/response"
	"github.com/storehouse/accounts/internal/platform/auth"
)

// Me returns the authenticated account
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	account := currentAccount(r)

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "OK",
		Data:    map[string]interface{}{"user": account.ToSummary()},
	})
}

// UpdateMe edits the authenticated account's profile
func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	account := currentAccount(r)

	var req domain.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid JSON body", response.CodeInvalidInput)
		return
	}

	updated, err := h.authService.UpdateProfile(r.Context(), account.ID, &req)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "Profile updated",
		Data:    map[string]interface{}{"user": updated.ToSummary()},
	})
}

// ChangePassword verifies the current password, stores a new hash and
// returns a fresh session token; tokens issued before the change are
// rejected from here on.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	account := currentAccount(r)

	var req domain.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid JSON body", response.CodeInvalidInput)
		return
	}

	token, err := h.authService.ChangePassword(r.Context(), account.ID, &req)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	auth.SetSessionCookie(w, r, h.config.Auth.SessionCookieName, token, h.config.Auth.SessionTTL)

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "Password changed",
		Token:   token,
	})
}

// DeactivateMe marks the authenticated account inactive
func (h *Handlers) DeactivateMe(w http.ResponseWriter, r *http.Request) {
	account := currentAccount(r)

	if err := h.authService.Deactivate(r.Context(), account.ID); err != nil {
		response.WriteDomainError(w, err)
		return
	}

	auth.ClearSessionCookie(w, r, h.config.Auth.SessionCookieName)

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "Account deactivated",
	})
}

// Admin handlers

// ListAccounts lists accounts with pagination (admin only)
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	accounts, err := h.authService.ListAccounts(r.Context(), limit, offset)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	summaries := make([]*domain.AccountSummary, len(accounts))
	for i := range accounts {
		summaries[i] = accounts[i].ToSummary()
	}

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "OK",
		Data:    map[string]interface{}{"users": summaries},
	})
}

// GetAccount returns a single account (admin only)
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid account ID", response.CodeInvalidInput)
		return
	}

	account, err := h.authService.GetAccount(r.Context(), id)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "OK",
		Data:    map[string]interface{}{"user": account.ToSummary()},
	})
}

// UpdateAccountRole changes an account's role (admin only)
func (h *Handlers) UpdateAccountRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid account ID", response.CodeInvalidInput)
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid JSON body", response.CodeInvalidInput)
		return
	}

	if err := h.authService.UpdateRole(r.Context(), id, req.Role); err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "Role updated",
	})
}

// UnlockAccount clears an account's lockout state (admin only)
func (h *Handlers) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid account ID", response.CodeInvalidInput)
		return
	}

	if err := h.authService.Unlock(r.Context(), id); err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "Account unlocked",
	})
}
