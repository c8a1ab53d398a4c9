package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/storehouse/accounts/internal/domain"
	"github.com/storehouse/accounts/internal/http/response"
	"github.com/storehouse/accounts/internal/platform/auth"
)

// SignUp handles account registration
func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid JSON body", response.CodeInvalidInput)
		return
	}

	account, token, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	auth.SetSessionCookie(w, r, h.config.Auth.SessionCookieName, token, h.config.Auth.SessionTTL)

	response.WriteJSON(w, http.StatusCreated, response.Envelope{
		Success: true,
		Message: "User signed up successfully. Please check your email for verification.",
		Token:   token,
		Data:    map[string]interface{}{"user": account.ToSummary()},
	})
}

// LogIn handles the credential verification flow
func (h *Handlers) LogIn(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid JSON body", response.CodeInvalidInput)
		return
	}

	resp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	auth.SetSessionCookie(w, r, h.config.Auth.SessionCookieName, resp.Token, h.config.Auth.SessionTTL)

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "Login successful",
		Token:   resp.Token,
		Data:    map[string]interface{}{"user": resp.Account},
	})
}

// LogOut clears the session cookie. Tokens are stateless so the server
// keeps nothing to revoke.
func (h *Handlers) LogOut(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, r, h.config.Auth.SessionCookieName)

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "Logged out",
	})
}

// VerifyEmail consumes an email verification token
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.Token
		}
	}
	if token == "" {
		response.WriteError(w, http.StatusBadRequest, "missing verification token", response.CodeInvalidInput)
		return
	}

	account, err := h.authService.VerifyEmail(r.Context(), token)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "Email verified successfully",
		Data:    map[string]interface{}{"user": account.ToSummary()},
	})
}

// ResendVerification re-issues a verification email. The response never
// reveals whether the address belongs to an account.
func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		response.WriteError(w, http.StatusBadRequest, "email is required", response.CodeInvalidInput)
		return
	}

	if err := h.authService.ResendVerification(r.Context(), req.Email); err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "If the address belongs to an unverified account, a verification email was sent",
	})
}
