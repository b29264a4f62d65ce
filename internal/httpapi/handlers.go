package httpapi

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
)

// LoginRequest is accepted as JSON or as a urlencoded form.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type LoginResponse struct {
	UserID   string `json:"user_id"`
	Redirect string `json:"redirect"`
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Name            string `json:"name"`
}

type UserResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	Remember        bool   `json:"remember"`
}

type RotateRequest struct {
	Remember bool `json:"remember"`
}

// decode fills dst from a JSON body, or from form fields named by the json tags
// through formFields.
func decode(r *http.Request, dst any, formFields func(get func(string) string)) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(dst); err != nil {
			return fmt.Errorf("%w: malformed JSON body", goSession.ErrInvalidInput)
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: malformed form body", goSession.ErrInvalidInput)
	}
	formFields(r.PostForm.Get)
	return nil
}

func formBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b || v == "on"
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) CSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": middleware.CSRFToken(r.Context())})
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	err := decode(r, &req, func(get func(string) string) {
		req.Email = get("email")
		req.Password = get("password")
		req.Remember = formBool(get("remember"))
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	u, err := a.engine.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	token, err := a.engine.Login(r.Context(), u.ID, goSession.LoginOptions{
		Remember:      req.Remember,
		PreviousToken: a.engine.SessionTokenFromRequest(r),
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.engine.SetSessionCookie(w, r, token, req.Remember)
	writeJSON(w, http.StatusOK, LoginResponse{UserID: u.ID, Redirect: a.guard.PostLoginTarget(r)})
}

// Logout revokes the presented session, if any, and clears the cookie.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Logout(r.Context(), a.engine.SessionTokenFromRequest(r)); err != nil {
		a.mapError(w, r, err)
		return
	}
	a.engine.ClearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	err := decode(r, &req, func(get func(string) string) {
		req.Email = get("email")
		req.Password = get("password")
		req.ConfirmPassword = get("confirm_password")
		req.Name = get("name")
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	u, err := a.engine.Register(r.Context(), goSession.RegisterRequest{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Name:            req.Name,
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role})
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	u := goSession.IdentityFromContext(r.Context()).User
	writeJSON(w, http.StatusOK, UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
	})
}

// ChangePassword revokes every session of the user, then signs the caller in
// again with a fresh session.
func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	err := decode(r, &req, func(get func(string) string) {
		req.CurrentPassword = get("current_password")
		req.NewPassword = get("new_password")
		req.Remember = formBool(get("remember"))
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	userID := goSession.IdentityFromContext(r.Context()).UserID()
	if err := a.engine.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		a.mapError(w, r, err)
		return
	}
	token, err := a.engine.Login(r.Context(), userID, goSession.LoginOptions{Remember: req.Remember})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.engine.SetSessionCookie(w, r, token, req.Remember)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) Sessions(w http.ResponseWriter, r *http.Request) {
	n, err := a.engine.ActiveSessionCount(r.Context(), goSession.IdentityFromContext(r.Context()).UserID())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"active_sessions": n})
}

func (a *API) Rotate(w http.ResponseWriter, r *http.Request) {
	var req RotateRequest
	err := decode(r, &req, func(get func(string) string) {
		req.Remember = formBool(get("remember"))
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	token, err := a.engine.Rotate(r.Context(), a.engine.SessionTokenFromRequest(r), req.Remember)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.engine.SetSessionCookie(w, r, token, req.Remember)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) RevokeAll(w http.ResponseWriter, r *http.Request) {
	n, err := a.engine.RevokeAllForUser(r.Context(), goSession.IdentityFromContext(r.Context()).UserID())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.engine.ClearSessionCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (a *API) Unlock(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.UnlockAccount(r.Context(), chi.URLParam(r, "userID")); err != nil {
		a.mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := a.engine.CleanupExpired(r.Context())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}
