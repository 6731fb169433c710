package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"netwatch/internal/config"
	"netwatch/internal/service"
)

// AuthHandler serves registration, login, logout, and session introspection.
type AuthHandler struct {
	auth   *service.AuthService
	config *config.Config
}

func NewAuthHandler(auth *service.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{auth: auth, config: cfg}
}

// Register handles POST /register (form encoded).
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondBadRequest(w, "Invalid form data")
		return
	}

	user, err := h.auth.Register(r.Context(),
		r.PostFormValue("username"),
		r.PostFormValue("email"),
		r.PostFormValue("password"),
		r.PostFormValue("confirmPassword"))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondSuccess(w, "Registration successful", Envelope{
		"user_id": user.ID,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /login. Accepts a JSON body or form fields; the login
// value may be a username or an email address.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondBadRequest(w, "Invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			respondBadRequest(w, "Invalid form data")
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}

	identity, sessionID, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Auth.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(h.auth.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	respondSuccess(w, "Login successful", Envelope{
		"user": identity,
	})
}

// Logout handles POST /logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.config.Auth.SessionCookie); err == nil {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			respondWithError(w, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	respondSuccess(w, "Logged out", nil)
}

// Session handles GET /session, returning the caller's identity.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	if err := service.RequireAuthenticated(identity); err != nil {
		respondWithError(w, err)
		return
	}
	respondSuccess(w, "", Envelope{
		"user": identity,
	})
}
