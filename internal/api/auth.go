package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/backend"
)

// AuthHandler logs the daemon into the backend account.
type AuthHandler struct {
	accounts AccountService
	log      zerolog.Logger
}

func NewAuthHandler(a AccountService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: a,
		log:      log.With().Str("handler", "auth").Logger(),
	}
}

// Routes registers auth routes on the given router.
func (h *AuthHandler) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
		r.Post("/logout", h.Logout)
		r.Get("/status", h.Status)
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthStatus is the body of every auth response.
type AuthStatus struct {
	Authenticated bool          `json:"authenticated"`
	User          *backend.User `json:"user,omitempty"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.accounts.Login(r.Context(), req.Email, req.Password); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, AuthStatus{Authenticated: true})
}

// Register handles POST /api/v1/auth/register. A successful registration
// also logs in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.accounts.Register(r.Context(), req.Username, req.Email, req.Password); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, AuthStatus{Authenticated: true})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(); err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "failed to clear login", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, AuthStatus{Authenticated: false})
}

// Status handles GET /api/v1/auth/status. With a token present the profile is
// fetched; a rejected token is dropped and reported as logged out.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.accounts.IsAuthenticated() {
		WriteJSON(w, http.StatusOK, AuthStatus{})
		return
	}
	user, err := h.accounts.Profile(r.Context())
	if err != nil {
		h.log.Debug().Err(err).Msg("profile unavailable")
	}
	WriteJSON(w, http.StatusOK, AuthStatus{Authenticated: h.accounts.IsAuthenticated(), User: user})
}
