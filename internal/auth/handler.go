package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ganacsi/ganacsi/internal/platform/httpx"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/forgot-password", h.handleForgotPassword)
	r.Post("/reset-password", h.handleResetPassword)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token    string `json:"token" validate:"required,hexadecimal,len=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

type requestErrors []fieldError

func (e requestErrors) Error() string { return "invalid request" }
func (e requestErrors) Unwrap() error { return httpx.ErrValidation }
func (e requestErrors) Details() any  { return []fieldError(e) }

func (h *Handler) validate(v any) error {
	err := h.validator.Struct(v)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := make(requestErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, fieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	token, expiresAt, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("login failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// handleForgotPassword always answers {success:true}.
func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := httpx.DecodeJSON(r, &req); err == nil && req.Email != "" {
		h.service.ForgotPassword(r.Context(), req.Email)
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
