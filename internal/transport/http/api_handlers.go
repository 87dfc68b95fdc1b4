package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sourcefile/pingline-server/internal/auth"
	"github.com/sourcefile/pingline-server/internal/store"
	"github.com/sourcefile/pingline-server/internal/tenant"
)

// TenantHeader carries the workspace identifier on the open endpoints.
// Authenticated endpoints take the tenant from the JWT instead.
const TenantHeader = "X-Tenant"

// APIHandlers provides HTTP handlers for the open auth endpoints.
type APIHandlers struct {
	authService *auth.Service
	tenants     *tenant.Resolver
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, tenants *tenant.Resolver, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		tenants:     tenants,
		log:         logger,
	}
}

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"required,min=10,max=20"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (h *APIHandlers) resolveTenant(c *gin.Context) (tenant.ID, bool) {
	tn, err := h.tenants.Resolve(c.GetHeader(TenantHeader))
	if err != nil {
		h.log.Debug().Err(err).Msg("request carries no tenant")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing tenant header"})
		return "", false
	}
	return tn, true
}

// Register handles user registration.
// POST /api/register
func (h *APIHandlers) Register(c *gin.Context) {
	tn, ok := h.resolveTenant(c)
	if !ok {
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, user, err := h.authService.Register(c.Request.Context(), tn, req.Name, req.Email, req.Phone, req.Password)
	if err != nil {
		var dup *store.DuplicateError
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists", Field: dup.Field})
			return
		}
		if errors.Is(err, auth.ErrInvalidName) || errors.Is(err, auth.ErrInvalidEmail) ||
			errors.Is(err, auth.ErrInvalidPhone) || errors.Is(err, auth.ErrInvalidPassword) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Str("email", req.Email).Msg("failed to register user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("tenant", tn.String()).Int64("user_id", user.ID).Msg("user registered successfully")
	c.JSON(http.StatusCreated, AuthResponse{Token: token, User: toUserResponse(user)})
}

// Login handles user login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	tn, ok := h.resolveTenant(c)
	if !ok {
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), tn, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Str("email", req.Email).Msg("failed to login user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("tenant", tn.String()).Int64("user_id", user.ID).Msg("user logged in successfully")
	c.JSON(http.StatusOK, AuthResponse{Token: token, User: toUserResponse(user)})
}
