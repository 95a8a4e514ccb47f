// Package account implements the unauthenticated credential endpoints:
// registration and login. Both answer with a bearer token on success.
package account

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/identity-service/identity-service/internal/auth"
	"github.com/identity-service/identity-service/internal/services"
)

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Handlers serves the account endpoints
type Handlers struct {
	auth *services.AuthService
}

// NewHandlers creates account handlers backed by svc
func NewHandlers(svc *services.AuthService) *Handlers {
	return &Handlers{auth: svc}
}

// @Summary      Register
// @Description  Create an account and return a bearer token for it.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  RegisterRequest  true  "Credentials and optional names"
// @Success      201  {object}  map[string]interface{}  "message, token"
// @Failure      400  {object}  map[string]interface{}  "Email and password are required | Password must be at most 72 bytes | Email already registered"
// @Failure      500  {object}  map[string]interface{}  "Registration failed"
// @Router       /api/auth/register [post]
// RegisterHandler creates an account
// POST /api/auth/register
func (h *Handlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Email and password are required"})
			return
		}

		res, err := h.auth.Register(c.Request.Context(), services.RegisterInput{
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		switch {
		case errors.Is(err, auth.ErrPasswordTooLong):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Password must be at most 72 bytes"})
			return
		case errors.Is(err, services.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Email and password are required"})
			return
		case errors.Is(err, services.ErrDuplicateEmail):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Email already registered"})
			return
		case err != nil:
			slog.ErrorContext(c.Request.Context(), "registration failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Registration failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": "User registered successfully",
			"token":   res.Token,
		})
	}
}

// @Summary      Login
// @Description  Exchange an email and password for a bearer token. Unknown email and wrong password give the same response.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "message, token"
// @Failure      400  {object}  map[string]interface{}  "Invalid credentials"
// @Failure      500  {object}  map[string]interface{}  "Login failed"
// @Router       /api/auth/login [post]
// LoginHandler authenticates an account
// POST /api/auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
			return
		}

		res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
			return
		case err != nil:
			slog.ErrorContext(c.Request.Context(), "login failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Login failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Login successful",
			"token":   res.Token,
		})
	}
}
