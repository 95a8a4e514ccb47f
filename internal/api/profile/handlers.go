// Package profile implements the bearer-protected endpoints that read and
// change the caller's own account. Every handler expects middleware.RequireAuth
// to have run.
package profile

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/identity-service/identity-service/internal/db/repositories"
	"github.com/identity-service/identity-service/internal/middleware"
	"github.com/identity-service/identity-service/internal/services"
)

// UpdateRequest is the body of PUT /api/profile. Omitted names keep their
// stored value.
type UpdateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// Handlers serves the profile endpoints
type Handlers struct {
	profiles *services.ProfileService
}

// NewHandlers creates profile handlers backed by svc
func NewHandlers(svc *services.ProfileService) *Handlers {
	return &Handlers{profiles: svc}
}

func callerID(c *gin.Context) (int64, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
	}
	return id, ok
}

// @Summary      Get profile
// @Description  Return the caller's public profile. The read is recorded in the audit trail.
// @Tags         Profile
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user: models.PublicProfile"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Failed to load profile"
// @Router       /api/profile [get]
// GetProfileHandler returns the caller's profile
// GET /api/profile
func (h *Handlers) GetProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := callerID(c)
		if !ok {
			return
		}

		profile, err := h.profiles.View(c.Request.Context(), userID)
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
			return
		case err != nil:
			slog.ErrorContext(c.Request.Context(), "failed to load profile", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to load profile"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": profile})
	}
}

// @Summary      Update profile
// @Description  Change the caller's first and/or last name. The change and its audit entry commit together.
// @Description  A token whose account was removed after issue gets 404 and nothing is written.
// @Tags         Profile
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  UpdateRequest  true  "Names to change"
// @Success      200  {object}  map[string]interface{}  "Profile updated successfully"
// @Failure      400  {object}  map[string]interface{}  "Invalid request body"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found (account removed after the token was issued)"
// @Failure      500  {object}  map[string]interface{}  "Profile update failed"
// @Router       /api/profile [put]
// UpdateProfileHandler changes the caller's names
// PUT /api/profile
func (h *Handlers) UpdateProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := callerID(c)
		if !ok {
			return
		}

		var req UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
			return
		}

		_, err := h.profiles.Update(c.Request.Context(), userID, req.FirstName, req.LastName)
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
			return
		case err != nil:
			slog.ErrorContext(c.Request.Context(), "profile update failed", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Profile update failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully"})
	}
}

// @Summary      Audit history
// @Description  List the caller's own audit events, newest first.
// @Tags         Profile
// @Security     Bearer
// @Produce      json
// @Param        limit   query  int  false  "Page size, max 100 (default 20)"
// @Param        offset  query  int  false  "Events to skip (default 0)"
// @Success      200  {object}  map[string]interface{}  "events: []models.AuditLog, pagination: map"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Failed to load audit history"
// @Router       /api/profile/audit [get]
// AuditHistoryHandler pages through the caller's audit events
// GET /api/profile/audit?limit=20&offset=0
func (h *Handlers) AuditHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := callerID(c)
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(repositories.DefaultAuditPageSize)))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		page, err := h.profiles.History(c.Request.Context(), userID, limit, offset)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to load audit history", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to load audit history"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"events": page.Events,
			"pagination": gin.H{
				"limit":  page.Limit,
				"offset": page.Offset,
			},
		})
	}
}
