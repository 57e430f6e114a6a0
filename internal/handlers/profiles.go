package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/profiles"
	"github.com/lemarcheluxe/backend/internal/storage"
	"github.com/lemarcheluxe/backend/internal/util"
)

// GetMyProfile returns the signed-in user's profile
// GET /api/v1/profiles/me
func (h *Handlers) GetMyProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	profile, err := h.profiles.GetCurrentUserProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "profiles", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateMyProfile updates the editable profile fields
// PUT /api/v1/profiles/me
func (h *Handlers) UpdateMyProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req profiles.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	profile, err := h.profiles.UpdateUserProfile(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, "profiles", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UploadAvatar replaces the user's avatar
// POST /api/v1/profiles/me/avatar (multipart field "file")
func (h *Handlers) UploadAvatar(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		util.RespondValidationError(c, "file", "is required")
		return
	}
	data, err := util.ReadUploadedFile(file, storage.MaxImageSize)
	if err != nil {
		respondError(c, "profiles", err)
		return
	}

	profile, err := h.profiles.UploadAvatar(c.Request.Context(), userID, data, file.Filename)
	if err != nil {
		respondError(c, "profiles", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// SearchProfiles finds other users by email, name or username
// GET /api/v1/profiles/search?q=
func (h *Handlers) SearchProfiles(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	results, err := h.profiles.SearchUsers(c.Request.Context(), c.Query("q"), userID)
	if err != nil {
		respondError(c, "profiles", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": results})
}

// GetProfile returns a public profile
// GET /api/v1/profiles/:id
func (h *Handlers) GetProfile(c *gin.Context) {
	profile, err := h.profiles.GetUserProfileByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "profiles", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
