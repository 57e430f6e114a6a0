package handlers

import (
	"crypto/subtle"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/auth"
	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/util"
)

const oauthStateCookie = "oauth_state"

// SignUp creates an email/password account
// POST /api/v1/auth/signup
func (h *Handlers) SignUp(c *gin.Context) {
	var req auth.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.auth.SignUp(c.Request.Context(), req)
	if err != nil {
		respondError(c, "auth", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// SignIn exchanges email and password for a session token
// POST /api/v1/auth/signin
func (h *Handlers) SignIn(c *gin.Context) {
	var req auth.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.auth.SignIn(c.Request.Context(), req)
	if err != nil {
		respondError(c, "auth", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SignOut revokes the token used for this request
// POST /api/v1/auth/signout
func (h *Handlers) SignOut(c *gin.Context) {
	if err := h.auth.SignOut(c.Request.Context(), util.GetTokenFromContext(c)); err != nil {
		respondError(c, "auth", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RequestPasswordReset emails a reset link. The response is the same whether
// or not the address has an account.
// POST /api/v1/auth/password-reset
func (h *Handlers) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, "auth", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Si un compte existe pour cette adresse, un email de réinitialisation a été envoyé."})
}

// ResetPassword sets a new password from a reset token
// POST /api/v1/auth/password-reset/confirm
func (h *Handlers) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		respondError(c, "auth", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mot de passe mis à jour."})
}

// GoogleLogin redirects to the Google consent screen
// GET /api/v1/auth/google
func (h *Handlers) GoogleLogin(c *gin.Context) {
	authURL, state, err := h.auth.GoogleAuthURL()
	if err != nil {
		respondError(c, "auth", err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, 600, "/", "", h.secureCookie, true)
	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// GoogleCallback completes the Google sign-in
// GET /api/v1/auth/google/callback
func (h *Handlers) GoogleCallback(c *gin.Context) {
	state := c.Query("state")
	expected, err := c.Cookie(oauthStateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		util.RespondBadRequest(c, "invalid OAuth state")
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/", "", h.secureCookie, true)

	if errParam := c.Query("error"); errParam != "" {
		logger.Warnf("Google sign-in cancelled: %s", errParam)
		util.RespondUnauthorized(c, "Google sign-in was cancelled")
		return
	}
	code := c.Query("code")
	if code == "" {
		util.RespondBadRequest(c, "missing authorization code")
		return
	}

	resp, err := h.auth.HandleGoogleCallback(c.Request.Context(), code)
	if err != nil {
		respondError(c, "auth", err)
		return
	}

	if h.frontendURL == "" {
		c.JSON(http.StatusOK, resp)
		return
	}
	fragment := url.Values{"token": {resp.Token}}
	c.Redirect(http.StatusFound, h.frontendURL+"/auth/callback#"+fragment.Encode())
}
