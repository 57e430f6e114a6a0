package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/auth"
	"github.com/lemarcheluxe/backend/internal/catalog"
	apierrors "github.com/lemarcheluxe/backend/internal/errors"
	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/messaging"
	"github.com/lemarcheluxe/backend/internal/metrics"
	"github.com/lemarcheluxe/backend/internal/products"
	"github.com/lemarcheluxe/backend/internal/profiles"
	"github.com/lemarcheluxe/backend/internal/repository"
	"github.com/lemarcheluxe/backend/internal/storage"
	"github.com/lemarcheluxe/backend/internal/util"
)

type fieldError struct {
	err   error
	field string
}

// Domain errors that point at one input field
var validationErrors = []fieldError{
	{auth.ErrWeakPassword, "password"},
	{auth.ErrInvalidResetToken, "token"},
	{products.ErrInvalidPrice, "price"},
	{products.ErrTitleRequired, "title"},
	{products.ErrImageCount, "images"},
	{catalog.ErrUnknownCategory, "category"},
	{catalog.ErrUnknownSubcategory, "subcategory"},
	{catalog.ErrUnknownBrand, "brand"},
	{catalog.ErrMissingCustomBrand, "custom_brand"},
	{catalog.ErrUnknownCondition, "condition"},
	{catalog.ErrUnknownStatus, "status"},
	{catalog.ErrInvalidTransition, "status"},
	{catalog.ErrInvalidInitial, "status"},
	{messaging.ErrEmptyMessage, "content"},
	{messaging.ErrMessageTooLong, "content"},
	{storage.ErrUnsupportedImage, "file"},
	{storage.ErrImageTooLarge, "file"},
	{storage.ErrEmptyImage, "file"},
	{util.ErrFileTooLarge, "file"},
	{util.ErrFilenameRequired, "file"},
	{util.ErrFilenameInvalid, "file"},
}

// toAPIError maps a service error to the response envelope
func toAPIError(err error) *apierrors.APIError {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	for _, fe := range validationErrors {
		if errors.Is(err, fe.err) {
			return apierrors.ValidationError(fe.field, fe.err.Error())
		}
	}

	switch {
	case errors.Is(err, repository.ErrProfileNotFound):
		return apierrors.NotFound("profile")
	case errors.Is(err, repository.ErrProductNotFound):
		return apierrors.NotFound("product")
	case errors.Is(err, repository.ErrConversationNotFound):
		return apierrors.NotFound("conversation")
	case errors.Is(err, repository.ErrMessageNotFound):
		return apierrors.NotFound("message")

	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, profiles.ErrEmailTaken):
		e := apierrors.Conflict("an account already exists for this email")
		e.Field = "email"
		return e
	case errors.Is(err, profiles.ErrUsernameTaken):
		e := apierrors.Conflict(profiles.ErrUsernameTaken.Error())
		e.Field = "username"
		return e
	case errors.Is(err, repository.ErrDuplicate):
		return apierrors.Conflict("record already exists")

	case errors.Is(err, auth.ErrInvalidCredentials):
		return apierrors.Unauthorized("invalid email or password")
	case errors.Is(err, auth.ErrNoPassword):
		return apierrors.Unauthorized("this account signs in with Google")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenRevoked):
		return apierrors.Unauthorized("invalid or expired token")

	case errors.Is(err, messaging.ErrNotParticipant):
		return apierrors.Forbidden(messaging.ErrNotParticipant.Error())
	case errors.Is(err, products.ErrNotOwner):
		return apierrors.Forbidden(products.ErrNotOwner.Error())
	case errors.Is(err, auth.ErrOAuthEmailUnverified):
		return apierrors.Forbidden("the Google account email is not verified")

	case errors.Is(err, messaging.ErrSelfConversation),
		errors.Is(err, messaging.ErrTooFewParticipants),
		errors.Is(err, messaging.ErrMissingID),
		errors.Is(err, repository.ErrInvalidInput):
		return apierrors.BadRequest(err.Error())

	case errors.Is(err, auth.ErrOAuthNotConfigured):
		return apierrors.ServiceUnavailable("Google sign-in")
	case errors.Is(err, profiles.ErrUploadsDisabled), errors.Is(err, products.ErrUploadsDisabled):
		return apierrors.ServiceUnavailable("image upload")
	}

	return apierrors.InternalError("internal server error")
}

// respondError writes err as an API error. 5xx causes are logged and counted
func respondError(c *gin.Context, component string, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= 500 {
		logger.ErrorWithFields("Request failed", err,
			logger.WithUserID(c.GetString(util.ContextUserID)),
			logger.WithRequestID(c.GetString("request_id")),
		)
		metrics.Get().ErrorsTotal.WithLabelValues(component, "internal").Inc()
		_ = c.Error(err)
	}
	util.RespondWithAPIError(c, apiErr)
}
