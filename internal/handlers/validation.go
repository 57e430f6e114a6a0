package handlers

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/lemarcheluxe/backend/internal/catalog"
	"github.com/lemarcheluxe/backend/internal/util"
)

var validatorsOnce sync.Once

// registerValidators adds the marketplace tags to gin's validator
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		// Report fields by their wire name
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
		_ = v.RegisterValidation("product_status", func(fl validator.FieldLevel) bool {
			return catalog.ValidateStatus(fl.Field().String()) == nil
		})
		_ = v.RegisterValidation("product_condition", func(fl validator.FieldLevel) bool {
			return catalog.ValidateCondition(fl.Field().String()) == nil
		})
	})
}

// respondBindError turns binding failures into a 422 on the first bad field,
// or a 400 when the body could not be decoded at all
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		util.RespondValidationError(c, fe.Field(), validationMessage(fe))
		return
	}
	util.RespondBadRequest(c, "invalid request body")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "product_status":
		return "unknown status"
	case "product_condition":
		return "unknown condition"
	}
	return "is invalid"
}
