package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-spa-checkout/internal/apperrors"
)

// BindAndValidate decodes the JSON body into out and validates it. On failure
// it answers 400 in the API error shape and returns the error so the handler
// can stop.
func BindAndValidate(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   apperrors.CodeValidation,
			"message": "malformed request body",
			"detail":  err.Error(),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   apperrors.CodeValidation,
			"message": "request failed validation",
			"fields":  fieldErrors(err),
		})
		return err
	}
	return nil
}

// fieldErrors maps each failing field to the rule it broke.
func fieldErrors(err error) map[string]string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
