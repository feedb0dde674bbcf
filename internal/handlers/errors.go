package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-spa-checkout/internal/apperrors"
)

// writeError renders err with the status of its code. Unknown errors are
// reported as internal without leaking details.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	typed := apperrors.As(err)
	if typed == nil {
		meta := apperrors.MetadataFor(apperrors.CodeInternal)
		c.AbortWithStatusJSON(meta.HTTPStatus, gin.H{
			"error":   apperrors.CodeInternal,
			"message": "something went wrong, please try again",
		})
		return
	}

	meta := apperrors.MetadataFor(typed.Code())
	c.AbortWithStatusJSON(meta.HTTPStatus, gin.H{
		"error":     typed.Code(),
		"message":   typed.Message(),
		"retryable": meta.Retryable,
	})
}
