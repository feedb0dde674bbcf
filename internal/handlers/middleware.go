package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-spa-checkout/internal/logger"
	"github.com/imrishuroy/go-spa-checkout/internal/session"
)

// Headers set by the upstream authorizer for local runs and internal callers.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
	HeaderSessionID = "X-Session-Id"
)

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestContext tags the request with an id and a context-scoped logger,
// then logs the outcome.
func RequestContext(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)

		ctx := context.WithValue(c.Request.Context(), requestIDKey{}, requestID)
		ctx = log.WithRequestID(ctx, requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		ctx = log.WithFields(c.Request.Context(), map[string]any{
			"method":      c.Request.Method,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if c.Writer.Status() >= 500 {
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			log.Error(ctx, "request failed", err)
			return
		}
		log.Info(ctx, "request completed")
	}
}

// Session resolves the caller from authorizer headers or, behind API Gateway,
// from the authorizer claims, and stores it in the request context.
func Session(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := userFromHeaders(c)
		if !user.Authenticated() {
			user = userFromAuthorizer(c.Request.Context())
		}
		if user.Authenticated() {
			ctx := session.WithUser(c.Request.Context(), user)
			ctx = log.WithUserID(ctx, user.ID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func userFromHeaders(c *gin.Context) session.User {
	return session.User{
		ID:    strings.TrimSpace(c.GetHeader(HeaderUserID)),
		Email: strings.TrimSpace(c.GetHeader(HeaderUserEmail)),
		Role:  strings.TrimSpace(c.GetHeader(HeaderUserRole)),
	}
}

func userFromAuthorizer(ctx context.Context) session.User {
	apiCtx, ok := core.GetAPIGatewayContextFromContext(ctx)
	if !ok || apiCtx.Authorizer == nil {
		return session.User{}
	}
	claims, ok := apiCtx.Authorizer["claims"].(map[string]interface{})
	if !ok {
		return session.User{}
	}
	str := func(key string) string {
		v, _ := claims[key].(string)
		return v
	}
	role := str("custom:role")
	if role == "" {
		role = "client"
	}
	return session.User{ID: str("sub"), Email: str("email"), Role: role}
}
