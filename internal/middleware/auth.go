package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/pkg/errors"
	"github.com/jwalitptl/booking-engine/pkg/httputil"
)

const ContextActor = "actor"

// TokenValidator turns a bearer token into the calling actor.
type TokenValidator interface {
	ValidateToken(token string) (model.Actor, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the JWT and stores the actor on the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}

		actor, err := m.tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthorized(err))
			return
		}

		c.Set(ContextActor, actor)
		c.Next()
	}
}

// RequireRole rejects actors whose role is not listed.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Forbidden("permission denied"))
	}
}

func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}
