package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/knowtree-backend/internal/http/response"
	"github.com/yungbote/knowtree-backend/internal/platform/ctxutil"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

// TokenVerifier is satisfied by *authjwt.Signer.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

type AuthMiddleware struct {
	log      *logger.Logger
	verifier TokenVerifier
}

func NewAuthMiddleware(log *logger.Logger, verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), verifier: verifier}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		userID, err := am.verifier.Verify(token)
		if err != nil {
			am.log.Debug("Rejected token", "error", err)
			response.Abort(c, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// EventSource cannot set headers, so the token may also arrive as a query param.
func extractToken(c *gin.Context) string {
	if q := c.Query("token"); q != "" {
		return q
	}
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
