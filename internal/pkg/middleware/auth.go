package middleware

import (
	"net/http"
	"strings"

	"farm_community/pkg/response"
	"farm_community/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userID"
	ctxRole   = "role"
)

// AuthMiddleware JWT认证中间件，身份必填
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, response.ErrAuthFailed, "Authorization header is required")
			c.Abort()
			return
		}

		claims, ok := parseBearer(secret, authHeader)
		if !ok {
			response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// OptionalAuthMiddleware 有合法 token 时写入身份，没有时按匿名访问处理
func OptionalAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := parseBearer(secret, c.GetHeader("Authorization")); ok {
			c.Set(ctxUserID, claims.UserID)
			c.Set(ctxRole, claims.Role)
		}
		c.Next()
	}
}

func parseBearer(secret, header string) (*utils.Claims, bool) {
	// 检查格式 "Bearer <token>"
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}
	claims, err := utils.ParseToken(secret, parts[1])
	if err != nil {
		return nil, false
	}
	return claims, true
}

// CurrentUser 返回当前请求的用户 ID
func CurrentUser(c *gin.Context) (string, bool) {
	id := c.GetString(ctxUserID)
	return id, id != ""
}

// CurrentRole 返回当前请求的用户角色
func CurrentRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}
