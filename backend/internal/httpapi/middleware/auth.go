package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"syncServer/backend/internal/auth"
)

// AuthMiddleware 从 Authorization: Bearer 或 ?token= 提取令牌，
// 校验通过后把 userId/username 写入 gin.Context 供下游读取。
// WebSocket 握手走的是浏览器原生 API，带不了自定义 header，所以保留 query 形式。
func AuthMiddleware(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenString = strings.TrimPrefix(h, "Bearer ")
		}
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := tokens.ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userId", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}
