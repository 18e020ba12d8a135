package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"Giorgio/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

const ownerKey = "ownerID"

// AuthMiddleware 验证 HS256 签名的 Bearer token，并把 sub 作为 ownerId 放入上下文。
// WebSocket 客户端无法设置请求头，可以改用 token 查询参数。
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权标头"})
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("非预期的签名方法")
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
			return
		}
		ownerID, ok := subject(claims["sub"])
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的 token claims"})
			return
		}
		c.Set(ownerKey, ownerID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if t := c.Query("token"); t != "" {
			return t, true
		}
		return "", false
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// subject 接受字符串或数字形式的 sub。JWT 解析数字时默认为 float64。
func subject(v interface{}) (string, bool) {
	switch sub := v.(type) {
	case string:
		if strings.TrimSpace(sub) == "" {
			return "", false
		}
		return sub, true
	case float64:
		return strconv.FormatInt(int64(sub), 10), true
	default:
		return "", false
	}
}

// OwnerRateLimit 在认证之后按 ownerId 限流。
func OwnerRateLimit(limiter ratelimiter.KeyedRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.AllowKey(c.GetString(ownerKey)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁"})
			return
		}
		c.Next()
	}
}

func ownerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
