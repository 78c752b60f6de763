package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"taskboard/internal/model"
	"taskboard/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// Context keys set on success.
const (
	CtxUserKey  = "currentUser" // *model.User
	CtxTokenKey = "token"       // 本次请求携带的原始 token 字符串
)

// AuthMiddleware 校验 Bearer token 并把当前用户放入上下文。
//
// 签名/过期校验之外还要求该 token 仍存在于 session_tokens 表中：
// 结构上有效但已被登出吊销的 token 同样拒绝。所有失败返回同一个
// 泛化的 401，不区分缺失、过期或吊销。
func AuthMiddleware(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			reject(c)
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			reject(c)
			return
		}

		tokenStr := parts[1]
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			reject(c)
			return
		}

		uid, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			reject(c)
			return
		}

		// 吊销检查：登出会删除对应行
		var session model.SessionToken
		if err := db.Where("token = ? AND user_id = ?", tokenStr, uint(uid)).First(&session).Error; err != nil {
			reject(c)
			return
		}

		var user model.User
		if err := db.First(&user, uint(uid)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				reject(c)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load user failed"})
			c.Abort()
			return
		}

		c.Set(CtxUserKey, &user)
		c.Set(CtxTokenKey, tokenStr)
		c.Next()
	}
}

func reject(c *gin.Context) {
	metrics.AuthRejectedTotal.Inc()
	c.JSON(http.StatusUnauthorized, gin.H{"error": "please authenticate"})
	c.Abort()
}

// CurrentUser 取出鉴权中间件放入的用户，不存在时返回 nil。
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	user, ok := v.(*model.User)
	if !ok {
		return nil
	}
	return user
}

// CurrentToken 取出本次请求携带的原始 token 字符串。
func CurrentToken(c *gin.Context) string {
	v, ok := c.Get(CtxTokenKey)
	if !ok {
		return ""
	}
	token, _ := v.(string)
	return token
}
