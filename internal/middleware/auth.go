package middleware

import (
	"strings"

	"agenda_backend/internal/config"
	"agenda_backend/internal/logger"
	"agenda_backend/pkg/apperrors"
	"agenda_backend/pkg/contextkeys"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware проверяет Bearer-токен и кладет user id в контекст.
// Токены выпускает внешний сервис аутентификации, здесь только проверка
// подписи и срока действия.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Authorization header is missing or malformed"))
			c.Abort()
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := jwt.MapClaims{}

		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(config.GetConfig().JWT.Secret), nil
		})
		if err != nil || !token.Valid {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Invalid or expired token"))
			c.Abort()
			return
		}

		userID, _ := claims["sub"].(string)
		if userID == "" {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Token has no subject"))
			c.Abort()
			return
		}

		c.Set(string(contextkeys.UserIDContextKey), userID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// GetUserID извлекает user id, положенный AuthMiddleware.
func GetUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(string(contextkeys.UserIDContextKey))
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
