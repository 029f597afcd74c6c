package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"egobar/internal/service"
)

const sessionCookieName = "token"

const sessionResultKey = "session_result"

// SessionReaderMiddleware lee la cookie de sesion en toda request y guarda
// el resultado en el contexto. No rechaza nada por si mismo.
func SessionReaderMiddleware(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(sessionCookieName)
		if err != nil {
			token = ""
		}
		c.Set(sessionResultKey, sessions.Read(token))
		c.Next()
	}
}

// GetSession obtiene el resultado de sesion dejado por el reader.
func GetSession(c *gin.Context) service.SessionResult {
	val, ok := c.Get(sessionResultKey)
	if !ok {
		return service.SessionResult{State: service.SessionNone}
	}
	result, ok := val.(service.SessionResult)
	if !ok {
		return service.SessionResult{State: service.SessionNone}
	}
	return result
}

// SessionRequired corta con 401 toda request sin sesion activa. Una cookie
// presente pero rechazada se loguea distinto de una ausente.
func SessionRequired(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := GetSession(c)
		if result.State != service.SessionActive {
			if result.State == service.SessionRejected {
				logger.Warn("rejected session credential",
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
				)
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
