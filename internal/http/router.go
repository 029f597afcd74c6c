package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"egobar/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas de auth.
// uploadsDir, si no es vacio, se sirve como /uploads (backend local).
func NewRouter(
	logger *zap.Logger,
	sessions *service.SessionService,
	authH *AuthHandler,
	uploadsDir string,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y lectura de sesion.
	// La lectura de sesion nunca corta la request: deja el resultado en el
	// contexto y cada ruta decide si el anonimato alcanza.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), SessionReaderMiddleware(sessions))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/auth")
	auth.POST("/signup", authH.Signup)
	auth.GET("/verify-email", authH.VerifyEmail)
	auth.POST("/resend-verification", authH.ResendVerification)
	auth.POST("/signin", authH.SignIn)
	auth.POST("/verify-otp", authH.VerifyOTP)
	auth.POST("/logout", authH.Logout)
	auth.POST("/signout", authH.Logout)
	auth.GET("/me", authH.Me)
	auth.GET("/check-username", authH.CheckUsername)
	auth.GET("/check-email", authH.CheckEmail)
	auth.GET("/check-mobile", authH.CheckMobile)
	auth.POST("/upload-avatar", SessionRequired(logger), authH.UploadAvatar)
	auth.DELETE("/upload-avatar", SessionRequired(logger), authH.DeleteAvatar)

	r.GET("/protected", SessionRequired(logger), authH.Protected)

	if uploadsDir != "" {
		r.Static("/uploads", uploadsDir)
	}

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
