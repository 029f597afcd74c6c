package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"egobar/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de /auth.
type AuthHandler struct {
	logger        *zap.Logger
	accountServ   *service.AccountService
	authServ      *service.AuthService
	sessionServ   *service.SessionService
	appURL        string
	secureCookies bool
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, accountServ *service.AccountService, authServ *service.AuthService, sessionServ *service.SessionService, appURL string, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		logger:        logger,
		accountServ:   accountServ,
		authServ:      authServ,
		sessionServ:   sessionServ,
		appURL:        appURL,
		secureCookies: secureCookies,
	}
}

// Signup maneja POST /auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		Mobile          string `json:"mobile"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
		Birthday        string `json:"birthday"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.accountServ.Signup(c.Request.Context(), service.SignupInput{
		Username:        req.Username,
		Email:           req.Email,
		Mobile:          req.Mobile,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Birthday:        req.Birthday,
	})
	if err != nil {
		switch {
		case service.IsValidation(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("signup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create account"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "account created, check your email for the verification link",
		"account": account.Summary(),
	})
}

// VerifyEmail maneja GET /auth/verify-email.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	_, err := h.authServ.ConsumeVerificationToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("verify email failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify email"})
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("%s/signin?verified=true", h.appURL))
}

// ResendVerification maneja POST /auth/resend-verification.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid resend request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.authServ.ResendVerification(c.Request.Context(), req.Email)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "verification email resent"})
	case errors.Is(err, service.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no account found with this email"})
	case errors.Is(err, service.ErrAlreadyVerified):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmailSendFailure):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email delivery unavailable"})
	default:
		h.logger.Error("resend verification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resend verification"})
	}
}

// SignIn maneja POST /auth/signin: credenciales correctas despachan un OTP,
// la sesion recien se emite en verify-otp.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req struct {
		Contact  string `json:"contact" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signin request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.authServ.SignIn(c.Request.Context(), req.Contact, req.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "otp sent to your email"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, service.ErrUnverified):
		c.JSON(http.StatusForbidden, gin.H{"error": "please verify your email before signing in"})
	case errors.Is(err, service.ErrNoDeliveryChannel):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	case errors.Is(err, service.ErrEmailSendFailure):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email delivery unavailable"})
	default:
		h.logger.Error("signin failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign in"})
	}
}

// VerifyOTP maneja POST /auth/verify-otp y emite la cookie de sesion.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Contact string `json:"contact" binding:"required"`
		OTP     string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.authServ.VerifyOTP(c.Request.Context(), req.Contact, req.OTP)
	if err != nil {
		if errors.Is(err, service.ErrOTPInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("verify otp failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify otp"})
		return
	}

	token, err := h.sessionServ.Issue(account)
	if err != nil {
		h.logger.Error("session issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue session"})
		return
	}

	h.setSessionCookie(c, token)
	c.JSON(http.StatusOK, gin.H{
		"message": "otp verified successfully",
		"account": account.Summary(),
	})
}

// Logout maneja POST /auth/logout y POST /auth/signout: sobreescribe la
// cookie con un valor vacio ya expirado. No hay revocacion server-side.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// Me maneja GET /auth/me. Cualquier cookie inservible degrada a anonimo.
func (h *AuthHandler) Me(c *gin.Context) {
	session := GetSession(c)
	if session.State != service.SessionActive {
		c.JSON(http.StatusOK, gin.H{"account": nil})
		return
	}
	summary, err := h.accountServ.GetSummary(c.Request.Context(), session.AccountID)
	if err != nil {
		if !errors.Is(err, service.ErrAccountNotFound) {
			h.logger.Error("me lookup failed", zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{"account": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": summary})
}

// CheckUsername maneja GET /auth/check-username.
func (h *AuthHandler) CheckUsername(c *gin.Context) {
	h.check(c, h.accountServ.UsernameTaken)
}

// CheckEmail maneja GET /auth/check-email.
func (h *AuthHandler) CheckEmail(c *gin.Context) {
	h.check(c, h.accountServ.EmailTaken)
}

// CheckMobile maneja GET /auth/check-mobile.
func (h *AuthHandler) CheckMobile(c *gin.Context) {
	h.check(c, h.accountServ.MobileTaken)
}

func (h *AuthHandler) check(c *gin.Context, predicate func(context.Context, string) (bool, error)) {
	taken, err := predicate(c.Request.Context(), c.Query("value"))
	if err != nil {
		h.logger.Error("availability check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not check availability"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"taken": taken})
}

// UploadAvatar maneja POST /auth/upload-avatar (multipart, campo "avatar").
func (h *AuthHandler) UploadAvatar(c *gin.Context) {
	session := GetSession(c)

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("avatar open failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer file.Close()

	url, err := h.accountServ.SaveAvatar(c.Request.Context(), session.AccountID, fileHeader.Filename, file)
	if err != nil {
		h.logger.Error("avatar save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save avatar"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatar": url})
}

// DeleteAvatar maneja DELETE /auth/upload-avatar.
func (h *AuthHandler) DeleteAvatar(c *gin.Context) {
	session := GetSession(c)
	if err := h.accountServ.RemoveAvatar(c.Request.Context(), session.AccountID); err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("avatar removal failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove avatar"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatar": nil})
}

// Protected es una ruta de ejemplo detras de SessionRequired.
func (h *AuthHandler) Protected(c *gin.Context) {
	session := GetSession(c)
	c.JSON(http.StatusOK, gin.H{
		"message": "protected route accessed",
		"account": gin.H{"id": session.AccountID, "username": session.Username},
	})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(sessionCookieName, token, int(h.sessionServ.TTL().Seconds()), "/", "", h.secureCookies, true)
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(sessionCookieName, "", -1, "/", "", h.secureCookies, true)
}
