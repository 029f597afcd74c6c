package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"egobar/internal/domain"
	"egobar/internal/repository"
	"egobar/internal/service"
	"egobar/internal/storage"
)

type mockAccountRepo struct {
	byID map[string]domain.Account
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{byID: make(map[string]domain.Account)}
}

func (m *mockAccountRepo) Create(_ context.Context, account domain.Account) error {
	for _, existing := range m.byID {
		if existing.Username == account.Username ||
			(account.Email != "" && existing.Email == account.Email) ||
			(account.Mobile != "" && existing.Mobile == account.Mobile) {
			return repository.ErrDuplicate
		}
	}
	m.byID[account.ID] = account
	return nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id string) (domain.Account, error) {
	account, ok := m.byID[id]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return account, nil
}

func (m *mockAccountRepo) GetByUsername(_ context.Context, username string) (domain.Account, error) {
	return m.find(func(a domain.Account) bool { return a.Username == username })
}

func (m *mockAccountRepo) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	return m.find(func(a domain.Account) bool { return a.Email != "" && a.Email == email })
}

func (m *mockAccountRepo) GetByContact(_ context.Context, contact string) (domain.Account, error) {
	return m.find(func(a domain.Account) bool {
		return (a.Email != "" && a.Email == contact) || (a.Mobile != "" && a.Mobile == contact)
	})
}

func (m *mockAccountRepo) GetByVerificationToken(_ context.Context, token string, now time.Time) (domain.Account, error) {
	return m.find(func(a domain.Account) bool {
		return a.Verification != nil && a.Verification.Value == token && now.Before(a.Verification.ExpiresAt)
	})
}

func (m *mockAccountRepo) SetVerificationSecret(_ context.Context, id string, secret domain.Secret) error {
	return m.update(id, func(a *domain.Account) { a.Verification = &secret })
}

func (m *mockAccountRepo) MarkVerified(_ context.Context, id string) error {
	return m.update(id, func(a *domain.Account) {
		a.Verified = true
		a.Verification = nil
	})
}

func (m *mockAccountRepo) SetOTPSecret(_ context.Context, id string, secret domain.Secret) error {
	return m.update(id, func(a *domain.Account) { a.OTP = &secret })
}

func (m *mockAccountRepo) ClearOTPSecret(_ context.Context, id string) error {
	return m.update(id, func(a *domain.Account) { a.OTP = nil })
}

func (m *mockAccountRepo) SetAvatar(_ context.Context, id, avatar string) error {
	return m.update(id, func(a *domain.Account) { a.Avatar = avatar })
}

func (m *mockAccountRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := m.GetByUsername(ctx, username)
	return err == nil, nil
}

func (m *mockAccountRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m *mockAccountRepo) MobileExists(_ context.Context, mobile string) (bool, error) {
	_, err := m.find(func(a domain.Account) bool { return a.Mobile != "" && a.Mobile == mobile })
	return err == nil, nil
}

func (m *mockAccountRepo) find(match func(domain.Account) bool) (domain.Account, error) {
	for _, account := range m.byID {
		if match(account) {
			return account, nil
		}
	}
	return domain.Account{}, pgx.ErrNoRows
}

func (m *mockAccountRepo) update(id string, apply func(*domain.Account)) error {
	account, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	apply(&account)
	m.byID[id] = account
	return nil
}

type mockSender struct {
	linkURL   string
	linkCalls int
	otpCode   string
	otpCalls  int
}

func (m *mockSender) SendVerificationLink(_ context.Context, _, _, verifyURL string, _ time.Time) error {
	m.linkCalls++
	m.linkURL = verifyURL
	return nil
}

func (m *mockSender) SendLoginOTP(_ context.Context, _, code string, _ time.Time) error {
	m.otpCalls++
	m.otpCode = code
	return nil
}

const testAppURL = "http://localhost:8080"

type testEnv struct {
	repo   *mockAccountRepo
	sender *mockSender
	router *gin.Engine
}

func setupAuthRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	repo := newMockAccountRepo()
	sender := &mockSender{}
	avatars := storage.NewLocalAvatarStore(t.TempDir())
	sessions := service.NewSessionService("test-secret")
	accountSvc := service.NewAccountService(logger, repo, sender, avatars, testAppURL)
	authSvc := service.NewAuthService(logger, repo, sender, service.NewOTPRateLimiter(time.Minute, 100), testAppURL)
	handler := NewAuthHandler(logger, accountSvc, authSvc, sessions, testAppURL, false)
	return &testEnv{
		repo:   repo,
		sender: sender,
		router: NewRouter(logger, sessions, handler, ""),
	}
}

func (env *testEnv) doJSON(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func signupBody() map[string]string {
	return map[string]string{
		"username":        "alice",
		"email":           "a@x.com",
		"password":        "Abc12345!",
		"confirmPassword": "Abc12345!",
		"birthday":        "2000-01-01",
	}
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "token" {
			return cookie
		}
	}
	t.Fatalf("expected session cookie in response")
	return nil
}

func TestAuthFlowEndToEnd(t *testing.T) {
	env := setupAuthRouter(t)

	// Registro: cuenta creada sin verificar, link de verificacion enviado.
	w := env.doJSON(http.MethodPost, "/auth/signup", signupBody())
	if w.Code != http.StatusOK {
		t.Fatalf("signup: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if env.sender.linkCalls != 1 {
		t.Fatalf("expected verification email sent")
	}
	stored, err := env.repo.GetByEmail(context.Background(), "a@x.com")
	if err != nil || stored.Verified {
		t.Fatalf("expected unverified account stored, got %+v err=%v", stored, err)
	}

	// Sign-in antes de verificar: 403.
	w = env.doJSON(http.MethodPost, "/auth/signin", map[string]string{"contact": "a@x.com", "password": "Abc12345!"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("signin unverified: expected 403, got %d", w.Code)
	}

	// Verificacion por link: redirect y cuenta verificada.
	token := stored.Verification.Value
	w = env.doJSON(http.MethodGet, "/auth/verify-email?token="+token, nil)
	if w.Code != http.StatusFound {
		t.Fatalf("verify-email: expected 302, got %d (%s)", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != testAppURL+"/signin?verified=true" {
		t.Fatalf("unexpected redirect %q", loc)
	}
	stored, _ = env.repo.GetByEmail(context.Background(), "a@x.com")
	if !stored.Verified || stored.Verification != nil {
		t.Fatalf("expected verified account with cleared token, got %+v", stored)
	}

	// Replay del mismo token: 400.
	w = env.doJSON(http.MethodGet, "/auth/verify-email?token="+token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("verify-email replay: expected 400, got %d", w.Code)
	}

	// Password incorrecta: 401 generico.
	w = env.doJSON(http.MethodPost, "/auth/signin", map[string]string{"contact": "a@x.com", "password": "Abc12345?"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("signin wrong password: expected 401, got %d", w.Code)
	}

	// Credenciales correctas: OTP despachado.
	w = env.doJSON(http.MethodPost, "/auth/signin", map[string]string{"contact": "a@x.com", "password": "Abc12345!"})
	if w.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if env.sender.otpCalls != 1 {
		t.Fatalf("expected otp email sent")
	}

	// OTP incorrecto: 400 y el vigente sigue valiendo.
	wrong := "000000"
	if wrong == env.sender.otpCode {
		wrong = "000001"
	}
	w = env.doJSON(http.MethodPost, "/auth/verify-otp", map[string]string{"contact": "a@x.com", "otp": wrong})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("verify-otp wrong: expected 400, got %d", w.Code)
	}

	// OTP correcto: cookie de sesion con los atributos esperados.
	w = env.doJSON(http.MethodPost, "/auth/verify-otp", map[string]string{"contact": "a@x.com", "otp": env.sender.otpCode})
	if w.Code != http.StatusOK {
		t.Fatalf("verify-otp: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	cookie := sessionCookie(t, w)
	if cookie.Value == "" || !cookie.HttpOnly {
		t.Fatalf("expected non-empty http-only cookie, got %+v", cookie)
	}
	if cookie.MaxAge != 3600 {
		t.Fatalf("expected 1h cookie, got max-age %d", cookie.MaxAge)
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected same-site strict, got %v", cookie.SameSite)
	}

	// Reuso del mismo OTP: 400 (slot limpiado).
	w = env.doJSON(http.MethodPost, "/auth/verify-otp", map[string]string{"contact": "a@x.com", "otp": env.sender.otpCode})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("verify-otp replay: expected 400, got %d", w.Code)
	}

	// /auth/me con cookie: perfil publico de alice.
	w = env.doJSON(http.MethodGet, "/auth/me", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", w.Code)
	}
	var meResp struct {
		Account *domain.Summary `json:"account"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &meResp); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	if meResp.Account == nil || meResp.Account.Username != "alice" {
		t.Fatalf("expected alice profile, got %+v", meResp.Account)
	}

	// /auth/me sin cookie: anonimo, nunca error.
	w = env.doJSON(http.MethodGet, "/auth/me", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me anonymous: expected 200, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &meResp); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	if meResp.Account != nil {
		t.Fatalf("expected null account without cookie, got %+v", meResp.Account)
	}

	// Logout: cookie sobreescrita ya expirada.
	w = env.doJSON(http.MethodPost, "/auth/logout", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	cleared := sessionCookie(t, w)
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("expected cleared expired cookie, got %+v", cleared)
	}
}

func TestSignupValidationAndConflict(t *testing.T) {
	env := setupAuthRouter(t)

	body := signupBody()
	delete(body, "email")
	w := env.doJSON(http.MethodPost, "/auth/signup", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without contact, got %d", w.Code)
	}

	if w = env.doJSON(http.MethodPost, "/auth/signup", signupBody()); w.Code != http.StatusOK {
		t.Fatalf("expected signup ok, got %d", w.Code)
	}
	if w = env.doJSON(http.MethodPost, "/auth/signup", signupBody()); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", w.Code)
	}
}

func TestResendVerification(t *testing.T) {
	env := setupAuthRouter(t)

	if w := env.doJSON(http.MethodPost, "/auth/signup", signupBody()); w.Code != http.StatusOK {
		t.Fatalf("signup failed: %d", w.Code)
	}

	w := env.doJSON(http.MethodPost, "/auth/resend-verification", map[string]string{"email": "nobody@x.com"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown email, got %d", w.Code)
	}

	w = env.doJSON(http.MethodPost, "/auth/resend-verification", map[string]string{"email": "a@x.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if env.sender.linkCalls != 2 {
		t.Fatalf("expected second verification email, got %d", env.sender.linkCalls)
	}

	stored, _ := env.repo.GetByEmail(context.Background(), "a@x.com")
	w = env.doJSON(http.MethodGet, "/auth/verify-email?token="+stored.Verification.Value, nil)
	if w.Code != http.StatusFound {
		t.Fatalf("verify after resend failed: %d", w.Code)
	}

	w = env.doJSON(http.MethodPost, "/auth/resend-verification", map[string]string{"email": "a@x.com"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 once verified, got %d", w.Code)
	}
}

func TestAvailabilityChecks(t *testing.T) {
	env := setupAuthRouter(t)

	if w := env.doJSON(http.MethodPost, "/auth/signup", signupBody()); w.Code != http.StatusOK {
		t.Fatalf("signup failed: %d", w.Code)
	}

	cases := []struct {
		path  string
		taken bool
	}{
		{"/auth/check-username?value=alice", true},
		{"/auth/check-username?value=bob", false},
		{"/auth/check-email?value=a@x.com", true},
		{"/auth/check-email?value=b@x.com", false},
		{"/auth/check-mobile?value=%2B12025550123", false},
		{"/auth/check-username", false},
	}
	for _, tc := range cases {
		w := env.doJSON(http.MethodGet, tc.path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.path, w.Code)
		}
		var resp struct {
			Taken bool `json:"taken"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", tc.path, err)
		}
		if resp.Taken != tc.taken {
			t.Fatalf("%s: expected taken=%v, got %v", tc.path, tc.taken, resp.Taken)
		}
	}
}

func TestAvatarUpload(t *testing.T) {
	env := setupAuthRouter(t)
	cookie := signInAlice(t, env)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", "me.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write([]byte("png-bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	_ = mw.Close()

	// Sin sesion: 401.
	req := httptest.NewRequest(http.MethodPost, "/auth/upload-avatar", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", w.Code)
	}

	// Cookie basura: tambien 401.
	req = httptest.NewRequest(http.MethodPost, "/auth/upload-avatar", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: "token", Value: "garbage"})
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with malformed cookie, got %d", w.Code)
	}

	// Con sesion: guarda y referencia en la cuenta.
	req = httptest.NewRequest(http.MethodPost, "/auth/upload-avatar", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		Avatar string `json:"avatar"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	stored, _ := env.repo.GetByEmail(context.Background(), "a@x.com")
	if stored.Avatar == "" || stored.Avatar != resp.Avatar {
		t.Fatalf("expected avatar reference stored, account=%q response=%q", stored.Avatar, resp.Avatar)
	}

	// DELETE limpia la referencia.
	w = env.doJSON(http.MethodDelete, "/auth/upload-avatar", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", w.Code)
	}
	stored, _ = env.repo.GetByEmail(context.Background(), "a@x.com")
	if stored.Avatar != "" {
		t.Fatalf("expected avatar cleared, got %q", stored.Avatar)
	}
}

// signInAlice registra, verifica y completa el flujo OTP devolviendo la cookie.
func signInAlice(t *testing.T, env *testEnv) *http.Cookie {
	t.Helper()
	if w := env.doJSON(http.MethodPost, "/auth/signup", signupBody()); w.Code != http.StatusOK {
		t.Fatalf("signup failed: %d (%s)", w.Code, w.Body.String())
	}
	stored, err := env.repo.GetByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("account not stored: %v", err)
	}
	if w := env.doJSON(http.MethodGet, "/auth/verify-email?token="+stored.Verification.Value, nil); w.Code != http.StatusFound {
		t.Fatalf("verify-email failed: %d", w.Code)
	}
	if w := env.doJSON(http.MethodPost, "/auth/signin", map[string]string{"contact": "a@x.com", "password": "Abc12345!"}); w.Code != http.StatusOK {
		t.Fatalf("signin failed: %d", w.Code)
	}
	w := env.doJSON(http.MethodPost, "/auth/verify-otp", map[string]string{"contact": "a@x.com", "otp": env.sender.otpCode})
	if w.Code != http.StatusOK {
		t.Fatalf("verify-otp failed: %d (%s)", w.Code, w.Body.String())
	}
	return sessionCookie(t, w)
}

func TestVerifyOTPWithoutPriorSignIn(t *testing.T) {
	env := setupAuthRouter(t)
	if w := env.doJSON(http.MethodPost, "/auth/signup", signupBody()); w.Code != http.StatusOK {
		t.Fatalf("signup failed: %d", w.Code)
	}

	w := env.doJSON(http.MethodPost, "/auth/verify-otp", map[string]string{"contact": "a@x.com", "otp": "123456"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without outstanding otp, got %d", w.Code)
	}
}

func TestVerifyEmailWithoutToken(t *testing.T) {
	env := setupAuthRouter(t)
	w := env.doJSON(http.MethodGet, "/auth/verify-email", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", w.Code)
	}
	w = env.doJSON(http.MethodGet, fmt.Sprintf("/auth/verify-email?token=%s", "bogus"), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown token, got %d", w.Code)
	}
}
