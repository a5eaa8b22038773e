package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key"

// generateTestToken генерирует JWT токен для тестов.
func generateTestToken(t *testing.T, key *rsa.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return s
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

// newTestJWTAuth создаёт JWTAuth с RSA ключом для тестов.
func newTestJWTAuth(t *testing.T, issuer string) (*JWTAuth, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc из JWKS JSON: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewJWTAuthWithKeyfunc(kf, issuer, 0, logger), key
}

func validClaims(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    "https://idp.example/realms/iudx",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

// serve прогоняет запрос с указанным заголовком Authorization через middleware.
func serve(auth *JWTAuth, header string, next http.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/folders", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	auth.Middleware()(next).ServeHTTP(rec, req)
	return rec
}

func mustNotCall(t *testing.T) http.HandlerFunc {
	return func(http.ResponseWriter, *http.Request) {
		t.Error("handler не должен быть вызван")
	}
}

// TestJWTAuth_ValidToken проверяет, что sub валидного токена попадает в контекст.
func TestJWTAuth_ValidToken(t *testing.T) {
	auth, key := newTestJWTAuth(t, "")
	token := generateTestToken(t, key, validClaims("user-42"))

	rec := serve(auth, "Bearer "+token, func(w http.ResponseWriter, r *http.Request) {
		if sub := SubjectFromContext(r.Context()); sub != "user-42" {
			t.Errorf("ожидался sub=user-42, получен %q", sub)
		}
		w.WriteHeader(http.StatusOK)
	})

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
}

// TestJWTAuth_MissingToken проверяет отсутствие Authorization header.
func TestJWTAuth_MissingToken(t *testing.T) {
	auth, _ := newTestJWTAuth(t, "")
	rec := serve(auth, "", mustNotCall(t))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_ExpiredToken проверяет просроченный токен.
func TestJWTAuth_ExpiredToken(t *testing.T) {
	auth, key := newTestJWTAuth(t, "")
	claims := validClaims("user-42")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))

	rec := serve(auth, "Bearer "+generateTestToken(t, key, claims), mustNotCall(t))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_MissingSubject проверяет токен без sub.
func TestJWTAuth_MissingSubject(t *testing.T) {
	auth, key := newTestJWTAuth(t, "")
	rec := serve(auth, "Bearer "+generateTestToken(t, key, validClaims("")), mustNotCall(t))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_WrongIssuer проверяет отклонение токена чужого issuer.
func TestJWTAuth_WrongIssuer(t *testing.T) {
	auth, key := newTestJWTAuth(t, "https://other.example")
	rec := serve(auth, "Bearer "+generateTestToken(t, key, validClaims("user-42")), mustNotCall(t))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_ForeignKey проверяет токен, подписанный неизвестным ключом.
func TestJWTAuth_ForeignKey(t *testing.T) {
	auth, _ := newTestJWTAuth(t, "")
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	rec := serve(auth, "Bearer "+generateTestToken(t, other, validClaims("user-42")), mustNotCall(t))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_InvalidFormat проверяет некорректный формат Authorization.
func TestJWTAuth_InvalidFormat(t *testing.T) {
	auth, _ := newTestJWTAuth(t, "")

	tests := []struct {
		name   string
		header string
	}{
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"no bearer prefix", "token123"},
		{"empty token", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(auth, tt.header, mustNotCall(t))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
		})
	}
}

// TestBearerToken проверяет разбор заголовка Authorization.
func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		err    error
	}{
		{"Bearer abc", "abc", nil},
		{"bearer  abc ", "abc", nil},
		{"", "", errNoAuthHeader},
		{"Basic abc", "", errNotBearer},
		{"Bearer", "", errNotBearer},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, err := bearerToken(req)
		if got != tt.want || !errors.Is(err, tt.err) {
			t.Errorf("bearerToken(%q) = %q, %v; ожидалось %q, %v", tt.header, got, err, tt.want, tt.err)
		}
	}
}

// TestJWKSClient_CACert проверяет ошибки загрузки собственного CA.
func TestJWKSClient_CACert(t *testing.T) {
	if _, err := jwksClient(filepath.Join(t.TempDir(), "missing.pem"), false, time.Second); err == nil {
		t.Error("ожидалась ошибка для отсутствующего файла CA")
	}

	notPEM := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(notPEM, []byte("не сертификат"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := jwksClient(notPEM, false, time.Second); err == nil {
		t.Error("ожидалась ошибка для файла без PEM")
	}

	client, err := jwksClient("", true, 3*time.Second)
	if err != nil {
		t.Fatalf("jwksClient без CA: %v", err)
	}
	if client.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v", client.Timeout)
	}
}
