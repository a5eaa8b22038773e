// auth.go — идентификация вызывающего по JWT (RS256, ключи из JWKS).
// Роли не проверяются: из токена нужен только sub, который становится
// владельцем создаваемых папок и загружаемых файлов.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/preetgupta-32/folder-manager-iudx/internal/api/errors"
)

type contextKey string

// ContextKeySubject — ключ sub в контексте запроса.
const ContextKeySubject contextKey = "jwt_subject"

var (
	errNoAuthHeader   = errors.New("отсутствует заголовок Authorization")
	errNotBearer      = errors.New("ожидается заголовок Authorization: Bearer <token>")
	errInvalidToken   = errors.New("невалидный или просроченный токен")
	errNoTokenSubject = errors.New("в токене отсутствует sub")
)

// JWTAuth проверяет Bearer-токены.
type JWTAuth struct {
	keys   keyfunc.Keyfunc
	opts   []jwt.ParserOption
	logger *slog.Logger
}

// NewJWTAuthWithKeyfunc создаёт проверку с готовым источником ключей
// (в тестах — JWKS из памяти).
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer string, leeway time.Duration, logger *slog.Logger) *JWTAuth {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTAuth{
		keys:   kf,
		opts:   opts,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// bearerToken достаёт токен из заголовка Authorization.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoAuthHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errNotBearer
	}
	return strings.TrimSpace(token), nil
}

// authenticate возвращает sub проверенного токена.
func (j *JWTAuth) authenticate(r *http.Request) (string, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return "", err
	}

	var claims jwt.RegisteredClaims
	if _, err := jwt.ParseWithClaims(raw, &claims, j.keys.KeyfuncCtx(r.Context()), j.opts...); err != nil {
		j.logger.Debug("Токен отклонён",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return "", errInvalidToken
	}
	if claims.Subject == "" {
		return "", errNoTokenSubject
	}
	return claims.Subject, nil
}

// Middleware отвечает 401 на запросы без валидного токена
// и кладёт sub в контекст остальных.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := j.authenticate(r)
			if err != nil {
				apierrors.Unauthorized(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

// SubjectFromContext возвращает sub вызывающего или "" без аутентификации.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}

// WithSubject кладёт sub в контекст.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextKeySubject, subject)
}
