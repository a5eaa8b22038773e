package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
)

// JWTAuthConfig — параметры JWKS и проверки токенов.
type JWTAuthConfig struct {
	JWKSURL string
	// CACertPath — PEM с CA для JWKS endpoint, дополняет системный пул
	CACertPath    string
	TLSSkipVerify bool
	// Issuer — ожидаемый iss (пусто — не проверяется)
	Issuer          string
	ClientTimeout   time.Duration
	RefreshInterval time.Duration
	JWTLeeway       time.Duration
}

// NewJWTAuth создаёт проверку токенов по ключам из JWKS endpoint.
// Недоступный при старте endpoint не считается ошибкой: ключи
// подтянутся при следующем обновлении.
func NewJWTAuth(cfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	client, err := jwksClient(cfg.CACertPath, cfg.TLSSkipVerify, cfg.ClientTimeout)
	if err != nil {
		return nil, err
	}

	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    client,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Не удалось обновить JWKS",
				slog.String("url", cfg.JWKSURL),
				slog.String("error", err.Error()),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("JWKS storage %s: %w", cfg.JWKSURL, err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("keyfunc: %w", err)
	}
	return NewJWTAuthWithKeyfunc(kf, cfg.Issuer, cfg.JWTLeeway, logger), nil
}

// jwksClient собирает HTTP-клиент для JWKS с необязательным собственным CA.
func jwksClient(caPath string, skipVerify bool, timeout time.Duration) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: skipVerify, //nolint:gosec // FM_TLS_SKIP_VERIFY
	}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("чтение CA %s: %w", caPath, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("в %s нет PEM-сертификатов", caPath)
		}
		tlsCfg.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}
