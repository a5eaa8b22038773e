// dephealth.go — мониторинг внешних зависимостей через topologymetrics.
// Критичная зависимость одна: PostgreSQL с метаданными папок и файлов.
// JWKS проверяется только при включённой аутентификации.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	depPostgres = "postgresql"
	depJWKS     = "jwks"
)

// DephealthConfig — что и как часто проверять.
type DephealthConfig struct {
	ServiceID string
	Group     string
	// DB — обёртка над пулом приложения (stdlib.OpenDBFromPool)
	DB *sql.DB
	// PGConnURL — адрес без пароля, попадает в лейблы метрик
	PGConnURL string
	JWKSURL   string

	CheckInterval time.Duration
}

// DephealthService публикует app_dependency_* метрики и отдаёт
// текущее состояние зависимостей для /health/ready.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService регистрирует метрики в глобальном реестре Prometheus.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return buildDephealth(cfg, logger)
}

// NewDephealthServiceWithRegisterer регистрирует метрики в переданном реестре.
func NewDephealthServiceWithRegisterer(cfg DephealthConfig, logger *slog.Logger, reg prometheus.Registerer) (*DephealthService, error) {
	return buildDephealth(cfg, logger, dephealth.WithRegisterer(reg))
}

func buildDephealth(cfg DephealthConfig, logger *slog.Logger, extra ...dephealth.Option) (*DephealthService, error) {
	opts := append(dependencyOptions(cfg), dephealth.WithLogger(logger))
	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

func dependencyOptions(cfg DephealthConfig) []dephealth.Option {
	opts := []dephealth.Option{
		dephealth.AddDependency(depPostgres, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PGConnURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
	}
	if cfg.JWKSURL == "" {
		return opts
	}

	jwks := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.JWKSURL),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(false),
	}
	if path := jwksHealthPath(cfg.JWKSURL); path != "" {
		jwks = append(jwks, dephealth.WithHTTPHealthPath(path))
	}
	return append(opts, dephealth.HTTP(depJWKS, jwks...))
}

// jwksHealthPath — путь JWKS, по которому проверяется HTTP-зависимость.
// Пустая строка: проверяется корень сервера.
func jwksHealthPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}

func (ds *DephealthService) Start(ctx context.Context) error {
	if err := ds.dh.Start(ctx); err != nil {
		return err
	}
	ds.logger.Info("Мониторинг зависимостей запущен")
	return nil
}

func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health — имя зависимости и признак успешной последней проверки.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
