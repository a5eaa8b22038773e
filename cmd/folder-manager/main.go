// Точка входа folder-manager — сервиса папок, файлов и артефактов их обработки.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/preetgupta-32/folder-manager-iudx/internal/api/handlers"
	"github.com/preetgupta-32/folder-manager-iudx/internal/api/middleware"
	"github.com/preetgupta-32/folder-manager-iudx/internal/api/openapi"
	"github.com/preetgupta-32/folder-manager-iudx/internal/config"
	"github.com/preetgupta-32/folder-manager-iudx/internal/database"
	"github.com/preetgupta-32/folder-manager-iudx/internal/repository"
	"github.com/preetgupta-32/folder-manager-iudx/internal/server"
	"github.com/preetgupta-32/folder-manager-iudx/internal/service"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/artifact"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/filestore"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/naming"
)

const serviceID = "folder-manager"

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("folder-manager запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("digest_scope", string(cfg.DigestScope)),
		slog.Bool("auth", cfg.AuthEnabled()),
	)

	ctx := context.Background()

	// --- Инициализация компонентов ---

	// 1. Миграции и пул подключений PostgreSQL
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций", slog.String("error", err.Error()))
		os.Exit(1)
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 2. Хранилища: сырые файлы и каталоги артефактов
	rawStore, err := filestore.New(cfg.UploadDir, cfg.MaxFileSize)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища файлов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	artifacts, err := artifact.New(cfg.ArtifactDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища артефактов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Репозитории и сервисы
	fileRepo := repository.NewFileRepository(pool)
	folderRepo := repository.NewFolderRepository(pool)
	digests := naming.NewResolver(cfg.DigestScope)

	resolver := service.NewStatusResolver(artifacts, digests)
	aggregator := service.NewAggregator(resolver)
	cache := service.NewRecordCache(cfg.CacheSize, cfg.CacheTTL)
	initializer := service.NewInitializer(artifacts, fileRepo, resolver, logger)
	processingSvc := service.NewProcessingService(fileRepo, artifacts, resolver, initializer, cache, logger)
	fileSvc := service.NewFileService(fileRepo, folderRepo, rawStore, processingSvc, cache, logger)
	folderSvc := service.NewFolderService(folderRepo, fileRepo, fileSvc, aggregator, cache, logger)
	statsSvc := service.NewStatsService(folderRepo, fileRepo, aggregator)

	// 4. Фоновые процессы

	// 4.1 Сверка каталогов артефактов
	reconcileSvc := service.NewReconcileService(fileRepo, artifacts, digests, cfg.ReconcileInterval, logger)
	if cfg.ReconcileInterval > 0 {
		reconcileSvc.Start(ctx)
	}

	// 4.2 topologymetrics — мониторинг зависимостей
	var depHealth handlers.DependencyHealth
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     serviceID,
		Group:         cfg.DephealthGroup,
		DB:            stdlib.OpenDBFromPool(pool),
		PGConnURL:     cfg.DatabaseURL(),
		JWKSURL:       cfg.JWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		depHealth = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 5. OpenAPI-контракт
	if _, err := openapi.Load(ctx); err != nil {
		logger.Error("Некорректный OpenAPI-контракт", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Handlers
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		handlers.NewDirChecker(cfg.UploadDir, cfg.ArtifactDir),
		depHealth,
	)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		fileSvc,
		folderSvc,
		processingSvc,
		statsSvc,
		reconcileSvc,
		openapi.Handler(),
		logger,
	)

	// 7. Middleware: метрики и логирование снаружи, JWT внутри
	mws := []func(next http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}
	if cfg.AuthEnabled() {
		jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSURL,
			CACertPath:      cfg.JWKSCACert,
			TLSSkipVerify:   cfg.TLSSkipVerify,
			Issuer:          cfg.JWTIssuer,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка инициализации JWT", slog.String("error", err.Error()))
			os.Exit(1)
		}
		mws = append(mws, server.JWTAuthWithExclusions(jwtAuth.Middleware(),
			"/health/", "/metrics", "/api/v1/openapi.yaml"))
		logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWKSURL))
	} else {
		logger.Warn("FM_JWKS_URL не задан, запуск без аутентификации")
	}

	// 8. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, mws...)
	runErr := srv.Run()

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	if cfg.ReconcileInterval > 0 {
		reconcileSvc.Stop()
	}
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		pool.Close()
		os.Exit(1)
	}
	logger.Info("folder-manager остановлен")
}
