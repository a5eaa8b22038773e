// Пакет server — HTTP-сервер folder-manager.
// TLS не поддерживается, терминация на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/preetgupta-32/folder-manager-iudx/internal/api/errors"
	"github.com/preetgupta-32/folder-manager-iudx/internal/config"
)

// Routes регистрирует маршруты API на роутере.
type Routes interface {
	Routes(r chi.Router)
}

// Middleware — обёртка над http.Handler.
type Middleware = func(http.Handler) http.Handler

// Server оборачивает http.Server и останавливает его по SIGINT/SIGTERM.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New создаёт сервер. Middleware применяются в порядке передачи:
// первый в срезе оказывается самым внешним.
func New(cfg *config.Config, logger *slog.Logger, routes Routes, mws ...Middleware) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort("", strconv.Itoa(cfg.Port)),
			Handler:      NewRouter(routes, mws...),
			ReadTimeout:  cfg.HTTPReadTimeout,
			WriteTimeout: cfg.HTTPWriteTimeout,
			IdleTimeout:  cfg.HTTPIdleTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger.With(slog.String("component", "http_server")),
	}
}

// NewRouter собирает chi-роутер. Неизвестные пути и методы получают
// ответ в общем формате ошибок API.
func NewRouter(routes Routes, mws ...Middleware) chi.Router {
	router := chi.NewRouter()
	router.Use(mws...)
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден: "+r.URL.Path)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierrors.MethodNotAllowed(w, "Метод "+r.Method+" не поддерживается для "+r.URL.Path)
	})
	routes.Routes(router)
	return router
}

// JWTAuthWithExclusions применяет mw ко всем путям, кроме начинающихся
// с одного из публичных префиксов.
func JWTAuthWithExclusions(mw Middleware, publicPrefixes ...string) Middleware {
	return func(next http.Handler) http.Handler {
		protected := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path, publicPrefixes) {
				next.ServeHTTP(w, r)
				return
			}
			protected.ServeHTTP(w, r)
		})
	}
}

func isPublic(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Run блокируется до сигнала завершения или ошибки ListenAndServe,
// после сигнала ждёт завершения активных запросов не дольше shutdownTimeout.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.serve(ctx)
}

func (s *Server) serve(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ошибка HTTP-сервера: %w", err)
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения, остановка HTTP-сервера",
			slog.Duration("timeout", s.shutdownTimeout),
		)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}
	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
