// handler.go — основной обработчик API folder-manager.
// Объединяет health и бизнес-обработчики, регистрирует маршруты на chi-роутере.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/preetgupta-32/folder-manager-iudx/internal/api/errors"
	"github.com/preetgupta-32/folder-manager-iudx/internal/api/middleware"
	"github.com/preetgupta-32/folder-manager-iudx/internal/service"
)

// maxJSONBody — лимит тела JSON-запроса (чанк, конфиг, запись inference).
const maxJSONBody = 64 << 20

// ReconcileRunner — интерфейс для запуска сверки артефактов.
// Позволяет тестировать handler без полного ReconcileService.
type ReconcileRunner interface {
	// RunOnce выполняет одну сверку; remove — удалять осиротевшие каталоги.
	RunOnce(ctx context.Context, remove bool) (*service.ReconcileResult, error)
}

// APIHandler — основной обработчик API folder-manager.
type APIHandler struct {
	health     *HealthHandler
	files      *service.FileService
	folders    *service.FolderService
	processing *service.ProcessingService
	stats      *service.StatsService
	reconciler ReconcileRunner
	spec       http.Handler
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// reconciler и spec могут быть nil: сверка вернёт 503, контракт не отдаётся.
func NewAPIHandler(
	health *HealthHandler,
	files *service.FileService,
	folders *service.FolderService,
	processing *service.ProcessingService,
	stats *service.StatsService,
	reconciler ReconcileRunner,
	spec http.Handler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		files:      files,
		folders:    folders,
		processing: processing,
		stats:      stats,
		reconciler: reconciler,
		spec:       spec,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// Routes регистрирует все маршруты API.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)
	if h.spec != nil {
		r.Method(http.MethodGet, "/api/v1/openapi.yaml", h.spec)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/folders", func(r chi.Router) {
			r.Get("/", h.ListFolders)
			r.Post("/", h.CreateFolder)
			r.Route("/{folder_id}", func(r chi.Router) {
				r.Use(requireUUID("folder_id"))
				r.Get("/", h.GetFolder)
				r.Patch("/", h.RenameFolder)
				r.Delete("/", h.DeleteFolder)
				r.Get("/contents", h.FolderContents)
				r.Get("/download", h.DownloadFolder)
			})
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", h.ListFiles)
			r.Post("/", h.UploadFile)
			r.Route("/{file_id}", func(r chi.Router) {
				r.Use(requireUUID("file_id"))
				r.Get("/", h.GetFile)
				r.Delete("/", h.DeleteFile)
				r.Get("/download", h.DownloadFile)
				r.Post("/move", h.MoveFile)
				r.Post("/copy", h.CopyFile)

				r.Get("/processing-status", h.ProcessingStatus)
				r.Post("/processing", h.InitializeProcessing)
				r.Delete("/artifacts", h.RemoveArtifacts)
				r.Get("/chunks/{n}", h.GetChunk)
				r.Put("/chunks/{n}", h.PutChunk)
				r.Get("/config", h.GetConfig)
				r.Put("/config", h.PutConfig)
				r.Get("/inferences", h.ListInferences)
				r.Post("/inferences", h.AddInference)
				r.Get("/preview", h.Preview)
			})
		})

		r.Get("/users/{user_id}/stats", h.UserStats)
		r.Post("/maintenance/reconcile", h.Reconcile)
	})
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeRawJSON отдаёт готовый JSON-документ без перекодирования.
func writeRawJSON(w http.ResponseWriter, doc json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// decodeJSON читает тело запроса в dst. Пустое тело — ошибка.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("некорректный JSON: %w", err)
	}
	return nil
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// Непредвиденные ошибки логируются и отдаются как 500 с сообщением msg.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrExtensionNotAllowed):
		apierrors.ExtensionNotAllowed(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrMalformed):
		apierrors.MalformedArtifact(w, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, service.ErrReconcileInProgress):
		apierrors.ReconcileInProgress(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	default:
		h.logger.Error(msg,
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, msg)
	}
}

// requestUser возвращает идентификатор вызывающего: sub из JWT,
// а при отключённой аутентификации — переданное клиентом значение.
func requestUser(r *http.Request, fallback string) *string {
	if sub := middleware.SubjectFromContext(r.Context()); sub != "" {
		return &sub
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return &fallback
	}
	return nil
}

// requireUUID отвечает 400, если параметр маршрута name не является UUID.
func requireUUID(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := checkUUID(name, chi.URLParam(r, name)); err != nil {
				apierrors.ValidationError(w, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkUUID(name, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Errorf("параметр %s должен быть UUID, получено %q", name, value)
	}
	return nil
}

// optionalUUID проверяет необязательный идентификатор из query, формы или тела.
func optionalUUID(name string, value *string) error {
	if value == nil {
		return nil
	}
	return checkUUID(name, *value)
}

// optionalString возвращает nil для пустой строки.
func optionalString(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// parseBool разбирает необязательный булев параметр (пусто — false).
func parseBool(name, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("параметр %s должен быть true или false", name)
	}
	return b, nil
}

// paginationParams разбирает limit и offset из query.
// limit: 1..1000, по умолчанию 0 (без ограничения); offset >= 0.
func paginationParams(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 1000 {
			return 0, 0, errors.New("параметр limit должен быть от 1 до 1000")
		}
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("параметр offset не может быть отрицательным")
		}
	}
	return limit, offset, nil
}
