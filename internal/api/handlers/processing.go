// processing.go — обработчики состояния обработки и артефактов файла:
// статус, инициализация, чанки, конфиг, записи inference, предпросмотр.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/preetgupta-32/folder-manager-iudx/internal/api/errors"
)

type inferenceListResponse struct {
	Items   []inferenceResponse  `json:"items"`
	Skipped []diagnosticResponse `json:"skipped"`
}

type addInferenceRequest struct {
	Name   string          `json:"name"`
	Record json.RawMessage `json:"record"`
}

type addInferenceResponse struct {
	Name string `json:"name"`
}

// ProcessingStatus обрабатывает GET /api/v1/files/{file_id}/processing-status.
// Снимок вычисляется по каталогу артефактов и сохраняется в запись.
func (h *APIHandler) ProcessingStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.processing.ResolveStatus(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка вычисления статуса обработки")
		return
	}
	writeJSON(w, http.StatusOK, toSnapshot(snap))
}

// InitializeProcessing обрабатывает POST /api/v1/files/{file_id}/processing.
// Идемпотентна: повторный вызов возвращает текущий снимок.
func (h *APIHandler) InitializeProcessing(w http.ResponseWriter, r *http.Request) {
	snap, err := h.processing.Initialize(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка инициализации обработки")
		return
	}
	writeJSON(w, http.StatusOK, toSnapshot(snap))
}

// RemoveArtifacts обрабатывает DELETE /api/v1/files/{file_id}/artifacts.
func (h *APIHandler) RemoveArtifacts(w http.ResponseWriter, r *http.Request) {
	if err := h.processing.RemoveArtifacts(r.Context(), chi.URLParam(r, "file_id")); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления артефактов")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// chunkIndex разбирает номер чанка из пути.
func chunkIndex(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// GetChunk обрабатывает GET /api/v1/files/{file_id}/chunks/{n}.
// Отдаёт распакованный JSON чанка как есть.
func (h *APIHandler) GetChunk(w http.ResponseWriter, r *http.Request) {
	n, ok := chunkIndex(r)
	if !ok {
		apierrors.ValidationError(w, "Номер чанка должен быть целым числом >= 1")
		return
	}
	doc, err := h.processing.ReadChunk(r.Context(), chi.URLParam(r, "file_id"), n)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка чтения чанка")
		return
	}
	writeRawJSON(w, doc)
}

// PutChunk обрабатывает PUT /api/v1/files/{file_id}/chunks/{n}.
// Тело — JSON-документ чанка. Возвращает обновлённый снимок.
func (h *APIHandler) PutChunk(w http.ResponseWriter, r *http.Request) {
	n, ok := chunkIndex(r)
	if !ok {
		apierrors.ValidationError(w, "Номер чанка должен быть целым числом >= 1")
		return
	}
	var doc json.RawMessage
	if err := decodeJSON(w, r, &doc); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	snap, err := h.processing.WriteChunk(r.Context(), chi.URLParam(r, "file_id"), n, doc)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка записи чанка")
		return
	}
	writeJSON(w, http.StatusOK, toSnapshot(snap))
}

// GetConfig обрабатывает GET /api/v1/files/{file_id}/config.
func (h *APIHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := h.processing.ReadConfig(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка чтения конфига")
		return
	}
	writeRawJSON(w, raw)
}

// PutConfig обрабатывает PUT /api/v1/files/{file_id}/config.
// Тело сохраняется как config.json без изменений.
func (h *APIHandler) PutConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		apierrors.ValidationError(w, "Ошибка чтения тела запроса: "+err.Error())
		return
	}
	if err := h.processing.WriteConfig(r.Context(), chi.URLParam(r, "file_id"), raw); err != nil {
		h.writeServiceError(w, r, err, "Ошибка записи конфига")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListInferences обрабатывает GET /api/v1/files/{file_id}/inferences.
// Записи отсортированы от новых к старым, повреждённые перечислены в skipped.
func (h *APIHandler) ListInferences(w http.ResponseWriter, r *http.Request) {
	records, diags, err := h.processing.ListInferenceRecords(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка чтения записей inference")
		return
	}
	writeJSON(w, http.StatusOK, inferenceListResponse{
		Items:   toInferences(records),
		Skipped: toDiagnostics(diags),
	})
}

// AddInference обрабатывает POST /api/v1/files/{file_id}/inferences.
// Тело: {"name": "...", "record": {...}}.
func (h *APIHandler) AddInference(w http.ResponseWriter, r *http.Request) {
	var req addInferenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if len(req.Record) == 0 {
		apierrors.ValidationError(w, "Поле 'record' обязательно")
		return
	}
	name, err := h.processing.AddInferenceRecord(r.Context(), chi.URLParam(r, "file_id"), req.Name, req.Record)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка записи inference")
		return
	}
	writeJSON(w, http.StatusCreated, addInferenceResponse{Name: name})
}

// Preview обрабатывает GET /api/v1/files/{file_id}/preview.
func (h *APIHandler) Preview(w http.ResponseWriter, r *http.Request) {
	p, err := h.processing.Preview(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка формирования предпросмотра")
		return
	}
	writeJSON(w, http.StatusOK, toPreview(p))
}
