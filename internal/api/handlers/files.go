// files.go — обработчики /api/v1/files: загрузка, список, метаданные,
// скачивание, перемещение, копирование, удаление.
package handlers

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/preetgupta-32/folder-manager-iudx/internal/api/errors"
	"github.com/preetgupta-32/folder-manager-iudx/internal/repository"
	"github.com/preetgupta-32/folder-manager-iudx/internal/service"
)

// multipartMemory — часть multipart-формы, удерживаемая в памяти.
const multipartMemory = 32 << 20

// fileListResponse — ответ списка файлов.
type fileListResponse struct {
	Items  []fileResponse `json:"items"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}

// relocateRequest — тело move/copy. FolderID nil — вне папок.
type relocateRequest struct {
	FolderID *string `json:"folder_id"`
	// CopiedBy — автор копии при отключённой аутентификации
	CopiedBy string `json:"copied_by,omitempty"`
}

// ListFiles обрабатывает GET /api/v1/files.
// Фильтры: folder_id, user_id. Пагинация: limit, offset.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paginationParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	q := r.URL.Query()
	filters := repository.FileListFilters{
		FolderID:   optionalString(q.Get("folder_id")),
		UploadedBy: optionalString(q.Get("user_id")),
		Limit:      limit,
		Offset:     offset,
	}
	if err := optionalUUID("folder_id", filters.FolderID); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	files, err := h.files.List(r.Context(), filters)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения списка файлов")
		return
	}
	writeJSON(w, http.StatusOK, fileListResponse{Items: toFiles(files), Limit: limit, Offset: offset})
}

// UploadFile обрабатывает POST /api/v1/files.
// Multipart form: file (обязательно), folder_id, description, is_public,
// process (true — сразу инициализировать обработку), uploaded_by.
func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	isPublic, err := parseBool("is_public", r.FormValue("is_public"))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	process, err := parseBool("process", r.FormValue("process"))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	folderID := optionalString(r.FormValue("folder_id"))
	if err := optionalUUID("folder_id", folderID); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	record, err := h.files.Upload(r.Context(), service.UploadRequest{
		Filename:    header.Filename,
		Body:        file,
		FolderID:    folderID,
		UploadedBy:  requestUser(r, r.FormValue("uploaded_by")),
		Description: optionalString(r.FormValue("description")),
		IsPublic:    isPublic,
		Process:     process,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка загрузки файла")
		return
	}
	writeJSON(w, http.StatusCreated, toFile(record))
}

// GetFile обрабатывает GET /api/v1/files/{file_id}.
func (h *APIHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	record, err := h.files.Get(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения файла")
		return
	}
	writeJSON(w, http.StatusOK, toFile(record))
}

// DownloadFile обрабатывает GET /api/v1/files/{file_id}/download.
// Поддерживает Range requests через http.ServeContent.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	record, fh, err := h.files.Open(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка открытия файла")
		return
	}
	defer fh.Close()

	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": record.OriginalName}))
	http.ServeContent(w, r, record.OriginalName, record.UploadedAt, fh)
	service.CountDownload(record.Size)
}

// decodeRelocate читает тело move/copy и проверяет folder_id.
func decodeRelocate(w http.ResponseWriter, r *http.Request, req *relocateRequest) error {
	if err := decodeJSON(w, r, req); err != nil {
		return err
	}
	return optionalUUID("folder_id", req.FolderID)
}

// MoveFile обрабатывает POST /api/v1/files/{file_id}/move.
func (h *APIHandler) MoveFile(w http.ResponseWriter, r *http.Request) {
	var req relocateRequest
	if err := decodeRelocate(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	record, err := h.files.Move(r.Context(), chi.URLParam(r, "file_id"), req.FolderID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка перемещения файла")
		return
	}
	writeJSON(w, http.StatusOK, toFile(record))
}

// CopyFile обрабатывает POST /api/v1/files/{file_id}/copy.
// Копия получает новый ID и собственную запись. Артефакты ищутся по
// дайджесту: в области name копия видит артефакты исходного файла.
func (h *APIHandler) CopyFile(w http.ResponseWriter, r *http.Request) {
	var req relocateRequest
	if err := decodeRelocate(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	record, err := h.files.Copy(r.Context(), chi.URLParam(r, "file_id"), req.FolderID, requestUser(r, req.CopiedBy))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка копирования файла")
		return
	}
	writeJSON(w, http.StatusCreated, toFile(record))
}

// DeleteFile обрабатывает DELETE /api/v1/files/{file_id}.
// Сначала удаляются артефакты и сырые байты, затем запись.
func (h *APIHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Delete(r.Context(), chi.URLParam(r, "file_id")); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления файла")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
