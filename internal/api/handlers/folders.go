// folders.go — обработчики /api/v1/folders.
package handlers

import (
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/preetgupta-32/folder-manager-iudx/internal/api/errors"
	"github.com/preetgupta-32/folder-manager-iudx/internal/repository"
	"github.com/preetgupta-32/folder-manager-iudx/internal/service"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/naming"
)

type createFolderRequest struct {
	Name        string  `json:"name"`
	ParentID    *string `json:"parent_id"`
	AllowedType string  `json:"allowed_type"`
	Description *string `json:"description"`
	IsPublic    bool    `json:"is_public"`
	// CreatedBy — создатель при отключённой аутентификации
	CreatedBy string `json:"created_by"`
}

type renameFolderRequest struct {
	Name string `json:"name"`
}

type folderListResponse struct {
	Items []folderResponse `json:"items"`
}

type folderFileResponse struct {
	fileResponse
	Status snapshotResponse `json:"status"`
}

type folderContentsResponse struct {
	Folder     folderResponse       `json:"folder"`
	Subfolders []folderResponse     `json:"subfolders"`
	Files      []folderFileResponse `json:"files"`
	Summary    summaryResponse      `json:"summary"`
}

// ListFolders обрабатывает GET /api/v1/folders.
// Фильтры: user_id, parent_id; root=true — только корневые.
func (h *APIHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rootOnly, err := parseBool("root", q.Get("root"))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	filters := repository.FolderListFilters{
		CreatedBy: optionalString(q.Get("user_id")),
		ParentID:  optionalString(q.Get("parent_id")),
		RootOnly:  rootOnly,
	}
	if err := optionalUUID("parent_id", filters.ParentID); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	folders, err := h.folders.List(r.Context(), filters)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения списка папок")
		return
	}
	writeJSON(w, http.StatusOK, folderListResponse{Items: toFolders(folders)})
}

// CreateFolder обрабатывает POST /api/v1/folders.
// allowed_type: pdf, csv, json (по умолчанию csv).
func (h *APIHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if err := optionalUUID("parent_id", req.ParentID); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	folder, err := h.folders.Create(r.Context(), service.CreateFolderRequest{
		Name:        req.Name,
		ParentID:    req.ParentID,
		AllowedType: req.AllowedType,
		CreatedBy:   requestUser(r, req.CreatedBy),
		Description: req.Description,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания папки")
		return
	}
	writeJSON(w, http.StatusCreated, toFolder(folder))
}

// GetFolder обрабатывает GET /api/v1/folders/{folder_id}.
func (h *APIHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := h.folders.Get(r.Context(), chi.URLParam(r, "folder_id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения папки")
		return
	}
	writeJSON(w, http.StatusOK, toFolder(folder))
}

// RenameFolder обрабатывает PATCH /api/v1/folders/{folder_id}.
func (h *APIHandler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	var req renameFolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	folder, err := h.folders.Rename(r.Context(), chi.URLParam(r, "folder_id"), req.Name)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка переименования папки")
		return
	}
	writeJSON(w, http.StatusOK, toFolder(folder))
}

// DeleteFolder обрабатывает DELETE /api/v1/folders/{folder_id}.
// Удаляет вложенные папки и файлы вместе с их артефактами.
func (h *APIHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := h.folders.Delete(r.Context(), chi.URLParam(r, "folder_id")); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления папки")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FolderContents обрабатывает GET /api/v1/folders/{folder_id}/contents.
// Файлы отдаются с актуальным снимком обработки и сводкой по папке.
func (h *APIHandler) FolderContents(w http.ResponseWriter, r *http.Request) {
	contents, err := h.folders.Contents(r.Context(), chi.URLParam(r, "folder_id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения содержимого папки")
		return
	}

	files := make([]folderFileResponse, 0, len(contents.Files))
	for i, f := range contents.Files {
		files = append(files, folderFileResponse{
			fileResponse: toFile(f),
			Status:       toSnapshot(contents.Snapshots[i]),
		})
	}
	writeJSON(w, http.StatusOK, folderContentsResponse{
		Folder:     toFolder(contents.Folder),
		Subfolders: toFolders(contents.Subfolders),
		Files:      files,
		Summary:    toSummary(contents.Summary),
	})
}

// DownloadFolder обрабатывает GET /api/v1/folders/{folder_id}/download.
// Отдаёт zip-архив сырых файлов папки и вложенных папок.
func (h *APIHandler) DownloadFolder(w http.ResponseWriter, r *http.Request) {
	folderID := chi.URLParam(r, "folder_id")
	folder, err := h.folders.Get(r.Context(), folderID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения папки")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": naming.Sanitize(folder.Name) + ".zip"}))
	w.WriteHeader(http.StatusOK)

	// Заголовки уже отправлены, ошибку можно только залогировать.
	if err := h.folders.WriteZip(r.Context(), folder.ID, w); err != nil {
		h.logger.Error("Ошибка формирования архива папки",
			slog.String("folder_id", folder.ID),
			slog.String("error", err.Error()),
		)
	}
}
