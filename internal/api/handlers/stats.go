// stats.go — обработчик GET /api/v1/users/{user_id}/stats.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/preetgupta-32/folder-manager-iudx/internal/service"
)

type userStatsResponse struct {
	UserID            string          `json:"user_id"`
	FoldersCreated    int             `json:"folders_created"`
	FilesUploaded     int             `json:"files_uploaded"`
	TotalStorageBytes int64           `json:"total_storage_bytes"`
	TotalStorageMB    float64         `json:"total_storage_mb"`
	Summary           summaryResponse `json:"summary"`
}

// UserStats возвращает количество папок и файлов пользователя,
// занятый объём и сводку по состоянию обработки.
func (h *APIHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.UserStats(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения статистики пользователя")
		return
	}
	writeJSON(w, http.StatusOK, userStatsResponse{
		UserID:            stats.UserID,
		FoldersCreated:    stats.FoldersCreated,
		FilesUploaded:     stats.FilesUploaded,
		TotalStorageBytes: stats.Summary.TotalBytes,
		TotalStorageMB:    service.BytesToMB(stats.Summary.TotalBytes),
		Summary:           toSummary(stats.Summary),
	})
}
