// maintenance.go — обработчик POST /api/v1/maintenance/reconcile.
// Делегирует сверку артефактов в ReconcileService.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/preetgupta-32/folder-manager-iudx/internal/api/errors"
)

type reconcileResponse struct {
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	EntriesChecked int       `json:"entries_checked"`
	FilesChecked   int       `json:"files_checked"`
	Orphans        []string  `json:"orphans"`
	Removed        int       `json:"removed"`
}

// Reconcile запускает синхронную сверку каталогов артефактов с записями файлов.
// remove=true удаляет найденные осиротевшие каталоги.
// Если сверка уже выполняется — 409 RECONCILE_IN_PROGRESS.
func (h *APIHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h.reconciler == nil {
		apierrors.ServiceUnavailable(w, "Сверка артефактов не настроена")
		return
	}
	remove, err := parseBool("remove", r.URL.Query().Get("remove"))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	result, err := h.reconciler.RunOnce(r.Context(), remove)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка сверки артефактов")
		return
	}

	orphans := result.Orphans
	if orphans == nil {
		orphans = []string{}
	}
	writeJSON(w, http.StatusOK, reconcileResponse{
		StartedAt:      result.StartedAt,
		CompletedAt:    result.CompletedAt,
		EntriesChecked: result.EntriesChecked,
		FilesChecked:   result.FilesChecked,
		Orphans:        orphans,
		Removed:        result.Removed,
	})
}
