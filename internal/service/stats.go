// stats.go — статистика пользователя.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/repository"
)

// StatsService считает статистику папок и файлов пользователя.
type StatsService struct {
	folders    repository.FolderRepository
	files      repository.FileRepository
	aggregator *Aggregator
}

// NewStatsService создаёт сервис статистики.
func NewStatsService(
	folders repository.FolderRepository,
	files repository.FileRepository,
	aggregator *Aggregator,
) *StatsService {
	return &StatsService{folders: folders, files: files, aggregator: aggregator}
}

// UserStats возвращает количество папок и файлов пользователя
// и сводку по состоянию обработки его файлов.
func (s *StatsService) UserStats(ctx context.Context, userID string) (*model.UserStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: идентификатор пользователя обязателен", ErrValidation)
	}

	folders, err := s.folders.CountByCreator(ctx, userID)
	if err != nil {
		return nil, translate("подсчёт папок", err)
	}
	files, err := s.files.List(ctx, repository.FileListFilters{UploadedBy: &userID})
	if err != nil {
		return nil, translate("получение файлов пользователя", err)
	}
	summary, err := s.aggregator.Aggregate(files)
	if err != nil {
		return nil, translate("агрегация статусов", err)
	}

	return &model.UserStats{
		UserID:         userID,
		FoldersCreated: folders,
		FilesUploaded:  len(files),
		Summary:        summary,
	}, nil
}

// BytesToMB переводит байты в мегабайты с округлением до двух знаков.
func BytesToMB(n int64) float64 {
	mb := float64(n) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}
