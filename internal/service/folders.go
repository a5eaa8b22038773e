// folders.go — сервис папок: CRUD, содержимое, архив папки.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/repository"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/naming"
)

// Prometheus-метрики скачивания.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fm_downloads_total",
		Help: "Общее количество скачиваний (file, folder_zip).",
	}, []string{"kind"})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fm_download_bytes_total",
		Help: "Общее количество отданных байт сырых файлов.",
	})
)

// CountDownload учитывает скачивание одного файла.
func CountDownload(bytes int64) {
	downloadsTotal.WithLabelValues("file").Inc()
	downloadBytesTotal.Add(float64(bytes))
}

// CreateFolderRequest — параметры создания папки.
type CreateFolderRequest struct {
	Name        string
	ParentID    *string
	AllowedType string
	CreatedBy   *string
	Description *string
	IsPublic    bool
}

// FolderContents — содержимое папки со снимками файлов.
type FolderContents struct {
	Folder     *model.Folder
	Subfolders []*model.Folder
	Files      []*model.FileRecord
	// Snapshots — снимки в порядке Files
	Snapshots []model.Snapshot
	Summary   model.Summary
}

// FolderService — операции над папками.
type FolderService struct {
	folders    repository.FolderRepository
	files      repository.FileRepository
	fileSvc    *FileService
	aggregator *Aggregator
	cache      *RecordCache
	logger     *slog.Logger
}

// NewFolderService создаёт сервис папок.
func NewFolderService(
	folders repository.FolderRepository,
	files repository.FileRepository,
	fileSvc *FileService,
	aggregator *Aggregator,
	cache *RecordCache,
	logger *slog.Logger,
) *FolderService {
	return &FolderService{
		folders:    folders,
		files:      files,
		fileSvc:    fileSvc,
		aggregator: aggregator,
		cache:      cache,
		logger:     logger.With(slog.String("component", "folder_service")),
	}
}

// Create создаёт папку. Пустой тип — csv.
func (s *FolderService) Create(ctx context.Context, req CreateFolderRequest) (*model.Folder, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: имя папки обязательно", ErrValidation)
	}

	allowed := model.DefaultAllowedType
	if req.AllowedType != "" {
		t, ok := model.ParseAllowedType(strings.ToLower(req.AllowedType))
		if !ok {
			return nil, fmt.Errorf("%w: недопустимый тип папки %q (pdf, csv, json)", ErrValidation, req.AllowedType)
		}
		allowed = t
	}

	if req.ParentID != nil {
		if _, err := s.folders.GetByID(ctx, *req.ParentID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: родительская папка %s не найдена", ErrValidation, *req.ParentID)
			}
			return nil, fmt.Errorf("получение родительской папки: %w", err)
		}
	}

	f := &model.Folder{
		ID:          uuid.New().String(),
		Name:        name,
		ParentID:    req.ParentID,
		AllowedType: allowed,
		CreatedBy:   req.CreatedBy,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	}
	if err := s.folders.Create(ctx, f); err != nil {
		return nil, translate("создание папки", err)
	}

	s.logger.Info("Папка создана",
		slog.String("folder_id", f.ID),
		slog.String("name", f.Name),
		slog.String("allowed_type", string(f.AllowedType)),
	)
	return f, nil
}

// Get возвращает папку по ID.
func (s *FolderService) Get(ctx context.Context, folderID string) (*model.Folder, error) {
	f, err := s.folders.GetByID(ctx, folderID)
	if err != nil {
		return nil, translate("получение папки", err)
	}
	return f, nil
}

// List возвращает папки с фильтрацией.
func (s *FolderService) List(ctx context.Context, filters repository.FolderListFilters) ([]*model.Folder, error) {
	folders, err := s.folders.List(ctx, filters)
	if err != nil {
		return nil, translate("получение списка папок", err)
	}
	return folders, nil
}

// Rename переименовывает папку.
func (s *FolderService) Rename(ctx context.Context, folderID, name string) (*model.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: имя папки обязательно", ErrValidation)
	}
	f, err := s.folders.Rename(ctx, folderID, name)
	if err != nil {
		return nil, translate("переименование папки", err)
	}
	s.logger.Info("Папка переименована",
		slog.String("folder_id", f.ID),
		slog.String("name", f.Name),
	)
	return f, nil
}

// Delete удаляет папку со всеми вложенными папками и файлами.
// Сначала удаляются артефакты каждого файла дерева; при первой ошибке
// удаление прерывается и записи остаются. Сырые байты удаляются после записей.
func (s *FolderService) Delete(ctx context.Context, folderID string) error {
	if _, err := s.folders.GetByID(ctx, folderID); err != nil {
		return translate("получение папки", err)
	}

	files, err := s.files.ListInFolderTree(ctx, folderID)
	if err != nil {
		return translate("получение файлов папки", err)
	}
	for _, f := range files {
		if err := s.fileSvc.processing.removeArtifactsOf(f); err != nil {
			return fmt.Errorf("удаление файла %s: %w", f.ID, err)
		}
	}

	if err := s.folders.Delete(ctx, folderID); err != nil {
		return translate("удаление папки", err)
	}
	for _, f := range files {
		s.cache.Delete(f.ID)
		s.fileSvc.dropRaw(f)
	}

	s.logger.Info("Папка удалена",
		slog.String("folder_id", folderID),
		slog.Int("files", len(files)),
	)
	return nil
}

// Contents возвращает вложенные папки и файлы папки со снимками и сводкой.
func (s *FolderService) Contents(ctx context.Context, folderID string) (*FolderContents, error) {
	folder, err := s.Get(ctx, folderID)
	if err != nil {
		return nil, err
	}
	subfolders, err := s.folders.List(ctx, repository.FolderListFilters{ParentID: &folder.ID})
	if err != nil {
		return nil, translate("получение вложенных папок", err)
	}
	files, err := s.files.List(ctx, repository.FileListFilters{FolderID: &folder.ID})
	if err != nil {
		return nil, translate("получение файлов папки", err)
	}
	snaps, summary, err := s.aggregator.Snapshots(files)
	if err != nil {
		return nil, translate("вычисление статусов", err)
	}
	return &FolderContents{
		Folder:     folder,
		Subfolders: subfolders,
		Files:      files,
		Snapshots:  snaps,
		Summary:    summary,
	}, nil
}

// WriteZip пишет в w zip-архив сырых файлов папки и вложенных папок.
// Пути внутри архива повторяют дерево папок от выбранной.
func (s *FolderService) WriteZip(ctx context.Context, folderID string, w io.Writer) error {
	root, err := s.Get(ctx, folderID)
	if err != nil {
		return err
	}
	dirs, err := s.folderPaths(ctx, root)
	if err != nil {
		return err
	}
	files, err := s.files.ListInFolderTree(ctx, root.ID)
	if err != nil {
		return translate("получение файлов папки", err)
	}

	zw := zip.NewWriter(w)
	used := make(map[string]int, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := ""
		if f.FolderID != nil {
			dir = dirs[*f.FolderID]
		}
		name := uniqueEntryName(used, path.Join(dir, naming.Sanitize(f.OriginalName)))
		if err := s.addZipEntry(zw, f, name); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("закрытие архива: %w", err)
	}

	downloadsTotal.WithLabelValues("folder_zip").Inc()
	s.logger.Info("Архив папки сформирован",
		slog.String("folder_id", root.ID),
		slog.Int("files", len(files)),
	)
	return nil
}

func (s *FolderService) addZipEntry(zw *zip.Writer, f *model.FileRecord, name string) error {
	src, err := s.fileSvc.raw.OpenFile(f.StoragePath)
	if err != nil {
		return translate("открытие файла "+f.ID, err)
	}
	defer src.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: f.UploadedAt,
	})
	if err != nil {
		return fmt.Errorf("создание записи архива %s: %w", name, err)
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		return fmt.Errorf("запись файла %s в архив: %w", f.ID, err)
	}
	downloadBytesTotal.Add(float64(n))
	return nil
}

// folderPaths строит относительные пути архива для папки и всех её потомков.
// Корневая папка получает путь, равный своему имени.
func (s *FolderService) folderPaths(ctx context.Context, root *model.Folder) (map[string]string, error) {
	paths := map[string]string{root.ID: naming.Sanitize(root.Name)}
	queue := []string{root.ID}
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]
		children, err := s.folders.List(ctx, repository.FolderListFilters{ParentID: &parentID})
		if err != nil {
			return nil, translate("получение вложенных папок", err)
		}
		for _, c := range children {
			paths[c.ID] = path.Join(paths[parentID], naming.Sanitize(c.Name))
			queue = append(queue, c.ID)
		}
	}
	return paths, nil
}

// uniqueEntryName добавляет к повторяющемуся имени суффикс " (n)" перед расширением.
func uniqueEntryName(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	candidate := fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n+1, ext)
	return uniqueEntryName(used, candidate)
}
