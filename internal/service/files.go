// files.go — сервис файлов: загрузка, получение, перемещение, копирование, удаление.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/repository"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/filestore"
)

// UploadRequest — параметры загрузки файла.
type UploadRequest struct {
	// Filename — исходное имя файла
	Filename string
	// Body — содержимое файла
	Body io.Reader
	// FolderID — папка назначения (nil — вне папок)
	FolderID *string
	// UploadedBy — идентификатор загружающего
	UploadedBy *string
	// Description — описание файла
	Description *string
	// IsPublic — файл доступен всем
	IsPublic bool
	// Process — сразу инициализировать обработку
	Process bool
}

// FileService — операции над файлами.
type FileService struct {
	files      repository.FileRepository
	folders    repository.FolderRepository
	raw        *filestore.FileStore
	processing *ProcessingService
	cache      *RecordCache
	logger     *slog.Logger
}

// NewFileService создаёт сервис файлов.
func NewFileService(
	files repository.FileRepository,
	folders repository.FolderRepository,
	raw *filestore.FileStore,
	processing *ProcessingService,
	cache *RecordCache,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		files:      files,
		folders:    folders,
		raw:        raw,
		processing: processing,
		cache:      cache,
		logger:     logger.With(slog.String("component", "file_service")),
	}
}

// checkDestination проверяет, что папка существует и принимает файл с именем filename.
// nil folderID — файл вне папок, проверка не нужна.
func (s *FileService) checkDestination(ctx context.Context, folderID *string, filename string) error {
	if folderID == nil {
		return nil
	}
	folder, err := s.folders.GetByID(ctx, *folderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: папка %s не найдена", ErrNotFound, *folderID)
		}
		return fmt.Errorf("получение папки: %w", err)
	}
	if !folder.Accepts(filename) {
		return fmt.Errorf("%w: папка %q принимает только .%s, получен %q",
			ErrExtensionNotAllowed, folder.Name, folder.AllowedType, filename)
	}
	return nil
}

// Upload сохраняет файл и создаёт его запись.
// Расширение проверяется до записи на диск; при ошибке создания записи
// сырые байты удаляются.
func (s *FileService) Upload(ctx context.Context, req UploadRequest) (*model.FileRecord, error) {
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: имя файла обязательно", ErrValidation)
	}
	if err := s.checkDestination(ctx, req.FolderID, filename); err != nil {
		return nil, err
	}

	saved, err := s.raw.SaveFile(req.Body, filename)
	if err != nil {
		return nil, translate("сохранение файла", err)
	}

	f := &model.FileRecord{
		ID:           uuid.New().String(),
		OriginalName: filename,
		StoragePath:  saved.StoragePath,
		Size:         saved.Size,
		Checksum:     saved.Checksum,
		FolderID:     req.FolderID,
		UploadedBy:   req.UploadedBy,
		UploadedAt:   time.Now().UTC(),
		Description:  req.Description,
		IsPublic:     req.IsPublic,
	}
	if err := s.files.Create(ctx, f); err != nil {
		if delErr := s.raw.DeleteFile(saved.StoragePath); delErr != nil {
			s.logger.Error("Не удалось удалить файл после ошибки создания записи",
				slog.String("storage_path", saved.StoragePath),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, translate("создание записи файла", err)
	}

	s.logger.Info("Файл загружен",
		slog.String("file_id", f.ID),
		slog.String("filename", f.OriginalName),
		slog.Int64("size", f.Size),
	)

	if req.Process {
		if _, err := s.processing.Initialize(ctx, f.ID); err != nil {
			return nil, err
		}
		return s.Get(ctx, f.ID)
	}
	s.cache.Set(f)
	return f, nil
}

// Get возвращает запись файла с кэшированным снимком.
func (s *FileService) Get(ctx context.Context, fileID string) (*model.FileRecord, error) {
	return s.processing.getFile(ctx, fileID)
}

// List возвращает файлы с фильтрацией.
func (s *FileService) List(ctx context.Context, filters repository.FileListFilters) ([]*model.FileRecord, error) {
	files, err := s.files.List(ctx, filters)
	if err != nil {
		return nil, translate("получение списка файлов", err)
	}
	return files, nil
}

// Open открывает сырые байты файла. Вызывающий код обязан закрыть файл.
func (s *FileService) Open(ctx context.Context, fileID string) (*model.FileRecord, *os.File, error) {
	f, err := s.Get(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	fh, err := s.raw.OpenFile(f.StoragePath)
	if err != nil {
		return nil, nil, translate("открытие файла", err)
	}
	return f, fh, nil
}

// Move перемещает файл в папку folderID (nil — вне папок).
// Расширение проверяется до изменения записи.
func (s *FileService) Move(ctx context.Context, fileID string, folderID *string) (*model.FileRecord, error) {
	f, err := s.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.checkDestination(ctx, folderID, f.OriginalName); err != nil {
		return nil, err
	}
	if err := s.files.UpdateFolder(ctx, f.ID, folderID); err != nil {
		return nil, translate("перемещение файла", err)
	}
	s.cache.Delete(f.ID)

	s.logger.Info("Файл перемещён", slog.String("file_id", f.ID))
	return s.Get(ctx, f.ID)
}

// Copy копирует сырые байты файла в папку folderID под новым ID.
// Каталог артефактов не копируется. Дайджест копии вычисляется заново:
// в области name он совпадает с исходным, и копия видит его артефакты,
// в области file копия начинает в состоянии raw.
func (s *FileService) Copy(ctx context.Context, fileID string, folderID *string, copiedBy *string) (*model.FileRecord, error) {
	src, err := s.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.checkDestination(ctx, folderID, src.OriginalName); err != nil {
		return nil, err
	}

	saved, err := s.raw.CopyFile(src.StoragePath, src.OriginalName)
	if err != nil {
		return nil, translate("копирование файла", err)
	}

	uploadedBy := src.UploadedBy
	if copiedBy != nil {
		uploadedBy = copiedBy
	}
	dst := &model.FileRecord{
		ID:           uuid.New().String(),
		OriginalName: src.OriginalName,
		StoragePath:  saved.StoragePath,
		Size:         saved.Size,
		Checksum:     saved.Checksum,
		FolderID:     folderID,
		UploadedBy:   uploadedBy,
		UploadedAt:   time.Now().UTC(),
		Description:  src.Description,
		IsPublic:     src.IsPublic,
	}
	if err := s.files.Create(ctx, dst); err != nil {
		_ = s.raw.DeleteFile(saved.StoragePath)
		return nil, translate("создание копии файла", err)
	}

	s.logger.Info("Файл скопирован",
		slog.String("source_id", src.ID),
		slog.String("file_id", dst.ID),
	)
	return dst, nil
}

// Delete удаляет каталог артефактов, запись файла и затем сырые байты.
// Если удалить артефакты не удалось, запись остаётся. Сырые байты,
// не удалённые после записи, только логируются.
func (s *FileService) Delete(ctx context.Context, fileID string) error {
	f, err := s.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if err := s.processing.removeArtifactsOf(f); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, f.ID); err != nil {
		return translate("удаление записи файла", err)
	}
	s.cache.Delete(f.ID)
	s.dropRaw(f)

	s.logger.Info("Файл удалён", slog.String("file_id", f.ID))
	return nil
}

// dropRaw удаляет сырые байты файла, запись которого уже удалена.
func (s *FileService) dropRaw(f *model.FileRecord) {
	if err := s.raw.DeleteFile(f.StoragePath); err != nil {
		s.logger.Warn("Сырые байты удалённого файла остались на диске",
			slog.String("file_id", f.ID),
			slog.String("storage_path", f.StoragePath),
			slog.String("error", err.Error()),
		)
	}
}
