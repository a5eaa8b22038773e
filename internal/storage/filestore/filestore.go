// Пакет filestore — хранение сырых байтов загруженных файлов.
// Запись потоковая с подсчётом SHA-256 на лету,
// по схеме temp → fsync → atomic rename.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/naming"
)

// Ошибки файлового хранилища.
var (
	// ErrNotFound — файл отсутствует на диске.
	ErrNotFound = errors.New("файл не найден на диске")
	// ErrTooLarge — размер файла превышает лимит.
	ErrTooLarge = errors.New("размер файла превышает допустимый")
)

// FileStore — управление сырыми файлами на диске.
type FileStore struct {
	// dataDir — корневая директория загрузок (FM_UPLOAD_DIR)
	dataDir string
	// maxSize — максимальный размер файла в байтах (0 — без ограничения)
	maxSize int64
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StoragePath — относительный путь файла в dataDir
	StoragePath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
}

// New создаёт FileStore и директорию загрузок, если её нет.
func New(dataDir string, maxSize int64) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", dataDir, err)
	}
	return &FileStore{dataDir: dataDir, maxSize: maxSize}, nil
}

// DataDir возвращает путь к директории загрузок.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// SaveFile записывает данные из reader на диск с подсчётом SHA-256.
// Файлы раскладываются по подкаталогам дат: uploads/2006/01/02/{name}_{uuid8}.{ext}.
// При превышении лимита размера возвращает ErrTooLarge, temp-файл удаляется.
func (fs *FileStore) SaveFile(reader io.Reader, originalFilename string) (*SaveResult, error) {
	storagePath := generateStoragePath(originalFilename, time.Now().UTC())
	fullPath := fs.FullPath(storagePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога загрузки: %w", err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Читаем на байт больше лимита, чтобы отличить "ровно лимит" от превышения
	src := reader
	if fs.maxSize > 0 {
		src = io.LimitReader(reader, fs.maxSize+1)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(src, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if fs.maxSize > 0 && size > fs.maxSize {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: лимит %d байт", ErrTooLarge, fs.maxSize)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StoragePath: storagePath,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// CopyFile копирует сохранённый файл под новым именем хранения.
func (fs *FileStore) CopyFile(storagePath, originalFilename string) (*SaveResult, error) {
	src, err := fs.OpenFile(storagePath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return fs.SaveFile(src, originalFilename)
}

// OpenFile открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (fs *FileStore) OpenFile(storagePath string) (*os.File, error) {
	f, err := os.Open(fs.FullPath(storagePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storagePath)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storagePath, err)
	}
	return f, nil
}

// FullPath возвращает абсолютный путь к файлу на диске.
func (fs *FileStore) FullPath(storagePath string) string {
	return filepath.Join(fs.dataDir, filepath.FromSlash(storagePath))
}

// DeleteFile удаляет файл с диска. Отсутствующий файл — не ошибка.
func (fs *FileStore) DeleteFile(storagePath string) error {
	err := os.Remove(fs.FullPath(storagePath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	return nil
}

// FileExists проверяет существование файла на диске.
func (fs *FileStore) FileExists(storagePath string) bool {
	_, err := os.Stat(fs.FullPath(storagePath))
	return err == nil
}

// generateStoragePath строит относительный путь хранения.
// Пример: 2026/02/21/report_a1b2c3d4.csv
func generateStoragePath(originalFilename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	name := strings.TrimSuffix(originalFilename, filepath.Ext(originalFilename))
	if ext == "." {
		ext = ""
	}

	name = naming.Sanitize(name)
	if r := []rune(name); len(r) > 50 {
		name = string(r[:50])
	}

	uid := uuid.New().String()[:8]
	fileName := fmt.Sprintf("%s_%s%s", name, uid, naming.Sanitize(ext))
	if ext == "" {
		fileName = fmt.Sprintf("%s_%s", name, uid)
	}
	return now.Format("2006/01/02") + "/" + fileName
}
