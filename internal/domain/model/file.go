// Пакет model — доменные модели folder-manager.
// FileRecord — маппинг таблицы files, Folder — таблицы folders.
package model

import (
	"path/filepath"
	"strings"
	"time"
)

// FileRecord — запись загруженного файла.
// Поля Digest и снимка состояния (HasChunks ... ProcessingState) записываются
// только инициализатором обработки и при явном запросе статуса,
// обычный CRUD их не трогает.
type FileRecord struct {
	// ID — UUID файла
	ID string
	// OriginalName — исходное имя файла при загрузке
	OriginalName string
	// StoragePath — путь сырых байтов относительно FM_UPLOAD_DIR
	StoragePath string
	// Size — размер файла в байтах
	Size int64
	// Checksum — SHA-256 содержимого
	Checksum string
	// FolderID — UUID папки (nil — файл вне папок)
	FolderID *string
	// UploadedBy — идентификатор загрузившего (sub из JWT)
	UploadedBy *string
	// UploadedAt — время загрузки
	UploadedAt time.Time
	// Description — описание файла (опционально)
	Description *string
	// IsPublic — файл доступен всем
	IsPublic bool
	// ConfigAdded — к файлу прикреплён конфиг обработки
	ConfigAdded bool

	// --- Состояние обработки ---

	// Digest — дайджест каталога артефактов (nil — ещё не привязан)
	Digest *string
	// HasChunks — кэш: есть хотя бы один чанк
	HasChunks bool
	// ChunkCount — кэш: количество чанков
	ChunkCount int
	// HasInference — кэш: существует каталог inference
	HasInference bool
	// HasConfig — кэш: существует config.json
	HasConfig bool
	// ProcessingState — кэш: состояние жизненного цикла
	ProcessingState LifecycleState

	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Extension возвращает расширение имени файла без точки в нижнем регистре.
// "Report.PDF" → "pdf", "archive" → "".
func Extension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// ApplySnapshot копирует снимок состояния в кэш-поля записи.
func (f *FileRecord) ApplySnapshot(s Snapshot) {
	f.HasChunks = s.HasChunks
	f.ChunkCount = s.ChunkCount
	f.HasInference = s.HasInference
	f.HasConfig = s.HasConfig
	f.ProcessingState = s.State
}

// CachedSnapshot возвращает снимок из кэш-полей записи (без обращения к диску).
func (f *FileRecord) CachedSnapshot() Snapshot {
	s := Snapshot{
		HasChunks:    f.HasChunks,
		ChunkCount:   f.ChunkCount,
		HasInference: f.HasInference,
		HasConfig:    f.HasConfig,
		State:        f.ProcessingState,
	}
	if f.Digest != nil {
		s.Digest = *f.Digest
		s.DigestBound = true
	}
	if s.State == "" {
		s.State = StateRaw
	}
	return s
}

// Clone возвращает копию записи (указатели на строки разделяются,
// они не изменяются после создания).
func (f *FileRecord) Clone() *FileRecord {
	c := *f
	return &c
}
