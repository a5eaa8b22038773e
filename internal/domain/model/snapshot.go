package model

import "time"

// LifecycleState — состояние жизненного цикла обработки файла.
type LifecycleState string

const (
	// StateRaw — файл не обработан (нет чанков).
	StateRaw LifecycleState = "raw"
	// StateProcessing — зарезервировано, резолвер не выставляет.
	StateProcessing LifecycleState = "processing"
	// StateProcessed — есть хотя бы один чанк.
	StateProcessed LifecycleState = "processed"
	// StateError — зарезервировано, резолвер не выставляет.
	StateError LifecycleState = "error"
)

// Snapshot — производный снимок состояния обработки файла.
type Snapshot struct {
	// Digest — дайджест, по которому искался каталог артефактов
	Digest string
	// DigestBound — дайджест сохранён в записи файла
	DigestBound bool
	// ChunkCount — количество чанков
	ChunkCount int
	// HasChunks — ChunkCount > 0
	HasChunks bool
	// HasInference — существует каталог inference
	HasInference bool
	// HasConfig — существует config.json
	HasConfig bool
	// State — состояние жизненного цикла
	State LifecycleState
}

// InferenceRecord — сводка по одной записи результатов inference.
type InferenceRecord struct {
	// Name — имя файла записи
	Name string
	// Timestamp — время записи (nil — отсутствует или не разобрано)
	Timestamp *time.Time
	// RawTimestamp — исходное значение поля timestamp
	RawTimestamp string
	// HasConfig — запись содержит поле config
	HasConfig bool
	// HasInference — запись содержит поле inference
	HasInference bool
	// SizeBytes — размер файла записи
	SizeBytes int64
}

// Summary — агрегированная статистика по набору файлов.
type Summary struct {
	FileCount          int
	TotalBytes         int64
	FilesWithChunks    int
	TotalChunks        int
	FilesWithInference int
	FilesWithConfig    int
}

// UserStats — статистика пользователя.
type UserStats struct {
	UserID         string
	FoldersCreated int
	FilesUploaded  int
	Summary        Summary
}

// Add учитывает файл и его снимок в сводке.
func (s *Summary) Add(f *FileRecord, snap Snapshot) {
	s.FileCount++
	s.TotalBytes += f.Size
	s.TotalChunks += snap.ChunkCount
	if snap.HasChunks {
		s.FilesWithChunks++
	}
	if snap.HasInference {
		s.FilesWithInference++
	}
	if snap.HasConfig {
		s.FilesWithConfig++
	}
}
