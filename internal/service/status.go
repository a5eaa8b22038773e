// status.go — вычисление снимка состояния обработки файла.
package service

import (
	"fmt"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/artifact"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/naming"
)

// StatusResolver вычисляет Snapshot файла по содержимому каталога артефактов.
// Только чтение, без блокировок, безопасен для конкурентного использования.
type StatusResolver struct {
	store  *artifact.Store
	naming *naming.Resolver
}

// NewStatusResolver создаёт резолвер статуса.
func NewStatusResolver(store *artifact.Store, resolver *naming.Resolver) *StatusResolver {
	return &StatusResolver{store: store, naming: resolver}
}

// DigestOf возвращает дайджест файла: привязанный, либо вычисленный
// по имени (без сохранения). Второе значение — дайджест привязан.
func (r *StatusResolver) DigestOf(f *model.FileRecord) (string, bool) {
	if f.Digest != nil && *f.Digest != "" {
		return *f.Digest, true
	}
	return r.naming.DigestFor(f.OriginalName, f.ID), false
}

// Resolve читает каталог артефактов файла и возвращает снимок.
// Отсутствующий каталог даёт снимок без артефактов в состоянии raw.
// Состояния processing и error резолвер не выставляет.
func (r *StatusResolver) Resolve(f *model.FileRecord) (model.Snapshot, error) {
	digest, bound := r.DigestOf(f)

	scan, err := r.store.Scan(digest)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("ошибка чтения артефактов файла %s: %w", f.ID, err)
	}
	return snapshotFromScan(digest, bound, scan), nil
}

// snapshotFromScan строит снимок из результата сканирования каталога.
func snapshotFromScan(digest string, bound bool, scan artifact.EntryScan) model.Snapshot {
	s := model.Snapshot{
		Digest:      digest,
		DigestBound: bound,
		State:       model.StateRaw,
	}
	if !scan.Exists {
		return s
	}
	s.ChunkCount = scan.ChunkCount
	s.HasChunks = scan.ChunkCount > 0
	s.HasInference = scan.HasInference
	s.HasConfig = scan.HasConfig
	if s.HasChunks {
		s.State = model.StateProcessed
	}
	return s
}
