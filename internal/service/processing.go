// processing.go — фасад подсистемы обработки для остального приложения.
// Единственная точка, через которую CRUD-слой и HTTP-обработчики
// обращаются к каталогу артефактов файла.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/repository"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/artifact"
)

// processingOperationsTotal — операции над артефактами по типу и результату.
var processingOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fm_processing_operations_total",
	Help: "Общее количество операций над артефактами обработки",
}, []string{"operation", "result"})

// recordOp учитывает операцию в метрике.
func recordOp(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case errors.Is(err, ErrMalformed):
		result = "malformed"
	case errors.Is(err, ErrValidation):
		result = "invalid"
	default:
		result = "error"
	}
	processingOperationsTotal.WithLabelValues(op, result).Inc()
}

// Preview — сводка для предпросмотра файла.
type Preview struct {
	// File — запись файла с обновлённым кэшем снимка
	File *model.FileRecord
	// Snapshot — текущий снимок состояния обработки
	Snapshot model.Snapshot
	// Config — содержимое config.json (nil — отсутствует)
	Config json.RawMessage
	// FirstChunkIndex — номер первого чанка (0 — чанков нет)
	FirstChunkIndex int
	// FirstChunk — содержимое первого чанка (nil — чанков нет)
	FirstChunk json.RawMessage
	// Inferences — записи inference, новые первыми
	Inferences []model.InferenceRecord
	// Skipped — повреждённые части, не вошедшие в предпросмотр
	Skipped []artifact.Diagnostic
}

// ProcessingService — операции над состоянием обработки и артефактами файла.
type ProcessingService struct {
	files       repository.FileRepository
	store       *artifact.Store
	resolver    *StatusResolver
	initializer *Initializer
	cache       *RecordCache
	logger      *slog.Logger
}

// NewProcessingService создаёт фасад подсистемы обработки.
func NewProcessingService(
	files repository.FileRepository,
	store *artifact.Store,
	resolver *StatusResolver,
	initializer *Initializer,
	cache *RecordCache,
	logger *slog.Logger,
) *ProcessingService {
	return &ProcessingService{
		files:       files,
		store:       store,
		resolver:    resolver,
		initializer: initializer,
		cache:       cache,
		logger:      logger.With(slog.String("component", "processing_service")),
	}
}

// getFile возвращает запись файла из кэша или БД.
func (s *ProcessingService) getFile(ctx context.Context, fileID string) (*model.FileRecord, error) {
	if f, ok := s.cache.Get(fileID); ok {
		return f, nil
	}
	f, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, translate("получение файла", err)
	}
	s.cache.Set(f)
	return f, nil
}

// refresh пересчитывает снимок и сохраняет его в кэш-поля записи,
// если он отличается от сохранённого.
func (s *ProcessingService) refresh(ctx context.Context, f *model.FileRecord) (model.Snapshot, error) {
	snap, err := s.resolver.Resolve(f)
	if err != nil {
		return model.Snapshot{}, err
	}
	if cachedDiffers(f, snap) {
		if err := s.files.UpdateSnapshot(ctx, f.ID, snap); err != nil {
			return model.Snapshot{}, translate("сохранение снимка", err)
		}
		f.ApplySnapshot(snap)
	}
	s.cache.Set(f)
	return snap, nil
}

// cachedDiffers сравнивает кэш-поля записи со свежим снимком.
func cachedDiffers(f *model.FileRecord, snap model.Snapshot) bool {
	c := f.CachedSnapshot()
	return c.ChunkCount != snap.ChunkCount ||
		c.HasChunks != snap.HasChunks ||
		c.HasInference != snap.HasInference ||
		c.HasConfig != snap.HasConfig ||
		c.State != snap.State
}

// ensureInitialized инициализирует обработку, если дайджест ещё не привязан.
func (s *ProcessingService) ensureInitialized(ctx context.Context, f *model.FileRecord) error {
	if f.Digest != nil {
		return nil
	}
	if _, err := s.initializer.Initialize(ctx, f); err != nil {
		return translate("инициализация обработки", err)
	}
	s.cache.Set(f)
	return nil
}

// ResolveStatus возвращает текущий снимок состояния файла
// и обновляет его кэш в записи.
func (s *ProcessingService) ResolveStatus(ctx context.Context, fileID string) (snap model.Snapshot, err error) {
	defer func() { recordOp("resolve_status", err) }()

	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap, err = s.refresh(ctx, f)
	if err != nil {
		return model.Snapshot{}, translate("вычисление статуса", err)
	}
	return snap, nil
}

// Initialize создаёт каталог артефактов и привязывает дайджест.
// Идемпотентна.
func (s *ProcessingService) Initialize(ctx context.Context, fileID string) (snap model.Snapshot, err error) {
	defer func() { recordOp("initialize", err) }()

	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap, err = s.initializer.Initialize(ctx, f)
	if err != nil {
		return model.Snapshot{}, translate("инициализация обработки", err)
	}
	s.cache.Set(f)
	return snap, nil
}

// WriteConfig сохраняет конфиг обработки как есть. raw должен быть валидным JSON.
// При необходимости инициализирует обработку и отмечает config_added.
func (s *ProcessingService) WriteConfig(ctx context.Context, fileID string, raw []byte) (err error) {
	defer func() { recordOp("write_config", err) }()

	if !json.Valid(raw) {
		return fmt.Errorf("%w: конфиг должен быть валидным JSON", ErrValidation)
	}
	return s.writeConfig(ctx, fileID, func(digest string) error {
		return s.store.WriteConfig(digest, raw)
	})
}

// WriteConfigJSON сериализует doc с отступами и сохраняет как конфиг.
func (s *ProcessingService) WriteConfigJSON(ctx context.Context, fileID string, doc any) (err error) {
	defer func() { recordOp("write_config", err) }()

	return s.writeConfig(ctx, fileID, func(digest string) error {
		return s.store.WriteConfigJSON(digest, doc)
	})
}

func (s *ProcessingService) writeConfig(ctx context.Context, fileID string, write func(digest string) error) error {
	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := s.ensureInitialized(ctx, f); err != nil {
		return err
	}

	if err := write(*f.Digest); err != nil {
		return translate("запись конфига", err)
	}
	if err := s.files.SetConfigAdded(ctx, f.ID); err != nil {
		return translate("отметка config_added", err)
	}
	f.ConfigAdded = true
	if _, err := s.refresh(ctx, f); err != nil {
		return translate("обновление статуса", err)
	}

	s.logger.Info("Конфиг обработки сохранён", slog.String("file_id", f.ID))
	return nil
}

// ReadConfig возвращает config.json файла.
func (s *ProcessingService) ReadConfig(ctx context.Context, fileID string) (raw json.RawMessage, err error) {
	defer func() { recordOp("read_config", err) }()

	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	digest, _ := s.resolver.DigestOf(f)
	raw, err = s.store.ReadConfig(digest)
	if err != nil {
		return nil, translate("чтение конфига", err)
	}
	return raw, nil
}

// ReadChunk возвращает распакованный JSON чанка n.
func (s *ProcessingService) ReadChunk(ctx context.Context, fileID string, n int) (doc json.RawMessage, err error) {
	defer func() { recordOp("read_chunk", err) }()

	if n < 1 {
		return nil, fmt.Errorf("%w: номер чанка должен быть >= 1", ErrValidation)
	}
	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	digest, _ := s.resolver.DigestOf(f)
	doc, err = s.store.ReadChunk(digest, n)
	if err != nil {
		return nil, translate(fmt.Sprintf("чтение чанка %d", n), err)
	}
	return doc, nil
}

// WriteChunk сохраняет чанк n. При необходимости инициализирует обработку.
func (s *ProcessingService) WriteChunk(ctx context.Context, fileID string, n int, doc any) (snap model.Snapshot, err error) {
	defer func() { recordOp("write_chunk", err) }()

	if n < 1 {
		return model.Snapshot{}, fmt.Errorf("%w: номер чанка должен быть >= 1", ErrValidation)
	}
	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if err := s.ensureInitialized(ctx, f); err != nil {
		return model.Snapshot{}, err
	}
	if err := s.store.WriteChunk(*f.Digest, n, doc); err != nil {
		return model.Snapshot{}, translate(fmt.Sprintf("запись чанка %d", n), err)
	}
	snap, err = s.refresh(ctx, f)
	if err != nil {
		return model.Snapshot{}, translate("обновление статуса", err)
	}
	return snap, nil
}

// ListInferenceRecords возвращает записи inference файла, новые первыми.
// Повреждённые записи пропускаются и возвращаются как диагностика.
func (s *ProcessingService) ListInferenceRecords(ctx context.Context, fileID string) (records []model.InferenceRecord, diags []artifact.Diagnostic, err error) {
	defer func() { recordOp("list_inferences", err) }()

	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	digest, _ := s.resolver.DigestOf(f)
	records, diags, err = s.store.ReadInferenceRecords(digest)
	if err != nil {
		return nil, nil, translate("чтение записей inference", err)
	}
	for _, d := range diags {
		s.logger.Warn("Запись inference пропущена",
			slog.String("file_id", f.ID),
			slog.String("name", d.Name),
			slog.String("reason", d.Reason),
		)
	}
	return records, diags, nil
}

// AddInferenceRecord сохраняет запись inference под именем name.
// Возвращает итоговое имя файла записи.
func (s *ProcessingService) AddInferenceRecord(ctx context.Context, fileID, name string, doc any) (fileName string, err error) {
	defer func() { recordOp("add_inference", err) }()

	if name == "" {
		return "", fmt.Errorf("%w: имя записи inference обязательно", ErrValidation)
	}
	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if err := s.ensureInitialized(ctx, f); err != nil {
		return "", err
	}
	fileName, err = s.store.WriteInferenceRecord(*f.Digest, name, doc)
	if err != nil {
		return "", translate("запись inference", err)
	}
	if _, err := s.refresh(ctx, f); err != nil {
		return "", translate("обновление статуса", err)
	}
	return fileName, nil
}

// RemoveArtifacts удаляет каталог артефактов файла.
// Привязка дайджеста сохраняется, снимок становится пустым.
func (s *ProcessingService) RemoveArtifacts(ctx context.Context, fileID string) (err error) {
	defer func() { recordOp("remove_artifacts", err) }()

	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := s.removeArtifactsOf(f); err != nil {
		return err
	}
	if _, err := s.refresh(ctx, f); err != nil {
		return translate("обновление статуса", err)
	}
	return nil
}

// removeArtifactsOf удаляет каталог артефактов записи без обращения к БД.
func (s *ProcessingService) removeArtifactsOf(f *model.FileRecord) error {
	digest, _ := s.resolver.DigestOf(f)
	if err := s.store.Remove(digest); err != nil {
		return translate("удаление артефактов", err)
	}
	s.logger.Info("Артефакты файла удалены", slog.String("file_id", f.ID))
	return nil
}

// Preview собирает снимок, конфиг, первый чанк и записи inference файла.
// Отсутствующие и повреждённые части пропускаются.
func (s *ProcessingService) Preview(ctx context.Context, fileID string) (p *Preview, err error) {
	defer func() { recordOp("preview", err) }()

	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	snap, err := s.refresh(ctx, f)
	if err != nil {
		return nil, translate("вычисление статуса", err)
	}
	p = &Preview{File: f, Snapshot: snap}

	if snap.HasConfig {
		p.Config, err = s.store.ReadConfig(snap.Digest)
		if err := s.skippable(f, p, artifact.ConfigFileName, err); err != nil {
			return nil, err
		}
	}

	if snap.HasChunks {
		indexes, err := s.store.ListChunks(snap.Digest)
		if err := s.skippable(f, p, "chunks", err); err != nil {
			return nil, err
		}
		if len(indexes) > 0 {
			p.FirstChunk, err = s.store.ReadChunk(snap.Digest, indexes[0])
			if err := s.skippable(f, p, artifact.ChunkName(indexes[0]), err); err != nil {
				return nil, err
			}
			if p.FirstChunk != nil {
				p.FirstChunkIndex = indexes[0]
			}
		}
	}

	if snap.HasInference {
		var diags []artifact.Diagnostic
		p.Inferences, diags, err = s.store.ReadInferenceRecords(snap.Digest)
		if err := s.skippable(f, p, artifact.InferenceDirName, err); err != nil {
			return nil, err
		}
		for _, d := range diags {
			s.logger.Warn("Запись inference пропущена",
				slog.String("file_id", f.ID),
				slog.String("name", d.Name),
				slog.String("reason", d.Reason),
			)
		}
		p.Skipped = append(p.Skipped, diags...)
	}
	return p, nil
}

// skippable пропускает отсутствующие и повреждённые части предпросмотра.
// Повреждённые попадают в p.Skipped, остальные ошибки возвращаются.
func (s *ProcessingService) skippable(f *model.FileRecord, p *Preview, part string, err error) error {
	if err == nil {
		return nil
	}
	malformed := artifact.IsMalformed(err)
	if !malformed && !errors.Is(err, artifact.ErrNotFound) {
		return translate("предпросмотр", err)
	}
	s.logger.Warn("Часть предпросмотра пропущена",
		slog.String("file_id", f.ID),
		slog.String("part", part),
		slog.String("error", err.Error()),
	)
	if malformed {
		p.Skipped = append(p.Skipped, artifact.Diagnostic{Name: part, Reason: err.Error()})
	}
	return nil
}
