// initializer.go — инициализация обработки файла.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/repository"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/artifact"
)

// Initializer создаёт каталог артефактов файла и привязывает дайджест.
// Повторный вызов безопасен: каталог и существующие артефакты не меняются,
// дайджест не перепривязывается.
type Initializer struct {
	store    *artifact.Store
	files    repository.FileRepository
	resolver *StatusResolver
	logger   *slog.Logger
}

// NewInitializer создаёт инициализатор обработки.
func NewInitializer(
	store *artifact.Store,
	files repository.FileRepository,
	resolver *StatusResolver,
	logger *slog.Logger,
) *Initializer {
	return &Initializer{
		store:    store,
		files:    files,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "initializer")),
	}
}

// Initialize гарантирует наличие каталога артефактов, привязывает дайджест
// (первый вызов выигрывает) и сохраняет снимок в кэш-поля записи.
// Запись f обновляется на месте.
func (i *Initializer) Initialize(ctx context.Context, f *model.FileRecord) (model.Snapshot, error) {
	digest, bound := i.resolver.DigestOf(f)

	if err := i.store.Ensure(digest); err != nil {
		return model.Snapshot{}, fmt.Errorf("ошибка создания каталога артефактов: %w", err)
	}

	if !bound {
		effective, err := i.files.BindDigest(ctx, f.ID, digest)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("ошибка привязки дайджеста: %w", err)
		}
		if effective != digest {
			// Конкурентный вызов привязал другой дайджест раньше
			if err := i.store.Ensure(effective); err != nil {
				return model.Snapshot{}, fmt.Errorf("ошибка создания каталога артефактов: %w", err)
			}
			i.logger.Warn("Дайджест уже привязан конкурентным вызовом",
				slog.String("file_id", f.ID),
			)
		}
		f.Digest = &effective
	}

	s, err := i.resolver.Resolve(f)
	if err != nil {
		return model.Snapshot{}, err
	}
	if err := i.files.UpdateSnapshot(ctx, f.ID, s); err != nil {
		return model.Snapshot{}, fmt.Errorf("ошибка сохранения снимка: %w", err)
	}
	f.ApplySnapshot(s)

	if !bound {
		i.logger.Info("Обработка файла инициализирована",
			slog.String("file_id", f.ID),
			slog.String("digest", s.Digest),
		)
	}
	return s, nil
}
