// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/preetgupta-32/folder-manager-iudx/internal/repository"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/artifact"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/filestore"
)

var (
	// ErrNotFound — ресурс не найден (файл, папка, чанк, конфиг, inference).
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт состояния (несуществующая родительская папка и т.п.).
	ErrConflict = errors.New("конфликт")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrExtensionNotAllowed — расширение файла не разрешено папкой.
	ErrExtensionNotAllowed = errors.New("расширение файла не разрешено папкой")
	// ErrMalformed — артефакт повреждён (не gzip или не JSON).
	ErrMalformed = errors.New("артефакт повреждён")
	// ErrFileTooLarge — файл превышает максимальный размер загрузки.
	ErrFileTooLarge = errors.New("файл превышает максимальный размер")
	// ErrReconcileInProgress — сверка артефактов уже выполняется.
	ErrReconcileInProgress = errors.New("сверка артефактов уже выполняется")
)

// translate переводит ошибки нижних слоёв в ошибки сервисного слоя.
// op — описание операции для обёртки прочих (IO) ошибок.
func translate(op string, err error) error {
	var malformed *artifact.MalformedError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, artifact.ErrNotFound),
		errors.Is(err, filestore.ErrNotFound):
		return fmt.Errorf("%w: %s: %v", ErrNotFound, op, err)
	case errors.Is(err, artifact.ErrInvalidChunkIndex), errors.Is(err, artifact.ErrInvalidDigest):
		return fmt.Errorf("%w: %s: %v", ErrValidation, op, err)
	case errors.Is(err, filestore.ErrTooLarge):
		return fmt.Errorf("%w: %s: %v", ErrFileTooLarge, op, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s: %v", ErrConflict, op, err)
	case errors.As(err, &malformed):
		return fmt.Errorf("%w: %s: %v", ErrMalformed, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
