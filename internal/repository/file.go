package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
)

// fileColumns — список колонок таблицы files для SELECT.
const fileColumns = `id, original_name, storage_path, size, checksum, folder_id,
	uploaded_by, uploaded_at, description, is_public, config_added, digest,
	has_chunks, chunk_count, has_inference, has_config, processing_state,
	created_at, updated_at`

// FileRepository — интерфейс доступа к таблице files.
type FileRepository interface {
	// Create создаёт запись файла.
	Create(ctx context.Context, f *model.FileRecord) error
	// GetByID возвращает файл по UUID.
	GetByID(ctx context.Context, id string) (*model.FileRecord, error)
	// List возвращает файлы с фильтрацией, новые первыми.
	List(ctx context.Context, filters FileListFilters) ([]*model.FileRecord, error)
	// ListInFolderTree возвращает файлы папки и всех вложенных папок.
	ListInFolderTree(ctx context.Context, folderID string) ([]*model.FileRecord, error)
	// ListLocators возвращает адресные данные всех файлов (для сверки артефактов).
	ListLocators(ctx context.Context) ([]FileLocator, error)
	// UpdateFolder перемещает файл в другую папку (nil — вне папок).
	UpdateFolder(ctx context.Context, id string, folderID *string) error
	// BindDigest привязывает дайджест, если он ещё не привязан.
	// Возвращает действующий дайджест (первый вызов выигрывает).
	BindDigest(ctx context.Context, id, digest string) (string, error)
	// UpdateSnapshot сохраняет кэш снимка состояния обработки.
	UpdateSnapshot(ctx context.Context, id string, s model.Snapshot) error
	// SetConfigAdded отмечает, что к файлу прикреплён конфиг.
	SetConfigAdded(ctx context.Context, id string) error
	// Delete удаляет запись файла.
	Delete(ctx context.Context, id string) error
}

// FileListFilters — фильтры списка файлов.
type FileListFilters struct {
	// FolderID — файлы папки
	FolderID *string
	// UploadedBy — файлы пользователя
	UploadedBy *string
	// Limit — максимум записей (0 — без ограничения)
	Limit int
	// Offset — смещение
	Offset int
}

// FileLocator — данные, по которым находится каталог артефактов файла.
type FileLocator struct {
	ID           string
	OriginalName string
	Digest       *string
}

// fileRepo — реализация FileRepository.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// scanFile сканирует строку результата в FileRecord.
func scanFile(row rowScanner) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	var state string
	err := row.Scan(
		&f.ID, &f.OriginalName, &f.StoragePath, &f.Size, &f.Checksum, &f.FolderID,
		&f.UploadedBy, &f.UploadedAt, &f.Description, &f.IsPublic, &f.ConfigAdded, &f.Digest,
		&f.HasChunks, &f.ChunkCount, &f.HasInference, &f.HasConfig, &state,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.ProcessingState = model.LifecycleState(state)
	return f, nil
}

func (r *fileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	if f.ProcessingState == "" {
		f.ProcessingState = model.StateRaw
	}

	query := `
		INSERT INTO files (id, original_name, storage_path, size, checksum, folder_id,
			uploaded_by, uploaded_at, description, is_public, processing_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.ID, f.OriginalName, f.StoragePath, f.Size, f.Checksum, f.FolderID,
		f.UploadedBy, f.UploadedAt, f.Description, f.IsPublic, string(f.ProcessingState),
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с таким ID уже существует", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: папка не существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания файла: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, scanErr(err, "ошибка получения файла")
	}
	return f, nil
}

// buildFileWhere строит WHERE-условие и аргументы для фильтрации файлов.
func buildFileWhere(filters FileListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.FolderID != nil {
		conditions = append(conditions, fmt.Sprintf("folder_id = $%d", argNum))
		args = append(args, *filters.FolderID)
		argNum++
	}
	if filters.UploadedBy != nil {
		conditions = append(conditions, fmt.Sprintf("uploaded_by = $%d", argNum))
		args = append(args, *filters.UploadedBy)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// buildFileListQuery собирает запрос списка файлов с пагинацией.
func buildFileListQuery(filters FileListFilters) (string, []any) {
	where, args := buildFileWhere(filters, 1)

	query := `SELECT ` + fileColumns + ` FROM files ` + where + ` ORDER BY uploaded_at DESC, id`
	argNum := len(args) + 1
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}
	return query, args
}

func (r *fileRepo) List(ctx context.Context, filters FileListFilters) ([]*model.FileRecord, error) {
	query, args := buildFileListQuery(filters)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	return collectFiles(rows)
}

func (r *fileRepo) ListInFolderTree(ctx context.Context, folderID string) ([]*model.FileRecord, error) {
	query := `
		WITH RECURSIVE tree AS (
			SELECT id FROM folders WHERE id = $1
			UNION ALL
			SELECT f.id FROM folders f JOIN tree t ON f.parent_id = t.id
		)
		SELECT ` + fileColumns + `
		FROM files
		WHERE folder_id IN (SELECT id FROM tree)
		ORDER BY uploaded_at DESC, id`

	rows, err := r.db.Query(ctx, query, folderID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файлов дерева папок: %w", err)
	}
	return collectFiles(rows)
}

// collectFiles сканирует все строки результата и закрывает rows.
func collectFiles(rows pgx.Rows) ([]*model.FileRecord, error) {
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *fileRepo) ListLocators(ctx context.Context) ([]FileLocator, error) {
	rows, err := r.db.Query(ctx, `SELECT id, original_name, digest FROM files`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения адресов файлов: %w", err)
	}
	defer rows.Close()

	var result []FileLocator
	for rows.Next() {
		var l FileLocator
		if err := rows.Scan(&l.ID, &l.OriginalName, &l.Digest); err != nil {
			return nil, fmt.Errorf("ошибка сканирования адреса файла: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (r *fileRepo) UpdateFolder(ctx context.Context, id string, folderID *string) error {
	tag, err := r.db.Exec(ctx, `UPDATE files SET folder_id = $2 WHERE id = $1`, id, folderID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: папка не существует", ErrConflict)
		}
		return fmt.Errorf("ошибка перемещения файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) BindDigest(ctx context.Context, id, digest string) (string, error) {
	var bound string
	err := r.db.QueryRow(ctx,
		`UPDATE files SET digest = $2 WHERE id = $1 AND digest IS NULL RETURNING digest`,
		id, digest,
	).Scan(&bound)
	if err == nil {
		return bound, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("ошибка привязки дайджеста: %w", err)
	}

	// Дайджест уже привязан (или файла нет) — читаем действующий
	var existing *string
	err = r.db.QueryRow(ctx, `SELECT digest FROM files WHERE id = $1`, id).Scan(&existing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка чтения дайджеста: %w", err)
	}
	if existing == nil {
		return "", fmt.Errorf("дайджест файла %s не привязан после UPDATE", id)
	}
	return *existing, nil
}

func (r *fileRepo) UpdateSnapshot(ctx context.Context, id string, s model.Snapshot) error {
	query := `
		UPDATE files
		SET has_chunks = $2, chunk_count = $3, has_inference = $4,
			has_config = $5, processing_state = $6
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		id, s.HasChunks, s.ChunkCount, s.HasInference, s.HasConfig, string(s.State),
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления состояния обработки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) SetConfigAdded(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE files SET config_added = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления config_added: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
