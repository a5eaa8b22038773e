package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
)

// folderColumns — список колонок таблицы folders для SELECT.
const folderColumns = `id, name, parent_id, allowed_type, created_by, description,
	is_public, created_at, updated_at`

// FolderRepository — интерфейс доступа к таблице folders.
type FolderRepository interface {
	// Create создаёт папку.
	Create(ctx context.Context, f *model.Folder) error
	// GetByID возвращает папку по UUID.
	GetByID(ctx context.Context, id string) (*model.Folder, error)
	// List возвращает папки с фильтрацией, упорядоченные по имени.
	List(ctx context.Context, filters FolderListFilters) ([]*model.Folder, error)
	// Rename переименовывает папку.
	Rename(ctx context.Context, id, name string) (*model.Folder, error)
	// Delete удаляет папку; вложенные папки и файлы удаляются каскадно.
	Delete(ctx context.Context, id string) error
	// CountByCreator возвращает количество папок пользователя.
	CountByCreator(ctx context.Context, userID string) (int, error)
}

// FolderListFilters — фильтры списка папок.
type FolderListFilters struct {
	// CreatedBy — папки пользователя
	CreatedBy *string
	// ParentID — дочерние папки указанной папки
	ParentID *string
	// RootOnly — только корневые папки (ParentID игнорируется)
	RootOnly bool
}

// folderRepo — реализация FolderRepository.
type folderRepo struct {
	db DBTX
}

// NewFolderRepository создаёт репозиторий папок.
func NewFolderRepository(db DBTX) FolderRepository {
	return &folderRepo{db: db}
}

// scanFolder сканирует строку результата в Folder.
func scanFolder(row rowScanner) (*model.Folder, error) {
	f := &model.Folder{}
	var allowed string
	err := row.Scan(
		&f.ID, &f.Name, &f.ParentID, &allowed, &f.CreatedBy, &f.Description,
		&f.IsPublic, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.AllowedType = model.AllowedType(allowed)
	return f, nil
}

func (r *folderRepo) Create(ctx context.Context, f *model.Folder) error {
	if f.AllowedType == "" {
		f.AllowedType = model.DefaultAllowedType
	}

	query := `
		INSERT INTO folders (id, name, parent_id, allowed_type, created_by, description, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.ID, f.Name, f.ParentID, string(f.AllowedType), f.CreatedBy, f.Description, f.IsPublic,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: папка с таким ID уже существует", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: родительская папка не существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания папки: %w", err)
	}
	return nil
}

func (r *folderRepo) GetByID(ctx context.Context, id string) (*model.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders WHERE id = $1`

	f, err := scanFolder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, scanErr(err, "ошибка получения папки")
	}
	return f, nil
}

// buildFolderWhere строит WHERE-условие и аргументы для фильтрации папок.
func buildFolderWhere(filters FolderListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.CreatedBy != nil {
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", argNum))
		args = append(args, *filters.CreatedBy)
		argNum++
	}
	switch {
	case filters.RootOnly:
		conditions = append(conditions, "parent_id IS NULL")
	case filters.ParentID != nil:
		conditions = append(conditions, fmt.Sprintf("parent_id = $%d", argNum))
		args = append(args, *filters.ParentID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *folderRepo) List(ctx context.Context, filters FolderListFilters) ([]*model.Folder, error) {
	where, args := buildFolderWhere(filters, 1)
	query := `SELECT ` + folderColumns + ` FROM folders ` + where + ` ORDER BY name, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка папок: %w", err)
	}
	defer rows.Close()

	var result []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования папки: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *folderRepo) Rename(ctx context.Context, id, name string) (*model.Folder, error) {
	query := `UPDATE folders SET name = $2 WHERE id = $1 RETURNING ` + folderColumns

	f, err := scanFolder(r.db.QueryRow(ctx, query, id, name))
	if err != nil {
		return nil, scanErr(err, "ошибка переименования папки")
	}
	return f, nil
}

func (r *folderRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM folders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления папки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *folderRepo) CountByCreator(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM folders WHERE created_by = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта папок: %w", err)
	}
	return n, nil
}
