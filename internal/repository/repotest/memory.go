// Пакет repotest — in-memory реализация репозиториев для тестов
// сервисного слоя и HTTP-обработчиков. Повторяет семантику PostgreSQL-версии:
// ErrNotFound/ErrConflict, каскадное удаление, однократную привязку дайджеста.
package repotest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/repository"
)

// DB — общее in-memory хранилище папок и файлов.
type DB struct {
	mu      sync.RWMutex
	files   map[string]*model.FileRecord
	folders map[string]*model.Folder
}

// New создаёт пустое хранилище.
func New() *DB {
	return &DB{
		files:   make(map[string]*model.FileRecord),
		folders: make(map[string]*model.Folder),
	}
}

// Files возвращает репозиторий файлов поверх хранилища.
func (db *DB) Files() *FileRepo {
	return &FileRepo{db: db}
}

// Folders возвращает репозиторий папок поверх хранилища.
func (db *DB) Folders() *FolderRepo {
	return &FolderRepo{db: db}
}

// FileCount возвращает количество записей файлов.
func (db *DB) FileCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.files)
}

// --- Файлы ---

// FileRepo — in-memory реализация repository.FileRepository.
type FileRepo struct {
	db *DB
}

var _ repository.FileRepository = (*FileRepo)(nil)

func (r *FileRepo) Create(_ context.Context, f *model.FileRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.files[f.ID]; ok {
		return fmt.Errorf("%w: файл с таким ID уже существует", repository.ErrConflict)
	}
	if f.FolderID != nil {
		if _, ok := r.db.folders[*f.FolderID]; !ok {
			return fmt.Errorf("%w: папка не существует", repository.ErrConflict)
		}
	}
	if f.ProcessingState == "" {
		f.ProcessingState = model.StateRaw
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	r.db.files[f.ID] = f.Clone()
	return nil
}

func (r *FileRepo) GetByID(_ context.Context, id string) (*model.FileRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	f, ok := r.db.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return f.Clone(), nil
}

func (r *FileRepo) List(_ context.Context, filters repository.FileListFilters) ([]*model.FileRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var result []*model.FileRecord
	for _, f := range r.db.files {
		if filters.FolderID != nil && (f.FolderID == nil || *f.FolderID != *filters.FolderID) {
			continue
		}
		if filters.UploadedBy != nil && (f.UploadedBy == nil || *f.UploadedBy != *filters.UploadedBy) {
			continue
		}
		result = append(result, f.Clone())
	}
	sortFiles(result)

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return nil, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && len(result) > filters.Limit {
		result = result[:filters.Limit]
	}
	return result, nil
}

func (r *FileRepo) ListInFolderTree(_ context.Context, folderID string) ([]*model.FileRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	tree := r.db.subtree(folderID)
	var result []*model.FileRecord
	for _, f := range r.db.files {
		if f.FolderID != nil && tree[*f.FolderID] {
			result = append(result, f.Clone())
		}
	}
	sortFiles(result)
	return result, nil
}

func (r *FileRepo) ListLocators(_ context.Context) ([]repository.FileLocator, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	result := make([]repository.FileLocator, 0, len(r.db.files))
	for _, f := range r.db.files {
		result = append(result, repository.FileLocator{ID: f.ID, OriginalName: f.OriginalName, Digest: f.Digest})
	}
	return result, nil
}

func (r *FileRepo) UpdateFolder(_ context.Context, id string, folderID *string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	f, ok := r.db.files[id]
	if !ok {
		return repository.ErrNotFound
	}
	if folderID != nil {
		if _, ok := r.db.folders[*folderID]; !ok {
			return fmt.Errorf("%w: папка не существует", repository.ErrConflict)
		}
	}
	f.FolderID = folderID
	f.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *FileRepo) BindDigest(_ context.Context, id, digest string) (string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	f, ok := r.db.files[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	if f.Digest == nil {
		d := digest
		f.Digest = &d
		f.UpdatedAt = time.Now().UTC()
	}
	return *f.Digest, nil
}

func (r *FileRepo) UpdateSnapshot(_ context.Context, id string, s model.Snapshot) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	f, ok := r.db.files[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.ApplySnapshot(s)
	f.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *FileRepo) SetConfigAdded(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	f, ok := r.db.files[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.ConfigAdded = true
	return nil
}

func (r *FileRepo) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.files[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.files, id)
	return nil
}

// sortFiles упорядочивает файлы как SQL-версия: uploaded_at DESC, id.
func sortFiles(files []*model.FileRecord) {
	slices.SortFunc(files, func(a, b *model.FileRecord) int {
		if c := b.UploadedAt.Compare(a.UploadedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// --- Папки ---

// FolderRepo — in-memory реализация repository.FolderRepository.
type FolderRepo struct {
	db *DB
}

var _ repository.FolderRepository = (*FolderRepo)(nil)

func (r *FolderRepo) Create(_ context.Context, f *model.Folder) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.folders[f.ID]; ok {
		return fmt.Errorf("%w: папка с таким ID уже существует", repository.ErrConflict)
	}
	if f.ParentID != nil {
		if _, ok := r.db.folders[*f.ParentID]; !ok {
			return fmt.Errorf("%w: родительская папка не существует", repository.ErrConflict)
		}
	}
	if f.AllowedType == "" {
		f.AllowedType = model.DefaultAllowedType
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	c := *f
	r.db.folders[f.ID] = &c
	return nil
}

func (r *FolderRepo) GetByID(_ context.Context, id string) (*model.Folder, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	f, ok := r.db.folders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *f
	return &c, nil
}

func (r *FolderRepo) List(_ context.Context, filters repository.FolderListFilters) ([]*model.Folder, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var result []*model.Folder
	for _, f := range r.db.folders {
		if filters.CreatedBy != nil && (f.CreatedBy == nil || *f.CreatedBy != *filters.CreatedBy) {
			continue
		}
		switch {
		case filters.RootOnly:
			if f.ParentID != nil {
				continue
			}
		case filters.ParentID != nil:
			if f.ParentID == nil || *f.ParentID != *filters.ParentID {
				continue
			}
		}
		c := *f
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *model.Folder) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (r *FolderRepo) Rename(_ context.Context, id, name string) (*model.Folder, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	f, ok := r.db.folders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	f.Name = name
	f.UpdatedAt = time.Now().UTC()
	c := *f
	return &c, nil
}

func (r *FolderRepo) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.folders[id]; !ok {
		return repository.ErrNotFound
	}
	tree := r.db.subtree(id)
	for fid, f := range r.db.files {
		if f.FolderID != nil && tree[*f.FolderID] {
			delete(r.db.files, fid)
		}
	}
	for folderID := range tree {
		delete(r.db.folders, folderID)
	}
	return nil
}

func (r *FolderRepo) CountByCreator(_ context.Context, userID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	n := 0
	for _, f := range r.db.folders {
		if f.CreatedBy != nil && *f.CreatedBy == userID {
			n++
		}
	}
	return n, nil
}

// subtree возвращает множество ID папки и всех её потомков.
// Вызывается под блокировкой.
func (db *DB) subtree(rootID string) map[string]bool {
	tree := map[string]bool{}
	if _, ok := db.folders[rootID]; !ok {
		return tree
	}
	tree[rootID] = true
	for changed := true; changed; {
		changed = false
		for id, f := range db.folders {
			if !tree[id] && f.ParentID != nil && tree[*f.ParentID] {
				tree[id] = true
				changed = true
			}
		}
	}
	return tree
}
