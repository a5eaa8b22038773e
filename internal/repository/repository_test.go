package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/preetgupta-32/folder-manager-iudx/internal/config"
	"github.com/preetgupta-32/folder-manager-iudx/internal/database"
	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/naming"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("folders_test"),
		postgres.WithUsername("folders"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("FM_DB_HOST", host)
	t.Setenv("FM_DB_PORT", port.Port())
	t.Setenv("FM_DB_NAME", "folders_test")
	t.Setenv("FM_DB_USER", "folders")
	t.Setenv("FM_DB_PASSWORD", "test-password")
	t.Setenv("FM_DB_SSL_MODE", "disable")
	t.Setenv("FM_UPLOAD_DIR", t.TempDir())
	t.Setenv("FM_ARTIFACT_DIR", t.TempDir())

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func strPtr(s string) *string { return &s }

// newFile создаёт FileRecord для тестов.
func newFile(name string, folderID *string) *model.FileRecord {
	return &model.FileRecord{
		ID:           uuid.New().String(),
		OriginalName: name,
		StoragePath:  "2026/01/01/" + name,
		Size:         100,
		Checksum:     "abc",
		FolderID:     folderID,
		UploadedBy:   strPtr("user-1"),
		UploadedAt:   time.Now().UTC(),
	}
}

// TestFolderCRUD проверяет жизненный цикл папки.
func TestFolderCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFolderRepository(pool)

	folder := &model.Folder{
		ID:        uuid.New().String(),
		Name:      "datasets",
		CreatedBy: strPtr("user-1"),
	}
	if err := repo.Create(ctx, folder); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if folder.AllowedType != model.AllowedTypeCSV {
		t.Errorf("AllowedType = %q, ожидался csv по умолчанию", folder.AllowedType)
	}

	got, err := repo.GetByID(ctx, folder.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Name != "datasets" || got.AllowedType != model.AllowedTypeCSV {
		t.Errorf("получено %+v", got)
	}

	renamed, err := repo.Rename(ctx, folder.ID, "tables")
	if err != nil {
		t.Fatalf("Rename() ошибка: %v", err)
	}
	if renamed.Name != "tables" {
		t.Errorf("Name = %q, ожидалось tables", renamed.Name)
	}

	n, err := repo.CountByCreator(ctx, "user-1")
	if err != nil || n != 1 {
		t.Errorf("CountByCreator() = %d, %v", n, err)
	}

	if err := repo.Delete(ctx, folder.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, folder.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("После Delete ожидали ErrNotFound, получили: %v", err)
	}
}

// TestFileCRUD проверяет создание, перемещение и удаление файла.
func TestFileCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	folders := NewFolderRepository(pool)
	files := NewFileRepository(pool)

	a := &model.Folder{ID: uuid.New().String(), Name: "a"}
	b := &model.Folder{ID: uuid.New().String(), Name: "b"}
	for _, f := range []*model.Folder{a, b} {
		if err := folders.Create(ctx, f); err != nil {
			t.Fatalf("Create folder: %v", err)
		}
	}

	f := newFile("data.csv", &a.ID)
	if err := files.Create(ctx, f); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	got, err := files.GetByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.ProcessingState != model.StateRaw || got.Digest != nil {
		t.Errorf("новый файл должен быть raw без дайджеста: %+v", got)
	}

	if err := files.UpdateFolder(ctx, f.ID, &b.ID); err != nil {
		t.Fatalf("UpdateFolder() ошибка: %v", err)
	}
	list, err := files.List(ctx, FileListFilters{FolderID: &b.ID})
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %d, %v", len(list), err)
	}

	missing := uuid.New().String()
	if err := files.UpdateFolder(ctx, f.ID, &missing); !errors.Is(err, ErrConflict) {
		t.Errorf("перемещение в несуществующую папку: ожидали ErrConflict, получили %v", err)
	}

	if err := files.Delete(ctx, f.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := files.Delete(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное удаление: ожидали ErrNotFound, получили %v", err)
	}
}

// TestBindDigest_FirstCallWins проверяет однократную привязку дайджеста.
func TestBindDigest_FirstCallWins(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	files := NewFileRepository(pool)

	f := newFile("data.csv", nil)
	if err := files.Create(ctx, f); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	first := naming.Digest("data.csv")
	got, err := files.BindDigest(ctx, f.ID, first)
	if err != nil || got != first {
		t.Fatalf("BindDigest() = %q, %v", got, err)
	}

	got, err = files.BindDigest(ctx, f.ID, naming.Digest("other.csv"))
	if err != nil {
		t.Fatalf("повторный BindDigest() ошибка: %v", err)
	}
	if got != first {
		t.Errorf("повторная привязка не должна менять дайджест: %q", got)
	}

	if _, err := files.BindDigest(ctx, uuid.New().String(), first); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидали ErrNotFound, получили %v", err)
	}
}

// TestUpdateSnapshot проверяет сохранение кэша снимка.
func TestUpdateSnapshot(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	files := NewFileRepository(pool)

	f := newFile("data.csv", nil)
	if err := files.Create(ctx, f); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	s := model.Snapshot{ChunkCount: 2, HasChunks: true, HasConfig: true, State: model.StateProcessed}
	if err := files.UpdateSnapshot(ctx, f.ID, s); err != nil {
		t.Fatalf("UpdateSnapshot() ошибка: %v", err)
	}
	if err := files.SetConfigAdded(ctx, f.ID); err != nil {
		t.Fatalf("SetConfigAdded() ошибка: %v", err)
	}

	got, err := files.GetByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.ChunkCount != 2 || !got.HasChunks || !got.HasConfig || got.ProcessingState != model.StateProcessed {
		t.Errorf("кэш снимка не сохранён: %+v", got)
	}
	if !got.ConfigAdded {
		t.Error("ConfigAdded должен быть true")
	}
}

// TestListInFolderTree проверяет выборку файлов вложенных папок и каскадное удаление.
func TestListInFolderTree(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	folders := NewFolderRepository(pool)
	files := NewFileRepository(pool)

	root := &model.Folder{ID: uuid.New().String(), Name: "root"}
	child := &model.Folder{ID: uuid.New().String(), Name: "child", ParentID: &root.ID}
	other := &model.Folder{ID: uuid.New().String(), Name: "other"}
	for _, f := range []*model.Folder{root, child, other} {
		if err := folders.Create(ctx, f); err != nil {
			t.Fatalf("Create folder: %v", err)
		}
	}

	for _, f := range []*model.FileRecord{
		newFile("a.csv", &root.ID),
		newFile("b.csv", &child.ID),
		newFile("c.csv", &other.ID),
	} {
		if err := files.Create(ctx, f); err != nil {
			t.Fatalf("Create file: %v", err)
		}
	}

	tree, err := files.ListInFolderTree(ctx, root.ID)
	if err != nil {
		t.Fatalf("ListInFolderTree() ошибка: %v", err)
	}
	if len(tree) != 2 {
		t.Errorf("ListInFolderTree() вернул %d файлов, ожидалось 2", len(tree))
	}

	children, err := folders.List(ctx, FolderListFilters{ParentID: &root.ID})
	if err != nil || len(children) != 1 {
		t.Errorf("List(ParentID) = %d, %v", len(children), err)
	}

	if err := folders.Delete(ctx, root.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	locators, err := files.ListLocators(ctx)
	if err != nil {
		t.Fatalf("ListLocators() ошибка: %v", err)
	}
	if len(locators) != 1 || locators[0].OriginalName != "c.csv" {
		t.Errorf("после каскадного удаления ожидался только c.csv: %+v", locators)
	}
}
