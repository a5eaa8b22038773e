package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/repository/repotest"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/artifact"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/filestore"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/naming"
)

// testEnv — набор сервисов поверх временных каталогов и in-memory БД.
type testEnv struct {
	db         *repotest.DB
	store      *artifact.Store
	raw        *filestore.FileStore
	resolver   *StatusResolver
	aggregator *Aggregator
	cache      *RecordCache
	processing *ProcessingService
	files      *FileService
	folders    *FolderService
	stats      *StatsService
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestEnv собирает сервисы с областью дайджеста по имени.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithScope(t, naming.ScopeName)
}

func newTestEnvWithScope(t *testing.T, scope naming.Scope) *testEnv {
	t.Helper()

	root := t.TempDir()
	store, err := artifact.New(filepath.Join(root, "artifacts"))
	if err != nil {
		t.Fatalf("ошибка создания хранилища артефактов: %v", err)
	}
	raw, err := filestore.New(filepath.Join(root, "uploads"), 1<<20)
	if err != nil {
		t.Fatalf("ошибка создания хранилища файлов: %v", err)
	}

	logger := testLogger()
	db := repotest.New()
	resolver := NewStatusResolver(store, naming.NewResolver(scope))
	aggregator := NewAggregator(resolver)
	cache := NewRecordCache(100, time.Minute)
	initializer := NewInitializer(store, db.Files(), resolver, logger)
	processing := NewProcessingService(db.Files(), store, resolver, initializer, cache, logger)
	files := NewFileService(db.Files(), db.Folders(), raw, processing, cache, logger)
	folders := NewFolderService(db.Folders(), db.Files(), files, aggregator, cache, logger)

	return &testEnv{
		db:         db,
		store:      store,
		raw:        raw,
		resolver:   resolver,
		aggregator: aggregator,
		cache:      cache,
		processing: processing,
		files:      files,
		folders:    folders,
		stats:      NewStatsService(db.Folders(), db.Files(), aggregator),
	}
}

func strPtr(s string) *string { return &s }

// upload загружает файл с указанным содержимым.
func (e *testEnv) upload(t *testing.T, name, body string, folderID *string) *model.FileRecord {
	t.Helper()
	f, err := e.files.Upload(context.Background(), UploadRequest{
		Filename:   name,
		Body:       strings.NewReader(body),
		FolderID:   folderID,
		UploadedBy: strPtr("user-1"),
	})
	if err != nil {
		t.Fatalf("Upload(%q) ошибка: %v", name, err)
	}
	return f
}

// folder создаёт папку указанного типа.
func (e *testEnv) folder(t *testing.T, name string, allowed model.AllowedType, parentID *string) *model.Folder {
	t.Helper()
	f, err := e.folders.Create(context.Background(), CreateFolderRequest{
		Name:        name,
		AllowedType: string(allowed),
		ParentID:    parentID,
		CreatedBy:   strPtr("user-1"),
	})
	if err != nil {
		t.Fatalf("Create folder %q ошибка: %v", name, err)
	}
	return f
}

// countFiles возвращает количество обычных файлов в дереве каталога.
func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("обход каталога %s: %v", dir, err)
	}
	return n
}
