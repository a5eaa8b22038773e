package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/artifact"
)

// TestWriteConfig_InitializesLazily проверяет, что запись конфига
// инициализирует обработку и отмечает config_added.
func TestWriteConfig_InitializesLazily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.upload(t, "data.csv", "x", nil)

	if err := env.processing.WriteConfig(ctx, f.ID, []byte(`{"chunk_size": 100}`)); err != nil {
		t.Fatalf("WriteConfig() ошибка: %v", err)
	}

	stored, err := env.db.Files().GetByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if stored.Digest == nil {
		t.Error("дайджест должен быть привязан")
	}
	if !stored.ConfigAdded || !stored.HasConfig {
		t.Errorf("ConfigAdded = %v, HasConfig = %v", stored.ConfigAdded, stored.HasConfig)
	}

	raw, err := env.processing.ReadConfig(ctx, f.ID)
	if err != nil {
		t.Fatalf("ReadConfig() ошибка: %v", err)
	}
	var cfg map[string]int
	if err := json.Unmarshal(raw, &cfg); err != nil || cfg["chunk_size"] != 100 {
		t.Errorf("ReadConfig() = %s, %v", raw, err)
	}
}

// TestWriteConfig_InvalidJSON проверяет отказ при невалидном JSON.
func TestWriteConfig_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	f := env.upload(t, "data.csv", "x", nil)

	err := env.processing.WriteConfig(context.Background(), f.ID, []byte("{not json"))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ожидали ErrValidation, получили %v", err)
	}
	if ok, _ := env.store.Exists(mustDigest(t, env, f)); ok {
		t.Error("каталог артефактов не должен создаваться при ошибке валидации")
	}
}

// TestWriteConfigJSON проверяет сохранение структурированного конфига.
func TestWriteConfigJSON(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.upload(t, "data.csv", "x", nil)

	doc := map[string]any{"model": "yolo", "threshold": 0.5}
	if err := env.processing.WriteConfigJSON(ctx, f.ID, doc); err != nil {
		t.Fatalf("WriteConfigJSON() ошибка: %v", err)
	}
	s, err := env.processing.ResolveStatus(ctx, f.ID)
	if err != nil {
		t.Fatalf("ResolveStatus() ошибка: %v", err)
	}
	if !s.HasConfig {
		t.Error("HasConfig должен быть true")
	}
}

// TestReadConfig_NotFound проверяет отсутствие конфига.
func TestReadConfig_NotFound(t *testing.T) {
	env := newTestEnv(t)
	f := env.upload(t, "data.csv", "x", nil)

	if _, err := env.processing.ReadConfig(context.Background(), f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидали ErrNotFound, получили %v", err)
	}
}

// TestReadChunk проверяет чтение чанка и отсутствующий номер.
func TestReadChunk(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.upload(t, "data.csv", "x", nil)

	if _, err := env.processing.WriteChunk(ctx, f.ID, 1, map[string]int{"rows": 10}); err != nil {
		t.Fatalf("WriteChunk() ошибка: %v", err)
	}

	doc, err := env.processing.ReadChunk(ctx, f.ID, 1)
	if err != nil {
		t.Fatalf("ReadChunk() ошибка: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(doc, &got); err != nil || got["rows"] != 10 {
		t.Errorf("ReadChunk() = %s, %v", doc, err)
	}

	if _, err := env.processing.ReadChunk(ctx, f.ID, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("чанк 2: ожидали ErrNotFound, получили %v", err)
	}
	if _, err := env.processing.ReadChunk(ctx, f.ID, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("чанк 0: ожидали ErrValidation, получили %v", err)
	}
	if _, err := env.processing.ReadChunk(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("несуществующий файл: ожидали ErrNotFound, получили %v", err)
	}
}

// TestReadChunk_Malformed проверяет повреждённый чанк.
func TestReadChunk_Malformed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.upload(t, "data.csv", "x", nil)
	if _, err := env.processing.Initialize(ctx, f.ID); err != nil {
		t.Fatalf("Initialize() ошибка: %v", err)
	}

	path := filepath.Join(env.store.EntryPath(mustDigest(t, env, f)), artifact.ChunkName(1))
	if err := os.WriteFile(path, []byte("not gzip"), 0o640); err != nil {
		t.Fatalf("запись повреждённого чанка: %v", err)
	}

	if _, err := env.processing.ReadChunk(ctx, f.ID, 1); !errors.Is(err, ErrMalformed) {
		t.Errorf("ожидали ErrMalformed, получили %v", err)
	}
}

// TestListInferenceRecords_Order проверяет порядок записей inference.
func TestListInferenceRecords_Order(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.upload(t, "data.csv", "x", nil)

	records := map[string]map[string]any{
		"old":    {"timestamp": "2024-01-01T00:00:00Z", "inference": []int{1}},
		"new":    {"timestamp": "2024-03-01T00:00:00Z", "inference": []int{2}, "config": map[string]int{}},
		"notime": {"inference": []int{3}},
	}
	for name, doc := range records {
		if _, err := env.processing.AddInferenceRecord(ctx, f.ID, name, doc); err != nil {
			t.Fatalf("AddInferenceRecord(%q) ошибка: %v", name, err)
		}
	}

	got, diags, err := env.processing.ListInferenceRecords(ctx, f.ID)
	if err != nil {
		t.Fatalf("ListInferenceRecords() ошибка: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("неожиданная диагностика: %+v", diags)
	}
	want := []string{
		artifact.InferenceFileName("new"),
		artifact.InferenceFileName("old"),
		artifact.InferenceFileName("notime"),
	}
	if len(got) != len(want) {
		t.Fatalf("получено %d записей, ожидалось %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("позиция %d: %q, ожидалось %q", i, got[i].Name, name)
		}
	}
	if !got[0].HasConfig || !got[0].HasInference {
		t.Errorf("первая запись должна содержать config и inference: %+v", got[0])
	}
}

// TestListInferenceRecords_NotInitialized проверяет отсутствие каталога.
func TestListInferenceRecords_NotInitialized(t *testing.T) {
	env := newTestEnv(t)
	f := env.upload(t, "data.csv", "x", nil)

	_, _, err := env.processing.ListInferenceRecords(context.Background(), f.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидали ErrNotFound, получили %v", err)
	}
}

// TestRemoveArtifacts проверяет сброс снимка после удаления артефактов.
func TestRemoveArtifacts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.upload(t, "data.csv", "x", nil)

	if _, err := env.processing.WriteChunk(ctx, f.ID, 1, []int{1}); err != nil {
		t.Fatalf("WriteChunk() ошибка: %v", err)
	}
	if err := env.processing.WriteConfig(ctx, f.ID, []byte(`{}`)); err != nil {
		t.Fatalf("WriteConfig() ошибка: %v", err)
	}

	if err := env.processing.RemoveArtifacts(ctx, f.ID); err != nil {
		t.Fatalf("RemoveArtifacts() ошибка: %v", err)
	}
	s, err := env.processing.ResolveStatus(ctx, f.ID)
	if err != nil {
		t.Fatalf("ResolveStatus() ошибка: %v", err)
	}
	if s.HasChunks || s.HasConfig || s.HasInference || s.ChunkCount != 0 || s.State != model.StateRaw {
		t.Errorf("ожидался пустой снимок, получено %+v", s)
	}
	if !s.DigestBound {
		t.Error("привязка дайджеста должна сохраниться")
	}

	stored, _ := env.db.Files().GetByID(ctx, f.ID)
	if stored.HasChunks || stored.ProcessingState != model.StateRaw {
		t.Errorf("кэш снимка не сброшен: %+v", stored)
	}
}

// TestResolveStatus_RefreshesCache проверяет обновление кэш-полей при запросе статуса.
func TestResolveStatus_RefreshesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.upload(t, "data.csv", "x", nil)

	// Артефакты появились в обход сервиса
	d := mustDigest(t, env, f)
	for i := 1; i <= 2; i++ {
		if err := env.store.WriteChunk(d, i, []int{i}); err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
	}

	s, err := env.processing.ResolveStatus(ctx, f.ID)
	if err != nil {
		t.Fatalf("ResolveStatus() ошибка: %v", err)
	}
	if s.State != model.StateProcessed || s.ChunkCount != 2 {
		t.Errorf("ожидалось processed/2, получено %+v", s)
	}
	if s.DigestBound {
		t.Error("запрос статуса не должен привязывать дайджест")
	}

	stored, _ := env.db.Files().GetByID(ctx, f.ID)
	if stored.ChunkCount != 2 || stored.ProcessingState != model.StateProcessed {
		t.Errorf("кэш снимка не обновлён: %+v", stored)
	}
	if stored.Digest != nil {
		t.Error("дайджест не должен сохраняться при запросе статуса")
	}
}

// TestPreview проверяет сборку предпросмотра.
func TestPreview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.upload(t, "data.csv", "x", nil)

	if _, err := env.processing.WriteChunk(ctx, f.ID, 2, map[string]int{"second": 2}); err != nil {
		t.Fatalf("WriteChunk(2) ошибка: %v", err)
	}
	if _, err := env.processing.WriteChunk(ctx, f.ID, 1, map[string]int{"first": 1}); err != nil {
		t.Fatalf("WriteChunk(1) ошибка: %v", err)
	}
	if err := env.processing.WriteConfig(ctx, f.ID, []byte(`{"k":"v"}`)); err != nil {
		t.Fatalf("WriteConfig() ошибка: %v", err)
	}

	p, err := env.processing.Preview(ctx, f.ID)
	if err != nil {
		t.Fatalf("Preview() ошибка: %v", err)
	}
	if p.FirstChunkIndex != 1 {
		t.Errorf("FirstChunkIndex = %d, ожидался 1", p.FirstChunkIndex)
	}
	var chunk map[string]int
	if err := json.Unmarshal(p.FirstChunk, &chunk); err != nil || chunk["first"] != 1 {
		t.Errorf("FirstChunk = %s", p.FirstChunk)
	}
	if p.Config == nil {
		t.Error("Config должен присутствовать")
	}
	if p.Snapshot.ChunkCount != 2 || len(p.Inferences) != 0 {
		t.Errorf("неожиданный предпросмотр: %+v", p.Snapshot)
	}
}

// TestPreview_SkipsMalformed проверяет, что повреждённые конфиг, чанк и запись
// inference не ломают предпросмотр и перечисляются в Skipped.
func TestPreview_SkipsMalformed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.upload(t, "data.csv", "x", nil)

	if _, err := env.processing.WriteChunk(ctx, f.ID, 1, map[string]int{"first": 1}); err != nil {
		t.Fatalf("WriteChunk(1) ошибка: %v", err)
	}
	if err := env.processing.WriteConfig(ctx, f.ID, []byte(`{"k":"v"}`)); err != nil {
		t.Fatalf("WriteConfig() ошибка: %v", err)
	}
	if _, err := env.processing.AddInferenceRecord(ctx, f.ID, "good.json",
		map[string]any{"timestamp": "2024-05-01T10:00:00Z"}); err != nil {
		t.Fatalf("AddInferenceRecord() ошибка: %v", err)
	}

	entry := env.store.EntryPath(mustDigest(t, env, f))
	corrupt := []struct{ path, data string }{
		{filepath.Join(entry, artifact.ConfigFileName), "{не json"},
		{filepath.Join(entry, artifact.ChunkName(1)), "не gzip"},
		{filepath.Join(entry, artifact.InferenceDirName, "inference_bad.json"), "[1,"},
	}
	for _, c := range corrupt {
		if err := os.WriteFile(c.path, []byte(c.data), 0o640); err != nil {
			t.Fatalf("ошибка записи %s: %v", c.path, err)
		}
	}

	p, err := env.processing.Preview(ctx, f.ID)
	if err != nil {
		t.Fatalf("Preview() ошибка: %v", err)
	}
	if p.Config != nil || p.FirstChunk != nil || p.FirstChunkIndex != 0 {
		t.Errorf("повреждённые части не должны попасть в предпросмотр: config=%s chunk=%s", p.Config, p.FirstChunk)
	}
	if len(p.Inferences) != 1 {
		t.Errorf("записей inference = %d, ожидалась 1", len(p.Inferences))
	}

	skipped := make(map[string]bool)
	for _, d := range p.Skipped {
		if d.Reason == "" {
			t.Errorf("пустая причина для %s", d.Name)
		}
		skipped[d.Name] = true
	}
	for _, name := range []string{artifact.ConfigFileName, artifact.ChunkName(1), "inference_bad.json"} {
		if !skipped[name] {
			t.Errorf("%s не перечислен в Skipped: %+v", name, p.Skipped)
		}
	}
}

// TestPreview_Raw проверяет предпросмотр необработанного файла.
func TestPreview_Raw(t *testing.T) {
	env := newTestEnv(t)
	f := env.upload(t, "data.csv", "x", nil)

	p, err := env.processing.Preview(context.Background(), f.ID)
	if err != nil {
		t.Fatalf("Preview() ошибка: %v", err)
	}
	if p.Config != nil || p.FirstChunk != nil || p.FirstChunkIndex != 0 {
		t.Errorf("ожидался пустой предпросмотр: %+v", p)
	}
	if p.Snapshot.State != model.StateRaw {
		t.Errorf("State = %q, ожидалось raw", p.Snapshot.State)
	}
}

// mustDigest возвращает действующий дайджест файла.
func mustDigest(t *testing.T, env *testEnv, f *model.FileRecord) string {
	t.Helper()
	stored, err := env.db.Files().GetByID(context.Background(), f.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	d, _ := env.resolver.DigestOf(stored)
	return d
}
