package service

import (
	"testing"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/naming"
)

// TestResolve_MissingEntry проверяет снимок файла без каталога артефактов.
func TestResolve_MissingEntry(t *testing.T) {
	env := newTestEnv(t)
	f := &model.FileRecord{ID: "f1", OriginalName: "data.csv"}

	s, err := env.resolver.Resolve(f)
	if err != nil {
		t.Fatalf("Resolve() ошибка: %v", err)
	}
	if s.State != model.StateRaw || s.HasChunks || s.HasInference || s.HasConfig || s.ChunkCount != 0 {
		t.Errorf("ожидался пустой снимок raw, получено %+v", s)
	}
	if s.DigestBound {
		t.Error("DigestBound должен быть false")
	}
	if s.Digest != naming.Digest("data.csv") {
		t.Error("для непривязанного файла дайджест вычисляется по имени")
	}
}

// TestResolve_ZeroChunksIsRaw проверяет, что пустой каталог даёт raw.
func TestResolve_ZeroChunksIsRaw(t *testing.T) {
	env := newTestEnv(t)
	f := &model.FileRecord{ID: "f1", OriginalName: "data.csv"}
	if err := env.store.Ensure(naming.Digest("data.csv")); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	s, err := env.resolver.Resolve(f)
	if err != nil {
		t.Fatalf("Resolve() ошибка: %v", err)
	}
	if s.State != model.StateRaw || s.HasChunks {
		t.Errorf("State = %q, HasChunks = %v, ожидалось raw без чанков", s.State, s.HasChunks)
	}
	if !s.HasInference {
		t.Error("пустой каталог inference должен давать HasInference = true")
	}
}

// TestResolve_TwoChunks проверяет состояние processed при двух чанках.
func TestResolve_TwoChunks(t *testing.T) {
	env := newTestEnv(t)
	f := &model.FileRecord{ID: "f1", OriginalName: "data.csv"}
	d := naming.Digest("data.csv")
	for i := 1; i <= 2; i++ {
		if err := env.store.WriteChunk(d, i, map[string]int{"n": i}); err != nil {
			t.Fatalf("WriteChunk(%d): %v", i, err)
		}
	}

	s, err := env.resolver.Resolve(f)
	if err != nil {
		t.Fatalf("Resolve() ошибка: %v", err)
	}
	if s.State != model.StateProcessed || s.ChunkCount != 2 || !s.HasChunks {
		t.Errorf("ожидалось processed/2, получено %+v", s)
	}
}

// TestResolve_BoundDigest проверяет, что привязанный дайджест важнее имени.
func TestResolve_BoundDigest(t *testing.T) {
	env := newTestEnv(t)
	bound := naming.Digest("original.csv")
	f := &model.FileRecord{ID: "f1", OriginalName: "renamed.csv", Digest: &bound}
	if err := env.store.WriteChunk(bound, 1, []int{1}); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	s, err := env.resolver.Resolve(f)
	if err != nil {
		t.Fatalf("Resolve() ошибка: %v", err)
	}
	if !s.DigestBound || s.Digest != bound || s.ChunkCount != 1 {
		t.Errorf("ожидался снимок по привязанному дайджесту, получено %+v", s)
	}
}

// TestResolve_FileScope проверяет различие дайджестов одноимённых файлов
// при области дайджеста file.
func TestResolve_FileScope(t *testing.T) {
	env := newTestEnvWithScope(t, naming.ScopeFile)
	a := &model.FileRecord{ID: "a", OriginalName: "data.csv"}
	b := &model.FileRecord{ID: "b", OriginalName: "data.csv"}

	da, _ := env.resolver.DigestOf(a)
	db, _ := env.resolver.DigestOf(b)
	if da == db {
		t.Error("одноимённые файлы должны получать разные дайджесты")
	}
}
