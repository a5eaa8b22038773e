package filestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNew_CreatesDirectory проверяет создание директории загрузок.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	fs, err := New(dir, 0)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	if fs.DataDir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, fs.DataDir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestSaveFile проверяет сохранение файла с подсчётом SHA-256.
func TestSaveFile(t *testing.T) {
	fs, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := []byte("id,name\n1,Тест\n")
	result, err := fs.SaveFile(bytes.NewReader(content), "Sales Report.CSV")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}

	expected := sha256.Sum256(content)
	if result.Checksum != hex.EncodeToString(expected[:]) {
		t.Errorf("checksum: получено %s", result.Checksum)
	}

	if !strings.HasSuffix(result.StoragePath, ".csv") {
		t.Errorf("расширение должно сохраниться в нижнем регистре: %s", result.StoragePath)
	}
	if !strings.Contains(result.StoragePath, "Sales_Report_") {
		t.Errorf("имя должно быть санитизировано: %s", result.StoragePath)
	}

	f, err := fs.OpenFile(result.StoragePath)
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	defer f.Close()
	got, _ := io.ReadAll(f)
	if !bytes.Equal(got, content) {
		t.Error("содержимое не совпадает")
	}

	if _, err := os.Stat(fs.FullPath(result.StoragePath) + ".tmp"); !os.IsNotExist(err) {
		t.Error("временный файл не удалён")
	}
}

// TestSaveFile_TooLarge проверяет лимит размера.
func TestSaveFile_TooLarge(t *testing.T) {
	fs, err := New(t.TempDir(), 8)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if _, err := fs.SaveFile(strings.NewReader("12345678"), "ok.csv"); err != nil {
		t.Fatalf("файл ровно в лимит должен сохраниться: %v", err)
	}

	_, err = fs.SaveFile(strings.NewReader("123456789"), "big.csv")
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("ожидалась ErrTooLarge, получено %v", err)
	}
}

// TestCopyFile проверяет копирование под новым именем.
func TestCopyFile(t *testing.T) {
	fs, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	orig, err := fs.SaveFile(strings.NewReader("payload"), "a.json")
	if err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	cp, err := fs.CopyFile(orig.StoragePath, "a.json")
	if err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	if cp.StoragePath == orig.StoragePath {
		t.Error("копия должна иметь другой путь хранения")
	}
	if cp.Checksum != orig.Checksum {
		t.Error("checksum копии должен совпадать")
	}
}

// TestOpenFile_NotFound проверяет отсутствующий файл.
func TestOpenFile_NotFound(t *testing.T) {
	fs, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	if _, err := fs.OpenFile("2026/01/01/none.csv"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestDeleteFile проверяет удаление, в том числе повторное.
func TestDeleteFile(t *testing.T) {
	fs, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	res, err := fs.SaveFile(strings.NewReader("x"), "x.pdf")
	if err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if err := fs.DeleteFile(res.StoragePath); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if fs.FileExists(res.StoragePath) {
		t.Error("файл должен быть удалён")
	}
	if err := fs.DeleteFile(res.StoragePath); err != nil {
		t.Errorf("повторное удаление не должно возвращать ошибку: %v", err)
	}
}

// TestGenerateStoragePath проверяет формат пути хранения.
func TestGenerateStoragePath(t *testing.T) {
	now := time.Date(2026, 2, 21, 15, 4, 5, 0, time.UTC)

	p := generateStoragePath("../evil/name.csv", now)
	if !strings.HasPrefix(p, "2026/02/21/") {
		t.Errorf("ожидался префикс даты, получено %s", p)
	}
	if strings.Contains(strings.TrimPrefix(p, "2026/02/21/"), "/") {
		t.Errorf("имя не должно содержать разделителей: %s", p)
	}

	p = generateStoragePath("noext", now)
	if filepath.Ext(p) != "" {
		t.Errorf("ожидалось имя без расширения: %s", p)
	}
}
