package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/naming"
)

// Поля записи inference, которые учитываются при чтении.
const (
	fieldTimestamp = "timestamp"
	fieldConfig    = "config"
	fieldInference = "inference"
)

// timestampLayouts — поддерживаемые форматы поля timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// InferenceFileName возвращает имя файла записи inference для произвольного имени:
// "run 1" → "inference_run_1.json", "inference_a.json" → "inference_a.json".
func InferenceFileName(name string) string {
	base := strings.TrimSuffix(name, InferenceSuffix)
	base = strings.TrimPrefix(base, InferencePrefix)
	return InferencePrefix + naming.Sanitize(base) + InferenceSuffix
}

// isInferenceFile проверяет соответствие имени шаблону записи inference.
func isInferenceFile(name string) bool {
	return strings.HasPrefix(name, InferencePrefix) && strings.HasSuffix(name, InferenceSuffix)
}

// WriteInferenceRecord атомарно записывает запись inference.
// Возвращает итоговое имя файла записи.
func (s *Store) WriteInferenceRecord(digest, name string, doc any) (string, error) {
	if err := checkDigest(digest); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации записи inference: %w", err)
	}

	unlock := s.lock(digest)
	defer unlock()

	dir := filepath.Join(s.EntryPath(digest), InferenceDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("ошибка создания каталога inference: %w", err)
	}

	fileName := InferenceFileName(name)
	if err := writeFileAtomic(filepath.Join(dir, fileName), data); err != nil {
		return "", err
	}
	return fileName, nil
}

// ReadInferenceRecords читает все записи inference.
// Нечитаемые и неразбираемые записи пропускаются с диагностикой.
// Порядок: сначала новые, записи без timestamp (или с нераспознанным) — в конце.
func (s *Store) ReadInferenceRecords(digest string) ([]model.InferenceRecord, []Diagnostic, error) {
	if err := checkDigest(digest); err != nil {
		return nil, nil, err
	}

	dir := filepath.Join(s.EntryPath(digest), InferenceDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, s.missing(digest, ErrInferenceNotFound)
		}
		return nil, nil, fmt.Errorf("ошибка чтения каталога inference: %w", err)
	}

	records := make([]model.InferenceRecord, 0, len(entries))
	var diags []Diagnostic
	for _, e := range entries {
		if e.IsDir() || !isInferenceFile(e.Name()) {
			continue
		}

		rec, err := readInferenceRecord(filepath.Join(dir, e.Name()))
		if err != nil {
			diags = append(diags, Diagnostic{Name: e.Name(), Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}

	SortInferenceRecords(records)
	return records, diags, nil
}

// readInferenceRecord читает и разбирает одну запись.
func readInferenceRecord(path string) (model.InferenceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.InferenceRecord{}, fmt.Errorf("ошибка чтения: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return model.InferenceRecord{}, fmt.Errorf("некорректный JSON: %w", err)
	}

	rec := model.InferenceRecord{
		Name:      filepath.Base(path),
		SizeBytes: int64(len(data)),
	}
	_, rec.HasConfig = fields[fieldConfig]
	_, rec.HasInference = fields[fieldInference]

	if raw, ok := fields[fieldTimestamp]; ok {
		rec.RawTimestamp, rec.Timestamp = parseTimestamp(raw)
	}
	return rec, nil
}

// maxUnixSeconds — предел числового timestamp, точно представимый в int64.
const maxUnixSeconds = 1 << 62

// parseTimestamp разбирает значение timestamp: строку в одном из
// timestampLayouts или число секунд Unix не больше maxUnixSeconds по модулю.
// Нераспознанное значение — nil.
func parseTimestamp(raw json.RawMessage) (string, *time.Time) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				ts = ts.UTC()
				return s, &ts
			}
		}
		return s, nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if f, err := strconv.ParseFloat(num.String(), 64); err == nil && math.Abs(f) <= maxUnixSeconds {
			sec := int64(f)
			ts := time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
			return num.String(), &ts
		}
	}
	return string(raw), nil
}

// SortInferenceRecords сортирует записи: новые первыми, без времени — в конце,
// при равенстве — по имени.
func SortInferenceRecords(records []model.InferenceRecord) {
	slices.SortStableFunc(records, func(a, b model.InferenceRecord) int {
		switch {
		case a.Timestamp != nil && b.Timestamp != nil:
			if c := b.Timestamp.Compare(*a.Timestamp); c != 0 {
				return c
			}
		case a.Timestamp != nil:
			return -1
		case b.Timestamp != nil:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
}
