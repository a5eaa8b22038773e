// Пакет artifact — хранилище артефактов обработки файлов.
//
// Каждому файлу соответствует каталог <root>/<digest>/:
//
//	<n>.json.gz          — чанки (gzip JSON), n — целое >= 1
//	config.json          — конфиг обработки (сырые байты или JSON)
//	inference/           — записи результатов inference_*.json
//
// Все записи выполняются атомарно: temp → fsync → rename.
// Мутации одного каталога сериализуются мьютексом по дайджесту;
// чтения работают без блокировок.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/naming"
)

// Имена элементов каталога артефактов.
const (
	// ChunkSuffix — суффикс файла чанка.
	ChunkSuffix = ".json.gz"
	// ConfigFileName — имя файла конфига.
	ConfigFileName = "config.json"
	// InferenceDirName — имя подкаталога записей inference.
	InferenceDirName = "inference"
	// InferencePrefix — зарезервированный префикс записей inference.
	InferencePrefix = "inference_"
	// InferenceSuffix — суффикс записей inference.
	InferenceSuffix = ".json"
)

// Ошибки хранилища артефактов.
var (
	// ErrNotFound — общий признак отсутствия артефакта.
	ErrNotFound = errors.New("артефакт не найден")
	// ErrEntryNotFound — отсутствует каталог артефактов.
	ErrEntryNotFound = fmt.Errorf("%w: каталог артефактов отсутствует", ErrNotFound)
	// ErrChunkNotFound — каталог есть, чанка с таким номером нет.
	ErrChunkNotFound = fmt.Errorf("%w: чанк отсутствует", ErrNotFound)
	// ErrConfigNotFound — config.json отсутствует.
	ErrConfigNotFound = fmt.Errorf("%w: config.json отсутствует", ErrNotFound)
	// ErrInferenceNotFound — каталог inference отсутствует.
	ErrInferenceNotFound = fmt.Errorf("%w: каталог inference отсутствует", ErrNotFound)

	// ErrInvalidDigest — дайджест не является 128-символьной hex-строкой.
	ErrInvalidDigest = errors.New("некорректный дайджест")
	// ErrInvalidChunkIndex — номер чанка меньше 1.
	ErrInvalidChunkIndex = errors.New("номер чанка должен быть >= 1")
)

// MalformedError — артефакт существует, но не разбирается.
type MalformedError struct {
	// Path — путь к повреждённому файлу
	Path string
	// Err — причина
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("повреждённый артефакт %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// IsMalformed проверяет, что ошибка вызвана повреждённым артефактом.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

// Diagnostic — описание пропущенного при чтении элемента.
type Diagnostic struct {
	// Name — имя пропущенного файла
	Name string
	// Reason — причина пропуска
	Reason string
}

// EntryScan — результат одного чтения каталога артефактов.
type EntryScan struct {
	// Exists — каталог существует
	Exists bool
	// ChunkCount — количество файлов, соответствующих шаблону чанка
	ChunkCount int
	// HasInference — существует подкаталог inference
	HasInference bool
	// HasConfig — существует config.json
	HasConfig bool
}

// Store — хранилище артефактов в корневом каталоге.
type Store struct {
	// root — корневой каталог хранилища (FM_ARTIFACT_DIR)
	root string

	mu    sync.Mutex
	locks map[string]*digestLock
}

// digestLock — мьютекс каталога с подсчётом ссылок.
type digestLock struct {
	mu   sync.Mutex
	refs int
}

// New создаёт хранилище. Создаёт корневой каталог, если он не существует.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог артефактов %s: %w", root, err)
	}
	return &Store{
		root:  root,
		locks: make(map[string]*digestLock),
	}, nil
}

// Root возвращает корневой каталог хранилища.
func (s *Store) Root() string {
	return s.root
}

// EntryPath возвращает путь к каталогу артефактов дайджеста.
func (s *Store) EntryPath(digest string) string {
	return filepath.Join(s.root, digest)
}

// lock захватывает мьютекс дайджеста и возвращает функцию освобождения.
func (s *Store) lock(digest string) func() {
	s.mu.Lock()
	l, ok := s.locks[digest]
	if !ok {
		l = &digestLock{}
		s.locks[digest] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, digest)
		}
		s.mu.Unlock()
	}
}

func checkDigest(digest string) error {
	if !naming.IsDigest(digest) {
		return fmt.Errorf("%w: %q", ErrInvalidDigest, digest)
	}
	return nil
}

// Ensure идемпотентно создаёт каталог артефактов и подкаталог inference.
// Существующие артефакты не затрагиваются.
func (s *Store) Ensure(digest string) error {
	if err := checkDigest(digest); err != nil {
		return err
	}
	unlock := s.lock(digest)
	defer unlock()

	dir := filepath.Join(s.EntryPath(digest), InferenceDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("ошибка создания каталога артефактов: %w", err)
	}
	return nil
}

// Exists проверяет существование каталога артефактов.
func (s *Store) Exists(digest string) (bool, error) {
	if err := checkDigest(digest); err != nil {
		return false, err
	}
	info, err := os.Stat(s.EntryPath(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки каталога артефактов: %w", err)
	}
	return info.IsDir(), nil
}

// Scan читает каталог артефактов один раз и возвращает его состав.
// Отсутствующий каталог — не ошибка (Exists = false).
func (s *Store) Scan(digest string) (EntryScan, error) {
	if err := checkDigest(digest); err != nil {
		return EntryScan{}, err
	}

	entries, err := os.ReadDir(s.EntryPath(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return EntryScan{}, nil
		}
		return EntryScan{}, fmt.Errorf("ошибка чтения каталога артефактов: %w", err)
	}

	scan := EntryScan{Exists: true}
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
			if name == InferenceDirName {
				scan.HasInference = true
			}
		case name == ConfigFileName:
			scan.HasConfig = true
		default:
			if _, ok := ParseChunkName(name); ok {
				scan.ChunkCount++
			}
		}
	}
	return scan, nil
}

// Remove удаляет каталог артефактов целиком.
// Отсутствующий каталог — не ошибка.
func (s *Store) Remove(digest string) error {
	if err := checkDigest(digest); err != nil {
		return err
	}
	unlock := s.lock(digest)
	defer unlock()

	if err := os.RemoveAll(s.EntryPath(digest)); err != nil {
		return fmt.Errorf("ошибка удаления каталога артефактов: %w", err)
	}
	return nil
}

// RemoveUnchangedSince удаляет каталог, только если он не изменялся после
// cutoff. Возвращает false, если каталога нет или он изменён позже.
func (s *Store) RemoveUnchangedSince(digest string, cutoff time.Time) (bool, error) {
	if err := checkDigest(digest); err != nil {
		return false, err
	}
	unlock := s.lock(digest)
	defer unlock()

	info, err := os.Stat(s.EntryPath(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка чтения каталога артефактов: %w", err)
	}
	if info.ModTime().After(cutoff) {
		return false, nil
	}
	if err := os.RemoveAll(s.EntryPath(digest)); err != nil {
		return false, fmt.Errorf("ошибка удаления каталога артефактов: %w", err)
	}
	return true, nil
}

// Entries возвращает дайджесты всех каталогов в корне хранилища.
// Посторонние элементы пропускаются.
func (s *Store) Entries() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения корня хранилища: %w", err)
	}

	var digests []string
	for _, e := range entries {
		if e.IsDir() && naming.IsDigest(e.Name()) {
			digests = append(digests, e.Name())
		}
	}
	return digests, nil
}

// --- Чанки ---

// ChunkName возвращает имя файла чанка: "3" → "3.json.gz".
func ChunkName(index int) string {
	return strconv.Itoa(index) + ChunkSuffix
}

// ParseChunkName разбирает имя файла чанка.
// Допустимы только имена вида <n>.json.gz, n >= 1 без ведущих нулей.
func ParseChunkName(name string) (int, bool) {
	num, ok := strings.CutSuffix(name, ChunkSuffix)
	if !ok || num == "" || num[0] == '0' {
		return 0, false
	}
	for i := 0; i < len(num); i++ {
		if num[i] < '0' || num[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, false
	}
	return n, true
}

// WriteChunk сериализует doc в JSON, сжимает gzip и атомарно
// записывает чанк с номером index. Каталог создаётся при необходимости.
// Для передачи готового JSON используйте json.RawMessage.
func (s *Store) WriteChunk(digest string, index int, doc any) error {
	if err := checkDigest(digest); err != nil {
		return err
	}
	if index < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkIndex, index)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("ошибка сериализации чанка: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("ошибка сжатия чанка: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("ошибка сжатия чанка: %w", err)
	}

	unlock := s.lock(digest)
	defer unlock()

	entry := s.EntryPath(digest)
	if err := os.MkdirAll(entry, 0o750); err != nil {
		return fmt.Errorf("ошибка создания каталога артефактов: %w", err)
	}
	return writeFileAtomic(filepath.Join(entry, ChunkName(index)), buf.Bytes())
}

// ListChunks возвращает номера чанков по возрастанию.
func (s *Store) ListChunks(digest string) ([]int, error) {
	if err := checkDigest(digest); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.EntryPath(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("ошибка чтения каталога артефактов: %w", err)
	}

	var indexes []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := ParseChunkName(e.Name()); ok {
			indexes = append(indexes, n)
		}
	}
	slices.Sort(indexes)
	return indexes, nil
}

// ReadChunk распаковывает и возвращает JSON чанка.
// Отсутствие чанка (ErrChunkNotFound) отличается от отсутствия
// каталога (ErrEntryNotFound).
func (s *Store) ReadChunk(digest string, index int) (json.RawMessage, error) {
	if err := checkDigest(digest); err != nil {
		return nil, err
	}
	if index < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkIndex, index)
	}

	path := filepath.Join(s.EntryPath(digest), ChunkName(index))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, s.missing(digest, ErrChunkNotFound)
		}
		return nil, fmt.Errorf("ошибка открытия чанка: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, &MalformedError{Path: path, Err: err}
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, &MalformedError{Path: path, Err: err}
	}
	if !json.Valid(data) {
		return nil, &MalformedError{Path: path, Err: errors.New("содержимое не является JSON")}
	}
	return json.RawMessage(data), nil
}

// --- Конфиг ---

// WriteConfig атомарно записывает сырые байты в config.json.
func (s *Store) WriteConfig(digest string, raw []byte) error {
	if err := checkDigest(digest); err != nil {
		return err
	}
	unlock := s.lock(digest)
	defer unlock()

	entry := s.EntryPath(digest)
	if err := os.MkdirAll(entry, 0o750); err != nil {
		return fmt.Errorf("ошибка создания каталога артефактов: %w", err)
	}
	return writeFileAtomic(filepath.Join(entry, ConfigFileName), raw)
}

// WriteConfigJSON сериализует doc с отступом в два пробела и записывает в config.json.
func (s *Store) WriteConfigJSON(digest string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации конфига: %w", err)
	}
	return s.WriteConfig(digest, data)
}

// ReadConfig возвращает содержимое config.json.
// Если содержимое не является JSON — MalformedError.
func (s *Store) ReadConfig(digest string) (json.RawMessage, error) {
	if err := checkDigest(digest); err != nil {
		return nil, err
	}

	path := filepath.Join(s.EntryPath(digest), ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, s.missing(digest, ErrConfigNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения конфига: %w", err)
	}
	if !json.Valid(data) {
		return nil, &MalformedError{Path: path, Err: errors.New("содержимое не является JSON")}
	}
	return json.RawMessage(data), nil
}

// missing уточняет NotFound: отсутствует весь каталог или только элемент.
func (s *Store) missing(digest string, itemErr error) error {
	exists, err := s.Exists(digest)
	if err != nil {
		return err
	}
	if !exists {
		return ErrEntryNotFound
	}
	return itemErr
}

// writeFileAtomic записывает данные во временный файл рядом с целевым,
// выполняет fsync и атомарно переименовывает.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}
