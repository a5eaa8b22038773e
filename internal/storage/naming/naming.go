// Пакет naming — вычисление дайджеста, адресующего каталог артефактов файла.
//
// Дайджест выводится из ИМЕНИ файла, а не из его содержимого:
// два файла с одинаковым именем после санитизации получают один каталог
// артефактов. Это известный риск коллизий; для его устранения предусмотрен
// ScopedDigest, подмешивающий идентификатор файла (FM_DIGEST_SCOPE=file).
package naming

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"unicode"
)

// DigestLength — длина дайджеста в hex-символах (SHA-512).
const DigestLength = sha512.Size * 2

// fallbackName — имя, подставляемое вместо пустого или служебного сегмента.
const fallbackName = "file"

// Scope определяет, из чего вычисляется дайджест.
type Scope string

const (
	// ScopeName — дайджест только из имени файла.
	ScopeName Scope = "name"
	// ScopeFile — дайджест из имени и идентификатора файла.
	ScopeFile Scope = "file"
)

// ParseScope разбирает строковое значение области дайджеста.
func ParseScope(s string) (Scope, bool) {
	switch Scope(strings.ToLower(s)) {
	case ScopeName:
		return ScopeName, true
	case ScopeFile:
		return ScopeFile, true
	default:
		return "", false
	}
}

// Sanitize приводит имя файла к безопасному сегменту пути.
// Разделители пути и все символы, кроме букв, цифр, '-', '_' и '.',
// считаются небезопасными; каждая их серия заменяется одним '_'.
// Регистр сохраняется. Пустой результат, "." и ".." заменяются на "file".
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	inUnsafe := false
	for _, r := range name {
		if isSafeRune(r) {
			b.WriteRune(r)
			inUnsafe = false
			continue
		}
		if !inUnsafe {
			b.WriteByte('_')
			inUnsafe = true
		}
	}

	result := b.String()
	switch result {
	case "", ".", "..":
		return fallbackName
	}
	return result
}

// isSafeRune — допустимый символ сегмента пути.
func isSafeRune(r rune) bool {
	if r == '-' || r == '_' || r == '.' {
		return true
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Digest возвращает hex(SHA-512(Sanitize(name))) в нижнем регистре.
// Чистая детерминированная функция.
func Digest(name string) string {
	sum := sha512.Sum512([]byte(Sanitize(name)))
	return hex.EncodeToString(sum[:])
}

// ScopedDigest возвращает дайджест, уникальный для пары (имя, fileID).
func ScopedDigest(name, fileID string) string {
	h := sha512.New()
	h.Write([]byte(Sanitize(name)))
	h.Write([]byte{0})
	h.Write([]byte(fileID))
	return hex.EncodeToString(h.Sum(nil))
}

// Resolver вычисляет дайджест с учётом настроенной области.
type Resolver struct {
	scope Scope
}

// NewResolver создаёт вычислитель дайджеста. Пустая область — ScopeName.
func NewResolver(scope Scope) *Resolver {
	if scope == "" {
		scope = ScopeName
	}
	return &Resolver{scope: scope}
}

// Scope возвращает настроенную область дайджеста.
func (r *Resolver) Scope() Scope {
	return r.scope
}

// DigestFor вычисляет дайджест для файла.
func (r *Resolver) DigestFor(name, fileID string) string {
	if r.scope == ScopeFile {
		return ScopedDigest(name, fileID)
	}
	return Digest(name)
}

// IsDigest проверяет, что строка — корректный дайджест
// (128 hex-символов в нижнем регистре). Защищает пути от traversal.
func IsDigest(s string) bool {
	if len(s) != DigestLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
