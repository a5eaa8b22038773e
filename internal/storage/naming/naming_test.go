package naming

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"
)

// TestSanitize проверяет замену небезопасных символов.
func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"report.csv":           "report.csv",
		"Report Final.CSV":     "Report_Final.CSV",
		"../../etc/passwd":     ".._.._etc_passwd",
		`dir\sub/name.json`:    "dir_sub_name.json",
		"a   b???c":            "a_b_c",
		"отчёт-2024.pdf":       "отчёт-2024.pdf",
		"":                     "file",
		".":                    "file",
		"..":                   "file",
		"data_set-01.json.gz":  "data_set-01.json.gz",
		"tab\tand\nnewline.js": "tab_and_newline.js",
	}

	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, ожидалось %q", in, got, want)
		}
	}
}

// TestSanitize_NoSeparators проверяет отсутствие разделителей пути в результате.
func TestSanitize_NoSeparators(t *testing.T) {
	for _, in := range []string{"a/b", `a\b`, "/", "//x//"} {
		got := Sanitize(in)
		for _, r := range got {
			if r == '/' || r == '\\' {
				t.Fatalf("Sanitize(%q) = %q содержит разделитель", in, got)
			}
		}
	}
}

// TestDigest_Deterministic проверяет детерминированность дайджеста.
func TestDigest_Deterministic(t *testing.T) {
	a := Digest("dataset.csv")
	b := Digest("dataset.csv")
	if a != b {
		t.Fatalf("дайджест не детерминирован: %s != %s", a, b)
	}

	sum := sha512.Sum512([]byte("dataset.csv"))
	want := hex.EncodeToString(sum[:])
	if a != want {
		t.Errorf("Digest = %s, ожидалось %s", a, want)
	}
	if len(a) != DigestLength {
		t.Errorf("длина дайджеста = %d, ожидалось %d", len(a), DigestLength)
	}
	if !IsDigest(a) {
		t.Error("IsDigest вернул false для корректного дайджеста")
	}
}

// TestDigest_UsesSanitizedName проверяет, что дайджест считается от санитизированного имени.
func TestDigest_UsesSanitizedName(t *testing.T) {
	if Digest("my file.csv") != Digest("my???file.csv") {
		t.Error("имена с одинаковой санитизацией должны давать один дайджест")
	}
	if Digest("A.csv") == Digest("a.csv") {
		t.Error("регистр должен сохраняться")
	}
}

// TestScopedDigest проверяет различие дайджестов для разных файлов с одним именем.
func TestScopedDigest(t *testing.T) {
	a := ScopedDigest("data.csv", "id-1")
	b := ScopedDigest("data.csv", "id-2")
	if a == b {
		t.Error("ScopedDigest должен различаться для разных fileID")
	}
	if a == Digest("data.csv") {
		t.Error("ScopedDigest не должен совпадать с Digest")
	}
	if !IsDigest(a) {
		t.Error("ScopedDigest должен быть корректным дайджестом")
	}
}

// TestResolver проверяет выбор функции по области.
func TestResolver(t *testing.T) {
	if got := NewResolver("").DigestFor("x.csv", "id"); got != Digest("x.csv") {
		t.Error("область по умолчанию должна быть name")
	}
	if got := NewResolver(ScopeFile).DigestFor("x.csv", "id"); got != ScopedDigest("x.csv", "id") {
		t.Error("ScopeFile должен использовать ScopedDigest")
	}
}

// TestIsDigest_Invalid проверяет отклонение некорректных дайджестов.
func TestIsDigest_Invalid(t *testing.T) {
	valid := Digest("x")
	invalid := []string{
		"",
		"abc",
		valid[:127],
		valid + "0",
		"../" + valid[3:],
		"A" + valid[1:],
	}
	for _, s := range invalid {
		if IsDigest(s) {
			t.Errorf("IsDigest(%q) = true, ожидалось false", s)
		}
	}
}

// TestParseScope проверяет разбор области дайджеста.
func TestParseScope(t *testing.T) {
	if s, ok := ParseScope("NAME"); !ok || s != ScopeName {
		t.Errorf("ParseScope(NAME) = %q, %v", s, ok)
	}
	if s, ok := ParseScope("file"); !ok || s != ScopeFile {
		t.Errorf("ParseScope(file) = %q, %v", s, ok)
	}
	if _, ok := ParseScope("content"); ok {
		t.Error("ParseScope(content) должен вернуть false")
	}
}
