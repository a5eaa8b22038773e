package errors //nolint:revive // имя пакета совпадает со stdlib

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestWriteError проверяет формат тела ошибки.
func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	MalformedArtifact(rec, "чанк 1 повреждён")

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("статус = %d, ожидался 422", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("тело не JSON: %v", err)
	}
	if body.Error.Code != CodeMalformedArtifact || body.Error.Message != "чанк 1 повреждён" {
		t.Errorf("тело = %+v", body)
	}
}

// TestConstructors_StatusCodes проверяет HTTP-статусы конструкторов.
func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, string)
		status int
		code   string
	}{
		{"validation", ValidationError, http.StatusBadRequest, CodeValidationError},
		{"not found", NotFound, http.StatusNotFound, CodeNotFound},
		{"extension", ExtensionNotAllowed, http.StatusBadRequest, CodeExtensionNotAllowed},
		{"too large", FileTooLarge, http.StatusRequestEntityTooLarge, CodeFileTooLarge},
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, CodeMethodNotAllowed},
		{"unauthorized", Unauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{"conflict", Conflict, http.StatusConflict, CodeConflict},
		{"reconcile", ReconcileInProgress, http.StatusConflict, CodeReconcileInProgress},
		{"unavailable", ServiceUnavailable, http.StatusServiceUnavailable, CodeServiceUnavailable},
		{"internal", InternalError, http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec, "msg")
			if rec.Code != tt.status {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.status)
			}
			var body errorBody
			_ = json.Unmarshal(rec.Body.Bytes(), &body)
			if body.Error.Code != tt.code {
				t.Errorf("code = %q, ожидался %q", body.Error.Code, tt.code)
			}
		})
	}
}
