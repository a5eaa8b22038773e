// health.go — пробы liveness/readiness и выдача метрик Prometheus.
package handlers

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/preetgupta-32/folder-manager-iudx/internal/config"
)

const serviceName = "folder-manager"

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker сообщает состояние одной зависимости: ok, degraded или fail.
type ReadinessChecker interface {
	CheckReady() (status, message string)
}

// DependencyHealth — состояние внешних зависимостей по данным topologymetrics.
type DependencyHealth interface {
	Health() map[string]bool
}

// DirChecker проверяет каталоги хранилища: существуют и доступны на запись.
type DirChecker struct {
	dirs []string
}

func NewDirChecker(dirs ...string) *DirChecker {
	return &DirChecker{dirs: dirs}
}

func (c *DirChecker) CheckReady() (status, message string) {
	for _, dir := range c.dirs {
		if err := probeDir(dir); err != nil {
			return statusFail, err.Error()
		}
	}
	return statusOK, "каталоги: " + strings.Join(c.dirs, ", ")
}

// probeDir создаёт и удаляет пробный файл в dir.
func probeDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("каталог %s недоступен: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s не является каталогом", dir)
	}
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return fmt.Errorf("каталог %s недоступен на запись: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// HealthHandler обслуживает /health/* и /metrics.
type HealthHandler struct {
	pgChecker      ReadinessChecker
	storageChecker ReadinessChecker
	deps           DependencyHealth
	promHandler    http.Handler
}

// NewHealthHandler создаёт обработчик проб. Отсутствующий checker
// означает fail, отсутствующий deps — без блока dependencies.
func NewHealthHandler(pgChecker, storageChecker ReadinessChecker, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		pgChecker:      pgChecker,
		storageChecker: storageChecker,
		deps:           deps,
		promHandler:    promhttp.Handler(),
	}
}

type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	healthLiveResponse
	Checks struct {
		PostgreSQL healthCheckResult `json:"postgresql"`
		Storage    healthCheckResult `json:"storage"`
	} `json:"checks"`
	Dependencies map[string]bool `json:"dependencies,omitempty"`
}

func newLive(status string) healthLiveResponse {
	return healthLiveResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}
}

// HealthLive всегда отвечает 200, пока процесс обслуживает запросы.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newLive(statusOK))
}

// HealthReady отвечает 503 при fail хотя бы одной проверки.
// Недоступная внешняя зависимость понижает статус до degraded.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	var resp healthReadyResponse
	resp.Checks.PostgreSQL = check(h.pgChecker)
	resp.Checks.Storage = check(h.storageChecker)

	statuses := []string{resp.Checks.PostgreSQL.Status, resp.Checks.Storage.Status}
	if h.deps != nil {
		resp.Dependencies = h.deps.Health()
		statuses = append(statuses, dependencyStatus(resp.Dependencies))
	}
	resp.healthLiveResponse = newLive(overallStatus(statuses...))

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics отдаёт метрики Prometheus.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func check(c ReadinessChecker) healthCheckResult {
	if c == nil {
		return healthCheckResult{Status: statusFail, Message: "проверка не настроена"}
	}
	status, msg := c.CheckReady()
	return healthCheckResult{Status: status, Message: msg}
}

// dependencyStatus — degraded, если хотя бы одна зависимость нездорова.
func dependencyStatus(deps map[string]bool) string {
	for _, healthy := range deps {
		if !healthy {
			return statusDegraded
		}
	}
	return statusOK
}

// overallStatus — худший из статусов: fail > degraded > ok.
func overallStatus(statuses ...string) string {
	worst := statusOK
	for _, s := range statuses {
		switch s {
		case statusFail:
			return statusFail
		case statusDegraded:
			worst = statusDegraded
		}
	}
	return worst
}
