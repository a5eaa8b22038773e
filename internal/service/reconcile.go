// reconcile.go — поиск осиротевших каталогов артефактов.
//
// Каталог считается осиротевшим, если его дайджест не соответствует
// ни одной записи файла: ни привязанному дайджесту, ни вычисленному
// по имени для ещё не инициализированных файлов.
//
// Периодический запуск (FM_RECONCILE_INTERVAL) только обнаруживает
// и считает сирот; удаление выполняется по явному запросу.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/preetgupta-32/folder-manager-iudx/internal/repository"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/artifact"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/naming"
)

// Prometheus метрики сверки.
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fm_reconcile_runs_total",
		Help: "Общее количество запусков сверки артефактов",
	})

	reconcileOrphans = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fm_reconcile_orphans",
		Help: "Количество осиротевших каталогов артефактов при последней сверке",
	})

	reconcileRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fm_reconcile_removed_total",
		Help: "Общее количество удалённых осиротевших каталогов",
	})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fm_reconcile_duration_seconds",
		Help:    "Длительность сверки артефактов в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ReconcileResult — результат одной сверки.
type ReconcileResult struct {
	StartedAt   time.Time
	CompletedAt time.Time
	// EntriesChecked — количество каталогов в хранилище
	EntriesChecked int
	// FilesChecked — количество записей файлов
	FilesChecked int
	// Orphans — дайджесты осиротевших каталогов
	Orphans []string
	// Removed — количество удалённых каталогов
	Removed int
}

// ReconcileService — сверка каталогов артефактов с записями файлов.
type ReconcileService struct {
	files    repository.FileRepository
	store    *artifact.Store
	naming   *naming.Resolver
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	files repository.FileRepository,
	store *artifact.Store,
	resolver *naming.Resolver,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		files:    files,
		store:    store,
		naming:   resolver,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину сверки с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Сверка артефактов запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновую сверку и ждёт завершения горутины.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
		<-rs.done
	}
	rs.logger.Info("Сверка артефактов остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rs.RunOnce(ctx, false); err != nil && ctx.Err() == nil {
				rs.logger.Error("Ошибка сверки артефактов",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce выполняет одну сверку. При remove = true осиротевшие каталоги удаляются.
// Если сверка уже выполняется, возвращает ErrReconcileInProgress.
func (rs *ReconcileService) RunOnce(ctx context.Context, remove bool) (*ReconcileResult, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		return nil, ErrReconcileInProgress
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	result := &ReconcileResult{StartedAt: time.Now().UTC()}

	locators, err := rs.files.ListLocators(ctx)
	if err != nil {
		return nil, translate("получение адресов файлов", err)
	}
	referenced := rs.referencedDigests(locators)
	result.FilesChecked = len(locators)

	entries, err := rs.store.Entries()
	if err != nil {
		return nil, fmt.Errorf("чтение хранилища артефактов: %w", err)
	}
	result.EntriesChecked = len(entries)

	for _, digest := range entries {
		if _, ok := referenced[digest]; !ok {
			result.Orphans = append(result.Orphans, digest)
		}
	}
	if remove && len(result.Orphans) > 0 {
		if err := rs.removeOrphans(ctx, result); err != nil {
			return nil, err
		}
	}

	result.CompletedAt = time.Now().UTC()
	duration := result.CompletedAt.Sub(result.StartedAt)

	reconcileRunsTotal.Inc()
	reconcileOrphans.Set(float64(len(result.Orphans) - result.Removed))
	reconcileRemovedTotal.Add(float64(result.Removed))
	reconcileDurationSeconds.Observe(duration.Seconds())

	rs.logger.Info("Сверка артефактов завершена",
		slog.Int("entries", result.EntriesChecked),
		slog.Int("files", result.FilesChecked),
		slog.Int("orphans", len(result.Orphans)),
		slog.Int("removed", result.Removed),
		slog.Duration("duration", duration),
	)
	return result, nil
}

func (rs *ReconcileService) referencedDigests(locators []repository.FileLocator) map[string]struct{} {
	referenced := make(map[string]struct{}, len(locators))
	for _, l := range locators {
		if l.Digest != nil {
			referenced[*l.Digest] = struct{}{}
			continue
		}
		referenced[rs.naming.DigestFor(l.OriginalName, l.ID)] = struct{}{}
	}
	return referenced
}

// removeOrphans удаляет найденных сирот. Записи файлов перечитываются,
// чтобы не удалить каталог файла, загруженного во время сверки, а каталоги,
// изменённые после начала сверки, пропускаются.
func (rs *ReconcileService) removeOrphans(ctx context.Context, result *ReconcileResult) error {
	locators, err := rs.files.ListLocators(ctx)
	if err != nil {
		return translate("повторное получение адресов файлов", err)
	}
	referenced := rs.referencedDigests(locators)

	for _, digest := range result.Orphans {
		if _, ok := referenced[digest]; ok {
			rs.logger.Info("Каталог получил запись во время сверки, пропущен", slog.String("digest", digest))
			continue
		}
		removed, err := rs.store.RemoveUnchangedSince(digest, result.StartedAt)
		if err != nil {
			rs.logger.Error("Не удалось удалить осиротевший каталог",
				slog.String("digest", digest),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !removed {
			rs.logger.Info("Каталог изменён во время сверки, пропущен", slog.String("digest", digest))
			continue
		}
		result.Removed++
	}
	return nil
}
