// cache.go — LRU-кэш записей файлов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fm_cache_hits_total",
		Help: "Общее количество попаданий в кэш записей файлов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fm_cache_misses_total",
		Help: "Общее количество промахов кэша записей файлов.",
	})
)

// RecordCache — кэш записей файлов по ID.
// Хранит копии: вызывающий код может менять полученную запись.
type RecordCache struct {
	cache *expirable.LRU[string, *model.FileRecord]
}

// NewRecordCache создаёт кэш с максимальным размером maxSize и временем жизни ttl.
// maxSize <= 0 отключает кэширование.
func NewRecordCache(maxSize int, ttl time.Duration) *RecordCache {
	if maxSize <= 0 {
		return &RecordCache{}
	}
	return &RecordCache{cache: expirable.NewLRU[string, *model.FileRecord](maxSize, nil, ttl)}
}

// Get возвращает копию записи из кэша.
func (c *RecordCache) Get(fileID string) (*model.FileRecord, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	val, ok := c.cache.Get(fileID)
	if ok {
		cacheHitsTotal.Inc()
		return val.Clone(), true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *RecordCache) Set(f *model.FileRecord) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Add(f.ID, f.Clone())
}

// Delete удаляет запись из кэша.
func (c *RecordCache) Delete(fileID string) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Remove(fileID)
}

// Len возвращает количество записей в кэше.
func (c *RecordCache) Len() int {
	if c == nil || c.cache == nil {
		return 0
	}
	return c.cache.Len()
}
