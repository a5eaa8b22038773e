// aggregator.go — агрегированная статистика по набору файлов.
package service

import (
	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
)

// Aggregator сворачивает снимки набора файлов в Summary.
type Aggregator struct {
	resolver *StatusResolver
}

// NewAggregator создаёт агрегатор.
func NewAggregator(resolver *StatusResolver) *Aggregator {
	return &Aggregator{resolver: resolver}
}

// Aggregate вычисляет снимок каждого файла и суммирует показатели.
// Ошибка чтения артефактов любого файла прерывает свёртку целиком.
func (a *Aggregator) Aggregate(files []*model.FileRecord) (model.Summary, error) {
	var sum model.Summary
	for _, f := range files {
		s, err := a.resolver.Resolve(f)
		if err != nil {
			return model.Summary{}, err
		}
		sum.Add(f, s)
	}
	return sum, nil
}

// Snapshots вычисляет снимки файлов и сводку за один проход.
// Снимки возвращаются в порядке файлов.
func (a *Aggregator) Snapshots(files []*model.FileRecord) ([]model.Snapshot, model.Summary, error) {
	snaps := make([]model.Snapshot, 0, len(files))
	var sum model.Summary
	for _, f := range files {
		s, err := a.resolver.Resolve(f)
		if err != nil {
			return nil, model.Summary{}, err
		}
		snaps = append(snaps, s)
		sum.Add(f, s)
	}
	return snaps, sum, nil
}
