package service

import (
	"sort"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
)

// IssueStat агрегирует одно предложение по множеству записей
type IssueStat struct {
	IssueKey    string
	Count       int
	TotalImpact float64
	AvgImpact   float64
	PageDetails []string
}

// Weight возвращает вес для ранжирования: частота * средняя экономия
func (s IssueStat) Weight() float64 {
	return float64(s.Count) * s.AvgImpact
}

// ImprovementAggregator строит рейтинг предложений по улучшению (Domain Service)
type ImprovementAggregator struct{}

// NewImprovementAggregator создает новый ImprovementAggregator
func NewImprovementAggregator() *ImprovementAggregator {
	return &ImprovementAggregator{}
}

// Rank суммирует экономию (в секундах) по аудитам и возвращает не более limit позиций
func (a *ImprovementAggregator) Rank(records []*entity.MeasurementRecord, limit int) []IssueStat {
	type accumulator struct {
		stat  IssueStat
		pages map[string]struct{}
		order int
	}

	byKey := make(map[string]*accumulator)
	for _, record := range records {
		for _, opportunity := range record.Opportunities() {
			acc, ok := byKey[opportunity.Audit]
			if !ok {
				acc = &accumulator{
					stat:  IssueStat{IssueKey: opportunity.Audit},
					pages: make(map[string]struct{}),
					order: len(byKey),
				}
				byKey[opportunity.Audit] = acc
			}

			acc.stat.Count++
			acc.stat.TotalImpact += opportunity.SavingsSeconds()

			if page := record.PageDetail(); page != "" {
				if _, seen := acc.pages[page]; !seen {
					acc.pages[page] = struct{}{}
					acc.stat.PageDetails = append(acc.stat.PageDetails, page)
				}
			}
		}
	}

	accumulators := make([]*accumulator, 0, len(byKey))
	for _, acc := range byKey {
		acc.stat.AvgImpact = acc.stat.TotalImpact / float64(acc.stat.Count)
		accumulators = append(accumulators, acc)
	}

	// Стабильный порядок при равном весе: по первому появлению
	sort.Slice(accumulators, func(i, j int) bool {
		wi, wj := accumulators[i].stat.Weight(), accumulators[j].stat.Weight()
		if wi != wj {
			return wi > wj
		}
		return accumulators[i].order < accumulators[j].order
	})

	if limit > 0 && len(accumulators) > limit {
		accumulators = accumulators[:limit]
	}

	result := make([]IssueStat, 0, len(accumulators))
	for _, acc := range accumulators {
		result = append(result, acc.stat)
	}
	return result
}
