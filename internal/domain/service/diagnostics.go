package service

import (
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

// MaxOpportunities ограничивает число предложений в одной записи
const MaxOpportunities = 5

// minOpportunitySavingsMs отсекает незначительную экономию
const minOpportunitySavingsMs = 100

// Threshold задает порог для одной метрики
type Threshold struct {
	Kind  valueobject.FindingKind
	Limit float64
}

// DefaultThresholds в порядке проверки: LCP 2.5s, FCP 1.8s, TBT 200ms, CLS 0.1, SI 3.4s, TTI 3.8s
var DefaultThresholds = []Threshold{
	{Kind: valueobject.FindingLCP, Limit: 2.5},
	{Kind: valueobject.FindingFCP, Limit: 1.8},
	{Kind: valueobject.FindingTBT, Limit: 200},
	{Kind: valueobject.FindingCLS, Limit: 0.1},
	{Kind: valueobject.FindingSpeedIndex, Limit: 3.4},
	{Kind: valueobject.FindingTTI, Limit: 3.8},
}

// OpportunityCatalog содержит аудиты Lighthouse, которые считаются предложениями по улучшению.
// Порядок каталога определяет порядок в записи.
var OpportunityCatalog = []string{
	"render-blocking-resources",
	"unused-css-rules",
	"unused-javascript",
	"modern-image-formats",
	"offscreen-images",
	"unminified-css",
	"unminified-javascript",
	"efficient-animated-content",
	"duplicated-javascript",
	"legacy-javascript",
	"total-byte-weight",
	"uses-optimized-images",
	"uses-text-compression",
	"uses-responsive-images",
	"server-response-time",
}

// Diagnostics выводит находки и предложения из метрик (Domain Service)
// Чистые функции без побочных эффектов
type Diagnostics struct {
	thresholds []Threshold
	catalog    []string
}

// NewDiagnostics создает сервис со стандартными порогами и каталогом
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{
		thresholds: DefaultThresholds,
		catalog:    OpportunityCatalog,
	}
}

// DeriveFindings сравнивает каждую метрику с порогом. Отсутствующие метрики пропускаются.
func (d *Diagnostics) DeriveFindings(metrics valueobject.TimingMetrics) []valueobject.Finding {
	findings := make([]valueobject.Finding, 0)

	for _, threshold := range d.thresholds {
		value := metrics.Value(threshold.Kind)
		if value == nil || *value <= threshold.Limit {
			continue
		}
		findings = append(findings, valueobject.Finding{
			Kind:      threshold.Kind,
			Measured:  *value,
			Threshold: threshold.Limit,
		})
	}

	return findings
}

// SelectOpportunities отбирает до MaxOpportunities аудитов из каталога,
// у которых score < 1 и numericValue > 100
func (d *Diagnostics) SelectOpportunities(audits map[string]valueobject.AuditResult) []valueobject.Opportunity {
	selected := make([]valueobject.Opportunity, 0, MaxOpportunities)

	for _, auditID := range d.catalog {
		audit, ok := audits[auditID]
		if !ok || audit.Score == nil || *audit.Score >= 1 {
			continue
		}
		if audit.NumericValue <= minOpportunitySavingsMs {
			continue
		}

		selected = append(selected, valueobject.Opportunity{
			Audit:     auditID,
			SavingsMs: audit.NumericValue,
		})
		if len(selected) == MaxOpportunities {
			break
		}
	}

	return selected
}

// IsCatalogAudit проверяет, входит ли аудит в каталог
func IsCatalogAudit(auditID string) bool {
	for _, id := range OpportunityCatalog {
		if id == auditID {
			return true
		}
	}
	return false
}
