package valueobject

import (
	"fmt"
	"strconv"
	"strings"
)

// Opportunity описывает аудит Lighthouse с потенциальной экономией (Value Object)
type Opportunity struct {
	Audit     string
	SavingsMs float64
}

// AuditResult представляет сырой результат одного аудита от провайдера
type AuditResult struct {
	ID           string
	Score        *float64
	NumericValue float64
}

// SavingsSeconds возвращает экономию в секундах
func (o Opportunity) SavingsSeconds() float64 {
	return o.SavingsMs / 1000
}

// Encode сериализует возможность в "audit=1234ms"
func (o Opportunity) Encode() string {
	return fmt.Sprintf("%s=%sms", o.Audit, formatFloat(o.SavingsMs))
}

// EncodeOpportunities склеивает возможности для текстовой колонки
func EncodeOpportunities(items []Opportunity) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.Encode())
	}
	return strings.Join(parts, ListSeparator)
}

// DecodeOpportunities разбирает текстовую колонку. Нераспознанные элементы пропускаются.
func DecodeOpportunities(raw string) []Opportunity {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	items := make([]Opportunity, 0)
	for _, part := range strings.Split(raw, ListSeparator) {
		audit, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || audit == "" || !strings.HasSuffix(value, "ms") {
			continue
		}
		savings, err := strconv.ParseFloat(strings.TrimSuffix(value, "ms"), 64)
		if err != nil {
			continue
		}
		items = append(items, Opportunity{Audit: audit, SavingsMs: savings})
	}
	return items
}
