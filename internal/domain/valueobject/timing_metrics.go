package valueobject

// TimingMetrics содержит основные метрики Lighthouse (Value Object).
// FCP, LCP, SpeedIndex и TTI хранятся в секундах, TBT в миллисекундах, CLS без единиц.
// nil означает, что значение не было получено.
type TimingMetrics struct {
	FCP        *float64
	LCP        *float64
	TBT        *float64
	CLS        *float64
	SpeedIndex *float64
	TTI        *float64
}

// Float возвращает указатель на копию значения
func Float(v float64) *float64 {
	return &v
}

// IsEmpty сообщает, что ни одна метрика не заполнена
func (m TimingMetrics) IsEmpty() bool {
	return m.FCP == nil && m.LCP == nil && m.TBT == nil &&
		m.CLS == nil && m.SpeedIndex == nil && m.TTI == nil
}

// Value возвращает значение метрики по виду находки
func (m TimingMetrics) Value(kind FindingKind) *float64 {
	switch kind {
	case FindingLCP:
		return m.LCP
	case FindingFCP:
		return m.FCP
	case FindingTBT:
		return m.TBT
	case FindingCLS:
		return m.CLS
	case FindingSpeedIndex:
		return m.SpeedIndex
	case FindingTTI:
		return m.TTI
	default:
		return nil
	}
}
