package valueobject

import "errors"

// PerformanceStatus классифицирует результат измерения (Value Object)
type PerformanceStatus string

const (
	StatusGood             PerformanceStatus = "Good"
	StatusNeedsImprovement PerformanceStatus = "Needs Improvement"
	StatusPoor             PerformanceStatus = "Poor"
	StatusFailed           PerformanceStatus = "Failed"
)

const (
	goodScoreThreshold = 90
	poorScoreThreshold = 50
)

// StatusFromScore переводит оценку 0-100 в статус
func StatusFromScore(score int) PerformanceStatus {
	switch {
	case score >= goodScoreThreshold:
		return StatusGood
	case score >= poorScoreThreshold:
		return StatusNeedsImprovement
	default:
		return StatusPoor
	}
}

// ParsePerformanceStatus восстанавливает статус из хранилища
func ParsePerformanceStatus(raw string) (PerformanceStatus, error) {
	status := PerformanceStatus(raw)
	switch status {
	case StatusGood, StatusNeedsImprovement, StatusPoor, StatusFailed:
		return status, nil
	case "NeedsImprovement":
		return StatusNeedsImprovement, nil
	default:
		return "", errors.New("invalid performance status")
	}
}

// IsFailed сообщает о неуспешной попытке измерения
func (s PerformanceStatus) IsFailed() bool {
	return s == StatusFailed
}

func (s PerformanceStatus) String() string {
	return string(s)
}
