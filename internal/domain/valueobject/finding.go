package valueobject

import (
	"fmt"
	"strconv"
	"strings"
)

// FindingKind обозначает метрику, превысившую порог
type FindingKind string

const (
	FindingLCP        FindingKind = "lcp"
	FindingFCP        FindingKind = "fcp"
	FindingTBT        FindingKind = "tbt"
	FindingCLS        FindingKind = "cls"
	FindingSpeedIndex FindingKind = "speed-index"
	FindingTTI        FindingKind = "tti"
)

// ListSeparator разделяет элементы в текстовых колонках issues/suggestions
const ListSeparator = " | "

// Finding описывает одно превышение порога (Value Object)
type Finding struct {
	Kind      FindingKind
	Measured  float64
	Threshold float64
}

// Validate проверяет вид находки
func (k FindingKind) Validate() error {
	switch k {
	case FindingLCP, FindingFCP, FindingTBT, FindingCLS, FindingSpeedIndex, FindingTTI:
		return nil
	default:
		return fmt.Errorf("invalid finding kind %q", string(k))
	}
}

// Encode сериализует находку в "kind=measured>threshold"
func (f Finding) Encode() string {
	return fmt.Sprintf("%s=%s>%s", f.Kind, formatFloat(f.Measured), formatFloat(f.Threshold))
}

// EncodeFindings склеивает находки для текстовой колонки. Пустой список дает "".
func EncodeFindings(findings []Finding) string {
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, f.Encode())
	}
	return strings.Join(parts, ListSeparator)
}

// DecodeFindings разбирает текстовую колонку. Нераспознанные элементы пропускаются.
func DecodeFindings(raw string) []Finding {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	findings := make([]Finding, 0)
	for _, part := range strings.Split(raw, ListSeparator) {
		finding, err := parseFinding(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		findings = append(findings, finding)
	}
	return findings
}

func parseFinding(raw string) (Finding, error) {
	kind, rest, ok := strings.Cut(raw, "=")
	if !ok {
		return Finding{}, fmt.Errorf("malformed finding %q", raw)
	}
	measuredRaw, thresholdRaw, ok := strings.Cut(rest, ">")
	if !ok {
		return Finding{}, fmt.Errorf("malformed finding %q", raw)
	}

	finding := Finding{Kind: FindingKind(kind)}
	if err := finding.Kind.Validate(); err != nil {
		return Finding{}, err
	}

	var err error
	if finding.Measured, err = strconv.ParseFloat(measuredRaw, 64); err != nil {
		return Finding{}, fmt.Errorf("malformed finding %q: %w", raw, err)
	}
	if finding.Threshold, err = strconv.ParseFloat(thresholdRaw, 64); err != nil {
		return Finding{}, fmt.Errorf("malformed finding %q: %w", raw, err)
	}

	return finding, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
