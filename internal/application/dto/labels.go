package dto

import (
	"fmt"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

var findingLabels = map[valueobject.FindingKind]string{
	valueobject.FindingLCP:        "Largest Contentful Paint is slow",
	valueobject.FindingFCP:        "First Contentful Paint is slow",
	valueobject.FindingTBT:        "Total Blocking Time is high",
	valueobject.FindingCLS:        "Cumulative Layout Shift is high",
	valueobject.FindingSpeedIndex: "Speed Index is slow",
	valueobject.FindingTTI:        "Time to Interactive is slow",
}

var opportunityLabels = map[string]string{
	"render-blocking-resources":  "Eliminate render-blocking resources",
	"unused-css-rules":           "Reduce unused CSS",
	"unused-javascript":          "Reduce unused JavaScript",
	"modern-image-formats":       "Serve images in next-gen formats",
	"offscreen-images":           "Defer offscreen images",
	"unminified-css":             "Minify CSS",
	"unminified-javascript":      "Minify JavaScript",
	"efficient-animated-content": "Use video formats for animated content",
	"duplicated-javascript":      "Remove duplicate modules in JavaScript bundles",
	"legacy-javascript":          "Avoid serving legacy JavaScript to modern browsers",
	"total-byte-weight":          "Avoid enormous network payloads",
	"uses-optimized-images":      "Efficiently encode images",
	"uses-text-compression":      "Enable text compression",
	"uses-responsive-images":     "Properly size images",
	"server-response-time":       "Reduce initial server response time",
}

// FindingLabel возвращает человекочитаемое название находки
func FindingLabel(kind valueobject.FindingKind) string {
	if label, ok := findingLabels[kind]; ok {
		return label
	}
	return string(kind)
}

// OpportunityLabel возвращает человекочитаемое название аудита
func OpportunityLabel(audit string) string {
	if label, ok := opportunityLabels[audit]; ok {
		return label
	}
	return audit
}

// findingText форматирует находку с единицами измерения
func findingText(f valueobject.Finding) string {
	switch f.Kind {
	case valueobject.FindingTBT:
		return fmt.Sprintf("%s (%.0fms, threshold %.0fms)", FindingLabel(f.Kind), f.Measured, f.Threshold)
	case valueobject.FindingCLS:
		return fmt.Sprintf("%s (%.3f, threshold %.1f)", FindingLabel(f.Kind), f.Measured, f.Threshold)
	default:
		return fmt.Sprintf("%s (%.2fs, threshold %.1fs)", FindingLabel(f.Kind), f.Measured, f.Threshold)
	}
}

// opportunityText форматирует предложение: секунды от 1000ms, иначе миллисекунды
func opportunityText(o valueobject.Opportunity) string {
	if o.SavingsMs > 1000 {
		return fmt.Sprintf("%s: about %.1fs saved", OpportunityLabel(o.Audit), o.SavingsSeconds())
	}
	return fmt.Sprintf("%s: about %.0fms saved", OpportunityLabel(o.Audit), o.SavingsMs)
}
