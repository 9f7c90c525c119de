package dto

// DateRangeDTO содержит даты отчета в формате YYYY-MM-DD (UTC)
type DateRangeDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ImprovementIssueDTO представляет одну позицию рейтинга предложений
type ImprovementIssueDTO struct {
	Rank        int      `json:"rank"`
	IssueKey    string   `json:"issue_key"`
	Title       string   `json:"title"`
	Count       int      `json:"count"`
	TotalImpact float64  `json:"total_impact"`
	AvgImpact   float64  `json:"avg_impact"`
	PageDetails []string `json:"page_details"`
	Solution    *string  `json:"solution"`
}

// ImprovementReportDTO представляет отчет о предложениях по улучшению
type ImprovementReportDTO struct {
	DateRange         DateRangeDTO           `json:"date_range"`
	TotalMeasurements int                    `json:"total_measurements"`
	Issues            []*ImprovementIssueDTO `json:"issues"`
}

// SolutionDTO представляет сгенерированное решение
type SolutionDTO struct {
	IssueKey string `json:"issue_key"`
	Provider string `json:"provider"`
	Solution string `json:"solution"`
}
