package dto

import "time"

// RunStatusDTO представляет снимок статуса запуска
// Используется для опроса и для рассылки через WebSocket
type RunStatusDTO struct {
	RunID            string     `json:"run_id,omitempty"`
	Running          bool       `json:"running"`
	Total            int        `json:"total"`
	Completed        int        `json:"completed"`
	Failed           int        `json:"failed"`
	Outcome          string     `json:"outcome"`
	Message          string     `json:"message,omitempty"`
	Network          string     `json:"network,omitempty"`
	Trigger          string     `json:"trigger,omitempty"`
	TimedOut         bool       `json:"timed_out"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	NextScheduledRun *time.Time `json:"next_scheduled_run,omitempty"`
}

// RunSummaryDTO представляет запись истории запусков
type RunSummaryDTO struct {
	RunID      string    `json:"run_id"`
	Trigger    string    `json:"trigger"`
	Network    string    `json:"network"`
	Outcome    string    `json:"outcome"`
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	TimedOut   bool      `json:"timed_out"`
	Message    string    `json:"message"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
