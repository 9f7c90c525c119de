package model

import (
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

// TargetRow mirrors one row of the url_master table.
type TargetRow struct {
	ID         int64     `json:"id,omitempty"`
	URL        string    `json:"url"`
	SiteName   *string   `json:"site_name"`
	PageDetail *string   `json:"page_detail"`
	Network    string    `json:"network"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FromTarget converts a domain target into its row shape.
func FromTarget(target *entity.Target) TargetRow {
	return TargetRow{
		ID:         target.ID(),
		URL:        target.URL(),
		SiteName:   optionalString(target.SiteName()),
		PageDetail: optionalString(target.PageDetail()),
		Network:    target.Network().String(),
		IsActive:   target.IsActive(),
		CreatedAt:  target.CreatedAt().UTC(),
		UpdatedAt:  target.UpdatedAt().UTC(),
	}
}

// ToEntity rebuilds the domain target.
func (r TargetRow) ToEntity() *entity.Target {
	network, err := valueobject.ParseNetworkProfile(r.Network)
	if err != nil {
		network = valueobject.NetworkProfile(r.Network)
	}

	return entity.ReconstructTarget(
		r.ID,
		r.URL,
		deref(r.SiteName),
		deref(r.PageDetail),
		network,
		r.IsActive,
		r.CreatedAt,
		r.UpdatedAt,
	)
}

// SolutionRow mirrors one row of the improvement_suggestions table.
type SolutionRow struct {
	IssueKey  string    `json:"issue_key"`
	Solution  string    `json:"solution"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FromSolution converts a domain solution into its row shape.
func FromSolution(solution *entity.Solution) SolutionRow {
	return SolutionRow{
		IssueKey:  solution.IssueKey(),
		Solution:  solution.Text(),
		UpdatedAt: solution.UpdatedAt().UTC(),
	}
}

// ToEntity rebuilds the domain solution.
func (r SolutionRow) ToEntity() *entity.Solution {
	return entity.ReconstructSolution(r.IssueKey, r.Solution, r.UpdatedAt)
}
