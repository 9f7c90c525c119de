package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/model"
)

const (
	tableTargets      = "url_master"
	tableMeasurements = "measurements"
	tableSolutions    = "improvement_suggestions"
)

// TargetRepository implements repository.TargetRepository over the data API.
type TargetRepository struct {
	client *Client
}

func NewTargetRepository(client *Client) *TargetRepository {
	return &TargetRepository{client: client}
}

func (r *TargetRepository) FindActive(ctx context.Context, filter valueobject.NetworkFilter) ([]*entity.Target, error) {
	query := url.Values{
		"select":    {"*"},
		"is_active": {"eq.true"},
		"order":     {"id.asc"},
	}
	if !filter.IsAll() {
		query.Set("network", "eq."+filter.Profile().String())
	}
	return r.list(ctx, query)
}

func (r *TargetRepository) FindAll(ctx context.Context) ([]*entity.Target, error) {
	return r.list(ctx, url.Values{"select": {"*"}, "order": {"id.asc"}})
}

func (r *TargetRepository) FindByID(ctx context.Context, id int64) (*entity.Target, error) {
	targets, err := r.list(ctx, url.Values{"select": {"*"}, "id": {idFilter(id)}})
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, repository.ErrTargetNotFound
	}
	return targets[0], nil
}

func (r *TargetRepository) Create(ctx context.Context, target *entity.Target) error {
	var created []model.TargetRow
	_, err := r.client.do(ctx, request{
		method: http.MethodPost,
		table:  tableTargets,
		body:   model.FromTarget(target),
		prefer: preferRepresentation,
	}, &created)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateTarget
		}
		return fmt.Errorf("failed to insert target: %w", err)
	}
	if len(created) == 0 {
		return fmt.Errorf("failed to insert target: empty representation")
	}

	target.AssignID(created[0].ID)
	return nil
}

func (r *TargetRepository) Update(ctx context.Context, target *entity.Target) error {
	row := model.FromTarget(target)
	patch := map[string]interface{}{
		"url":         row.URL,
		"site_name":   row.SiteName,
		"page_detail": row.PageDetail,
		"network":     row.Network,
		"is_active":   row.IsActive,
		"updated_at":  row.UpdatedAt,
	}

	var updated []model.TargetRow
	_, err := r.client.do(ctx, request{
		method: http.MethodPatch,
		table:  tableTargets,
		query:  url.Values{"id": {idFilter(row.ID)}},
		body:   patch,
		prefer: preferRepresentation,
	}, &updated)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateTarget
		}
		return fmt.Errorf("failed to update target: %w", err)
	}
	if len(updated) == 0 {
		return repository.ErrTargetNotFound
	}
	return nil
}

func (r *TargetRepository) Delete(ctx context.Context, id int64) error {
	var deleted []model.TargetRow
	_, err := r.client.do(ctx, request{
		method: http.MethodDelete,
		table:  tableTargets,
		query:  url.Values{"id": {idFilter(id)}},
		prefer: preferRepresentation,
	}, &deleted)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	if len(deleted) == 0 {
		return repository.ErrTargetNotFound
	}
	return nil
}

func (r *TargetRepository) CountActive(ctx context.Context) (int, error) {
	header, err := r.client.do(ctx, request{
		method: http.MethodGet,
		table:  tableTargets,
		query:  url.Values{"select": {"id"}, "is_active": {"eq.true"}, "limit": {"1"}},
		prefer: preferCountExact,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count active targets: %w", err)
	}

	total, err := totalFromContentRange(header)
	if err != nil {
		return 0, fmt.Errorf("failed to count active targets: %w", err)
	}
	return int(total), nil
}

func (r *TargetRepository) list(ctx context.Context, query url.Values) ([]*entity.Target, error) {
	var rows []model.TargetRow
	if _, err := r.client.do(ctx, request{method: http.MethodGet, table: tableTargets, query: query}, &rows); err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}

	targets := make([]*entity.Target, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, row.ToEntity())
	}
	return targets, nil
}

// MeasurementRepository implements repository.MeasurementRepository over the data API.
type MeasurementRepository struct {
	client *Client
}

func NewMeasurementRepository(client *Client) *MeasurementRepository {
	return &MeasurementRepository{client: client}
}

func (r *MeasurementRepository) Save(ctx context.Context, record *entity.MeasurementRecord) error {
	var created []model.MeasurementRow
	_, err := r.client.do(ctx, request{
		method: http.MethodPost,
		table:  tableMeasurements,
		body:   model.FromMeasurement(record),
		prefer: preferRepresentation,
	}, &created)
	if err != nil {
		return fmt.Errorf("failed to insert measurement: %w", err)
	}
	if len(created) > 0 {
		record.AssignID(created[0].ID)
	}
	return nil
}

func (r *MeasurementRepository) FindRecent(ctx context.Context, limit int) ([]*entity.MeasurementRecord, error) {
	query := url.Values{"select": {"*"}, "order": {"measured_at.desc,id.desc"}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return r.list(ctx, query)
}

func (r *MeasurementRepository) FindSince(ctx context.Context, since time.Time, withOpportunities bool) ([]*entity.MeasurementRecord, error) {
	query := url.Values{
		"select":      {"*"},
		"measured_at": {"gte." + since.UTC().Format(time.RFC3339Nano)},
		"order":       {"measured_at.desc,id.desc"},
	}
	if withOpportunities {
		query["suggestions"] = []string{"not.is.null", "neq."}
	}
	return r.list(ctx, query)
}

// Summary averages positive scores client-side; the data API has no aggregate endpoint.
func (r *MeasurementRepository) Summary(ctx context.Context) (repository.MeasurementSummary, error) {
	var scores []struct {
		PerformanceScore int `json:"performance_score"`
	}
	header, err := r.client.do(ctx, request{
		method: http.MethodGet,
		table:  tableMeasurements,
		query:  url.Values{"select": {"performance_score"}},
		prefer: preferCountExact,
	}, &scores)
	if err != nil {
		return repository.MeasurementSummary{}, fmt.Errorf("failed to summarize measurements: %w", err)
	}

	var (
		sum      int
		positive int
	)
	for _, s := range scores {
		if s.PerformanceScore > 0 {
			sum += s.PerformanceScore
			positive++
		}
	}

	summary := repository.MeasurementSummary{Count: len(scores)}
	if total, err := totalFromContentRange(header); err == nil {
		summary.Count = int(total)
	}
	if positive > 0 {
		summary.AverageScore = float64(sum) / float64(positive)
	}
	return summary, nil
}

// DeleteAll needs a filter: the data API rejects unfiltered deletes.
func (r *MeasurementRepository) DeleteAll(ctx context.Context) (int64, error) {
	header, err := r.client.do(ctx, request{
		method: http.MethodDelete,
		table:  tableMeasurements,
		query:  url.Values{"id": {"gt.0"}},
		prefer: preferMinimal + "," + preferCountExact,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to delete measurements: %w", err)
	}

	deleted, err := totalFromContentRange(header)
	if err != nil {
		return 0, nil
	}
	return deleted, nil
}

func (r *MeasurementRepository) list(ctx context.Context, query url.Values) ([]*entity.MeasurementRecord, error) {
	var rows []model.MeasurementRow
	if _, err := r.client.do(ctx, request{method: http.MethodGet, table: tableMeasurements, query: query}, &rows); err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}

	records := make([]*entity.MeasurementRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.ToEntity())
	}
	return records, nil
}

// SolutionRepository implements repository.SolutionRepository over the data API.
type SolutionRepository struct {
	client *Client
}

func NewSolutionRepository(client *Client) *SolutionRepository {
	return &SolutionRepository{client: client}
}

func (r *SolutionRepository) FindAll(ctx context.Context) ([]*entity.Solution, error) {
	var rows []model.SolutionRow
	_, err := r.client.do(ctx, request{
		method: http.MethodGet,
		table:  tableSolutions,
		query:  url.Values{"select": {"issue_key,solution,updated_at"}},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to query solutions: %w", err)
	}

	solutions := make([]*entity.Solution, 0, len(rows))
	for _, row := range rows {
		solutions = append(solutions, row.ToEntity())
	}
	return solutions, nil
}

func (r *SolutionRepository) Upsert(ctx context.Context, solution *entity.Solution) error {
	_, err := r.client.do(ctx, request{
		method: http.MethodPost,
		table:  tableSolutions,
		query:  url.Values{"on_conflict": {"issue_key"}},
		body:   model.FromSolution(solution),
		prefer: preferMergeUpsert,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to upsert solution: %w", err)
	}
	return nil
}

func idFilter(id int64) string {
	return "eq." + strconv.FormatInt(id, 10)
}
