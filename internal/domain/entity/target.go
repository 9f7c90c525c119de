package entity

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

// Target представляет пару (URL, сетевой профиль) для измерения
type Target struct {
	id         int64
	url        string
	siteName   string
	pageDetail string
	network    valueobject.NetworkProfile
	active     bool
	createdAt  time.Time
	updatedAt  time.Time
}

// NewTarget создает новую активную цель (Factory Method)
func NewTarget(rawURL, siteName, pageDetail string, network valueobject.NetworkProfile) (*Target, error) {
	normalized := strings.TrimSpace(rawURL)
	if normalized == "" {
		return nil, errors.New("url is required")
	}
	parsed, err := url.Parse(normalized)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errors.New("url must be an absolute http(s) url")
	}
	if err := network.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	return &Target{
		url:        normalized,
		siteName:   strings.TrimSpace(siteName),
		pageDetail: strings.TrimSpace(pageDetail),
		network:    network,
		active:     true,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// ReconstructTarget восстанавливает цель из хранилища (для Repository)
func ReconstructTarget(
	id int64,
	rawURL, siteName, pageDetail string,
	network valueobject.NetworkProfile,
	active bool,
	createdAt, updatedAt time.Time,
) *Target {
	return &Target{
		id:         id,
		url:        rawURL,
		siteName:   siteName,
		pageDetail: pageDetail,
		network:    network,
		active:     active,
		createdAt:  createdAt.UTC(),
		updatedAt:  updatedAt.UTC(),
	}
}

func (t *Target) ID() int64                           { return t.id }
func (t *Target) URL() string                         { return t.url }
func (t *Target) SiteName() string                    { return t.siteName }
func (t *Target) PageDetail() string                  { return t.pageDetail }
func (t *Target) Network() valueobject.NetworkProfile { return t.network }
func (t *Target) IsActive() bool                      { return t.active }
func (t *Target) CreatedAt() time.Time                { return t.createdAt }
func (t *Target) UpdatedAt() time.Time                { return t.updatedAt }

// AssignID устанавливает идентификатор после вставки в хранилище
func (t *Target) AssignID(id int64) {
	t.id = id
}

// TargetPatch содержит изменяемые поля цели. nil означает "не менять".
type TargetPatch struct {
	URL        *string
	SiteName   *string
	PageDetail *string
	Network    *valueobject.NetworkProfile
	Active     *bool
}

// Apply применяет изменения с валидацией
func (t *Target) Apply(patch TargetPatch) error {
	next := *t

	if patch.URL != nil {
		candidate, err := NewTarget(*patch.URL, next.siteName, next.pageDetail, next.network)
		if err != nil {
			return err
		}
		next.url = candidate.url
	}
	if patch.SiteName != nil {
		next.siteName = strings.TrimSpace(*patch.SiteName)
	}
	if patch.PageDetail != nil {
		next.pageDetail = strings.TrimSpace(*patch.PageDetail)
	}
	if patch.Network != nil {
		if err := patch.Network.Validate(); err != nil {
			return err
		}
		next.network = *patch.Network
	}
	if patch.Active != nil {
		next.active = *patch.Active
	}

	next.updatedAt = time.Now().UTC()
	*t = next
	return nil
}
