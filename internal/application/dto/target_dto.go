package dto

import (
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
)

// TargetDTO представляет цель измерения
type TargetDTO struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	SiteName   string    `json:"site_name"`
	PageDetail string    `json:"page_detail"`
	Network    string    `json:"network"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FromTarget конвертирует Domain Entity в DTO
func FromTarget(target *entity.Target) *TargetDTO {
	return &TargetDTO{
		ID:         target.ID(),
		URL:        target.URL(),
		SiteName:   target.SiteName(),
		PageDetail: target.PageDetail(),
		Network:    target.Network().String(),
		IsActive:   target.IsActive(),
		CreatedAt:  target.CreatedAt(),
		UpdatedAt:  target.UpdatedAt(),
	}
}

// ToTargetDTOs конвертирует слайс Entity в слайс DTO
func ToTargetDTOs(targets []*entity.Target) []*TargetDTO {
	dtos := make([]*TargetDTO, len(targets))
	for i, t := range targets {
		dtos[i] = FromTarget(t)
	}
	return dtos
}

// CreateTargetCommand содержит поля новой цели
type CreateTargetCommand struct {
	URL        string `json:"url"`
	SiteName   string `json:"site_name"`
	PageDetail string `json:"page_detail"`
	Network    string `json:"network"`
}

// UpdateTargetCommand содержит изменяемые поля. nil означает "не менять".
type UpdateTargetCommand struct {
	URL        *string `json:"url"`
	SiteName   *string `json:"site_name"`
	PageDetail *string `json:"page_detail"`
	Network    *string `json:"network"`
	IsActive   *bool   `json:"is_active"`
}
