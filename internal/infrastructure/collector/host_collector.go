// Package collector samples the load of the host a measurement process runs on.
package collector

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostLoad собирает загрузку хоста для статуса worker
type HostLoad struct {
	CPUPercent    float64 `json:"cpu_percent"`
	Cores         int     `json:"cores"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	DiskPercent   float64 `json:"disk_percent"`
	Goroutines    int     `json:"goroutines"`
}

// HostCollector собирает метрики CPU, памяти и диска
type HostCollector struct {
	mount string
}

// NewHostCollector создает collector; mount задает раздел для disk usage
func NewHostCollector(mount string) *HostCollector {
	if mount == "" {
		mount = "/"
	}
	return &HostCollector{mount: mount}
}

// Collect возвращает снимок загрузки хоста.
// CPU считается с нулевым интервалом относительно предыдущего вызова, чтобы запрос статуса не блокировался.
// Частичные ошибки не прерывают сбор: недоступные значения остаются нулевыми.
func (c *HostCollector) Collect(ctx context.Context) (HostLoad, error) {
	load := HostLoad{Goroutines: runtime.NumGoroutine()}
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	// Процент использования CPU и количество ядер
	if percentages, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		keep(err)
	} else if len(percentages) > 0 {
		load.CPUPercent = percentages[0]
	}
	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		load.Cores = counts
	}

	// Память
	if vmStat, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		keep(err)
	} else {
		load.MemoryPercent = vmStat.UsedPercent
		load.MemoryUsedMB = vmStat.Used / 1024 / 1024
		load.MemoryTotalMB = vmStat.Total / 1024 / 1024
	}

	// Диск
	if usage, err := disk.UsageWithContext(ctx, c.mount); err != nil {
		keep(err)
	} else {
		load.DiskPercent = usage.UsedPercent
	}

	return load, firstErr
}
