package async

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/pulsedesk/errors"
)

// SystemMetrics tracks resource usage for worker pool monitoring
type SystemMetrics struct {
	WorkersActive int     `json:"workers_active"`
	WorkersTotal  int     `json:"workers_total"`
	JobsProcessed int     `json:"jobs_processed"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
	JobsQueued    int     `json:"jobs_queued"`
	JobsRunning   int     `json:"jobs_running"`
}

// getMemoryStats returns total and available memory in bytes
func getMemoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// memoryPerWorkerGB is a rough budget for one worker running handlers
// that render notifications and talk to the database.
const memoryPerWorkerGB = 0.25

// calculateSafeWorkerCount recommends a worker count for the available memory
func calculateSafeWorkerCount(availableGB float64) int {
	const memoryBuffer = 1.0 // GB reserved for the rest of the system

	if availableGB < memoryBuffer {
		return 1
	}
	recommended := int((availableGB - memoryBuffer) / memoryPerWorkerGB)
	if recommended < 1 {
		return 1
	}
	if recommended > 32 {
		return 32
	}
	return recommended
}

// GetSystemMetrics returns current system resource usage
func (wp *WorkerPool) GetSystemMetrics(ctx context.Context) SystemMetrics {
	var memUsedGB, memTotalGB, memPercent float64
	if total, available, err := getMemoryStats(); err == nil && total > 0 {
		memTotalGB = float64(total) / 1024 / 1024 / 1024
		memUsedGB = float64(total-available) / 1024 / 1024 / 1024
		memPercent = (memUsedGB / memTotalGB) * 100
	}

	var queued, running int
	if stats, err := wp.queue.Stats(ctx); err == nil {
		queued, running = stats.Queued, stats.Running
	}

	wp.mu.Lock()
	defer wp.mu.Unlock()

	return SystemMetrics{
		WorkersActive: wp.activeWorkers,
		WorkersTotal:  wp.cfg.Workers,
		JobsProcessed: wp.jobsProcessed,
		MemoryUsedGB:  memUsedGB,
		MemoryTotalGB: memTotalGB,
		MemoryPercent: memPercent,
		JobsQueued:    queued,
		JobsRunning:   running,
	}
}

// checkMemoryPressure returns a warning when the worker count looks too
// high for the available memory, or "" when it is fine.
func (wp *WorkerPool) checkMemoryPressure() string {
	total, available, err := getMemoryStats()
	if err != nil {
		return ""
	}

	availableGB := float64(available) / 1024 / 1024 / 1024
	totalGB := float64(total) / 1024 / 1024 / 1024
	recommended := calculateSafeWorkerCount(availableGB)

	if wp.cfg.Workers > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB). "+
				"Consider reducing workers to prevent memory pressure.",
			wp.cfg.Workers, recommended, totalGB-availableGB, totalGB)
	}
	return ""
}
