package luckydraw

import (
	"sync"
	"sync/atomic"
	"time"
)

// PerformanceMetrics collects draw engine counters. All fields are updated
// atomically; read them through PerformanceMonitor.GetMetrics.
type PerformanceMetrics struct {
	// Batch statistics
	TotalBatches      int64 `json:"total_batches"`
	SuccessfulBatches int64 `json:"successful_batches"`
	FailedBatches     int64 `json:"failed_batches"`
	RolledBackBatches int64 `json:"rolled_back_batches"`

	// Per-draw statistics
	TotalDraws     int64 `json:"total_draws"`
	ForcedDraws    int64 `json:"forced_draws"`
	StockFallbacks int64 `json:"stock_fallbacks"`

	// Rejection statistics
	InsufficientFunds int64 `json:"insufficient_funds"`
	InsufficientStock int64 `json:"insufficient_stock"`
	BannedRejections  int64 `json:"banned_rejections"`

	// Lock statistics
	LockAcquisitions    int64 `json:"lock_acquisitions"`
	LockAcquisitionTime int64 `json:"lock_acquisition_time"`
	LockReleases        int64 `json:"lock_releases"`
	LockFailures        int64 `json:"lock_failures"`

	// Timing
	AverageBatchTime int64 `json:"average_batch_time"`
	TotalBatchTime   int64 `json:"total_batch_time"`

	// External failures
	RedisErrors int64 `json:"redis_errors"`
	StoreErrors int64 `json:"store_errors"`

	StartTime      int64 `json:"start_time"`
	LastUpdateTime int64 `json:"last_update_time"`
}

// GetSuccessRate returns the batch success rate as a percentage
func (pm *PerformanceMetrics) GetSuccessRate() float64 {
	total := atomic.LoadInt64(&pm.TotalBatches)
	if total == 0 {
		return 0.0
	}
	successful := atomic.LoadInt64(&pm.SuccessfulBatches)
	return float64(successful) / float64(total) * 100.0
}

// GetAverageLockTime returns the average lock acquisition time
func (pm *PerformanceMetrics) GetAverageLockTime() time.Duration {
	acquisitions := atomic.LoadInt64(&pm.LockAcquisitions)
	if acquisitions == 0 {
		return 0
	}
	totalTime := atomic.LoadInt64(&pm.LockAcquisitionTime)
	return time.Duration(totalTime / acquisitions)
}

// GetThroughput returns completed batches per second
func (pm *PerformanceMetrics) GetThroughput() float64 {
	startTime := atomic.LoadInt64(&pm.StartTime)
	lastUpdate := atomic.LoadInt64(&pm.LastUpdateTime)
	if startTime == 0 || lastUpdate <= startTime {
		return 0.0
	}

	duration := time.Duration(lastUpdate - startTime)
	totalBatches := atomic.LoadInt64(&pm.TotalBatches)

	return float64(totalBatches) / duration.Seconds()
}

// Reset zeroes all counters and restarts the measurement window
func (pm *PerformanceMetrics) Reset() {
	atomic.StoreInt64(&pm.TotalBatches, 0)
	atomic.StoreInt64(&pm.SuccessfulBatches, 0)
	atomic.StoreInt64(&pm.FailedBatches, 0)
	atomic.StoreInt64(&pm.RolledBackBatches, 0)
	atomic.StoreInt64(&pm.TotalDraws, 0)
	atomic.StoreInt64(&pm.ForcedDraws, 0)
	atomic.StoreInt64(&pm.StockFallbacks, 0)
	atomic.StoreInt64(&pm.InsufficientFunds, 0)
	atomic.StoreInt64(&pm.InsufficientStock, 0)
	atomic.StoreInt64(&pm.BannedRejections, 0)
	atomic.StoreInt64(&pm.LockAcquisitions, 0)
	atomic.StoreInt64(&pm.LockAcquisitionTime, 0)
	atomic.StoreInt64(&pm.LockReleases, 0)
	atomic.StoreInt64(&pm.LockFailures, 0)
	atomic.StoreInt64(&pm.AverageBatchTime, 0)
	atomic.StoreInt64(&pm.TotalBatchTime, 0)
	atomic.StoreInt64(&pm.RedisErrors, 0)
	atomic.StoreInt64(&pm.StoreErrors, 0)
	atomic.StoreInt64(&pm.StartTime, time.Now().UnixNano())
	atomic.StoreInt64(&pm.LastUpdateTime, time.Now().UnixNano())
}

// ================================================================================

// PerformanceMonitor records engine activity into PerformanceMetrics
type PerformanceMonitor struct {
	metrics *PerformanceMetrics
	mu      sync.RWMutex
	enabled bool
}

// NewPerformanceMonitor creates an enabled performance monitor
func NewPerformanceMonitor() *PerformanceMonitor {
	pm := &PerformanceMonitor{
		metrics: &PerformanceMetrics{},
		enabled: true,
	}
	pm.metrics.Reset()
	return pm
}

// Enable turns monitoring on
func (pm *PerformanceMonitor) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.enabled = true
}

// Disable turns monitoring off
func (pm *PerformanceMonitor) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.enabled = false
}

// IsEnabled reports whether monitoring is on
func (pm *PerformanceMonitor) IsEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.enabled
}

// RecordBatch records a completed or failed draw batch
func (pm *PerformanceMonitor) RecordBatch(success bool, draws int, duration time.Duration) {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.TotalBatches, 1)
	atomic.AddInt64(&pm.metrics.TotalBatchTime, int64(duration))

	if success {
		atomic.AddInt64(&pm.metrics.SuccessfulBatches, 1)
		atomic.AddInt64(&pm.metrics.TotalDraws, int64(draws))
	} else {
		atomic.AddInt64(&pm.metrics.FailedBatches, 1)
	}

	totalBatches := atomic.LoadInt64(&pm.metrics.TotalBatches)
	totalTime := atomic.LoadInt64(&pm.metrics.TotalBatchTime)
	atomic.StoreInt64(&pm.metrics.AverageBatchTime, totalTime/totalBatches)

	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordRollback records a batch that was rolled back
func (pm *PerformanceMonitor) RecordRollback() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.RolledBackBatches, 1)
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordForcedDraw records a slot resolved by an outcome policy
func (pm *PerformanceMonitor) RecordForcedDraw() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.ForcedDraws, 1)
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordStockFallback records a slot that fell back after its selected prize
// sold out
func (pm *PerformanceMonitor) RecordStockFallback() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.StockFallbacks, 1)
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordRejection classifies a rejected draw request by its error code
func (pm *PerformanceMonitor) RecordRejection(err error) {
	if !pm.IsEnabled() || err == nil {
		return
	}

	switch {
	case IsErrorCode(err, ErrCodeInsufficientFunds):
		atomic.AddInt64(&pm.metrics.InsufficientFunds, 1)
	case IsErrorCode(err, ErrCodeInsufficientStock):
		atomic.AddInt64(&pm.metrics.InsufficientStock, 1)
	case IsErrorCode(err, ErrCodeAccountBanned):
		atomic.AddInt64(&pm.metrics.BannedRejections, 1)
	}
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordLockAcquisition records a lock acquisition attempt
func (pm *PerformanceMonitor) RecordLockAcquisition(success bool, duration time.Duration) {
	if !pm.IsEnabled() {
		return
	}

	if success {
		atomic.AddInt64(&pm.metrics.LockAcquisitions, 1)
		atomic.AddInt64(&pm.metrics.LockAcquisitionTime, int64(duration))
	} else {
		atomic.AddInt64(&pm.metrics.LockFailures, 1)
	}

	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordLockRelease records a lock release
func (pm *PerformanceMonitor) RecordLockRelease() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.LockReleases, 1)
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordRedisError records a Redis failure
func (pm *PerformanceMonitor) RecordRedisError() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.RedisErrors, 1)
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordStoreError records a persistence failure
func (pm *PerformanceMonitor) RecordStoreError() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.StoreErrors, 1)
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// GetMetrics returns a consistent copy of the current metrics
func (pm *PerformanceMonitor) GetMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		TotalBatches:        atomic.LoadInt64(&pm.metrics.TotalBatches),
		SuccessfulBatches:   atomic.LoadInt64(&pm.metrics.SuccessfulBatches),
		FailedBatches:       atomic.LoadInt64(&pm.metrics.FailedBatches),
		RolledBackBatches:   atomic.LoadInt64(&pm.metrics.RolledBackBatches),
		TotalDraws:          atomic.LoadInt64(&pm.metrics.TotalDraws),
		ForcedDraws:         atomic.LoadInt64(&pm.metrics.ForcedDraws),
		StockFallbacks:      atomic.LoadInt64(&pm.metrics.StockFallbacks),
		InsufficientFunds:   atomic.LoadInt64(&pm.metrics.InsufficientFunds),
		InsufficientStock:   atomic.LoadInt64(&pm.metrics.InsufficientStock),
		BannedRejections:    atomic.LoadInt64(&pm.metrics.BannedRejections),
		LockAcquisitions:    atomic.LoadInt64(&pm.metrics.LockAcquisitions),
		LockAcquisitionTime: atomic.LoadInt64(&pm.metrics.LockAcquisitionTime),
		LockReleases:        atomic.LoadInt64(&pm.metrics.LockReleases),
		LockFailures:        atomic.LoadInt64(&pm.metrics.LockFailures),
		AverageBatchTime:    atomic.LoadInt64(&pm.metrics.AverageBatchTime),
		TotalBatchTime:      atomic.LoadInt64(&pm.metrics.TotalBatchTime),
		RedisErrors:         atomic.LoadInt64(&pm.metrics.RedisErrors),
		StoreErrors:         atomic.LoadInt64(&pm.metrics.StoreErrors),
		StartTime:           atomic.LoadInt64(&pm.metrics.StartTime),
		LastUpdateTime:      atomic.LoadInt64(&pm.metrics.LastUpdateTime),
	}
}

// ResetMetrics zeroes the metrics
func (pm *PerformanceMonitor) ResetMetrics() { pm.metrics.Reset() }
