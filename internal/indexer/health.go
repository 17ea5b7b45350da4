package indexer

// Health statuses, ordered from best to worst.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Health is the indexer's lag report for the health surface.
type Health struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	CurrentBlock       uint64 `json:"current_block"`
	Lag                uint64 `json:"lag"`
	Status             string `json:"status"`
	LastError          string `json:"last_error,omitempty"`
}

// Health computes indexer lag against the configured thresholds.
func (r *Runner) Health() Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h := Health{
		LastProcessedBlock: r.lastProcessed,
		CurrentBlock:       r.currentBlock,
		Status:             StatusHealthy,
	}
	if r.currentBlock > r.lastProcessed {
		h.Lag = r.currentBlock - r.lastProcessed
	}
	if r.lastErr != nil {
		h.LastError = r.lastErr.Error()
	}

	degraded := r.cfg.LagDegraded
	unhealthy := r.cfg.LagUnhealthy
	if degraded == 0 {
		degraded = 10
	}
	if unhealthy == 0 {
		unhealthy = 100
	}
	switch {
	case h.Lag > unhealthy:
		h.Status = StatusUnhealthy
	case h.Lag > degraded:
		h.Status = StatusDegraded
	}
	return h
}
