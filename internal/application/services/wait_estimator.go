package services

import "github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"

// DefaultAverageConsultationMinutes is used when no positive average is configured
const DefaultAverageConsultationMinutes = 20

// WaitEstimator maps a queue position to an estimated wait. It holds no queue state.
type WaitEstimator struct {
	averageMinutes int
}

// NewWaitEstimator creates an estimator; non-positive averages fall back to the default
func NewWaitEstimator(averageConsultationMinutes int) *WaitEstimator {
	if averageConsultationMinutes <= 0 {
		averageConsultationMinutes = DefaultAverageConsultationMinutes
	}
	return &WaitEstimator{averageMinutes: averageConsultationMinutes}
}

// AverageMinutes returns the configured average consultation length
func (e *WaitEstimator) AverageMinutes() int {
	return e.averageMinutes
}

// Estimate returns position * average for waiting entries and "in progress" for the consultation.
// Inactive entries have no wait.
func (e *WaitEstimator) Estimate(position int, status entities.QueueStatus) entities.WaitEstimate {
	switch {
	case status == entities.QueueStatusInConsultation:
		return entities.WaitEstimate{InProgress: true}
	case !status.IsActive() || position <= 0:
		return entities.WaitEstimate{}
	default:
		return entities.WaitEstimate{Minutes: position * e.averageMinutes}
	}
}
