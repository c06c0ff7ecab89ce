package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueueStatus represents the lifecycle status of a queue entry
type QueueStatus string

const (
	QueueStatusWaiting        QueueStatus = "waiting"
	QueueStatusInConsultation QueueStatus = "in-consultation"
	QueueStatusCompleted      QueueStatus = "completed"
	QueueStatusReferredOut    QueueStatus = "referred-out"
	QueueStatusReferredIn     QueueStatus = "referred-in"
)

// IsActive reports whether the status counts towards positions and wait estimates
func (s QueueStatus) IsActive() bool {
	return s == QueueStatusWaiting || s == QueueStatusInConsultation
}

// IsTerminal reports whether no further transition is possible
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusReferredOut
}

// Valid reports whether s is a known status
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusWaiting, QueueStatusInConsultation, QueueStatusCompleted,
		QueueStatusReferredOut, QueueStatusReferredIn:
		return true
	}
	return false
}

// QueuePriority represents the triage priority of an entry
type QueuePriority string

const (
	QueuePriorityUrgent   QueuePriority = "urgent"
	QueuePriorityHigh     QueuePriority = "high"
	QueuePriorityReferred QueuePriority = "referred"
	QueuePriorityMedium   QueuePriority = "medium"
)

// Ordinal returns the sort weight of the priority; lower sorts first.
func (p QueuePriority) Ordinal() int {
	switch p {
	case QueuePriorityUrgent:
		return 0
	case QueuePriorityHigh:
		return 1
	case QueuePriorityReferred:
		return 2
	default:
		return 3
	}
}

// ParseQueuePriority parses a priority, defaulting an empty value to medium
func ParseQueuePriority(value string) (QueuePriority, error) {
	switch p := QueuePriority(value); p {
	case "":
		return QueuePriorityMedium, nil
	case QueuePriorityUrgent, QueuePriorityHigh, QueuePriorityReferred, QueuePriorityMedium:
		return p, nil
	default:
		return "", fmt.Errorf("unknown queue priority %q", value)
	}
}

// WaitInProgress is reported instead of minutes for the entry currently in consultation
const WaitInProgress = "in progress"

// WaitEstimate is the derived wait for an entry: either minutes or "in progress".
type WaitEstimate struct {
	Minutes    int
	InProgress bool
}

// MarshalJSON renders the estimate as a number or the "in progress" sentinel
func (w WaitEstimate) MarshalJSON() ([]byte, error) {
	if w.InProgress {
		return json.Marshal(WaitInProgress)
	}
	return json.Marshal(w.Minutes)
}

// UnmarshalJSON accepts either form produced by MarshalJSON
func (w *WaitEstimate) UnmarshalJSON(data []byte) error {
	var sentinel string
	if err := json.Unmarshal(data, &sentinel); err == nil {
		if sentinel != WaitInProgress {
			return fmt.Errorf("invalid wait estimate %q", sentinel)
		}
		*w = WaitEstimate{InProgress: true}
		return nil
	}
	var minutes int
	if err := json.Unmarshal(data, &minutes); err != nil {
		return fmt.Errorf("invalid wait estimate: %w", err)
	}
	*w = WaitEstimate{Minutes: minutes}
	return nil
}

// String implements fmt.Stringer
func (w WaitEstimate) String() string {
	if w.InProgress {
		return WaitInProgress
	}
	return fmt.Sprintf("%d min", w.Minutes)
}

// QueueEntry represents one patient's place in a provider's queue.
// Position is 1-based among active entries and zero once the entry is terminal.
type QueueEntry struct {
	ID                   string        `json:"id" db:"id"`
	ProviderID           string        `json:"provider_id" db:"provider_id"`
	PatientID            string        `json:"patient_id" db:"patient_id"`
	Status               QueueStatus   `json:"status" db:"status"`
	Priority             QueuePriority `json:"priority" db:"priority"`
	Position             int           `json:"position" db:"position"`
	EstimatedWait        WaitEstimate  `json:"estimated_wait" db:"-"`
	ReferralNote         string        `json:"referral_note,omitempty" db:"referral_note"`
	ReferredFromEntryID  string        `json:"referred_from_entry_id,omitempty" db:"referred_from_entry_id"`
	ReferredToProviderID string        `json:"referred_to_provider_id,omitempty" db:"referred_to_provider_id"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the entry is waiting or in consultation
func (e *QueueEntry) IsActive() bool {
	return e.Status.IsActive()
}

// Clone returns a copy that shares no state with e
func (e *QueueEntry) Clone() *QueueEntry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// QueueAction names an operation on the entry state machine
type QueueAction string

const (
	QueueActionStart    QueueAction = "start"
	QueueActionComplete QueueAction = "complete"
	QueueActionRefer    QueueAction = "refer"
	QueueActionAdmit    QueueAction = "admit"
)

// queueTransitions maps each action to the statuses it may start from and the status it produces
var queueTransitions = map[QueueAction]struct {
	from []QueueStatus
	to   QueueStatus
}{
	QueueActionStart:    {from: []QueueStatus{QueueStatusWaiting}, to: QueueStatusInConsultation},
	QueueActionComplete: {from: []QueueStatus{QueueStatusInConsultation}, to: QueueStatusCompleted},
	QueueActionRefer:    {from: []QueueStatus{QueueStatusWaiting, QueueStatusInConsultation}, to: QueueStatusReferredOut},
	QueueActionAdmit:    {from: []QueueStatus{QueueStatusReferredIn}, to: QueueStatusWaiting},
}

// NextStatus returns the status reached by applying action to from
func NextStatus(action QueueAction, from QueueStatus) (QueueStatus, bool) {
	t, ok := queueTransitions[action]
	if !ok {
		return "", false
	}
	for _, s := range t.from {
		if s == from {
			return t.to, true
		}
	}
	return "", false
}

// CanTransition reports whether some action moves an entry from one status to another
func CanTransition(from, to QueueStatus) bool {
	for action, t := range queueTransitions {
		if t.to != to {
			continue
		}
		if _, ok := NextStatus(action, from); ok {
			return true
		}
	}
	return false
}
