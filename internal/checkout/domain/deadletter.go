// internal/checkout/domain/deadletter.go
package domain

import "time"

// Dead-letter reason keys. The record key surfaced to operators is
// "{reason}:{orderRef}".
const (
	DeadLetterCaptureNoCommit = "failed"       // money captured, inventory commit failed
	DeadLetterNoOrder         = "order_failed" // inventory committed, order record failed
)

// DeadLetter is a manual-reconciliation record written when a saga reaches a
// state that cannot be compensated automatically. These are never silently
// dropped: the caller also receives an explicit error.
type DeadLetter struct {
	ID            uint
	OrderRef      string
	ReservationID string
	Reason        string
	Detail        string
	CreatedAt     time.Time
}

// Key renders the operator-facing record key.
func (d *DeadLetter) Key() string {
	return d.Reason + ":" + d.OrderRef
}
