package amqp

import (
	"encoding/json"
	"time"
)

// RecomputeMessage asks the worker to recompute and re-export one loan's
// schedule. It carries only the loan ID and a reason; the worker fetches
// the current loan state from the database.
type RecomputeMessage struct {
	LoanID    int64     `json:"loan_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Reasons attached to recompute messages.
const (
	ReasonLoanCreated     = "loan_created"
	ReasonPaymentRecorded = "payment_recorded"
)

func NewRecomputeMessage(loanID int64, reason string) *RecomputeMessage {
	return &RecomputeMessage{
		LoanID:    loanID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecomputeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecomputeMessageFromJSON creates a message from JSON bytes
func RecomputeMessageFromJSON(data []byte) (*RecomputeMessage, error) {
	var msg RecomputeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
