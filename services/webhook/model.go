package webhook

import "time"

// ProcessedEvent records a processor event id once its effects are committed.
type ProcessedEvent struct {
	EventID         string    `gorm:"column:event_id;primaryKey"`
	Type            string    `gorm:"column:type"`
	PaymentIntentID string    `gorm:"column:payment_intent_id;index"`
	ProcessedAt     time.Time `gorm:"column:processed_at"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }

type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeCurrencyMismatch Outcome = "currency_mismatch"
	OutcomeFailed           Outcome = "payment_failed"
	OutcomeLogged           Outcome = "logged"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeRejected         Outcome = "rejected"
	OutcomeError            Outcome = "error"
)

type Response struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}
