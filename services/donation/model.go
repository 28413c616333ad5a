package donation

import (
	"time"

	"gorm.io/datatypes"

	"sponsorportal/services/payment"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CanTransition reports whether a donation may move from s to next. A failed
// attempt may still complete when the donor retries on the same payment intent.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusCompleted
	default:
		return false
	}
}

type Donation struct {
	ID           string         `gorm:"column:id;primaryKey" json:"id"`
	Code         *string        `gorm:"column:code;size:32;uniqueIndex" json:"code,omitempty"`
	UserID       string         `gorm:"column:user_id;index" json:"userId"`
	MissionaryID string         `gorm:"column:missionary_id;index" json:"missionaryId,omitempty"`
	Amount       int64          `gorm:"column:amount" json:"amountMinor"`
	Currency     string         `gorm:"column:currency" json:"currency"`
	Status       Status         `gorm:"column:status;index" json:"status"`
	ExternalRef  string         `gorm:"column:external_ref;uniqueIndex" json:"paymentIntentId"`
	Description  string         `gorm:"column:description" json:"description,omitempty"`
	Metadata     datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"column:updated_at" json:"updatedAt"`
	CompletedAt  *time.Time     `gorm:"column:completed_at" json:"completedAt,omitempty"`
}

func (Donation) TableName() string { return "donations" }

type View struct {
	*Donation
	Amount float64 `json:"amount"`
}

func (d *Donation) View() View {
	return View{Donation: d, Amount: payment.FromMinor(d.Amount, d.Currency)}
}

type CheckoutRequest struct {
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	UserID       string  `json:"userId"`
	MissionaryID string  `json:"missionaryId"`
	Description  string  `json:"description"`
}

type CheckoutResponse struct {
	ClientSecret string `json:"clientSecret"`
	DonationID   string `json:"donationId,omitempty"`
}

// Completion is the result of reconciling a succeeded payment intent.
type Completion struct {
	Donation *Donation
	// AlreadyCompleted is set when the intent had been reconciled before.
	AlreadyCompleted bool
	// FirstForMissionary is set when this is the user's first completed donation to
	// the donation's missionary.
	FirstForMissionary bool
}

type Totals struct {
	Amount int64 `gorm:"column:total"`
	Count  int64 `gorm:"column:count"`
}
