package payment

import "time"

const (
	MetadataUserID       = "userId"
	MetadataMissionaryID = "missionaryId"
	MetadataDescription  = "description"
	MetadataDonationID   = "donationId"
)

type Kind string

const (
	KindPaymentSucceeded    Kind = "payment_intent.succeeded"
	KindPaymentFailed       Kind = "payment_intent.payment_failed"
	KindSubscriptionCreated Kind = "customer.subscription.created"
	KindSubscriptionUpdated Kind = "customer.subscription.updated"
	KindSubscriptionDeleted Kind = "customer.subscription.deleted"
	KindUnrecognized        Kind = "unrecognized"
)

func (k Kind) IsSubscription() bool {
	switch k {
	case KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionDeleted:
		return true
	default:
		return false
	}
}

// Event is a verified processor notification. Exactly one of PaymentIntent and
// Subscription is set for the payment and subscription kinds; neither is set for
// KindUnrecognized.
type Event struct {
	ID            string
	Kind          Kind
	Type          string
	CreatedAt     time.Time
	PaymentIntent *PaymentIntent
	Subscription  *Subscription
}

type PaymentIntent struct {
	ID             string
	Amount         int64
	Currency       string
	Metadata       map[string]string
	FailureMessage string
	// CreatedAt is when the intent was created at the processor, or the event
	// time when the object omits it.
	CreatedAt time.Time
}

func (p *PaymentIntent) UserID() string {
	return p.Metadata[MetadataUserID]
}

func (p *PaymentIntent) MissionaryID() string {
	return p.Metadata[MetadataMissionaryID]
}

type Subscription struct {
	ID         string
	CustomerID string
	Status     string
}

type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}
