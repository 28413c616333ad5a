package payment

import "context"

//go:generate mockgen -source=gateway.go -destination=mock_gateway.go -package=payment

type Gateway interface {
	// CreatePaymentIntent registers an intent to pay with the processor. metadata
	// must carry MetadataUserID.
	CreatePaymentIntent(ctx context.Context, amount Amount, description string, metadata map[string]string) (*Intent, error)
	// ParseWebhook authenticates body against the signature header and decodes it.
	ParseWebhook(body []byte, signature string) (*Event, error)
}
