package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
	"sponsorportal/pkg/errutil"
	"sponsorportal/pkg/logger"
)

type intentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeGateway struct {
	intents            intentCreator
	webhookSecret      string
	currency           string
	defaultDescription string
}

func NewStripeGateway(cfg *config.Config) Gateway {
	var sc client.API
	sc.Init(cfg.Stripe.SecretKey, nil)

	return newStripeGateway(sc.PaymentIntents, cfg)
}

func newStripeGateway(intents intentCreator, cfg *config.Config) *stripeGateway {
	return &stripeGateway{
		intents:            intents,
		webhookSecret:      cfg.Stripe.WebhookSecret,
		currency:           strings.ToLower(cfg.Stripe.Currency),
		defaultDescription: cfg.Stripe.DefaultDescription,
	}
}

func (g *stripeGateway) CreatePaymentIntent(ctx context.Context, amount Amount, description string, metadata map[string]string) (*Intent, error) {
	log := logger.FromContext(ctx)

	if amount.Currency == "" {
		amount.Currency = g.currency
	}
	if !amount.Valid() {
		return nil, errutil.BadRequest("Monto inválido", ErrInvalidAmount)
	}
	if !strings.EqualFold(amount.Currency, g.currency) {
		return nil, errutil.BadRequest("Moneda no soportada", ErrCurrency)
	}
	if metadata[MetadataUserID] == "" {
		return nil, errutil.Unauthorized("Usuario no autenticado", ErrUnauthenticated)
	}
	if description == "" {
		description = g.defaultDescription
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amount.Minor()),
		Currency:    stripe.String(strings.ToLower(amount.Currency)),
		Description: stripe.String(description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		if v != "" {
			params.AddMetadata(k, v)
		}
	}
	params.AddMetadata(MetadataDescription, description)

	pi, err := g.intents.New(params)
	if err != nil {
		log.Error("failed to create payment intent", zap.Int64("amount", amount.Minor()), zap.Error(err))
		return nil, errutil.Internal("Error al procesar la donación", fmt.Errorf("%w: %v", ErrGateway, err))
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// ParseWebhook verifies the signature before decoding, so a signed body that is not
// a valid event is reported as ErrInvalidPayload rather than as a bad signature.
func (g *stripeGateway) ParseWebhook(body []byte, signature string) (*Event, error) {
	if err := webhook.ValidatePayload(body, signature, g.webhookSecret); err != nil {
		return nil, errutil.BadRequest("Invalid signature", fmt.Errorf("%w: %v", ErrInvalidSignature, err))
	}

	var evt stripe.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, errutil.BadRequest("invalid webhook payload", fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	}

	return decodeEvent(&evt)
}

func decodeEvent(evt *stripe.Event) (*Event, error) {
	out := &Event{
		ID:        evt.ID,
		Type:      string(evt.Type),
		CreatedAt: time.Unix(evt.Created, 0).UTC(),
	}

	kind := Kind(evt.Type)
	switch kind {
	case KindPaymentSucceeded, KindPaymentFailed:
		var pi stripe.PaymentIntent
		if err := unmarshalObject(evt, &pi); err != nil {
			return nil, err
		}
		out.Kind = kind
		out.PaymentIntent = &PaymentIntent{
			ID:        pi.ID,
			Amount:    pi.Amount,
			Currency:  string(pi.Currency),
			Metadata:  pi.Metadata,
			CreatedAt: out.CreatedAt,
		}
		if pi.Created > 0 {
			out.PaymentIntent.CreatedAt = time.Unix(pi.Created, 0).UTC()
		}
		if pi.LastPaymentError != nil {
			out.PaymentIntent.FailureMessage = pi.LastPaymentError.Msg
		}
	case KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionDeleted:
		var sub stripe.Subscription
		if err := unmarshalObject(evt, &sub); err != nil {
			return nil, err
		}
		out.Kind = kind
		out.Subscription = &Subscription{
			ID:     sub.ID,
			Status: string(sub.Status),
		}
		if sub.Customer != nil {
			out.Subscription.CustomerID = sub.Customer.ID
		}
	default:
		out.Kind = KindUnrecognized
	}

	return out, nil
}

func unmarshalObject(evt *stripe.Event, dst any) error {
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return errutil.BadRequest("event has no object", ErrInvalidPayload)
	}
	if err := json.Unmarshal(evt.Data.Raw, dst); err != nil {
		return errutil.BadRequest("event object does not match its type", fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	}
	return nil
}
