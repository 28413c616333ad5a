package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sponsorportal/pkg/errutil"
	"sponsorportal/pkg/logger"
	"sponsorportal/pkg/repository"
	"sponsorportal/services/donation"
	"sponsorportal/services/payment"
	"sponsorportal/services/sponsor"
)

var errAlreadyProcessed = errors.New("event already processed")

type DonationLedger interface {
	Complete(ctx context.Context, tx *gorm.DB, pi *payment.PaymentIntent) (*donation.Completion, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, pi *payment.PaymentIntent) (*donation.Donation, error)
}

type StatsUpdater interface {
	Update(ctx context.Context, tx *gorm.DB, userID string, d sponsor.Delta) error
	// Currency is the currency every aggregate is kept in.
	Currency() string
}

type Service struct {
	db        *gorm.DB
	gateway   payment.Gateway
	donations DonationLedger
	stats     StatsUpdater
	now       func() time.Time
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Gateway   payment.Gateway
	Donations *donation.Service
	Stats     *sponsor.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		gateway:   p.Gateway,
		donations: p.Donations,
		stats:     p.Stats,
		now:       time.Now,
	}
}

// Handle authenticates and reconciles one processor delivery. Nothing is dispatched
// unless the signature verifies. An error other than a rejected signature or
// payload leaves the event unacknowledged so the processor retries it.
func (s *Service) Handle(ctx context.Context, body []byte, signature string) (Outcome, error) {
	log := logger.FromContext(ctx)

	evt, err := s.gateway.ParseWebhook(body, signature)
	if err != nil {
		log.Warn("webhook rejected", zap.Error(err))
		eventsTotal.WithLabelValues("unknown", string(OutcomeRejected)).Inc()
		return OutcomeRejected, err
	}

	log = log.With(zap.String("event_id", evt.ID), zap.String("event_type", evt.Type))

	var outcome Outcome
	switch {
	case evt.Kind == payment.KindPaymentSucceeded:
		outcome, err = s.succeeded(ctx, log, evt)
	case evt.Kind == payment.KindPaymentFailed:
		outcome, err = s.failed(ctx, log, evt)
	case evt.Kind.IsSubscription():
		log.Info("subscription event", zap.String("subscription_id", evt.Subscription.ID), zap.String("status", evt.Subscription.Status))
		outcome = OutcomeLogged
	default:
		log.Info("unhandled event type")
		outcome = OutcomeIgnored
	}

	if err != nil {
		log.Error("webhook dispatch failed", zap.Error(err))
		eventsTotal.WithLabelValues(string(evt.Kind), string(OutcomeError)).Inc()
		return OutcomeError, errutil.Internal("Webhook processing failed", err)
	}

	eventsTotal.WithLabelValues(string(evt.Kind), string(outcome)).Inc()
	return outcome, nil
}

func (s *Service) succeeded(ctx context.Context, log *zap.Logger, evt *payment.Event) (Outcome, error) {
	pi := evt.PaymentIntent
	userID := pi.UserID()
	if userID == "" {
		log.Warn("payment succeeded without userId, stats not updated", zap.String("payment_intent", pi.ID))
		return OutcomeSkipped, nil
	}

	outcome := OutcomeApplied
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.markProcessed(ctx, tx, evt); err != nil {
			return err
		}

		completion, err := s.donations.Complete(ctx, tx, pi)
		if err != nil {
			return err
		}
		if completion.AlreadyCompleted {
			outcome = OutcomeDuplicate
			return nil
		}
		// The donation is recorded as paid but never folded into an aggregate kept
		// in another currency.
		if !strings.EqualFold(pi.Currency, s.stats.Currency()) {
			outcome = OutcomeCurrencyMismatch
			return nil
		}

		delta := sponsor.Delta{
			Amount:           pi.Amount,
			Currency:         pi.Currency,
			LastDonationDate: s.now().UTC(),
		}
		if completion.FirstForMissionary {
			delta.MissionariesSponsored = 1
		}
		return s.stats.Update(ctx, tx, userID, delta)
	})
	if errors.Is(err, errAlreadyProcessed) {
		log.Info("duplicate delivery ignored")
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	switch outcome {
	case OutcomeApplied:
		log.Info("payment succeeded",
			zap.String("user_id", userID),
			zap.String("payment_intent", pi.ID),
			zap.Float64("amount", payment.FromMinor(pi.Amount, pi.Currency)),
		)
	case OutcomeCurrencyMismatch:
		log.Warn("payment in unsupported currency, stats not updated",
			zap.String("user_id", userID),
			zap.String("payment_intent", pi.ID),
			zap.String("currency", pi.Currency),
			zap.String("stats_currency", s.stats.Currency()),
		)
	}
	return outcome, nil
}

func (s *Service) failed(ctx context.Context, log *zap.Logger, evt *payment.Event) (Outcome, error) {
	pi := evt.PaymentIntent
	log.Info("payment failed", zap.String("payment_intent", pi.ID), zap.String("reason", pi.FailureMessage))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.markProcessed(ctx, tx, evt); err != nil {
			return err
		}
		_, err := s.donations.MarkFailed(ctx, tx, pi)
		return err
	})
	if errors.Is(err, errAlreadyProcessed) {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}
	return OutcomeFailed, nil
}

// markProcessed claims evt inside tx. A second claim of the same event id affects
// no row and reports errAlreadyProcessed, which rolls the transaction back.
func (s *Service) markProcessed(ctx context.Context, tx *gorm.DB, evt *payment.Event) error {
	row := &ProcessedEvent{
		EventID:     evt.ID,
		Type:        evt.Type,
		ProcessedAt: s.now().UTC(),
	}
	if evt.PaymentIntent != nil {
		row.PaymentIntentID = evt.PaymentIntent.ID
	}

	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return &repository.StorageError{Op: "insert", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return errAlreadyProcessed
	}
	return nil
}
