package donation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sponsorportal/pkg/config"
	"sponsorportal/pkg/db/option"
	"sponsorportal/pkg/db/pagination"
	"sponsorportal/pkg/errutil"
	"sponsorportal/pkg/logger"
	"sponsorportal/pkg/repository"
	"sponsorportal/pkg/sequence"
	"sponsorportal/services/payment"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	gateway  payment.Gateway
	codes    sequence.Generator
	currency string
	now      func() time.Time

	donation repository.Repository[Donation]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Gateway payment.Gateway
	Codes   sequence.Generator
	Config  *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		gateway:  p.Gateway,
		codes:    p.Codes,
		currency: strings.ToLower(p.Config.Stripe.Currency),
		now:      time.Now,

		donation: repository.ProvideStore[Donation](p.DB),
	}
}

// Checkout creates a payment intent and records a pending donation for it. Only
// the configured currency is accepted. The client secret is returned even when
// the pending record could not be written; the webhook then records the donation
// when the payment succeeds.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	log := logger.FromContext(ctx)

	if req.Currency == "" {
		req.Currency = s.currency
	}
	amount := payment.Amount{Value: req.Amount, Currency: req.Currency}
	if !amount.Valid() {
		return nil, errutil.BadRequest("Monto inválido", payment.ErrInvalidAmount)
	}
	if !strings.EqualFold(req.Currency, s.currency) {
		return nil, errutil.BadRequest("Moneda no soportada", payment.ErrCurrency)
	}
	if req.UserID == "" {
		return nil, errutil.Unauthorized("Usuario no autenticado", payment.ErrUnauthenticated)
	}

	donationID := s.node.Generate().String()
	metadata := map[string]string{
		payment.MetadataUserID:       req.UserID,
		payment.MetadataMissionaryID: req.MissionaryID,
		payment.MetadataDonationID:   donationID,
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, amount, req.Description, metadata)
	if err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(metadata)
	d := &Donation{
		ID:           donationID,
		Code:         s.nextCode(ctx),
		UserID:       req.UserID,
		MissionaryID: req.MissionaryID,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
		Status:       StatusPending,
		ExternalRef:  intent.ID,
		Description:  req.Description,
		Metadata:     datatypes.JSON(raw),
	}
	if err := s.donation.Create(ctx, d); err != nil {
		log.Error("failed to record pending donation", zap.String("payment_intent", intent.ID), zap.String("user_id", req.UserID), zap.Error(err))
		return &CheckoutResponse{ClientSecret: intent.ClientSecret}, nil
	}

	log.Info("checkout created", zap.String("donation_id", d.ID), zap.String("payment_intent", intent.ID), zap.Int64("amount", d.Amount))
	return &CheckoutResponse{ClientSecret: intent.ClientSecret, DonationID: d.ID}, nil
}

// nextCode returns a display code, or nil when none could be issued. A missing
// code never blocks a payment.
func (s *Service) nextCode(ctx context.Context) *string {
	if s.codes == nil {
		return nil
	}
	code, err := s.codes.NextDonationCode(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("failed to issue donation code", zap.Error(err))
		return nil
	}
	return &code
}

func (s *Service) List(ctx context.Context, userID string, page pagination.Pagination) ([]*Donation, *pagination.PageInfo, error) {
	opts, err := page.Options()
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err)
	}

	rows, err := s.donation.Find(ctx, &Donation{UserID: userID}, opts...)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list donations", err)
	}

	rows, info := pagination.BuildCursorPageInfo(rows, page.PageSize(), func(d *Donation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})
	return rows, info, nil
}

// Complete reconciles a succeeded payment intent inside tx. The pending donation
// is completed, or a completed donation is inserted when checkout never recorded
// one. An inserted donation is dated by the intent, not by the delivery, so a late
// webhook still lands in the month the donor paid.
func (s *Service) Complete(ctx context.Context, tx *gorm.DB, pi *payment.PaymentIntent) (*Completion, error) {
	repo := s.donation.WithTrx(tx)
	now := s.now().UTC()

	existing, err := repo.FindOne(ctx, &Donation{ExternalRef: pi.ID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == StatusCompleted {
		return &Completion{Donation: existing, AlreadyCompleted: true}, nil
	}

	d := existing
	if d == nil {
		raw, _ := json.Marshal(pi.Metadata)
		d = &Donation{
			ID:           s.node.Generate().String(),
			Code:         s.nextCode(ctx),
			UserID:       pi.UserID(),
			MissionaryID: pi.MissionaryID(),
			Description:  pi.Metadata[payment.MetadataDescription],
			ExternalRef:  pi.ID,
			Metadata:     datatypes.JSON(raw),
			CreatedAt:    pi.CreatedAt.UTC(),
		}
	}

	first, err := s.firstForMissionary(ctx, repo, d)
	if err != nil {
		return nil, err
	}

	d.Amount = pi.Amount
	d.Currency = pi.Currency
	d.CompletedAt = &now

	if existing == nil {
		d.Status = StatusCompleted
		if err := repo.Create(ctx, d); err != nil {
			return nil, err
		}
	} else {
		if !d.Status.CanTransition(StatusCompleted) {
			return nil, errutil.Conflict("donation cannot be completed", nil)
		}
		d.Status = StatusCompleted
		if err := repo.Update(ctx, d.ID, map[string]any{
			"status":       d.Status,
			"amount":       d.Amount,
			"currency":     d.Currency,
			"completed_at": d.CompletedAt,
		}); err != nil {
			return nil, err
		}
	}

	return &Completion{Donation: d, FirstForMissionary: first}, nil
}

func (s *Service) firstForMissionary(ctx context.Context, repo repository.Repository[Donation], d *Donation) (bool, error) {
	if d.MissionaryID == "" {
		return false, nil
	}

	prior, err := repo.Count(ctx, &Donation{
		UserID:       d.UserID,
		MissionaryID: d.MissionaryID,
		Status:       StatusCompleted,
	})
	if err != nil {
		return false, err
	}
	return prior == 0, nil
}

// MarkFailed moves the pending donation of a failed payment intent to failed.
// Unknown intents are ignored.
func (s *Service) MarkFailed(ctx context.Context, tx *gorm.DB, pi *payment.PaymentIntent) (*Donation, error) {
	repo := s.donation.WithTrx(tx)

	d, err := repo.FindOne(ctx, &Donation{ExternalRef: pi.ID})
	if err != nil {
		return nil, err
	}
	if d == nil || !d.Status.CanTransition(StatusFailed) {
		return d, nil
	}

	d.Status = StatusFailed
	if err := repo.Update(ctx, d.ID, map[string]any{"status": d.Status}); err != nil {
		return nil, err
	}
	return d, nil
}

// Totals sums the user's completed donations in the configured currency created
// in [from, to).
func (s *Service) Totals(ctx context.Context, userID string, from, to time.Time) (*Totals, error) {
	var out Totals
	err := s.db.WithContext(ctx).
		Model(&Donation{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where(&Donation{UserID: userID, Status: StatusCompleted, Currency: s.currency}).
		Scopes(option.Between("created_at", from.UTC(), to.UTC())).
		Scan(&out).Error
	if err != nil {
		return nil, &repository.StorageError{Op: "sum", Err: err}
	}
	return &out, nil
}
