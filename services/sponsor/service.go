package sponsor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sponsorportal/pkg/config"
	"sponsorportal/pkg/logger"
	"sponsorportal/pkg/repository"
	"sponsorportal/services/payment"
)

var errStatsMissing = errors.New("sponsor stats row missing")

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	currency string
	now      func() time.Time

	stats repository.Repository[Stats]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		currency: strings.ToLower(p.Config.Stripe.Currency),
		now:      time.Now,

		stats: repository.ProvideStore[Stats](p.DB),
	}
}

// FindByUser returns nil without error when the user has no stats yet.
func (s *Service) FindByUser(ctx context.Context, userID string) (*Stats, error) {
	return s.stats.FindOne(ctx, &Stats{UserID: userID})
}

// Ensure inserts the default record for userID unless one exists.
func (s *Service) Ensure(ctx context.Context, tx *gorm.DB, userID string) error {
	row := &Stats{
		ID:       s.node.Generate().String(),
		UserID:   userID,
		Currency: s.currency,
	}

	err := s.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(row).Error
	if err != nil {
		return &repository.StorageError{Op: "insert", Err: err}
	}
	return nil
}

// Apply adds d to the user's aggregate in a single UPDATE so concurrent deliveries
// never lose an increment. A delta in another currency than the aggregate is
// refused.
func (s *Service) Apply(ctx context.Context, tx *gorm.DB, userID string, d Delta) error {
	if d.Currency != "" && !strings.EqualFold(d.Currency, s.currency) {
		return fmt.Errorf("%w: %s", payment.ErrCurrency, d.Currency)
	}
	res := s.conn(tx).WithContext(ctx).
		Model(&Stats{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"total_donated":          gorm.Expr("total_donated + ?", d.Amount),
			"missionaries_sponsored": gorm.Expr("missionaries_sponsored + ?", d.MissionariesSponsored),
			"last_donation_date":     d.LastDonationDate.UTC(),
			"updated_at":             s.now().UTC(),
		})
	if res.Error != nil {
		return &repository.StorageError{Op: "update", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &repository.StorageError{Op: "update", Err: errStatsMissing}
	}
	return nil
}

// Update creates the default record when absent and applies d, both inside tx
// (or a new transaction when tx is nil).
func (s *Service) Update(ctx context.Context, tx *gorm.DB, userID string, d Delta) error {
	run := func(tx *gorm.DB) error {
		if err := s.Ensure(ctx, tx, userID); err != nil {
			return err
		}
		return s.Apply(ctx, tx, userID, d)
	}

	if tx != nil {
		return run(tx)
	}
	if err := s.db.WithContext(ctx).Transaction(run); err != nil {
		logger.FromContext(ctx).Error("failed to update sponsor stats", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

// UserIDs lists every sponsor with a stats record.
func (s *Service) UserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&Stats{}).Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, &repository.StorageError{Op: "find", Err: err}
	}
	return ids, nil
}

func (s *Service) Currency() string {
	return s.currency
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
