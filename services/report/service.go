package report

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"sponsorportal/pkg/config"
	"sponsorportal/pkg/db/option"
	"sponsorportal/pkg/errutil"
	"sponsorportal/pkg/logger"
	"sponsorportal/pkg/repository"
	"sponsorportal/pkg/sequence"
	"sponsorportal/services/donation"
	"sponsorportal/services/feed"
	"sponsorportal/services/sponsor"
)

const (
	minYear = 1970
	maxYear = 9999
)

type DonationTotals interface {
	Totals(ctx context.Context, userID string, from, to time.Time) (*donation.Totals, error)
}

type PostCounter interface {
	CountBetween(ctx context.Context, from, to time.Time) (int64, error)
}

type StatsReader interface {
	FindByUser(ctx context.Context, userID string) (*sponsor.Stats, error)
}

type Service struct {
	node     *snowflake.Node
	codes    sequence.Generator
	loc      *time.Location
	currency string

	donations DonationTotals
	posts     PostCounter
	stats     StatsReader

	report repository.Repository[Report]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Codes     sequence.Generator
	Config    *config.Config
	Donations *donation.Service
	Posts     *feed.Service
	Stats     *sponsor.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:     p.Node,
		codes:    p.Codes,
		loc:      p.Config.ReportLocation(),
		currency: strings.ToLower(p.Config.Stripe.Currency),

		donations: p.Donations,
		posts:     p.Posts,
		stats:     p.Stats,

		report: repository.ProvideStore[Report](p.DB),
	}
}

// Window returns [first day of month, first day of next month) in loc.
func Window(year, month int, loc *time.Location) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}

func validate(req GenerateRequest) error {
	if req.UserID == "" {
		return errutil.Unauthorized("Usuario no autenticado", nil)
	}
	if req.Month == 0 || req.Year == 0 {
		return errutil.ValidationFailed("Mes y año son requeridos", nil)
	}
	var details []errutil.Detail
	if req.Month < 1 || req.Month > 12 {
		details = append(details, errutil.Detail{Field: "month", Message: "must be between 1 and 12"})
	}
	if req.Year < minYear || req.Year > maxYear {
		details = append(details, errutil.Detail{Field: "year", Message: "out of range"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid report period", nil, errutil.WithDetails(details...))
	}
	return nil
}

// Generate aggregates one user's month and stores the result. Every call inserts a
// new report, so regenerating a month keeps the earlier snapshots.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Report, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With(zap.String("user_id", req.UserID), zap.Int("month", req.Month), zap.Int("year", req.Year))
	from, to := Window(req.Year, req.Month, s.loc)

	var (
		totals       *donation.Totals
		postCount    int64
		missionaries int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.donations.Totals(gctx, req.UserID, from, to)
		totals = t
		return err
	})
	g.Go(func() error {
		n, err := s.posts.CountBetween(gctx, from, to)
		postCount = n
		return err
	})
	g.Go(func() error {
		st, err := s.stats.FindByUser(gctx, req.UserID)
		if err != nil {
			return err
		}
		if st != nil {
			missionaries = st.MissionariesSponsored
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("failed to aggregate report", zap.Error(err))
		return nil, errutil.Internal("Error interno del servidor", err)
	}

	code, err := s.codes.NextReportCode(ctx)
	if err != nil {
		log.Error("failed to allocate report code", zap.Error(err))
		return nil, errutil.Internal("Error interno del servidor", err)
	}

	r := &Report{
		ID:                    s.node.Generate().String(),
		Code:                  code,
		UserID:                req.UserID,
		Month:                 req.Month,
		Year:                  req.Year,
		TotalDonated:          totals.Amount,
		DonationCount:         totals.Count,
		MissionariesSponsored: missionaries,
		FeedPostCount:         postCount,
		Currency:              s.currency,
		PeriodStart:           from.UTC(),
		PeriodEnd:             to.UTC(),
	}
	if err := s.report.Create(ctx, r); err != nil {
		log.Error("failed to store report", zap.Error(err))
		return nil, errutil.Internal("Error interno del servidor", err)
	}

	log.Info("report generated", zap.String("code", r.Code), zap.Int64("total_donated", r.TotalDonated))
	return r, nil
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]*Report, error) {
	rows, err := s.report.Find(ctx, &Report{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list reports", err)
	}
	return rows, nil
}
