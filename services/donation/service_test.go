package donation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
	"sponsorportal/pkg/db/pagination"
	"sponsorportal/pkg/errutil"
	"sponsorportal/pkg/repository"
	"sponsorportal/services/payment"
	"sponsorportal/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T, gateway payment.Gateway) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Donation{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Stripe.Currency = "usd"
	return NewService(ServiceParams{DB: db, Node: node, Gateway: gateway, Codes: &testutil.Codes{}, Config: cfg})
}

func TestStatusCanTransition(t *testing.T) {
	require.True(t, StatusPending.CanTransition(StatusCompleted))
	require.True(t, StatusPending.CanTransition(StatusFailed))
	require.True(t, StatusFailed.CanTransition(StatusCompleted))
	require.False(t, StatusCompleted.CanTransition(StatusFailed))
	require.False(t, StatusCompleted.CanTransition(StatusPending))
	require.False(t, StatusFailed.CanTransition(StatusPending))
}

func TestCheckoutInvalidAmountNeverReachesStorage(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := payment.NewMockGateway(ctrl)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := &Service{
		node:     node,
		gateway:  gateway,
		currency: "usd",
		now:      time.Now,
		donation: &testutil.RepoMock[Donation]{
			CreateFn: func(ctx context.Context, resource *Donation) error {
				t.Fatal("storage must not be called for an invalid amount")
				return nil
			},
		},
	}

	for _, amount := range []float64{0, -5, -0.01} {
		_, err := svc.Checkout(context.Background(), CheckoutRequest{Amount: amount, UserID: "user-1"})
		require.ErrorIs(t, err, payment.ErrInvalidAmount)
	}

	_, err = svc.Checkout(context.Background(), CheckoutRequest{Amount: 10})
	require.ErrorIs(t, err, payment.ErrUnauthenticated)
}

func TestCheckoutRejectsOtherCurrency(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := payment.NewMockGateway(ctrl)
	svc := newTestService(t, gateway)

	_, err := svc.Checkout(context.Background(), CheckoutRequest{Amount: 100000, Currency: "jpy", UserID: "user-1"})
	require.ErrorIs(t, err, payment.ErrCurrency)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusBadRequest, be.Code)

	var count int64
	require.NoError(t, svc.db.Model(&Donation{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCheckoutRecordsPendingDonation(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := payment.NewMockGateway(ctrl)
	svc := newTestService(t, gateway)

	gateway.EXPECT().
		CreatePaymentIntent(gomock.Any(), payment.Amount{Value: 45, Currency: "usd"}, "", gomock.Any()).
		DoAndReturn(func(_ context.Context, amount payment.Amount, _ string, metadata map[string]string) (*payment.Intent, error) {
			require.Equal(t, "user-1", metadata[payment.MetadataUserID])
			require.Equal(t, "m-7", metadata[payment.MetadataMissionaryID])
			require.NotEmpty(t, metadata[payment.MetadataDonationID])
			return &payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: amount.Minor(), Currency: "usd"}, nil
		})

	resp, err := svc.Checkout(context.Background(), CheckoutRequest{Amount: 45, UserID: "user-1", MissionaryID: "m-7"})
	require.NoError(t, err)
	require.Equal(t, "pi_1_secret", resp.ClientSecret)
	require.NotEmpty(t, resp.DonationID)

	var stored Donation
	require.NoError(t, svc.db.First(&stored, "id = ?", resp.DonationID).Error)
	require.Equal(t, StatusPending, stored.Status)
	require.Equal(t, int64(4500), stored.Amount)
	require.Equal(t, "pi_1", stored.ExternalRef)
	require.Equal(t, "m-7", stored.MissionaryID)
	require.NotNil(t, stored.Code)
	require.Equal(t, "DON-240401-001", *stored.Code)
}

func TestCheckoutWithoutCodeStillRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := payment.NewMockGateway(ctrl)
	svc := newTestService(t, gateway)
	svc.codes = &testutil.Codes{Err: errors.New("redis down")}

	gateway.EXPECT().
		CreatePaymentIntent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: 1000, Currency: "usd"}, nil)
	gateway.EXPECT().
		CreatePaymentIntent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&payment.Intent{ID: "pi_2", ClientSecret: "pi_2_secret", Amount: 1000, Currency: "usd"}, nil)

	for i := 0; i < 2; i++ {
		resp, err := svc.Checkout(context.Background(), CheckoutRequest{Amount: 10, UserID: "user-1"})
		require.NoError(t, err)
		require.NotEmpty(t, resp.DonationID)
	}

	var count int64
	require.NoError(t, svc.db.Model(&Donation{}).Where("code IS NULL").Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestCheckoutGatewayErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := payment.NewMockGateway(ctrl)
	svc := newTestService(t, gateway)

	gateway.EXPECT().
		CreatePaymentIntent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, payment.ErrGateway)

	_, err := svc.Checkout(context.Background(), CheckoutRequest{Amount: 10, UserID: "user-1"})
	require.ErrorIs(t, err, payment.ErrGateway)

	var count int64
	require.NoError(t, svc.db.Model(&Donation{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCheckoutStorageFailureStillReturnsSecret(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := payment.NewMockGateway(ctrl)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := &Service{
		node:     node,
		gateway:  gateway,
		currency: "usd",
		now:      time.Now,
		donation: &testutil.RepoMock[Donation]{
			CreateFn: func(ctx context.Context, resource *Donation) error {
				return &repository.StorageError{Op: "insert", Err: errors.New("connection refused")}
			},
		},
	}

	gateway.EXPECT().
		CreatePaymentIntent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&payment.Intent{ID: "pi_2", ClientSecret: "pi_2_secret", Amount: 1000, Currency: "usd"}, nil)

	resp, err := svc.Checkout(context.Background(), CheckoutRequest{Amount: 10, UserID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, "pi_2_secret", resp.ClientSecret)
	require.Empty(t, resp.DonationID)
}

func TestCompletePendingDonation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.db.Create(&Donation{ID: "d1", UserID: "user-1", MissionaryID: "m-1", Amount: 2500, Currency: "usd", Status: StatusPending, ExternalRef: "pi_1"}).Error)

	got, err := svc.Complete(ctx, svc.db, &payment.PaymentIntent{ID: "pi_1", Amount: 2500, Currency: "usd", Metadata: map[string]string{payment.MetadataUserID: "user-1", payment.MetadataMissionaryID: "m-1"}})
	require.NoError(t, err)
	require.False(t, got.AlreadyCompleted)
	require.True(t, got.FirstForMissionary)
	require.Equal(t, "d1", got.Donation.ID)

	var stored Donation
	require.NoError(t, svc.db.First(&stored, "id = ?", "d1").Error)
	require.Equal(t, StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	again, err := svc.Complete(ctx, svc.db, &payment.PaymentIntent{ID: "pi_1", Amount: 2500, Currency: "usd"})
	require.NoError(t, err)
	require.True(t, again.AlreadyCompleted)
}

func TestCompleteInsertsUnknownIntent(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.db.Create(&Donation{ID: "d0", UserID: "user-1", MissionaryID: "m-1", Amount: 1000, Currency: "usd", Status: StatusCompleted, ExternalRef: "pi_0"}).Error)

	got, err := svc.Complete(ctx, svc.db, &payment.PaymentIntent{
		ID:       "pi_9",
		Amount:   4500,
		Currency: "usd",
		Metadata: map[string]string{payment.MetadataUserID: "user-1", payment.MetadataMissionaryID: "m-1"},
	})
	require.NoError(t, err)
	require.False(t, got.FirstForMissionary)
	require.Equal(t, StatusCompleted, got.Donation.Status)
	require.Equal(t, "user-1", got.Donation.UserID)

	var count int64
	require.NoError(t, svc.db.Model(&Donation{}).Where("external_ref = ?", "pi_9").Count(&count).Error)
	require.Equal(t, int64(1), count)
	require.NotNil(t, got.Donation.Code)
}

func TestCompleteDatesInsertedDonationByIntent(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	paidAt := time.Date(2024, time.March, 31, 23, 59, 0, 0, time.UTC)
	svc.now = func() time.Time { return paidAt.Add(2 * time.Minute) }

	got, err := svc.Complete(ctx, svc.db, &payment.PaymentIntent{
		ID:        "pi_late",
		Amount:    2500,
		Currency:  "usd",
		Metadata:  map[string]string{payment.MetadataUserID: "user-1"},
		CreatedAt: paidAt,
	})
	require.NoError(t, err)
	require.True(t, got.Donation.CreatedAt.Equal(paidAt))

	march := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	totals, err := svc.Totals(ctx, "user-1", march, april)
	require.NoError(t, err)
	require.Equal(t, int64(2500), totals.Amount)

	totals, err = svc.Totals(ctx, "user-1", april, april.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Zero(t, totals.Count)
}

func TestMarkFailed(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.db.Create(&Donation{ID: "d1", UserID: "user-1", Amount: 1000, Currency: "usd", Status: StatusPending, ExternalRef: "pi_1"}).Error)

	d, err := svc.MarkFailed(ctx, svc.db, &payment.PaymentIntent{ID: "pi_1"})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, d.Status)

	d, err = svc.MarkFailed(ctx, svc.db, &payment.PaymentIntent{ID: "pi_unknown"})
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestTotalsUsesHalfOpenWindow(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	march := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	rows := []*Donation{
		{ID: "a", UserID: "user-1", Amount: 1000, Currency: "usd", Status: StatusCompleted, ExternalRef: "pi_a", CreatedAt: march},
		{ID: "b", UserID: "user-1", Amount: 2000, Currency: "usd", Status: StatusCompleted, ExternalRef: "pi_b", CreatedAt: april.Add(-time.Second)},
		{ID: "c", UserID: "user-1", Amount: 5000, Currency: "usd", Status: StatusCompleted, ExternalRef: "pi_c", CreatedAt: april},
		{ID: "d", UserID: "user-1", Amount: 700, Currency: "usd", Status: StatusPending, ExternalRef: "pi_d", CreatedAt: march.Add(time.Hour)},
		{ID: "e", UserID: "user-2", Amount: 900, Currency: "usd", Status: StatusCompleted, ExternalRef: "pi_e", CreatedAt: march.Add(time.Hour)},
		{ID: "f", UserID: "user-1", Amount: 100000, Currency: "jpy", Status: StatusCompleted, ExternalRef: "pi_f", CreatedAt: march.Add(time.Hour)},
	}
	require.NoError(t, svc.db.Create(rows).Error)

	totals, err := svc.Totals(ctx, "user-1", march, april)
	require.NoError(t, err)
	require.Equal(t, int64(3000), totals.Amount)
	require.Equal(t, int64(2), totals.Count)

	totals, err = svc.Totals(ctx, "nobody", march, april)
	require.NoError(t, err)
	require.Zero(t, totals.Amount)
	require.Zero(t, totals.Count)
}

func TestListNewestFirst(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	base := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, svc.db.Create(&Donation{ID: id, UserID: "user-1", Amount: 100, Currency: "usd", Status: StatusCompleted, ExternalRef: "pi_" + id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}).Error)
	}

	rows, info, err := svc.List(ctx, "user-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "c", rows[0].ID)
	require.Equal(t, "b", rows[1].ID)
	require.True(t, info.HasMore)

	rows, info, err = svc.List(ctx, "user-1", pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "a", rows[0].ID)
	require.False(t, info.HasMore)
}
