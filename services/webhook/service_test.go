package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	stripewebhook "github.com/stripe/stripe-go/v74/webhook"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sponsorportal/pkg/config"
	"sponsorportal/pkg/middleware"
	"sponsorportal/services/donation"
	"sponsorportal/services/payment"
	"sponsorportal/services/sponsor"
	"sponsorportal/services/testutil"
)

const testSecret = "whsec_reconcile"

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	sponsors *sponsor.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &donation.Donation{}, &sponsor.Stats{}, &ProcessedEvent{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Stripe.Currency = "usd"
	cfg.Stripe.WebhookSecret = testSecret

	gateway := payment.NewStripeGateway(cfg)
	donations := donation.NewService(donation.ServiceParams{DB: db, Node: node, Gateway: gateway, Codes: &testutil.Codes{}, Config: cfg})
	sponsors := sponsor.NewService(sponsor.ServiceParams{DB: db, Node: node, Config: cfg})

	return &fixture{
		db:       db,
		sponsors: sponsors,
		svc:      NewService(ServiceParams{DB: db, Gateway: gateway, Donations: donations, Stats: sponsors}),
	}
}

func succeededPayload(eventID, intentID string, amount int64, metadata string) string {
	return succeededIn(eventID, intentID, amount, "usd", metadata)
}

func succeededIn(eventID, intentID string, amount int64, currency, metadata string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":"payment_intent.succeeded","data":{"object":{"id":%q,"object":"payment_intent","amount":%d,"currency":%q,"metadata":%s}}}`,
		eventID, intentID, amount, currency, metadata)
}

func sign(payload string) (body []byte, header string) {
	p := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return p.Payload, p.Header
}

func (f *fixture) deliver(t *testing.T, payload string) Outcome {
	t.Helper()
	body, header := sign(payload)
	outcome, err := f.svc.Handle(context.Background(), body, header)
	require.NoError(t, err)
	return outcome
}

func (f *fixture) stats(t *testing.T, userID string) *sponsor.Stats {
	t.Helper()
	st, err := f.sponsors.FindByUser(context.Background(), userID)
	require.NoError(t, err)
	return st
}

func TestFirstDonationCreatesBronzeStats(t *testing.T) {
	f := newFixture(t)

	outcome := f.deliver(t, succeededPayload("evt_1", "pi_1", 4500, `{"userId":"u1"}`))
	require.Equal(t, OutcomeApplied, outcome)

	st := f.stats(t, "u1")
	require.NotNil(t, st)
	require.Equal(t, int64(4500), st.TotalDonated)
	require.Zero(t, st.MissionariesSponsored)
	require.Equal(t, sponsor.TierBronze, st.Tier())
	require.NotNil(t, st.LastDonationDate)
}

func TestDonationCrossesIntoGold(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&sponsor.Stats{ID: "s1", UserID: "u1", TotalDonated: 98000, Currency: "usd"}).Error)

	f.deliver(t, succeededPayload("evt_1", "pi_1", 2500, `{"userId":"u1"}`))

	st := f.stats(t, "u1")
	require.Equal(t, int64(100500), st.TotalDonated)
	require.Equal(t, sponsor.TierGold, st.Tier())
}

func TestReplayIsNoop(t *testing.T) {
	f := newFixture(t)
	payload := succeededPayload("evt_1", "pi_1", 4500, `{"userId":"u1"}`)

	require.Equal(t, OutcomeApplied, f.deliver(t, payload))
	require.Equal(t, OutcomeDuplicate, f.deliver(t, payload))
	require.Equal(t, OutcomeDuplicate, f.deliver(t, payload))

	st := f.stats(t, "u1")
	require.Equal(t, int64(4500), st.TotalDonated)

	var donations int64
	require.NoError(t, f.db.Model(&donation.Donation{}).Count(&donations).Error)
	require.Equal(t, int64(1), donations)
}

func TestOtherCurrencyNeverReachesStats(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, OutcomeApplied, f.deliver(t, succeededPayload("evt_1", "pi_1", 1000, `{"userId":"u1"}`)))
	require.Equal(t, OutcomeCurrencyMismatch, f.deliver(t, succeededIn("evt_2", "pi_2", 100000, "jpy", `{"userId":"u1"}`)))
	require.Equal(t, OutcomeDuplicate, f.deliver(t, succeededIn("evt_2", "pi_2", 100000, "jpy", `{"userId":"u1"}`)))

	st := f.stats(t, "u1")
	require.Equal(t, int64(1000), st.TotalDonated)
	require.Equal(t, sponsor.TierBronze, st.Tier())

	var stored donation.Donation
	require.NoError(t, f.db.First(&stored, "external_ref = ?", "pi_2").Error)
	require.Equal(t, donation.StatusCompleted, stored.Status)
	require.Equal(t, "jpy", stored.Currency)
}

func TestEachSucceededEventUpdatesStatsOnce(t *testing.T) {
	f := newFixture(t)

	for i := 1; i <= 5; i++ {
		f.deliver(t, succeededPayload(fmt.Sprintf("evt_%d", i), fmt.Sprintf("pi_%d", i), 1000, `{"userId":"u1"}`))
	}

	require.Equal(t, int64(5000), f.stats(t, "u1").TotalDonated)
}

func TestCompletesPendingDonationAndCountsMissionaries(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&donation.Donation{ID: "d1", UserID: "u1", MissionaryID: "m1", Amount: 1000, Currency: "usd", Status: donation.StatusPending, ExternalRef: "pi_1"}).Error)

	f.deliver(t, succeededPayload("evt_1", "pi_1", 1000, `{"userId":"u1","missionaryId":"m1"}`))
	f.deliver(t, succeededPayload("evt_2", "pi_2", 1000, `{"userId":"u1","missionaryId":"m1"}`))
	f.deliver(t, succeededPayload("evt_3", "pi_3", 1000, `{"userId":"u1","missionaryId":"m2"}`))

	st := f.stats(t, "u1")
	require.Equal(t, int64(3000), st.TotalDonated)
	require.Equal(t, int64(2), st.MissionariesSponsored)

	var d donation.Donation
	require.NoError(t, f.db.First(&d, "id = ?", "d1").Error)
	require.Equal(t, donation.StatusCompleted, d.Status)
}

func TestSucceededWithoutUserIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	outcome := f.deliver(t, succeededPayload("evt_1", "pi_1", 4500, `{}`))
	require.Equal(t, OutcomeSkipped, outcome)

	var rows int64
	require.NoError(t, f.db.Model(&sponsor.Stats{}).Count(&rows).Error)
	require.Zero(t, rows)
}

func TestPaymentFailedMarksDonationOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&donation.Donation{ID: "d1", UserID: "u1", Amount: 1000, Currency: "usd", Status: donation.StatusPending, ExternalRef: "pi_1"}).Error)

	outcome := f.deliver(t, `{"id":"evt_f","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_1","object":"payment_intent","amount":1000,"currency":"usd","metadata":{"userId":"u1"},"last_payment_error":{"message":"card declined"}}}}`)
	require.Equal(t, OutcomeFailed, outcome)

	var d donation.Donation
	require.NoError(t, f.db.First(&d, "id = ?", "d1").Error)
	require.Equal(t, donation.StatusFailed, d.Status)
	require.Nil(t, f.stats(t, "u1"))
}

func TestSubscriptionAndUnknownEventsAreLogged(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, OutcomeLogged, f.deliver(t, `{"id":"evt_s","object":"event","type":"customer.subscription.created","data":{"object":{"id":"sub_1","object":"subscription","status":"active"}}}`))
	require.Equal(t, OutcomeIgnored, f.deliver(t, `{"id":"evt_x","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`))
}

type ledgerSpy struct {
	calls int
	err   error
}

func (l *ledgerSpy) Complete(ctx context.Context, tx *gorm.DB, pi *payment.PaymentIntent) (*donation.Completion, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return &donation.Completion{Donation: &donation.Donation{ID: "d"}}, nil
}

func (l *ledgerSpy) MarkFailed(ctx context.Context, tx *gorm.DB, pi *payment.PaymentIntent) (*donation.Donation, error) {
	l.calls++
	return nil, l.err
}

type statsSpy struct {
	calls int
}

func (s *statsSpy) Update(ctx context.Context, tx *gorm.DB, userID string, d sponsor.Delta) error {
	s.calls++
	return nil
}

func (s *statsSpy) Currency() string { return "usd" }

func TestTamperedSignatureNeverDispatches(t *testing.T) {
	f := newFixture(t)
	ledger := &ledgerSpy{}
	stats := &statsSpy{}
	f.svc.donations = ledger
	f.svc.stats = stats

	body, header := sign(succeededPayload("evt_1", "pi_1", 4500, `{"userId":"u1"}`))
	tampered := []byte(strings.Replace(string(body), "4500", "999999", 1))

	outcome, err := f.svc.Handle(context.Background(), tampered, header)
	require.ErrorIs(t, err, payment.ErrInvalidSignature)
	require.Equal(t, OutcomeRejected, outcome)

	_, err = f.svc.Handle(context.Background(), body, "t=123,v1=bad")
	require.ErrorIs(t, err, payment.ErrInvalidSignature)

	require.Zero(t, ledger.calls)
	require.Zero(t, stats.calls)

	var processed int64
	require.NoError(t, f.db.Model(&ProcessedEvent{}).Count(&processed).Error)
	require.Zero(t, processed)
}

func TestDispatchErrorIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	f.svc.donations = &ledgerSpy{err: errors.New("database unavailable")}

	body, header := sign(succeededPayload("evt_1", "pi_1", 4500, `{"userId":"u1"}`))
	outcome, err := f.svc.Handle(context.Background(), body, header)
	require.Error(t, err)
	require.Equal(t, OutcomeError, outcome)

	var processed int64
	require.NoError(t, f.db.Model(&ProcessedEvent{}).Count(&processed).Error)
	require.Zero(t, processed, "failed dispatch must stay retryable")
}

func TestGatewayIsConsultedOncePerDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := payment.NewMockGateway(ctrl)
	ledger := &ledgerSpy{}

	svc := &Service{gateway: gateway, donations: ledger, stats: &statsSpy{}, now: time.Now}
	gateway.EXPECT().ParseWebhook([]byte("raw"), "sig").Return(nil, payment.ErrInvalidSignature)

	_, err := svc.Handle(context.Background(), []byte("raw"), "sig")
	require.ErrorIs(t, err, payment.ErrInvalidSignature)
	require.Zero(t, ledger.calls)
}

func newTestRouter(svc *Service) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Error())
	r.POST("/webhook", NewHandler(svc).Receive)
	return r
}

func post(r *gin.Engine, body []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerResponses(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f.svc)

	body, header := sign(succeededPayload("evt_1", "pi_1", 4500, `{"userId":"u1"}`))

	w := post(r, body, header)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"received":true}`, w.Body.String())

	w = post(r, body, header)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"received":true,"duplicate":true}`, w.Body.String())

	w = post(r, body, "t=1,v1=forged")
	require.Equal(t, http.StatusBadRequest, w.Code)

	f.svc.donations = &ledgerSpy{err: errors.New("boom")}
	body, header = sign(succeededPayload("evt_2", "pi_2", 4500, `{"userId":"u1"}`))
	w = post(r, body, header)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
