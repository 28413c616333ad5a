package donation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"sponsorportal/pkg/auth"
	"sponsorportal/pkg/middleware"
	"sponsorportal/services/payment"
	"sponsorportal/services/testutil"
)

type staticVerifier struct {
	id *auth.Identity
}

func (v staticVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	if token != "good" {
		return nil, auth.ErrInvalidToken
	}
	return v.id, nil
}

func newTestRouter(t *testing.T, gateway payment.Gateway) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := &Service{
		node:     node,
		gateway:  gateway,
		currency: "usd",
		now:      time.Now,
		donation: &testutil.RepoMock[Donation]{},
	}

	r := gin.New()
	r.Use(middleware.Error())
	api := r.Group("", middleware.Authenticate(staticVerifier{id: &auth.Identity{UserID: "user-1", Role: auth.RoleSponsor}}))
	h := NewHandler(svc)
	api.POST("/checkout", h.Checkout)
	return r
}

func postCheckout(r *gin.Engine, body string, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCheckoutHandlerStatusCodes(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := payment.NewMockGateway(ctrl)
	r := newTestRouter(t, gateway)

	cases := []struct {
		name  string
		body  string
		token string
		code  int
	}{
		{"zero amount", `{"amount":0,"userId":"user-1"}`, "", http.StatusBadRequest},
		{"negative amount without user", `{"amount":-3}`, "", http.StatusBadRequest},
		{"missing user", `{"amount":10}`, "", http.StatusUnauthorized},
		{"malformed body", `{"amount":"ten"}`, "", http.StatusBadRequest},
		{"bad token", `{"amount":10}`, "forged", http.StatusUnauthorized},
		{"token mismatch", `{"amount":10,"userId":"user-2"}`, "good", http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postCheckout(r, tc.body, tc.token)
			require.Equal(t, tc.code, w.Code, w.Body.String())

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Contains(t, body, "error")
		})
	}
}

func TestCheckoutHandlerSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := payment.NewMockGateway(ctrl)
	r := newTestRouter(t, gateway)

	gateway.EXPECT().
		CreatePaymentIntent(gomock.Any(), payment.Amount{Value: 25, Currency: "usd"}, "Ofrenda", gomock.Any()).
		Return(&payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: 2500, Currency: "usd"}, nil)

	w := postCheckout(r, `{"amount":25,"description":"Ofrenda"}`, "good")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "pi_1_secret", resp.ClientSecret)
}

func TestCheckoutHandlerGatewayFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := payment.NewMockGateway(ctrl)
	r := newTestRouter(t, gateway)

	gateway.EXPECT().
		CreatePaymentIntent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, payment.ErrGateway)

	w := postCheckout(r, `{"amount":25,"userId":"user-1"}`, "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
