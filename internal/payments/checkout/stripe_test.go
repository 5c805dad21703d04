package checkout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"

	dErrors "clubpay/pkg/domain-errors"
)

// fakeStripe records the last form posted to the sessions endpoint.
type fakeStripe struct {
	form   url.Values
	auth   string
	status int
	body   string
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/checkout/sessions" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	_ = r.ParseForm()
	f.form = r.PostForm
	f.auth = r.Header.Get("Authorization")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

func newTestProvider(t *testing.T, fake *fakeStripe) *StripeProvider {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeProvider("sk_test_123", "https://club.example/thanks", "https://club.example/support",
		WithBackend(backend),
		WithProductName("Club donation"),
	)
}

func TestStripeProvider_DonationSession(t *testing.T) {
	fake := &fakeStripe{status: http.StatusOK, body: `{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_1"}`}
	p := newTestProvider(t, fake)

	sess, err := p.CreateDonationSession(context.Background(), DonationSession{
		Amount:   500,
		Currency: "ron",
		Email:    "a@x.com",
		Name:     "Ana",
		Message:  "Hai!",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", sess.URL)

	assert.Equal(t, "Bearer sk_test_123", fake.auth)
	assert.Equal(t, "payment", fake.form.Get("mode"))
	assert.Equal(t, "a@x.com", fake.form.Get("customer_email"))
	assert.Equal(t, "https://club.example/thanks?session_id={CHECKOUT_SESSION_ID}", fake.form.Get("success_url"))
	assert.Equal(t, "500", fake.form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "ron", fake.form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "Club donation", fake.form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "Ana", fake.form.Get("metadata[name]"))
	assert.Equal(t, "Hai!", fake.form.Get("metadata[message]"))
}

func TestStripeProvider_SubscriptionSession(t *testing.T) {
	fake := &fakeStripe{status: http.StatusOK, body: `{"id":"cs_sub","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_sub"}`}
	p := newTestProvider(t, fake)

	sess, err := p.CreateSubscriptionSession(context.Background(), SubscriptionSession{
		PlanCode: "monthly",
		PriceID:  "price_m",
		Email:    "b@x.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_sub", sess.ID)

	assert.Equal(t, "subscription", fake.form.Get("mode"))
	assert.Equal(t, "price_m", fake.form.Get("line_items[0][price]"))
	assert.Equal(t, "monthly", fake.form.Get("metadata[plan_code]"))
	assert.Equal(t, "monthly", fake.form.Get("subscription_data[metadata][plan_code]"))
	assert.Equal(t, "price_m", fake.form.Get("subscription_data[metadata][price_id]"))
	assert.Empty(t, fake.form.Get("metadata[name]"))
}

func TestStripeProvider_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode dErrors.Code
	}{
		{"invalid request", http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"No such price"}}`, dErrors.CodeBadRequest},
		{"provider outage", http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`, dErrors.CodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, &fakeStripe{status: tt.status, body: tt.body})
			_, err := p.CreateSubscriptionSession(context.Background(), SubscriptionSession{PlanCode: "m", PriceID: "price_x", Email: "b@x.com"})
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tt.wantCode))
		})
	}
}

func TestWithSessionPlaceholder(t *testing.T) {
	assert.Equal(t, "https://a/t?session_id={CHECKOUT_SESSION_ID}", withSessionPlaceholder("https://a/t"))
	assert.Equal(t, "https://a/t?x=1&session_id={CHECKOUT_SESSION_ID}", withSessionPlaceholder("https://a/t?x=1"))
	assert.Equal(t, "https://a/t?id={CHECKOUT_SESSION_ID}", withSessionPlaceholder("https://a/t?id={CHECKOUT_SESSION_ID}"))
}
