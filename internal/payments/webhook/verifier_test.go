package webhook

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubpay/pkg/testutil"
)

const secret = "whsec_test"

func TestVerifier(t *testing.T) {
	payload := testutil.StripeEvent("evt_1", EventCheckoutCompleted, `{"id":"cs_1","object":"checkout.session"}`)
	v := NewVerifier(secret, 5*time.Minute)

	t.Run("valid signature returns the parsed event", func(t *testing.T) {
		ev, err := v.Verify(payload, testutil.StripeSignatureHeader(secret, payload, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, EventCheckoutCompleted, string(ev.Type))
	})

	t.Run("tampered payload is rejected", func(t *testing.T) {
		header := testutil.StripeSignatureHeader(secret, payload, time.Now())
		tampered := append([]byte(nil), payload...)
		tampered[len(tampered)-2] = ' '
		_, err := v.Verify(tampered, header)
		assert.True(t, errors.Is(err, ErrInvalidSignature))
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		_, err := v.Verify(payload, testutil.StripeSignatureHeader("whsec_other", payload, time.Now()))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("stale timestamp is rejected", func(t *testing.T) {
		_, err := v.Verify(payload, testutil.StripeSignatureHeader(secret, payload, time.Now().Add(-time.Hour)))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		_, err := v.Verify(payload, "")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("unconfigured secret rejects everything", func(t *testing.T) {
		_, err := NewVerifier("", 0).Verify(payload, testutil.StripeSignatureHeader("", payload, time.Now()))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}
