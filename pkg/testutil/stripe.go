package testutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// StripeSignatureHeader builds a Stripe-Signature header value for payload,
// signed with secret at ts.
func StripeSignatureHeader(secret string, payload []byte, ts time.Time) string {
	unix := ts.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.", unix)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", unix, hex.EncodeToString(mac.Sum(nil)))
}

// StripeEvent renders a minimal event envelope around object for webhook
// tests.
func StripeEvent(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2022-11-15","created":%d,"type":%q,"data":{"object":%s}}`,
		id, time.Now().Unix(), eventType, object))
}
