package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Payment and webhook callbacks are authenticated with HMAC-SHA256 over
// well-known payloads, each with its own secret:
//
//   payment:  hex(HMAC-SHA256(keySecret, orderID + "|" + paymentID))
//   webhook:  hex(HMAC-SHA256(webhookSecret, rawRequestBody))
//
// Comparisons are constant time. A failed comparison must never mutate
// money state; callers record the failure and stop.

// PaymentSignature computes the expected signature for a settled payment.
func PaymentSignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks a gateway payment signature in constant time.
func VerifyPaymentSignature(secret, orderID, paymentID, signature string) bool {
	expected := PaymentSignature(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookSignature computes the expected signature over a raw webhook body.
func WebhookSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks a webhook signature in constant time.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	expected := WebhookSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
