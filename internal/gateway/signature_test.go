package gateway

import "testing"

func TestPaymentSignatureRoundTrip(t *testing.T) {
	sig := PaymentSignature("secret", "order_1", "pay_1")
	if sig == "" {
		t.Fatalf("expected signature")
	}
	if !VerifyPaymentSignature("secret", "order_1", "pay_1", sig) {
		t.Fatalf("expected valid signature")
	}
}

func TestVerifyPaymentSignature_RejectsTamper(t *testing.T) {
	sig := PaymentSignature("secret", "order_1", "pay_1")

	if VerifyPaymentSignature("secret", "order_1", "pay_2", sig) {
		t.Fatalf("signature must bind the payment id")
	}
	if VerifyPaymentSignature("secret", "order_2", "pay_1", sig) {
		t.Fatalf("signature must bind the order id")
	}
	if VerifyPaymentSignature("other", "order_1", "pay_1", sig) {
		t.Fatalf("signature must bind the secret")
	}
	if VerifyPaymentSignature("secret", "order_1", "pay_1", sig+"00") {
		t.Fatalf("length-extended signature must fail")
	}
}

func TestWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured","payload":{}}`)
	sig := WebhookSignature("whsecret", body)

	if !VerifyWebhookSignature("whsecret", body, sig) {
		t.Fatalf("expected valid signature")
	}
	if VerifyWebhookSignature("whsecret", append(body, ' '), sig) {
		t.Fatalf("body change must invalidate signature")
	}
	if VerifyWebhookSignature("secret", body, sig) {
		t.Fatalf("payment key secret must not validate webhook signatures")
	}
}
