package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func hmacHex(t *testing.T, message, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyPaymentSignature(t *testing.T) {
	secret := "test_key_secret"
	orderID := "order_MkAb12Cd34Ef56"
	paymentID := "pay_NxYz98Wv76Ut54"
	good := hmacHex(t, orderID+"|"+paymentID, secret)

	if err := VerifyPaymentSignature(orderID, paymentID, good, secret); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifyPaymentSignature(orderID, paymentID, good, "other_secret"); err == nil {
		t.Fatal("wrong secret accepted")
	}
	if err := VerifyPaymentSignature(orderID, "pay_other", good, secret); err == nil {
		t.Fatal("signature for a different payment accepted")
	}
	if err := VerifyPaymentSignature(orderID, paymentID, "", secret); err == nil {
		t.Fatal("empty signature accepted")
	}
	if err := VerifyPaymentSignature("", paymentID, good, secret); err == nil {
		t.Fatal("empty order id accepted")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "test_webhook_secret"
	body := []byte(`{"event":"payment.captured","id":"evt_1"}`)
	good := hmacHex(t, string(body), secret)

	if err := VerifyWebhookSignature(body, good, secret); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifyWebhookSignature([]byte(`{"event":"payment.captured"}`), good, secret); err == nil {
		t.Fatal("tampered body accepted")
	}
	if err := VerifyWebhookSignature(body, good, "other_secret"); err == nil {
		t.Fatal("wrong secret accepted")
	}
}

func TestParseWebhookEvent(t *testing.T) {
	body := []byte(`{
		"id": "evt_00000000000001",
		"event": "payment.captured",
		"payload": {
			"payment": {
				"entity": {
					"id": "pay_NxYz98Wv76Ut54",
					"order_id": "order_MkAb12Cd34Ef56",
					"amount": 24900
				}
			}
		}
	}`)

	event, err := ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ID != "evt_00000000000001" {
		t.Errorf("id = %q", event.ID)
	}
	if event.Event != "payment.captured" {
		t.Errorf("event = %q", event.Event)
	}
	if event.OrderID != "order_MkAb12Cd34Ef56" {
		t.Errorf("order id = %q", event.OrderID)
	}
	if event.PaymentID != "pay_NxYz98Wv76Ut54" {
		t.Errorf("payment id = %q", event.PaymentID)
	}
	if event.AmountPaise != 24900 {
		t.Errorf("amount = %d", event.AmountPaise)
	}

	if _, err := ParseWebhookEvent([]byte(`{"id":"evt_2"}`)); err == nil {
		t.Fatal("envelope without event name accepted")
	}
	if _, err := ParseWebhookEvent([]byte(`not json`)); err == nil {
		t.Fatal("malformed body accepted")
	}
}

func TestCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders" {
			t.Errorf("path = %q", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "rzp_test_secret" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["amount"] != float64(24900) {
			t.Errorf("amount = %v", payload["amount"])
		}
		if payload["currency"] != "INR" {
			t.Errorf("currency = %v", payload["currency"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_MkAb12Cd34Ef56","amount":24900,"currency":"INR","receipt":"rcpt_1","status":"created"}`))
	}))
	defer server.Close()

	client := New(Config{
		GatewayURL: server.URL,
		KeyID:      "rzp_test_key",
		KeySecret:  "rzp_test_secret",
	}, server.Client())

	order, err := client.CreateOrder(context.Background(), CreateOrderInput{
		AmountPaise: 24900,
		Currency:    "INR",
		Receipt:     "rcpt_1",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "order_MkAb12Cd34Ef56" || order.AmountPaise != 24900 {
		t.Fatalf("order = %+v", order)
	}
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	client := New(Config{KeyID: "k", KeySecret: "s"}, nil)
	if _, err := client.CreateOrder(context.Background(), CreateOrderInput{AmountPaise: 0}); err == nil {
		t.Fatal("zero amount accepted")
	}

	client = New(Config{}, nil)
	if _, err := client.CreateOrder(context.Background(), CreateOrderInput{AmountPaise: 100}); err == nil {
		t.Fatal("missing credentials accepted")
	}
}

func TestCreateOrderGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR"}}`))
	}))
	defer server.Close()

	client := New(Config{GatewayURL: server.URL, KeyID: "k", KeySecret: "s"}, server.Client())
	if _, err := client.CreateOrder(context.Background(), CreateOrderInput{AmountPaise: 100}); err == nil {
		t.Fatal("gateway error not surfaced")
	}
}
