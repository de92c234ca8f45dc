package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCreateInvoiceLink_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/bot123:abc/createInvoiceLink" {
			t.Fatalf("path = %s, want /bot123:abc/createInvoiceLink", r.URL.Path)
		}

		var req InvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Currency != "XTR" || req.Payload != "payload" {
			t.Fatalf("unexpected request: %+v", req)
		}
		if len(req.Prices) != 1 || req.Prices[0].Amount != 10 {
			t.Fatalf("unexpected prices: %+v", req.Prices)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":"https://t.me/$abc"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "123:abc")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	link, err := client.CreateInvoiceLink(ctx, InvoiceRequest{
		Title:    "title",
		Payload:  "payload",
		Currency: "XTR",
		Prices:   []LabeledPrice{{Label: "access", Amount: 10}},
	})
	if err != nil {
		t.Fatalf("CreateInvoiceLink error: %v", err)
	}
	if link != "https://t.me/$abc" {
		t.Fatalf("link = %q", link)
	}
}

func TestCreateInvoiceLink_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "api error", status: http.StatusBadRequest, body: `{"ok":false,"error_code":400,"description":"Bad Request"}`},
		{name: "ok false with 200", status: http.StatusOK, body: `{"ok":false,"description":"nope"}`},
		{name: "server error html", status: http.StatusBadGateway, body: `<html>bad gateway</html>`},
		{name: "empty result", status: http.StatusOK, body: `{"ok":true,"result":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := NewClient(ts.URL, "t").CreateInvoiceLink(context.Background(), InvoiceRequest{})
			if !errors.Is(err, ErrUpstreamUnavailable) {
				t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
			}
		})
	}
}

func TestCreateInvoiceLink_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := NewClient(url, "secret-token").CreateInvoiceLink(context.Background(), InvoiceRequest{})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
	if err != nil && strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("error leaks token: %v", err)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	_, err := NewClient("", "").CreateInvoiceLink(context.Background(), InvoiceRequest{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestAnswerPreCheckoutQuery(t *testing.T) {
	var got answerPreCheckoutRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bott/answerPreCheckoutQuery" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		got = answerPreCheckoutRequest{}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "t")

	if err := client.AnswerPreCheckoutQuery(context.Background(), "q1", false, "declined"); err != nil {
		t.Fatalf("AnswerPreCheckoutQuery error: %v", err)
	}
	if got.PreCheckoutQueryID != "q1" || got.OK || got.ErrorMessage != "declined" {
		t.Fatalf("unexpected request: %+v", got)
	}

	if err := client.AnswerPreCheckoutQuery(context.Background(), "q2", true, "ignored"); err != nil {
		t.Fatalf("AnswerPreCheckoutQuery error: %v", err)
	}
	if !got.OK || got.ErrorMessage != "" {
		t.Fatalf("approval must not carry an error message: %+v", got)
	}
}
