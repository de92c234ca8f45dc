package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/stars-paywall/internal/gate"
)

const envelope = "user=%7B%22id%22%3A42%7D&auth_date=1&hash=00"

func newGate(t *testing.T, paid *atomic.Bool) *gate.Gate {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payment/create-invoice":
			_, _ = w.Write([]byte(`{"invoiceLink":"https://t.me/$abc"}`))
		case "/payment/check-payment-status":
			if paid.Load() {
				_, _ = w.Write([]byte(`{"hasPaid":true}`))
				return
			}
			_, _ = w.Write([]byte(`{"hasPaid":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return gate.New(gate.NewHTTPBackend(srv.URL, zap.NewNop()), envelope, gate.WithPolling(2, time.Millisecond))
}

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		paid    bool
		input   string
		wantOut string
		wantErr bool
	}{
		{name: "status unpaid", action: "status", wantOut: "unpaid\n"},
		{name: "status paid", action: "status", paid: true, wantOut: "paid\n"},
		{name: "invoice", action: "invoice", wantOut: "https://t.me/$abc\n"},
		{name: "invoice when paid", action: "invoice", paid: true, wantOut: "paid\n"},
		{name: "pay cancelled", action: "pay", input: "cancelled\n", wantOut: "cancelled\n"},
		{name: "pay without settlement", action: "pay", input: "paid\n", wantOut: "failed\n", wantErr: true},
		{name: "unknown action", action: "refund", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var paid atomic.Bool
			paid.Store(tt.paid)

			var out bytes.Buffer
			err := run(context.Background(), newGate(t, &paid), tt.action, strings.NewReader(tt.input), &out)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			if tt.wantOut != "" {
				assert.True(t, strings.HasSuffix(out.String(), tt.wantOut), out.String())
			}
		})
	}
}
