package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/stars-paywall/internal/model"
)

func newTestBackend(t *testing.T, h http.HandlerFunc) *HTTPBackend {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	b := NewHTTPBackend(srv.URL+"/", zap.NewNop())
	b.client.RetryWaitMin = time.Millisecond
	b.client.RetryWaitMax = time.Millisecond
	return b
}

func TestHTTPBackend_CreateInvoice(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payment/create-invoice", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req sessionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "signed", req.InitData)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"invoiceLink":"https://t.me/$abc"}`))
	})

	link, err := b.CreateInvoice(context.Background(), "signed")
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/$abc", link)
}

func TestHTTPBackend_CheckPaymentStatus(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/check-payment-status", r.URL.Path)
		_, _ = w.Write([]byte(`{"hasPaid":true}`))
	})

	paid, err := b.CheckPaymentStatus(context.Background(), "signed")
	require.NoError(t, err)
	assert.True(t, paid)
}

func TestHTTPBackend_Errors(t *testing.T) {
	type want struct {
		err   error
		calls int32
	}

	tests := []struct {
		name   string
		status int
		body   string
		want   want
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":"Не удалось подтвердить авторизацию Telegram"}`,
			want:   want{err: ErrAuthInvalid, calls: 1},
		},
		{
			name:   "already paid",
			status: http.StatusConflict,
			body:   `{"error":"Доступ уже оплачен"}`,
			want:   want{err: ErrAlreadyPaid, calls: 1},
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `{"error":"Некорректный запрос"}`,
			want:   want{err: ErrUnavailable, calls: 1},
		},
		{
			name:   "server keeps failing",
			status: http.StatusServiceUnavailable,
			body:   `{"error":"Платёжный сервис временно недоступен"}`,
			want:   want{err: ErrUnavailable, calls: 4},
		},
		{
			name:   "empty link",
			status: http.StatusOK,
			body:   `{"invoiceLink":""}`,
			want:   want{err: ErrUnavailable, calls: 1},
		},
		{
			name:   "garbage body",
			status: http.StatusOK,
			body:   `<html>`,
			want:   want{err: ErrUnavailable, calls: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := b.CreateInvoice(context.Background(), "signed")
			assert.ErrorIs(t, err, tt.want.err)
			assert.Equal(t, tt.want.calls, calls.Load())
		})
	}
}

func TestHTTPBackend_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"hasPaid":false}`))
	})

	paid, err := b.CheckPaymentStatus(context.Background(), "signed")
	require.NoError(t, err)
	assert.False(t, paid)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPBackend_DrivesGate(t *testing.T) {
	var settled atomic.Bool
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payment/create-invoice":
			_, _ = w.Write([]byte(`{"invoiceLink":"https://t.me/$abc"}`))
		case "/payment/check-payment-status":
			if settled.Load() {
				_, _ = w.Write([]byte(`{"hasPaid":true}`))
				return
			}
			_, _ = w.Write([]byte(`{"hasPaid":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	g := New(b, envelopeFor(42), WithPolling(3, time.Millisecond))

	state, err := g.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateUnpaid, state)

	opener := OpenerFunc(func(ctx context.Context, link string) (model.InvoiceStatus, error) {
		settled.Store(true)
		return model.InvoiceStatusPaid, nil
	})

	state, err = g.Pay(context.Background(), opener)
	require.NoError(t, err)
	assert.Equal(t, StateSettled, state)
}
