package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// HTTPBackend обращается к HTTP API сервиса платного доступа.
// Ответы 5xx и сетевые ошибки повторяются клиентом retryablehttp.
type HTTPBackend struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewHTTPBackend создаёт backend для сервера по адресу baseURL.
func NewHTTPBackend(baseURL string, logger *zap.Logger) *HTTPBackend {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = zapLeveledLogger{l: logger.Named("http").Sugar()}

	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type sessionRequest struct {
	InitData string `json:"initData"`
}

type createInvoiceResponse struct {
	InvoiceLink string `json:"invoiceLink"`
}

type checkStatusResponse struct {
	HasPaid bool `json:"hasPaid"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateInvoice запрашивает ссылку на оплату.
func (b *HTTPBackend) CreateInvoice(ctx context.Context, envelope string) (string, error) {
	var resp createInvoiceResponse
	if err := b.post(ctx, "/payment/create-invoice", envelope, &resp); err != nil {
		return "", err
	}
	if resp.InvoiceLink == "" {
		return "", fmt.Errorf("%w: empty invoice link", ErrUnavailable)
	}
	return resp.InvoiceLink, nil
}

// CheckPaymentStatus запрашивает статус оплаты.
func (b *HTTPBackend) CheckPaymentStatus(ctx context.Context, envelope string) (bool, error) {
	var resp checkStatusResponse
	if err := b.post(ctx, "/payment/check-payment-status", envelope, &resp); err != nil {
		return false, err
	}
	return resp.HasPaid, nil
}

func (b *HTTPBackend) post(ctx context.Context, path, envelope string, out any) error {
	body, err := json.Marshal(sessionRequest{InitData: envelope})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrAuthInvalid, errorMessage(data))
	case http.StatusConflict:
		return ErrAlreadyPaid
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, errorMessage(data))
	}
}

func errorMessage(data []byte) string {
	var e errorResponse
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return http.StatusText(http.StatusInternalServerError)
}

// zapLeveledLogger направляет журнал retryablehttp в zap.
type zapLeveledLogger struct {
	l *zap.SugaredLogger
}

func (z zapLeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	z.l.Errorw(msg, keysAndValues...)
}

func (z zapLeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	z.l.Infow(msg, keysAndValues...)
}

func (z zapLeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.l.Debugw(msg, keysAndValues...)
}

func (z zapLeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.l.Warnw(msg, keysAndValues...)
}
