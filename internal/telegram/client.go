// Package telegram предоставляет клиент платёжных методов Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUpstreamUnavailable возвращается, если Bot API недоступен или ответил ошибкой.
	ErrUpstreamUnavailable = errors.New("telegram api unavailable")
	// ErrNotConfigured возвращается, если не задан токен бота.
	ErrNotConfigured = errors.New("telegram client not configured")
)

// DefaultBaseURL задаёт адрес Bot API по умолчанию.
const DefaultBaseURL = "https://api.telegram.org"

// Client инкапсулирует HTTP-взаимодействие с Telegram Bot API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient создаёт клиент Bot API с указанным токеном бота.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// LabeledPrice описывает позицию счёта в минимальных единицах валюты.
type LabeledPrice struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// InvoiceRequest описывает параметры метода createInvoiceLink.
type InvoiceRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Payload     string         `json:"payload"`
	Currency    string         `json:"currency"`
	Prices      []LabeledPrice `json:"prices"`
}

type answerPreCheckoutRequest struct {
	PreCheckoutQueryID string `json:"pre_checkout_query_id"`
	OK                 bool   `json:"ok"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// CreateInvoiceLink создаёт ссылку на оплату счёта.
func (c *Client) CreateInvoiceLink(ctx context.Context, req InvoiceRequest) (string, error) {
	raw, err := c.call(ctx, "createInvoiceLink", req)
	if err != nil {
		return "", err
	}

	var link string
	if err := json.Unmarshal(raw, &link); err != nil || link == "" {
		return "", fmt.Errorf("%w: unexpected createInvoiceLink result", ErrUpstreamUnavailable)
	}
	return link, nil
}

// AnswerPreCheckoutQuery подтверждает или отклоняет запрос перед оплатой.
func (c *Client) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	req := answerPreCheckoutRequest{
		PreCheckoutQueryID: queryID,
		OK:                 ok,
	}
	if !ok {
		req.ErrorMessage = errorMessage
	}

	_, err := c.call(ctx, "answerPreCheckoutQuery", req)
	return err
}

func (c *Client) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	if c == nil || c.token == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// текст ошибки транспорта содержит URL с токеном
		return nil, fmt.Errorf("%w: %s request failed", ErrUpstreamUnavailable, method)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", ErrUpstreamUnavailable, method, err)
	}

	var result apiResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %s status %d", ErrUpstreamUnavailable, method, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK || !result.OK {
		return nil, fmt.Errorf("%w: %s status %d: %s", ErrUpstreamUnavailable, method, resp.StatusCode, result.Description)
	}

	return result.Result, nil
}
