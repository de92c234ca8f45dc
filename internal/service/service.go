// Package service реализует бизнес-логику платного доступа: выставление счетов,
// обработку платёжных вебхуков и проверку права доступа.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/stars-paywall/internal/config"
	"github.com/mmeshcher/stars-paywall/internal/initdata"
	"github.com/mmeshcher/stars-paywall/internal/metrics"
	"github.com/mmeshcher/stars-paywall/internal/model"
	"github.com/mmeshcher/stars-paywall/internal/telegram"
)

var (
	// ErrAuthInvalid возвращается для недоверенного конверта аутентификации.
	ErrAuthInvalid = initdata.ErrAuthInvalid
	// ErrUpstreamUnavailable возвращается, если платёжный API недоступен. Запрос можно повторить.
	ErrUpstreamUnavailable = telegram.ErrUpstreamUnavailable
	// ErrConfiguration возвращается, если не задан платёжный токен.
	ErrConfiguration = config.ErrConfiguration
	// ErrPayloadIdentityMismatch возвращается, если плательщик не совпадает с пользователем из payload счёта.
	ErrPayloadIdentityMismatch = errors.New("payer does not match invoice payload identity")
	// ErrInvalidPayload возвращается, если payload счёта повреждён или подписан чужим ключом.
	ErrInvalidPayload = errors.New("invalid invoice payload")
	// ErrUnexpectedCurrency возвращается, если оплата пришла в валюте, отличной от валюты счёта.
	ErrUnexpectedCurrency = errors.New("unexpected payment currency")
	// ErrStoreUnavailable возвращается, если хранилище прав доступа не ответило.
	ErrStoreUnavailable = errors.New("entitlement store unavailable")
	// ErrAlreadyPaid возвращается при попытке выставить счёт пользователю, который уже оплатил доступ.
	ErrAlreadyPaid = errors.New("entitlement already granted")
)

// EntitlementStore описывает хранилище прав доступа.
type EntitlementStore interface {
	Get(ctx context.Context, id model.Identity) (*model.Entitlement, error)
	MarkPaid(ctx context.Context, id model.Identity) (*model.Entitlement, error)
	Close() error
}

// IdentityVerifier проверяет конверт аутентификации и возвращает идентификатор пользователя.
type IdentityVerifier interface {
	Verify(envelope string) (model.Identity, error)
}

// PaymentAPI описывает исходящие вызовы к платёжной платформе.
type PaymentAPI interface {
	CreateInvoiceLink(ctx context.Context, req telegram.InvoiceRequest) (string, error)
	AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error
}

// Options содержит параметры счёта и ключи сервиса.
type Options struct {
	Price         int64
	Title         string
	Description   string
	PriceLabel    string
	PayloadSecret string
	AnswerTimeout time.Duration
}

// Service содержит бизнес-логику платного доступа.
type Service struct {
	store    EntitlementStore
	verifier IdentityVerifier
	payments PaymentAPI
	payloads *payloadCodec
	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     Options

	// paid кеширует только положительные ответы: оплата монотонна.
	paid sync.Map
	now  func() time.Time
}

// NewService создаёт сервис с указанными зависимостями.
func NewService(store EntitlementStore, verifier IdentityVerifier, payments PaymentAPI, logger *zap.Logger, m *metrics.Metrics, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AnswerTimeout <= 0 {
		opts.AnswerTimeout = 5 * time.Second
	}
	if opts.PriceLabel == "" {
		opts.PriceLabel = "Доступ к боту"
	}

	return &Service{
		store:    store,
		verifier: verifier,
		payments: payments,
		payloads: newPayloadCodec(opts.PayloadSecret),
		logger:   logger.Named("service"),
		metrics:  m,
		opts:     opts,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// VerifyIdentity проверяет конверт. Если клиент дополнительно передал идентификатор,
// он должен совпасть с подписанным.
func (s *Service) VerifyIdentity(envelope string, claimed model.Identity) (model.Identity, error) {
	id, err := s.verifier.Verify(envelope)
	if err != nil {
		s.metrics.AuthFailure()
		return "", ErrAuthInvalid
	}

	if claimed != "" && claimed != id {
		s.metrics.AuthFailure()
		s.logger.Warn("claimed identity differs from envelope",
			zap.String("userID", id.String()),
			zap.String("claimed", claimed.String()),
		)
		return "", ErrAuthInvalid
	}

	return id, nil
}
