package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/stars-paywall/internal/model"
	"github.com/mmeshcher/stars-paywall/internal/telegram"
)

// CreateInvoice выставляет счёт уже проверенному пользователю.
// Маркер корреляции генерируется на сервере; цена берётся из конфигурации, а не от клиента.
func (s *Service) CreateInvoice(ctx context.Context, id model.Identity) (*model.Invoice, error) {
	paid, err := s.CheckPaymentStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, ErrAlreadyPaid
	}

	token := uuid.NewString()

	payload, err := s.payloads.encode(id, token)
	if err != nil {
		return nil, fmt.Errorf("encode invoice payload: %w", err)
	}

	link, err := s.payments.CreateInvoiceLink(ctx, telegram.InvoiceRequest{
		Title:       s.opts.Title,
		Description: s.opts.Description,
		Payload:     payload,
		Currency:    string(model.CurrencyStars),
		Prices: []telegram.LabeledPrice{
			{Label: s.opts.PriceLabel, Amount: s.opts.Price},
		},
	})
	if err != nil {
		s.metrics.InvoiceCreated(false)
		if errors.Is(err, telegram.ErrNotConfigured) {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if !errors.Is(err, ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	s.metrics.InvoiceCreated(true)
	s.logger.Info("invoice created",
		zap.String("userID", id.String()),
		zap.String("token", token),
		zap.Int64("amount", s.opts.Price),
	)

	return &model.Invoice{
		CorrelationToken: token,
		Identity:         id,
		AmountMinorUnits: s.opts.Price,
		Link:             link,
		CreatedAt:        s.now().UTC(),
	}, nil
}
