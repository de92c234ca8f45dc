package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/stars-paywall/internal/metrics"
	"github.com/mmeshcher/stars-paywall/internal/model"
	"github.com/mmeshcher/stars-paywall/internal/repository"
)

// CheckPaymentStatus сообщает, оплатил ли пользователь доступ. Источником истины служит хранилище.
func (s *Service) CheckPaymentStatus(ctx context.Context, id model.Identity) (bool, error) {
	if _, ok := s.paid.Load(id); ok {
		return true, nil
	}

	e, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEntitlementNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !e.Paid {
		return false, nil
	}

	s.paid.Store(id, struct{}{})
	return true, nil
}

// ConfirmManually выдаёт доступ без оплаты по запросу администратора.
func (s *Service) ConfirmManually(ctx context.Context, id model.Identity) (*model.Entitlement, error) {
	e, err := s.store.MarkPaid(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.paid.Store(id, struct{}{})

	s.metrics.Granted(metrics.SourceManual)
	s.logger.Warn("entitlement granted manually", zap.String("userID", id.String()))

	return e, nil
}
