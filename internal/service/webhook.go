package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/stars-paywall/internal/metrics"
	"github.com/mmeshcher/stars-paywall/internal/model"
	"github.com/mmeshcher/stars-paywall/internal/telegram"
)

const declineMessage = "Не удалось подтвердить оплату. Попробуйте открыть счёт заново."

// HandleUpdate обрабатывает платёжное обновление платформы.
// Доставка «хотя бы один раз»: повторная обработка того же события безопасна.
// Возвращённая ошибка предназначена для журнала; отправителю вебхука всё равно отвечают успехом,
// кроме ErrStoreUnavailable, при которой доставку стоит повторить.
func (s *Service) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	switch {
	case update == nil:
		s.metrics.WebhookEvent(metrics.KindUnknown, metrics.OutcomeIgnored)
		return nil
	case update.PreCheckoutQuery != nil:
		return s.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		return s.handleSettlement(ctx, update.Message)
	default:
		s.metrics.WebhookEvent(metrics.KindUnknown, metrics.OutcomeIgnored)
		return nil
	}
}

// handlePreCheckout только отвечает платформе и не меняет права доступа.
func (s *Service) handlePreCheckout(ctx context.Context, q *telegram.PreCheckoutQuery) error {
	reason := s.checkPayer(q.InvoicePayload, q.From.ID, q.Currency)
	approve := reason == nil

	answerCtx, cancel := context.WithTimeout(ctx, s.opts.AnswerTimeout)
	defer cancel()

	msg := ""
	if !approve {
		msg = declineMessage
	}

	if err := s.payments.AnswerPreCheckoutQuery(answerCtx, q.ID, approve, msg); err != nil {
		s.metrics.WebhookEvent(metrics.KindPreCheckout, metrics.OutcomeError)
		return fmt.Errorf("answer pre-checkout query %s: %w", q.ID, err)
	}

	if !approve {
		s.metrics.WebhookEvent(metrics.KindPreCheckout, metrics.OutcomeDeclined)
		return fmt.Errorf("pre-checkout query %s declined: %w", q.ID, reason)
	}

	s.metrics.WebhookEvent(metrics.KindPreCheckout, metrics.OutcomeApproved)
	return nil
}

func (s *Service) handleSettlement(ctx context.Context, msg *telegram.Message) error {
	payment := msg.SuccessfulPayment

	var payerID int64
	if msg.From != nil {
		payerID = msg.From.ID
	}

	if err := s.checkPayer(payment.InvoicePayload, payerID, payment.Currency); err != nil {
		s.metrics.WebhookEvent(metrics.KindSettlement, metrics.OutcomeRejected)
		return fmt.Errorf("settlement %s rejected: %w", payment.TelegramPaymentChargeID, err)
	}

	id := model.Identity(strconv.FormatInt(payerID, 10))

	if _, err := s.store.MarkPaid(ctx, id); err != nil {
		s.metrics.WebhookEvent(metrics.KindSettlement, metrics.OutcomeError)
		return fmt.Errorf("%w: mark paid %s: %v", ErrStoreUnavailable, id, err)
	}
	s.paid.Store(id, struct{}{})

	s.metrics.WebhookEvent(metrics.KindSettlement, metrics.OutcomeGranted)
	s.metrics.Granted(metrics.SourceWebhook)
	s.logger.Info("payment settled",
		zap.String("userID", id.String()),
		zap.String("chargeID", payment.TelegramPaymentChargeID),
		zap.Int64("amount", payment.TotalAmount),
	)

	return nil
}

// checkPayer сверяет подтверждённого платформой плательщика с пользователем из payload счёта.
func (s *Service) checkPayer(rawPayload string, payerID int64, currency string) error {
	payloadID, _, err := s.payloads.decode(rawPayload)
	if err != nil {
		return err
	}

	if payerID <= 0 || strconv.FormatInt(payerID, 10) != string(payloadID) {
		return fmt.Errorf("%w: payer %d, payload %s", ErrPayloadIdentityMismatch, payerID, payloadID)
	}

	if currency != string(model.CurrencyStars) {
		return fmt.Errorf("%w: %q", ErrUnexpectedCurrency, currency)
	}

	return nil
}
