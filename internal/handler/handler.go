// Package handler содержит HTTP-обработчики API платного доступа.
package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/stars-paywall/internal/middleware"
	"github.com/mmeshcher/stars-paywall/internal/model"
	"github.com/mmeshcher/stars-paywall/internal/service"
	"github.com/mmeshcher/stars-paywall/internal/telegram"
	"github.com/mmeshcher/stars-paywall/internal/validation"
)

const maxBodySize = 1 << 20

const (
	msgBadRequest          = "Некорректный запрос"
	msgUnauthorized        = "Не удалось подтвердить авторизацию Telegram. Откройте приложение заново"
	msgForbidden           = "Доступ запрещён"
	msgNotFound            = "Не найдено"
	msgAlreadyPaid         = "Доступ уже оплачен"
	msgUpstreamUnavailable = "Платёжный сервис временно недоступен. Попробуйте позже"
	msgInternal            = "Внутренняя ошибка сервера"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	VerifyIdentity(envelope string, claimed model.Identity) (model.Identity, error)
	CreateInvoice(ctx context.Context, id model.Identity) (*model.Invoice, error)
	CheckPaymentStatus(ctx context.Context, id model.Identity) (bool, error)
	HandleUpdate(ctx context.Context, update *telegram.Update) error
	ConfirmManually(ctx context.Context, id model.Identity) (*model.Entitlement, error)
}

// Options задаёт необязательные возможности API.
type Options struct {
	WebhookSecret         string
	AdminKey              string
	AllowUnverifiedStatus bool
	Metrics               http.Handler
}

// Handler реализует HTTP-обработчики API платного доступа.
type Handler struct {
	service Service
	logger  *zap.Logger
	opts    Options
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: s,
		logger:  logger,
		opts:    opts,
	}
}

// userIDField принимает идентификатор и числом, и строкой: мини-приложение шлёт число.
type userIDField string

func (f *userIDField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = userIDField(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = userIDField(n.String())
	return nil
}

type sessionRequest struct {
	UserID   userIDField `json:"userId"`
	InitData string      `json:"initData"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// authenticate читает тело запроса и проверяет конверт initData.
// При ошибке ответ уже записан.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	var req sessionRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return "", false
	}

	envelope := req.InitData
	if envelope == "" {
		envelope = middleware.InitDataFromRequest(r)
	}

	id, err := h.service.VerifyIdentity(envelope, model.Identity(strings.TrimSpace(string(req.UserID))))
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return "", false
	}

	return id, true
}

type createInvoiceResponse struct {
	InvoiceLink string `json:"invoiceLink"`
}

// CreateInvoice выставляет счёт пользователю, подтверждённому через initData.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	invoice, err := h.service.CreateInvoice(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyPaid):
			writeError(w, http.StatusConflict, msgAlreadyPaid)
		case errors.Is(err, service.ErrUpstreamUnavailable), errors.Is(err, service.ErrStoreUnavailable):
			h.logger.Error("create invoice error", zap.Error(err), zap.String("userID", id.String()))
			writeError(w, http.StatusServiceUnavailable, msgUpstreamUnavailable)
		default:
			h.logger.Error("create invoice error", zap.Error(err), zap.String("userID", id.String()))
			writeError(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	writeJSON(w, http.StatusOK, createInvoiceResponse{InvoiceLink: invoice.Link})
}

type checkStatusResponse struct {
	HasPaid bool `json:"hasPaid"`
}

// CheckStatus сообщает подтверждённому пользователю, оплачен ли доступ.
func (h *Handler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	paid, err := h.service.CheckPaymentStatus(r.Context(), id)
	if err != nil {
		h.logger.Error("check payment status error", zap.Error(err), zap.String("userID", id.String()))
		writeError(w, http.StatusServiceUnavailable, msgUpstreamUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, checkStatusResponse{HasPaid: paid})
}

type statusResponse struct {
	IsPaid bool `json:"isPaid"`
}

// Status отвечает на непроверенный запрос статуса по userId.
// Маршрут доступен только при явно включённой опции.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.opts.AllowUnverifiedStatus {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}

	userID := r.URL.Query().Get("userId")
	if !validation.IsValidIdentity(userID) {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	paid, err := h.service.CheckPaymentStatus(r.Context(), model.Identity(userID))
	if err != nil {
		h.logger.Error("payment status error", zap.Error(err), zap.String("userID", userID))
		writeError(w, http.StatusServiceUnavailable, msgUpstreamUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{IsPaid: paid})
}

type webhookResponse struct {
	OK bool `json:"ok"`
}

// Webhook принимает платёжные обновления платформы. Секрет проверяется middleware до чтения тела.
// Аномалии журналируются и подтверждаются, иначе платформа будет повторять доставку.
// Единственное исключение: при недоступном хранилище ответ 500, чтобы платформа повторила
// доставку оплаты. Повтор безопасен, так как MarkPaid идемпотентен.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var update telegram.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&update); err != nil {
		h.logger.Warn("malformed webhook body", zap.Error(err))
		writeJSON(w, http.StatusOK, webhookResponse{OK: true})
		return
	}

	if err := h.service.HandleUpdate(r.Context(), &update); err != nil {
		if errors.Is(err, service.ErrStoreUnavailable) {
			h.logger.Error("webhook processing failed", zap.Error(err), zap.Int64("updateID", update.UpdateID))
			writeError(w, http.StatusInternalServerError, msgInternal)
			return
		}
		h.logger.Warn("webhook event rejected", zap.Error(err), zap.Int64("updateID", update.UpdateID))
	}

	writeJSON(w, http.StatusOK, webhookResponse{OK: true})
}

type confirmRequest struct {
	UserID   userIDField `json:"userId"`
	AdminKey string      `json:"adminKey"`
}

type confirmResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

// Confirm выдаёт доступ вручную по ключу администратора.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h.opts.AdminKey == "" {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	if !hmac.Equal([]byte(req.AdminKey), []byte(h.opts.AdminKey)) {
		h.logger.Warn("manual confirm with wrong admin key", zap.String("remote", r.RemoteAddr))
		writeError(w, http.StatusForbidden, msgForbidden)
		return
	}

	userID := strings.TrimSpace(string(req.UserID))
	if !validation.IsValidIdentity(userID) {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	if _, err := h.service.ConfirmManually(r.Context(), model.Identity(userID)); err != nil {
		h.logger.Error("manual confirm error", zap.Error(err), zap.String("userID", userID))
		writeError(w, http.StatusServiceUnavailable, msgUpstreamUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, confirmResponse{Success: true, UserID: userID})
}

// Healthz сообщает, что процесс принимает запросы.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, webhookResponse{OK: true})
}
