// Package gate реализует клиентский фасад платного доступа: проверку статуса,
// выставление счёта и разрешение результата окна оплаты.
//
// Обратный вызов окна оплаты — подсказка интерфейса, а не доказательство:
// состояние Settled выставляется только после подтверждения сервером.
//
// Подсказки об оплате хранятся по идентификатору из конверта, подпись которого клиент
// проверить не может: секрет есть только у сервера. Поэтому подсказка лишь открывает
// интерфейс в Load. Любой запрос к серверу проверяет конверт заново, и его отказ
// сильнее подсказки.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/stars-paywall/internal/initdata"
	"github.com/mmeshcher/stars-paywall/internal/model"
)

// State описывает наблюдаемое клиентом состояние доступа.
type State string

const (
	StateChecking       State = "checking"
	StateUnpaid         State = "unpaid"
	StatePaid           State = "paid"
	StateInvoiceCreated State = "invoice_created"
	StateSettled        State = "settled"
	StateCancelled      State = "cancelled"
	StateFailed         State = "failed"
)

// Unlocked сообщает, открыт ли платный функционал в этом состоянии.
func (s State) Unlocked() bool {
	return s == StatePaid || s == StateSettled
}

var (
	// ErrAuthInvalid возвращается, если сервер не принял конверт аутентификации.
	ErrAuthInvalid = errors.New("authentication rejected")
	// ErrAlreadyPaid возвращается, если доступ уже оплачен и счёт не нужен.
	ErrAlreadyPaid = errors.New("already paid")
	// ErrUnavailable возвращается, если сервер недоступен или ответил временной ошибкой.
	ErrUnavailable = errors.New("paywall backend unavailable")
	// ErrNotSettled возвращается, если окно оплаты сообщило об успехе, а сервер оплату не подтвердил.
	ErrNotSettled = errors.New("payment not settled")
	// ErrInvalidState возвращается для операции, недопустимой в текущем состоянии.
	ErrInvalidState = errors.New("invalid gate state")
)

// Backend описывает серверную часть платного доступа.
type Backend interface {
	CreateInvoice(ctx context.Context, envelope string) (string, error)
	CheckPaymentStatus(ctx context.Context, envelope string) (bool, error)
}

// InvoiceOpener показывает пользователю внешнее окно оплаты и возвращает его итоговый статус.
type InvoiceOpener interface {
	Open(ctx context.Context, link string) (model.InvoiceStatus, error)
}

// OpenerFunc позволяет использовать функцию как InvoiceOpener.
type OpenerFunc func(ctx context.Context, link string) (model.InvoiceStatus, error)

func (f OpenerFunc) Open(ctx context.Context, link string) (model.InvoiceStatus, error) {
	return f(ctx, link)
}

// Gate проводит одну сессию пользователя через состояния доступа.
type Gate struct {
	backend  Backend
	hints    HintCache
	logger   *zap.Logger
	envelope string

	pollAttempts uint64
	pollInterval time.Duration

	mu    sync.RWMutex
	state State
	link  string
}

// Option настраивает Gate.
type Option func(*Gate)

// WithHints задаёт кеш подсказок об оплате.
func WithHints(h HintCache) Option {
	return func(g *Gate) {
		g.hints = h
	}
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// WithPolling задаёт число повторных запросов статуса и интервал между ними
// после сообщения окна оплаты об успехе.
func WithPolling(attempts uint64, interval time.Duration) Option {
	return func(g *Gate) {
		g.pollAttempts = attempts
		if interval > 0 {
			g.pollInterval = interval
		}
	}
}

// New создаёт Gate для сессии с указанным конвертом initData.
func New(backend Backend, envelope string, opts ...Option) *Gate {
	g := &Gate{
		backend:      backend,
		envelope:     envelope,
		pollAttempts: 5,
		pollInterval: time.Second,
		state:        StateChecking,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.hints == nil {
		g.hints = NewMemoryHints()
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	g.logger = g.logger.Named("gate")

	return g
}

// State возвращает текущее состояние.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Link возвращает ссылку последнего выставленного счёта.
func (g *Gate) Link() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.link
}

func (g *Gate) setState(s State) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
	return s
}

// identity возвращает ключ подсказки, извлечённый из конверта без проверки подписи.
func (g *Gate) identity() (model.Identity, error) {
	id, err := initdata.UnsafeIdentity(g.envelope)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthInvalid, err)
	}
	return id, nil
}

// Load определяет начальное состояние: Paid или Unpaid.
// Подсказка об оплате для того же пользователя избавляет от запроса к серверу.
func (g *Gate) Load(ctx context.Context) (State, error) {
	g.setState(StateChecking)

	id, err := g.identity()
	if err != nil {
		return g.setState(StateFailed), err
	}

	if g.hints.Paid(id) {
		g.logger.Debug("paid hint hit", zap.String("userID", id.String()))
		return g.setState(StatePaid), nil
	}

	return g.refresh(ctx, id)
}

// Refresh запрашивает статус у сервера в обход подсказки и обновляет её.
func (g *Gate) Refresh(ctx context.Context) (State, error) {
	g.setState(StateChecking)

	id, err := g.identity()
	if err != nil {
		return g.setState(StateFailed), err
	}

	return g.refresh(ctx, id)
}

func (g *Gate) refresh(ctx context.Context, id model.Identity) (State, error) {
	paid, err := g.backend.CheckPaymentStatus(ctx, g.envelope)
	if err != nil {
		g.logger.Warn("check payment status failed", zap.Error(err))
		return g.setState(StateFailed), err
	}

	if !paid {
		g.hints.Forget(id)
		return g.setState(StateUnpaid), nil
	}

	g.hints.Remember(id)
	return g.setState(StatePaid), nil
}

// RequestInvoice выставляет счёт и переводит Gate в InvoiceCreated.
func (g *Gate) RequestInvoice(ctx context.Context) (string, error) {
	switch g.State() {
	case StatePaid, StateSettled:
		return "", ErrAlreadyPaid
	case StateChecking:
		return "", fmt.Errorf("%w: load before requesting an invoice", ErrInvalidState)
	}

	link, err := g.backend.CreateInvoice(ctx, g.envelope)
	if err != nil {
		if errors.Is(err, ErrAlreadyPaid) {
			if id, idErr := g.identity(); idErr == nil {
				g.hints.Remember(id)
			}
			g.setState(StatePaid)
			return "", err
		}
		g.logger.Warn("create invoice failed", zap.Error(err))
		g.setState(StateFailed)
		return "", err
	}

	g.mu.Lock()
	g.link = link
	g.state = StateInvoiceCreated
	g.mu.Unlock()

	return link, nil
}

// Resolve обрабатывает итоговый статус окна оплаты.
// Статус paid перепроверяется на сервере с повторами, пока вебхук не дошёл.
func (g *Gate) Resolve(ctx context.Context, status model.InvoiceStatus) (State, error) {
	if s := g.State(); s != StateInvoiceCreated {
		return s, fmt.Errorf("%w: resolve in state %s", ErrInvalidState, s)
	}

	switch status {
	case model.InvoiceStatusPaid:
		return g.confirmSettlement(ctx)
	case model.InvoiceStatusCancelled:
		return g.setState(StateCancelled), nil
	case model.InvoiceStatusFailed:
		return g.setState(StateFailed), nil
	case model.InvoiceStatusPending:
		return StateInvoiceCreated, nil
	default:
		return StateInvoiceCreated, fmt.Errorf("%w: unknown invoice status %q", ErrInvalidState, status)
	}
}

func (g *Gate) confirmSettlement(ctx context.Context) (State, error) {
	attempt := 0
	backoff := retry.WithMaxRetries(g.pollAttempts, retry.NewConstant(g.pollInterval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		paid, err := g.backend.CheckPaymentStatus(ctx, g.envelope)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		if !paid {
			return retry.RetryableError(ErrNotSettled)
		}
		return nil
	})
	if err != nil {
		g.logger.Warn("settlement not confirmed", zap.Error(err), zap.Int("attempts", attempt))
		return g.setState(StateFailed), err
	}

	if id, idErr := g.identity(); idErr == nil {
		g.hints.Remember(id)
	}

	g.logger.Info("settlement confirmed", zap.Int("attempts", attempt))
	return g.setState(StateSettled), nil
}

// Pay выставляет счёт, открывает окно оплаты и разрешает его результат.
func (g *Gate) Pay(ctx context.Context, opener InvoiceOpener) (State, error) {
	link, err := g.RequestInvoice(ctx)
	if err != nil {
		return g.State(), err
	}

	status, err := opener.Open(ctx, link)
	if err != nil {
		return g.setState(StateFailed), fmt.Errorf("open invoice: %w", err)
	}

	return g.Resolve(ctx, status)
}
