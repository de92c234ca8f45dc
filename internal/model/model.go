// Package model содержит доменные сущности сервиса платного доступа.
package model

import "time"

// Identity описывает непрозрачный идентификатор пользователя, выданный платформой (Telegram user id).
type Identity string

// String возвращает строковое представление идентификатора.
func (i Identity) String() string {
	return string(i)
}

// Currency описывает валюту счёта. Для Telegram Stars используется код XTR.
type Currency string

// CurrencyStars задаёт валюту Telegram Stars.
const CurrencyStars Currency = "XTR"

// Invoice описывает выставленный пользователю счёт. После выпуска не изменяется.
type Invoice struct {
	CorrelationToken string
	Identity         Identity
	AmountMinorUnits int64
	Link             string
	CreatedAt        time.Time
}

// Entitlement описывает право пользователя на платную функцию.
// Признак Paid монотонен: после установки в true он больше не сбрасывается.
type Entitlement struct {
	Identity  Identity
	Paid      bool
	GrantedAt time.Time
}

// InvoiceStatus описывает итоговый статус окна оплаты, который сообщает клиентский интерфейс.
type InvoiceStatus string

const (
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	InvoiceStatusFailed    InvoiceStatus = "failed"
	InvoiceStatusPending   InvoiceStatus = "pending"
)
