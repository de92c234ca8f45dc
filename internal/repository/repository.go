// Package repository содержит реализации хранилища прав доступа.
//
// Все реализации гарантируют, что MarkPaid выполняется как идемпотентная атомарная операция
// вставки по идентификатору, а признак оплаты никогда не сбрасывается.
package repository

import "errors"

// ErrEntitlementNotFound возвращается, если для пользователя нет записи о праве доступа.
var ErrEntitlementNotFound = errors.New("entitlement not found")
