// Package validation содержит функции валидации входных данных.
package validation

// maxIdentityDigits равна длине максимального положительного int64.
const maxIdentityDigits = 19

// IsValidIdentity проверяет, что строка содержит положительный десятичный идентификатор пользователя Telegram.
func IsValidIdentity(id string) bool {
	if id == "" || len(id) > maxIdentityDigits {
		return false
	}
	if id[0] == '0' {
		return false
	}

	for _, ch := range id {
		if ch < '0' || ch > '9' {
			return false
		}
	}

	return true
}
