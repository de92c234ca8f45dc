// Package initdata проверяет подлинность initData, которую Telegram передаёт мини-приложению.
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/stars-paywall/internal/model"
)

// ErrAuthInvalid возвращается для любого недоверенного или повреждённого конверта.
// Причина намеренно не уточняется.
var ErrAuthInvalid = errors.New("auth envelope is invalid")

const (
	hashKey     = "hash"
	userKey     = "user"
	authDateKey = "auth_date"

	// webAppDataLabel задаёт метку разделения доменов для производного ключа проверки.
	webAppDataLabel = "WebAppData"

	// clockSkew ограничивает, насколько auth_date может опережать локальные часы.
	clockSkew = time.Minute
)

// Verifier проверяет подпись initData общим секретом платформы.
type Verifier struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// Option настраивает Verifier.
type Option func(*Verifier)

// WithMaxAge включает проверку свежести auth_date. Нулевое значение отключает проверку.
func WithMaxAge(d time.Duration) Option {
	return func(v *Verifier) {
		v.maxAge = d
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier создаёт Verifier. При пустом секрете все проверки завершаются ErrAuthInvalid.
func NewVerifier(secret string, opts ...Option) *Verifier {
	v := &Verifier{now: time.Now}
	if secret != "" {
		v.key = DeriveKey(webAppDataLabel, secret)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// DeriveKey вычисляет HMAC-SHA256 секрета под меткой label, чтобы один секрет
// не использовался напрямую для разных целей.
func DeriveKey(label, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(label))
	mac.Write([]byte(secret))
	return mac.Sum(nil)
}

// Verify проверяет конверт и возвращает идентификатор пользователя.
// Ни одно поле конверта не используется до совпадения подписи.
func (v *Verifier) Verify(envelope string) (model.Identity, error) {
	if v == nil || len(v.key) == 0 {
		return "", ErrAuthInvalid
	}

	claims, err := parseClaims(envelope)
	if err != nil {
		return "", ErrAuthInvalid
	}

	tag, ok := claims[hashKey]
	if !ok || tag == "" {
		return "", ErrAuthInvalid
	}
	delete(claims, hashKey)

	provided, err := hex.DecodeString(tag)
	if err != nil {
		return "", ErrAuthInvalid
	}

	if !hmac.Equal(provided, v.sign(claims)) {
		return "", ErrAuthInvalid
	}

	if v.maxAge > 0 {
		if !v.fresh(claims[authDateKey]) {
			return "", ErrAuthInvalid
		}
	}

	return identityFromClaims(claims)
}

// Sign строит подписанный конверт из набора полей. Используется в тестах и клиентских утилитах.
func Sign(secret string, claims map[string]string) string {
	v := NewVerifier(secret)

	values := url.Values{}
	unsigned := make(map[string]string, len(claims))
	for k, val := range claims {
		if k == hashKey {
			continue
		}
		unsigned[k] = val
		values.Set(k, val)
	}
	values.Set(hashKey, hex.EncodeToString(v.sign(unsigned)))

	return values.Encode()
}

// UnsafeIdentity извлекает идентификатор без проверки подписи.
// Пригодно только как ключ локального кеша подсказок на стороне клиента.
func UnsafeIdentity(envelope string) (model.Identity, error) {
	claims, err := parseClaims(envelope)
	if err != nil {
		return "", ErrAuthInvalid
	}
	return identityFromClaims(claims)
}

func (v *Verifier) sign(claims map[string]string) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(canonicalize(claims)))
	return mac.Sum(nil)
}

func (v *Verifier) fresh(authDate string) bool {
	sec, err := strconv.ParseInt(authDate, 10, 64)
	if err != nil {
		return false
	}
	issued := time.Unix(sec, 0)
	now := v.now()
	if issued.After(now.Add(clockSkew)) {
		return false
	}
	return now.Sub(issued) <= v.maxAge
}

// parseClaims разбирает query-строку. Повторяющиеся ключи делают каноническую форму неоднозначной.
func parseClaims(envelope string) (map[string]string, error) {
	if strings.TrimSpace(envelope) == "" {
		return nil, ErrAuthInvalid
	}

	values, err := url.ParseQuery(envelope)
	if err != nil {
		return nil, err
	}

	claims := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) != 1 {
			return nil, ErrAuthInvalid
		}
		claims[k] = vs[0]
	}
	return claims, nil
}

func canonicalize(claims map[string]string) string {
	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+claims[k])
	}
	return strings.Join(pairs, "\n")
}

type webAppUser struct {
	ID int64 `json:"id"`
}

func identityFromClaims(claims map[string]string) (model.Identity, error) {
	raw, ok := claims[userKey]
	if !ok || raw == "" {
		return "", ErrAuthInvalid
	}

	var u webAppUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return "", ErrAuthInvalid
	}
	if u.ID <= 0 {
		return "", ErrAuthInvalid
	}

	return model.Identity(strconv.FormatInt(u.ID, 10)), nil
}
