package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/mmeshcher/stars-paywall/internal/initdata"
	"github.com/mmeshcher/stars-paywall/internal/model"
	"github.com/mmeshcher/stars-paywall/internal/validation"
)

const (
	payloadLabel = "InvoicePayload"
	// Telegram ограничивает payload счёта 128 байтами.
	payloadSigHexLen = 32
)

type invoicePayload struct {
	Identity  string `json:"u"`
	Token     string `json:"t"`
	Signature string `json:"s"`
}

// payloadCodec кодирует payload счёта и проверяет его подпись при возврате из вебхука.
type payloadCodec struct {
	key []byte
}

func newPayloadCodec(secret string) *payloadCodec {
	return &payloadCodec{key: initdata.DeriveKey(payloadLabel, secret)}
}

func (c *payloadCodec) encode(id model.Identity, token string) (string, error) {
	p := invoicePayload{
		Identity:  string(id),
		Token:     token,
		Signature: c.sign(string(id), token),
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (c *payloadCodec) decode(raw string) (model.Identity, string, error) {
	var p invoicePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", "", ErrInvalidPayload
	}
	if p.Token == "" || !validation.IsValidIdentity(p.Identity) {
		return "", "", ErrInvalidPayload
	}

	if !hmac.Equal([]byte(p.Signature), []byte(c.sign(p.Identity, p.Token))) {
		return "", "", ErrInvalidPayload
	}

	return model.Identity(p.Identity), p.Token, nil
}

func (c *payloadCodec) sign(id, token string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(id))
	mac.Write([]byte{'|'})
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))[:payloadSigHexLen]
}
