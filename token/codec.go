package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Wire field names. The blob is a sequence of name=length:value; entries,
// hex encoded and framed as version_hmac_data.
const (
	fieldAccountID      = "id"
	fieldAdminAccountID = "aid"
	fieldExpires        = "exp"
	fieldAdmin          = "adm"
	fieldDelegatedAdmin = "dlg"
	fieldUsage          = "u"
	fieldType           = "type"
	fieldValidity       = "vv"
	fieldRegistrationID = "rid"
	fieldBootstrap      = "boot"
)

// MalformedTokenError reports a wire string that is not a product of this
// codec: wrong framing, unknown key version, bad signature or garbled
// fields. It is the non-ignorable failure kind in the provider chain.
type MalformedTokenError struct {
	Reason string
	Err    error
}

func (e *MalformedTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token: malformed token: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("token: malformed token: %s", e.Reason)
}

func (e *MalformedTokenError) Unwrap() error {
	return e.Err
}

// Codec is the bidirectional mapping between a Token and its opaque wire
// string. Encode and Decode are pure; expiry and registration are checked by
// the validator, not here.
type Codec struct {
	keys *KeyRing
}

func NewCodec(keys *KeyRing) *Codec {
	return &Codec{keys: keys}
}

// Encode serializes the token and signs it with the ring's current key.
// Deterministic for a given token and key.
func (c *Codec) Encode(t *Token) (string, error) {
	if t.AccountID == "" {
		return "", fmt.Errorf("token: cannot encode a token without an account id")
	}

	var blob strings.Builder
	appendField(&blob, fieldAccountID, t.AccountID)
	appendField(&blob, fieldExpires, strconv.FormatInt(t.Expires.UnixMilli(), 10))
	if t.AdminAccountID != "" {
		appendField(&blob, fieldAdminAccountID, t.AdminAccountID)
	}
	if t.IsAdmin {
		appendField(&blob, fieldAdmin, "1")
	}
	if t.IsDelegatedAdmin {
		appendField(&blob, fieldDelegatedAdmin, "1")
	}
	if t.Usage != "" {
		appendField(&blob, fieldUsage, string(t.Usage))
	}
	if t.Type != "" {
		appendField(&blob, fieldType, string(t.Type))
	}
	if t.Validity != -1 {
		appendField(&blob, fieldValidity, strconv.Itoa(t.Validity))
	}
	if t.RegistrationID != "" {
		appendField(&blob, fieldRegistrationID, t.RegistrationID)
	}
	if t.Bootstrap {
		appendField(&blob, fieldBootstrap, "1")
	}

	data := hex.EncodeToString([]byte(blob.String()))
	key := c.keys.Current()
	return key.Version + "_" + signature(data, key.Secret) + "_" + data, nil
}

// Decode verifies and parses a wire string. A registration id the ledger has
// never seen is not an error here; only structure and integrity are checked.
func (c *Codec) Decode(encoded string) (*Token, error) {
	version, sig, data, err := splitWire(encoded)
	if err != nil {
		return nil, err
	}

	key, ok := c.keys.Version(version)
	if !ok {
		return nil, &MalformedTokenError{Reason: "unknown key version " + version}
	}
	if !hmac.Equal([]byte(signature(data, key.Secret)), []byte(sig)) {
		return nil, &MalformedTokenError{Reason: "signature mismatch"}
	}

	fields, err := parseFields(data)
	if err != nil {
		return nil, err
	}
	t, err := tokenFromFields(fields)
	if err != nil {
		return nil, err
	}
	t.Encoded = encoded
	return t, nil
}

// Info parses the field map of a wire string without verifying its
// signature. Diagnostics only; never trust the result for authentication.
func Info(encoded string) (map[string]string, error) {
	_, _, data, err := splitWire(encoded)
	if err != nil {
		return nil, err
	}
	return parseFields(data)
}

// Crumb derives a short check value from an encoded token, bound to the
// current key. Used as a CSRF-style companion to the auth cookie.
func (c *Codec) Crumb(encoded string) string {
	return signature(encoded, c.keys.Current().Secret)[:32]
}

func signature(data string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func splitWire(encoded string) (version, sig, data string, err error) {
	parts := strings.SplitN(encoded, "_", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", &MalformedTokenError{Reason: "invalid token format"}
	}
	return parts[0], parts[1], parts[2], nil
}

func appendField(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte(';')
}

func parseFields(data string) (map[string]string, error) {
	raw, err := hex.DecodeString(data)
	if err != nil {
		return nil, &MalformedTokenError{Reason: "invalid data encoding", Err: err}
	}
	blob := string(raw)

	fields := make(map[string]string)
	for len(blob) > 0 {
		eq := strings.IndexByte(blob, '=')
		if eq <= 0 {
			return nil, &MalformedTokenError{Reason: "truncated field name"}
		}
		name := blob[:eq]
		blob = blob[eq+1:]

		colon := strings.IndexByte(blob, ':')
		if colon <= 0 {
			return nil, &MalformedTokenError{Reason: "truncated field length"}
		}
		length, err := strconv.Atoi(blob[:colon])
		if err != nil || length < 0 {
			return nil, &MalformedTokenError{Reason: "invalid field length"}
		}
		blob = blob[colon+1:]

		// length is attacker-controlled; compare against len(blob) directly
		// so an overlong value cannot overflow length+1
		if length >= len(blob) || blob[length] != ';' {
			return nil, &MalformedTokenError{Reason: "truncated field value"}
		}
		fields[name] = blob[:length]
		blob = blob[length+1:]
	}
	return fields, nil
}

func tokenFromFields(fields map[string]string) (*Token, error) {
	accountID := fields[fieldAccountID]
	if accountID == "" {
		return nil, &MalformedTokenError{Reason: "missing account id"}
	}
	expMilli, err := strconv.ParseInt(fields[fieldExpires], 10, 64)
	if err != nil {
		return nil, &MalformedTokenError{Reason: "invalid expiry", Err: err}
	}
	usage, err := ParseUsage(fields[fieldUsage])
	if err != nil {
		return nil, &MalformedTokenError{Reason: "invalid usage", Err: err}
	}

	validity := -1
	if vv, ok := fields[fieldValidity]; ok {
		if validity, err = strconv.Atoi(vv); err != nil {
			validity = -1
		}
	}

	typ := TypeAuth
	if v := fields[fieldType]; v != "" {
		typ = Type(v)
	}

	return &Token{
		AccountID:        accountID,
		AdminAccountID:   fields[fieldAdminAccountID],
		IsAdmin:          fields[fieldAdmin] == "1",
		IsDelegatedAdmin: fields[fieldDelegatedAdmin] == "1",
		Usage:            usage,
		Type:             typ,
		Expires:          time.UnixMilli(expMilli).UTC(),
		Validity:         validity,
		RegistrationID:   fields[fieldRegistrationID],
		Bootstrap:        fields[fieldBootstrap] == "1",
	}, nil
}
