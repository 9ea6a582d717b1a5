// Package signature implements the NAV request authentication scheme:
// a SHA-512 password hash and a SHA3-512 request signature computed
// over the request id, the second-precision timestamp and the signing
// key(s). Both digests are rendered as upper-case hex.
package signature

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/irvolta/go-nav-client/nav"
)

// requestIDPattern is the NAV constraint on request identifiers.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9_+]{1,30}$`)

// signKeyPattern matches NAV signing keys. The keys are issued with
// literal hyphen separators (e.g. 31-bc22-c0e9ce8cc07255DXRST0SUI3);
// a key without them produces signatures NAV rejects.
var signKeyPattern = regexp.MustCompile(`^[0-9a-f]{2}-[0-9a-f]{4}-[0-9a-zA-Z]+$`)

// Timestamp is a request timestamp with the two renderings NAV needs:
// millisecond ISO-8601 for the XML header and a 14 digit compact form
// for the signature base string.
type Timestamp struct {
	t time.Time
}

// Now captures the current UTC time.
func Now() Timestamp {
	return Timestamp{t: time.Now().UTC()}
}

// At wraps an explicit time, normalised to UTC.
func At(t time.Time) Timestamp {
	return Timestamp{t: t.UTC()}
}

// ISO renders the timestamp as 2006-01-02T15:04:05.000Z.
func (ts Timestamp) ISO() string {
	return ts.t.Format("2006-01-02T15:04:05.000Z")
}

// Compact renders the timestamp truncated to seconds as 14 digits
// (yyyyMMddHHmmss). Only this form enters the signature.
func (ts Timestamp) Compact() string {
	return ts.t.Format("20060102150405")
}

// Time returns the underlying UTC time.
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// NewRequestID generates a fresh request identifier: "RID", the
// compact millisecond UTC timestamp and 10 hex characters of a random
// UUID. 30 characters, exactly at the NAV limit.
func NewRequestID() string {
	millis := time.Now().UTC().Format("20060102150405.000")
	millis = strings.Replace(millis, ".", "", 1)
	return "RID" + millis + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// PasswordHash computes the upper-case hex SHA-512 digest of the
// technical user password.
func PasswordHash(password string) string {
	sum := sha512.Sum512([]byte(password))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// RequestSignature computes the upper-case hex SHA3-512 digest over
// requestID + compact timestamp + signKey + any extra keys (the online
// invoice service appends the exchange key for token operations).
//
// Returns ErrInvalidCredentialFormat when the request id or the sign
// key is structurally wrong; a stripped sign key is the classic
// integration mistake this guards against.
func RequestSignature(requestID string, ts Timestamp, signKey string, extraKeys ...string) (string, error) {
	if !requestIDPattern.MatchString(requestID) {
		return "", errors.Wrap(nav.ErrInvalidCredentialFormat,
			fmt.Sprintf("request id %q does not match [A-Za-z0-9_+]{1,30}", requestID))
	}
	if err := ValidateSignKey(signKey); err != nil {
		return "", err
	}

	base := requestID + ts.Compact() + signKey
	for _, k := range extraKeys {
		base += k
	}

	sum := sha3.Sum512([]byte(base))
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// ValidateSignKey checks that the signing key looks like a NAV issued
// key with its hyphen groups intact.
func ValidateSignKey(signKey string) error {
	if signKey == "" {
		return errors.Wrap(nav.ErrInvalidCredentialFormat, "empty sign key")
	}
	if !signKeyPattern.MatchString(signKey) {
		return errors.Wrap(nav.ErrInvalidCredentialFormat,
			"sign key is not in the NN-NNNN-... form NAV issues (hyphens must be kept)")
	}
	return nil
}
