// Package txid mints and normalizes checkout transaction ids.
//
// A transaction id is the idempotency key for a whole checkout attempt. Cash
// checkouts mint "cash-<unixMillis>-<random>" locally. Gateway checkouts use
// the gateway-correlated UUID, or "temp-<tableUid>" as the order reference
// while no order exists yet. Every id read back from a URL or storage must
// pass through Normalize, since the gateway can echo it inside a malformed
// doubly-queried URL.
package txid

import (
	"crypto/rand"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a transaction id by its shape.
type Kind int

const (
	KindUnknown Kind = iota
	KindCash
	KindTemp
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindCash:
		return "cash"
	case KindTemp:
		return "temp"
	case KindGateway:
		return "gateway"
	default:
		return "unknown"
	}
}

const (
	cashPrefix   = "cash-"
	tempPrefix   = "temp-"
	suffixLen    = 9
	base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// queryKeys are the parameter names under which an id may arrive, in
// priority order.
var queryKeys = []string{"transactionId", "transaction_uuid", "transaction_id"}

// Normalize strips anything from the first '?' onward and surrounding
// whitespace. Normalize("abc?x=y") == Normalize("abc").
func Normalize(id string) string {
	if i := strings.IndexByte(id, '?'); i >= 0 {
		id = id[:i]
	}
	return strings.TrimSpace(id)
}

// NewCash mints a cash transaction id for the given instant.
func NewCash(now time.Time) string {
	return cashPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "-" + randomSuffix()
}

// NewGateway mints a gateway transaction id.
func NewGateway() string {
	return uuid.NewString()
}

// Temp returns the temporary order reference used when a gateway payment is
// started before any order exists.
func Temp(tableUID string) string {
	return tempPrefix + tableUID
}

// TableFromTemp extracts the table uid from a temporary order reference.
func TableFromTemp(ref string) (string, bool) {
	if !strings.HasPrefix(ref, tempPrefix) {
		return "", false
	}
	return strings.TrimPrefix(ref, tempPrefix), true
}

// Classify reports the kind of a normalized id.
func Classify(id string) Kind {
	switch {
	case id == "":
		return KindUnknown
	case strings.HasPrefix(id, cashPrefix):
		return KindCash
	case strings.HasPrefix(id, tempPrefix):
		return KindTemp
	default:
		if _, err := uuid.Parse(id); err == nil {
			return KindGateway
		}
		return KindUnknown
	}
}

// IsCash reports whether id was minted for a cash checkout.
func IsCash(id string) bool {
	return Classify(Normalize(id)) == KindCash
}

// FromQuery extracts the transaction id and the optional gateway callback
// payload from a raw query string. It tolerates the gateway appending its own
// "?data=..." to a success URL that already had a query, e.g.
// "transaction_uuid=T3?data=eyJ...".
func FromQuery(rawQuery string) (id, data string) {
	rawQuery = strings.TrimPrefix(rawQuery, "?")
	values, _ := url.ParseQuery(rawQuery)

	for _, key := range queryKeys {
		if v := values.Get(key); v != "" {
			id = v
			break
		}
	}
	data = values.Get("data")

	if id == "" {
		id = scanValue(rawQuery)
	}

	if i := strings.IndexByte(id, '?'); i >= 0 {
		if data == "" {
			if tail, err := url.ParseQuery(id[i+1:]); err == nil {
				data = tail.Get("data")
			}
		}
		id = id[:i]
	}

	return Normalize(id), data
}

// FromURL is FromQuery applied to a full return URL.
func FromURL(raw string) (id, data string) {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return FromQuery(raw[i+1:])
	}
	return FromQuery(raw)
}

// scanValue finds an id parameter by plain substring search when the query
// is too broken for url.ParseQuery.
func scanValue(raw string) string {
	for _, key := range queryKeys {
		needle := key + "="
		start := strings.Index(raw, needle)
		if start < 0 {
			continue
		}
		v := raw[start+len(needle):]
		if end := strings.IndexAny(v, "&?"); end >= 0 {
			v = v[:end]
		}
		if unescaped, err := url.QueryUnescape(v); err == nil {
			v = unescaped
		}
		return v
	}
	return ""
}

func randomSuffix() string {
	var b strings.Builder
	b.Grow(suffixLen)
	base := big.NewInt(int64(len(base36Digits)))
	for range suffixLen {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(err)
		}
		b.WriteByte(base36Digits[n.Int64()])
	}
	return b.String()
}
