package oauth1

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SignatureMethod is the only signature method this package produces.
const SignatureMethod = "HMAC-SHA256"

// OAuth parameter names, in the order they appear in the Authorization header.
const (
	ParamConsumerKey     = "oauth_consumer_key"
	ParamSignatureMethod = "oauth_signature_method"
	ParamTimestamp       = "oauth_timestamp"
	ParamNonce           = "oauth_nonce"
	ParamSignature       = "oauth_signature"
)

const (
	nonceLength   = 10
	nonceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var (
	// ErrMissingConsumerKey is returned when the signer is built without a consumer key.
	ErrMissingConsumerKey = errors.New("oauth1: consumer key is required")

	// ErrMissingConsumerSecret is returned when the signer is built without a consumer secret.
	ErrMissingConsumerSecret = errors.New("oauth1: consumer secret is required")
)

// Clock supplies the current time for oauth_timestamp.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// NonceSource supplies oauth_nonce values.
type NonceSource interface {
	Nonce() string
}

// NonceFunc adapts a function to the NonceSource interface.
type NonceFunc func() string

// Nonce implements NonceSource.
func (f NonceFunc) Nonce() string { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// randomNonce draws alphanumeric nonces from math/rand. The nonce only has
// to be unique per timestamp, not unpredictable.
type randomNonce struct{}

func (randomNonce) Nonce() string {
	b := make([]byte, nonceLength)
	for i := range b {
		b[i] = nonceAlphabet[rand.IntN(len(nonceAlphabet))]
	}
	return string(b)
}

// Params are the per-request OAuth values that vary between attempts.
type Params struct {
	Timestamp string
	Nonce     string
}

// Signer builds OAuth1 Authorization headers for one consumer.
type Signer struct {
	consumerKey    string
	consumerSecret string
	clock          Clock
	nonces         NonceSource
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(s *Signer) { s.clock = c }
}

// WithNonceSource replaces the random nonce generator.
func WithNonceSource(n NonceSource) Option {
	return func(s *Signer) { s.nonces = n }
}

// NewSigner creates a signer for the given consumer credentials.
func NewSigner(consumerKey, consumerSecret string, opts ...Option) (*Signer, error) {
	if consumerKey == "" {
		return nil, ErrMissingConsumerKey
	}
	if consumerSecret == "" {
		return nil, ErrMissingConsumerSecret
	}

	s := &Signer{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		clock:          systemClock{},
		nonces:         randomNonce{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign returns the Authorization header for a request and the query
// parameters the caller must send with it. Query parameters already present
// in rawURL are decoded and merged with extra; both are covered by the
// signature.
func (s *Signer) Sign(method, rawURL string, extra url.Values) (string, url.Values, error) {
	return s.SignWith(method, rawURL, extra, Params{
		Timestamp: strconv.FormatInt(s.clock.Now().Unix(), 10),
		Nonce:     s.nonces.Nonce(),
	})
}

// SignWith is Sign with a caller-chosen timestamp and nonce.
func (s *Signer) SignWith(method, rawURL string, extra url.Values, p Params) (string, url.Values, error) {
	baseURL, query, err := SplitURL(rawURL)
	if err != nil {
		return "", nil, err
	}
	for key := range extra {
		query.Set(key, extra.Get(key))
	}

	oauth := [][2]string{
		{ParamConsumerKey, s.consumerKey},
		{ParamSignatureMethod, SignatureMethod},
		{ParamTimestamp, p.Timestamp},
		{ParamNonce, p.Nonce},
	}

	combined := make(map[string]string, len(query)+len(oauth))
	for key := range query {
		combined[key] = query.Get(key)
	}
	for _, kv := range oauth {
		combined[kv[0]] = kv[1]
	}

	base := BaseString(method, baseURL, combined)
	oauth = append(oauth, [2]string{ParamSignature, Signature(s.consumerSecret, base)})

	return buildHeader(oauth), query, nil
}

// SplitURL separates rawURL into its base (scheme, host and path) and its
// decoded query parameters, keeping only the first value of repeated keys.
func SplitURL(rawURL string) (string, url.Values, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("oauth1: parse url: %w", err)
	}

	parsed, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("oauth1: parse query: %w", err)
	}
	query := make(url.Values, len(parsed))
	for key := range parsed {
		query.Set(key, parsed.Get(key))
	}

	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String(), query, nil
}

// BaseString builds the signature base string: the upper-cased method, the
// encoded base URL and the encoded, key-sorted "key=value" list.
func BaseString(method, baseURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+Encode(params[key]))
	}

	return strings.ToUpper(method) + "&" + Encode(baseURL) + "&" + Encode(strings.Join(pairs, "&"))
}

// Signature computes base64(HMAC-SHA256(encode(secret)+"&", base)).
func Signature(consumerSecret, base string) string {
	mac := hmac.New(sha256.New, []byte(CompositeKey(consumerSecret)))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// CompositeKey is the HMAC key for two-legged requests; the token secret
// half is always empty.
func CompositeKey(consumerSecret string) string {
	return Encode(consumerSecret) + "&"
}

// Encode applies application/x-www-form-urlencoded escaping.
func Encode(s string) string {
	return url.QueryEscape(s)
}

func buildHeader(params [][2]string) string {
	parts := make([]string, 0, len(params))
	for _, kv := range params {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, kv[0], Encode(kv[1])))
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// ParseHeader decodes an Authorization header built by Sign back into its
// parameters. It is the inverse of the header encoding and is used by
// servers and tests that verify signatures.
func ParseHeader(header string) (map[string]string, error) {
	rest, ok := strings.CutPrefix(header, "OAuth ")
	if !ok {
		return nil, fmt.Errorf("oauth1: not an OAuth header")
	}

	params := make(map[string]string)
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, quoted, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("oauth1: malformed header parameter %q", part)
		}
		value, err := url.QueryUnescape(strings.Trim(quoted, `"`))
		if err != nil {
			return nil, fmt.Errorf("oauth1: decode %s: %w", key, err)
		}
		params[key] = value
	}
	return params, nil
}
