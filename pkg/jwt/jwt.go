package jwt

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/josekit/jose/pkg/header"
	"github.com/josekit/jose/pkg/jwa"
	"github.com/josekit/jose/pkg/jwk"
	"github.com/josekit/jose/pkg/jws"
)

// Type "JWT" is the media type used by JSON Web Token (JWT).
//
// # Example
//
//	params := header.Parameters{
//		header.Type:      jwt.Type,
//		header.Algorithm: jwa.HS256,
//	}
//
// https://www.rfc-editor.org/rfc/rfc7515.html#section-3.3
const Type = header.TypeJWT

// Token is a decoded JSON Web Token, a string representing a set of
// claims as a JSON object encoded in a JWS, enabling the claims to be
// digitally signed or MACed.
//
// Only signed (JWS) tokens are produced here; a claims set needing
// confidentiality wraps the signed token in a JWE envelope.
//
// JWTs contain three parts, separated by dots (".") which are:
//
//  1. Header
//  2. Claims (Payload)
//  3. Signature
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-1
type Token struct {
	// Header is the set of parameters that are used to describe
	// the cryptographic operations applied to the JWT claims set.
	Header header.Parameters

	// Claims is the set of claims that are asserted by the JWT.
	//
	// This is sometimes referred to as the "payload".
	Claims ClaimsSet

	// message is the underlying signed envelope.
	message *jws.Message

	// raw is the original string representation of the JWT.
	raw string
}

// New creates a signed Token object. If this fails for any reason, an
// error is returned with a nil token.
//
// Using this function does not require the given header parameters
// define the "typ" (header.Type), which is always set to "JWT"
// (header.TypeJWT), but callers can include it if they like.
//
// The claims set must not be empty, or will return an error.
//
// The given keys are candidate signing keys; the best match for the
// declared algorithm signs the token.
func New(params header.Parameters, claims ClaimsSet, keys ...jwk.Key) (*Token, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("cannot create token with empty header parameters")
	}

	if len(claims) == 0 {
		return nil, ErrNoClaims
	}

	// Verify or otherwise handle registered claim types nicely.
	for name, value := range claims {
		switch name {
		case ExpirationTime, NotBefore, IssuedAt:
			switch v := value.(type) {
			// good
			case int64:
			// ok
			case int:
				claims[name] = int64(v)
			case time.Time:
				claims[name] = v.Unix()
			// bad
			default:
				return nil, fmt.Errorf("cannot use %T with %q", v, name)
			}
		case Issuer, Subject:
			switch v := value.(type) {
			// good
			case string:
			// ok
			case fmt.Stringer:
				claims[name] = v.String()
			// bad
			default:
				return nil, fmt.Errorf("cannot use %T with %q", v, name)
			}
		}
	}

	// Ensure the "typ" header parameter is set to "JWT", as it is required.
	if _, ok := params[header.Type]; !ok {
		params[header.Type] = Type
	} else if params[header.Type] != Type {
		return nil, fmt.Errorf("header type %q is not supported", params[header.Type])
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to encode claims set: %w", err)
	}

	message := jws.NewMessage(payload)
	message.AddSignature(params, nil)

	if err := message.Sign(keys...); err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	token := &Token{
		Header:  params,
		Claims:  claims,
		message: message,
	}

	token.raw, err = message.Compact()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize token: %w", err)
	}

	return token, nil
}

// String returns the string representation of the token, which is
// the raw JWT string of three base64url encoded parts, separated
// by a period.
func (t *Token) String() string {
	if len(t.raw) != 0 {
		return t.raw
	}

	if t.message != nil {
		raw, err := t.message.Compact()
		if err == nil {
			t.raw = raw
		}
	}

	return t.raw
}

// Message returns the underlying signed envelope.
func (t *Token) Message() *jws.Message {
	return t.message
}

// Signature returns the signature bytes of the token.
func (t *Token) Signature() []byte {
	if t.message == nil || len(t.message.Signatures) == 0 {
		return nil
	}
	return t.message.Signatures[0].Signature
}

// Parseable is a type that can be parsed into a JWT, either a string
// or byte slice.
type Parseable interface {
	~string | ~[]byte
}

// Parse parses a given JWT, and returns a Token or an error if the
// JWT fails to parse.
//
// # Warning
//
// This is a low-level function that does not verify the signature of
// the token. Use ParseAndVerify to parse and verify the signature of
// a token in one step. Otherwise, use Parse to parse a token, and
// then use the Verify method to verify the signature.
func Parse[T Parseable](input T) (*Token, error) {
	return ParseString(string(input))
}

// ParseAndVerify parses a given JWT, and verifies the signature using
// the given verification configuration options.
func ParseAndVerify[T Parseable](input T, verifyOptions ...VerifyOption) (*Token, error) {
	token, err := Parse(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	err = token.Verify(verifyOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to verify JWT: %w", err)
	}

	return token, nil
}

// ParseString parses a given JWT string, and returns a Token or an
// error if the JWT fails to parse.
func ParseString(input string) (*Token, error) {
	message, err := jws.ParseCompact(input)
	if err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	claims := ClaimsSet{}
	if err := json.Unmarshal(message.Payload, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode claims JSON: %w", err)
	}

	for claimName, claimValue := range claims {
		// Parsing JSON values into an interface can be tricky.
		switch claimName {
		case IssuedAt, ExpirationTime, NotBefore:
			switch v := claimValue.(type) {
			case int64: // good
			case float64: // ok
				claims[claimName] = int64(v)
			default: // bad
				return nil, fmt.Errorf("invalid type %T used for %q", v, claimName)
			}
		}
	}

	return &Token{
		Header:  message.Signatures[0].Protected.Value(),
		Claims:  claims,
		message: message,
		raw:     input,
	}, nil
}

// VerifyConfig is a configuration type for verifying JWTs.
type VerifyConfig struct {
	// InsecureAllowNone allows the "none" algorithm to be used, which
	// is considered insecure, dangerous, and disabled by default. It
	// must be set in addition to being enabled in the allowed
	// algorithms.
	InsecureAllowNone bool

	// AllowedAlgorithms is a set of allowed algorithms for the JWT.
	//
	// If not set, then jwt.DefaultAllowedAlgorithms will be used.
	AllowedAlgorithms []jwa.Algorithm

	// AllowedIssuers is a set of allowed issuers for the JWT.
	//
	// If not set, then any issuers are allowed.
	AllowedIssuers []string

	// AllowedAudiences is a set of allowed audiences for the JWT.
	//
	// If not set, then any audiences are allowed.
	AllowedAudiences []string

	// Keys is the set of candidate verification keys for the JWT.
	Keys []jwk.Key

	// Clock is a function that returns the current time.
	//
	// This is used to verify the "exp" and "nbf" claims.
	//
	// If not set, then time.Now will be used.
	Clock Clock
}

// VerifyOption is a functional option type used to configure the
// verification requirements for JWTs.
type VerifyOption func(*VerifyConfig) error

// WithAllowInsecureNoneAlgorithm allows the "none" algorithm to be
// used. Users must explicitly enable this option, as it is considered
// insecure, dangerous, and disabled by default.
//
// # WARNING
//
// Even with this option set, signature verification of an unsecured
// token always fails; it exists so integration code can surface the
// distinct error.
func WithAllowInsecureNoneAlgorithm(value bool) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.InsecureAllowNone = value
		return nil
	}
}

// WithAllowedIssuers sets the allowed issuers for the JWT.
func WithAllowedIssuers(issuers ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedIssuers = issuers
		return nil
	}
}

// WithAllowedAudiences sets the allowed audiences for the JWT.
func WithAllowedAudiences(audiences ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedAudiences = audiences
		return nil
	}
}

// WithAllowedAlgorithms sets the allowed algorithms for the JWT.
func WithAllowedAlgorithms(algs ...jwa.Algorithm) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedAlgorithms = algs
		return nil
	}
}

// WithKey appends a candidate verification key for the JWT.
func WithKey(key jwk.Key) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.Keys = append(vc.Keys, key)
		return nil
	}
}

// WithKeys sets the candidate verification keys for the JWT.
func WithKeys(keys ...jwk.Key) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.Keys = keys
		return nil
	}
}

// WithClock sets the clock function for verifying the JWT.
func WithClock(clock Clock) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.Clock = clock
		return nil
	}
}

// Clock is a function that returns the current time.
type Clock func() time.Time

// Expired returns true if the token is expired, false otherwise.
// If an error occurs while checking expiration, it is returned.
//
// Only use the boolean value if error is nil.
func (t *Token) Expired(clock Clock) (bool, error) {
	expValue, ok := t.Claims[ExpirationTime]
	if !ok {
		return false, nil
	}
	expInt, ok := expValue.(int64)
	if !ok {
		return false, fmt.Errorf("invalid value %q for %q", expValue, ExpirationTime)
	}
	exp := time.Unix(expInt, 0)

	return exp.Before(clock()), nil
}

// Expires returns true if the token has an expiration time claim,
// false otherwise. If an error occurs while checking expiration,
// it is returned.
//
// Only use the boolean value if error is nil.
func (t *Token) Expires() (bool, error) {
	expValue, ok := t.Claims[ExpirationTime]
	if !ok {
		return false, nil
	}
	_, ok = expValue.(int64)
	if !ok {
		return false, fmt.Errorf("invalid value %q for %q", expValue, ExpirationTime)
	}
	return true, nil
}

var defaultAllowedAlgorithms = []jwa.Algorithm{
	jwa.RS256, jwa.RS384, jwa.RS512,
	jwa.ES256, jwa.ES384, jwa.ES512,
	jwa.HS256, jwa.HS384, jwa.HS512,
	jwa.PS256, jwa.PS384, jwa.PS512,
	jwa.EdDSA,
	jwa.MLDSA65, jwa.MLDSA87,
}

// DefaultAllowedAlgorithms returns the algorithms accepted when a
// verification does not restrict them explicitly. The "none"
// algorithm is never included.
func DefaultAllowedAlgorithms() []jwa.Algorithm {
	return slices.Clone(defaultAllowedAlgorithms)
}

// supportedCriticalParameters are the extension header parameters
// this implementation understands, for "crit" processing.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1.11
var supportedCriticalParameters = []header.ParameterName{
	header.Base64Payload,
}

// Verify is used to verify a signed Token object with the given
// config options. If this fails for any reason, an error is returned.
func (t *Token) Verify(opts ...VerifyOption) error {
	config := &VerifyConfig{
		InsecureAllowNone: false,
		AllowedAlgorithms: defaultAllowedAlgorithms,
		Clock:             time.Now,
	}

	for _, opt := range opts {
		err := opt(config)
		if err != nil {
			return fmt.Errorf("verify option error: %w", err)
		}
	}

	alg, err := t.Header.Algorithm()
	if err != nil {
		return fmt.Errorf("failed to verify alg: %w", err)
	}

	if alg == jwa.None && !config.InsecureAllowNone {
		return fmt.Errorf("%w: unsecured tokens are not allowed", jwk.ErrOperationNotAllowed)
	}

	if !slices.Contains(config.AllowedAlgorithms, alg) {
		return fmt.Errorf("requested algorithm %q is not allowed", alg)
	}

	if crit, err := t.Header.CriticalParameters(); err == nil {
		for _, param := range crit {
			if !slices.Contains(supportedCriticalParameters, param) {
				return fmt.Errorf("unsupported critical header parameter %q", param)
			}
		}
	}

	if err := t.message.Verify(config.Keys...); err != nil {
		return fmt.Errorf("failed to validate token signature: %w", err)
	}

	// If the allowed issuers is empty, then any issuer is allowed.
	if config.AllowedIssuers != nil {
		issuer := fmt.Sprintf("%s", t.Claims[Issuer])

		if !slices.Contains(config.AllowedIssuers, issuer) {
			return fmt.Errorf("requested issuer %q is not allowed", issuer)
		}
	}

	// If the allowed audiences is empty, then any audience is allowed.
	if config.AllowedAudiences != nil {
		if !audienceAllowed(t.Claims[Audience], config.AllowedAudiences) {
			return fmt.Errorf("requested audience %q is not allowed", t.Claims[Audience])
		}
	}

	expired, err := t.Expired(config.Clock)
	if err != nil {
		return fmt.Errorf("failed to validate token expiration: %w", err)
	}

	if expired {
		return ErrExpired
	}

	if notBeforeValue, ok := t.Claims[NotBefore]; ok {
		if notBeforeInt, ok := notBeforeValue.(int64); ok {
			notBefore := time.Unix(notBeforeInt, 0)
			if config.Clock().Before(notBefore) {
				return fmt.Errorf("%w: not usable before %v", ErrNotYetValid, notBefore)
			}
		} else {
			return fmt.Errorf("token contains invalid %q value %v", NotBefore, notBeforeValue)
		}
	}

	return nil
}

// audienceAllowed matches the "aud" claim, which may be a single
// string or an array of strings, against the allowed set.
func audienceAllowed(claim ClaimValue, allowed []string) bool {
	switch audience := claim.(type) {
	case string:
		return slices.Contains(allowed, audience)
	case []any:
		for _, entry := range audience {
			if str, ok := entry.(string); ok && slices.Contains(allowed, str) {
				return true
			}
		}
	case []string:
		for _, entry := range audience {
			if slices.Contains(allowed, entry) {
				return true
			}
		}
	}
	return false
}

// FromHTTPAuthorizationHeader extracts a JWT string from the
// Authorization header of an HTTP request. If the Authorization
// header is not set, then an error is returned.
//
// # Warning
//
// This value needs to be parsed and verified before it can be used
// safely.
func FromHTTPAuthorizationHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("invalid authorization header format")
	}

	return parts[1], nil
}

// HTTPHeaderValue is a type that can be used as a value when setting
// an HTTP request header.
type HTTPHeaderValue interface {
	string | Token
}

// SetHTTPAuthorizationHeader sets the Authorization header of an HTTP
// request to the given JWT. The JWT is prefixed with "Bearer ", as
// required by the HTTP Authorization header specification.
//
// https://tools.ietf.org/html/rfc6750#section-2.1
func SetHTTPAuthorizationHeader[T HTTPHeaderValue](r *http.Request, jwt T) {
	var value string
	switch v := any(jwt).(type) {
	case string:
		value = v
	case Token:
		value = v.String()
	}
	r.Header.Set("Authorization", "Bearer "+value)
}
