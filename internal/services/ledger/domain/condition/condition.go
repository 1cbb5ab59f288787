// Package condition verifies PREIMAGE-SHA-256 escrow conditions.
//
// A condition commits to a secret preimage by its SHA-256 digest. Two
// encodings are accepted: the bare base64url digest used on the payment API
// (43 characters, no padding) and the crypto-conditions named-information URI
// "ni:///sha-256;<digest>?fpt=preimage-sha-256&cost=<n>". A fulfillment is
// the base64url-encoded preimage.
package condition

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// Type is the only supported crypto-condition type.
	Type = "preimage-sha-256"

	uriPrefix = "ni:///sha-256;"

	// DigestSize is the decoded length of a SHA-256 condition.
	DigestSize = sha256.Size

	// MaxPreimageLength bounds the preimage accepted by a fulfillment.
	MaxPreimageLength = 65535
)

var (
	// ErrMalformed marks a condition or fulfillment that is structurally
	// invalid.
	ErrMalformed = errors.New("malformed condition")
	// ErrUnmet marks a fulfillment whose derived condition does not equal the
	// stored condition.
	ErrUnmet = errors.New("fulfillment does not meet condition")
)

var encoding = base64.RawURLEncoding

// Condition is a parsed escrow condition.
type Condition struct {
	Digest [DigestSize]byte
	// Cost is the maximum preimage length when the URI form carries one; zero
	// means unspecified.
	Cost int
	// URI reports whether the condition was written in the ni: URI form.
	URI bool
}

// Parse decodes raw into a Condition.
func Parse(raw string) (Condition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Condition{}, fmt.Errorf("%w: condition is empty", ErrMalformed)
	}
	if strings.HasPrefix(raw, uriPrefix) {
		return parseURI(raw)
	}
	digest, err := decodeDigest(raw)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Digest: digest}, nil
}

func parseURI(raw string) (Condition, error) {
	rest := strings.TrimPrefix(raw, uriPrefix)
	encoded, query, ok := strings.Cut(rest, "?")
	if !ok {
		return Condition{}, fmt.Errorf("%w: condition uri has no parameters", ErrMalformed)
	}
	digest, err := decodeDigest(encoded)
	if err != nil {
		return Condition{}, err
	}
	params, err := url.ParseQuery(query)
	if err != nil {
		return Condition{}, fmt.Errorf("%w: condition uri parameters: %v", ErrMalformed, err)
	}
	if fpt := params.Get("fpt"); fpt != Type {
		return Condition{}, fmt.Errorf("%w: unsupported condition type %q", ErrMalformed, fpt)
	}
	costValue := params.Get("cost")
	if costValue == "" {
		return Condition{}, fmt.Errorf("%w: condition uri has no cost", ErrMalformed)
	}
	cost, err := strconv.Atoi(costValue)
	if err != nil || cost < 0 || cost > MaxPreimageLength {
		return Condition{}, fmt.Errorf("%w: condition cost %q out of range", ErrMalformed, costValue)
	}
	return Condition{Digest: digest, Cost: cost, URI: true}, nil
}

func decodeDigest(encoded string) ([DigestSize]byte, error) {
	var digest [DigestSize]byte
	decoded, err := encoding.DecodeString(encoded)
	if err != nil {
		return digest, fmt.Errorf("%w: digest is not base64url: %v", ErrMalformed, err)
	}
	if len(decoded) != DigestSize {
		return digest, fmt.Errorf("%w: digest is %d bytes, want %d", ErrMalformed, len(decoded), DigestSize)
	}
	copy(digest[:], decoded)
	return digest, nil
}

// String renders the condition in the form it was parsed from.
func (c Condition) String() string {
	encoded := encoding.EncodeToString(c.Digest[:])
	if !c.URI {
		return encoded
	}
	return uriPrefix + encoded + "?fpt=" + Type + "&cost=" + strconv.Itoa(c.Cost)
}

// Validate reports whether raw is a well-formed condition.
func Validate(raw string) error {
	_, err := Parse(raw)
	return err
}

// Derive returns the bare digest condition implied by fulfillment. Input that
// is not base64url is hashed as-is so that garbage still yields a digest and
// fails comparison instead of parsing.
func Derive(fulfillment string) string {
	preimage, err := encoding.DecodeString(fulfillment)
	if err != nil {
		preimage = []byte(fulfillment)
	}
	sum := sha256.Sum256(preimage)
	return encoding.EncodeToString(sum[:])
}

// Verify checks fulfillment against the stored condition.
//
// The derived digest is compared first: any mismatch is ErrUnmet regardless
// of how malformed the fulfillment is. Only a matching fulfillment is then
// checked structurally, which can return ErrMalformed.
func Verify(fulfillment, stored string) error {
	cond, err := Parse(stored)
	if err != nil {
		return err
	}
	derived := Derive(fulfillment)
	expected := encoding.EncodeToString(cond.Digest[:])
	if subtle.ConstantTimeCompare([]byte(derived), []byte(expected)) != 1 {
		return ErrUnmet
	}

	preimage, err := encoding.DecodeString(fulfillment)
	if err != nil {
		return fmt.Errorf("%w: fulfillment is not base64url: %v", ErrMalformed, err)
	}
	if len(preimage) > MaxPreimageLength {
		return fmt.Errorf("%w: preimage is %d bytes", ErrMalformed, len(preimage))
	}
	if cond.URI && cond.Cost > 0 && len(preimage) > cond.Cost {
		return fmt.Errorf("%w: preimage length %d exceeds cost %d", ErrMalformed, len(preimage), cond.Cost)
	}
	return nil
}

// FromPreimage returns the fulfillment and bare condition for preimage.
func FromPreimage(preimage []byte) (fulfillment, cond string) {
	sum := sha256.Sum256(preimage)
	return encoding.EncodeToString(preimage), encoding.EncodeToString(sum[:])
}
