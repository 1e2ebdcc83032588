package v1

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// forbiddenNameRunes are characters that must never appear in a Name.
// They cover URL path separators, shell grouping and quoting characters.
const forbiddenNameRunes = `/()"<>\{}`

const maxNameLength = 255

// Name is a validated identifier string. A Name is non-empty, at most 255
// characters long and contains none of the forbidden characters. Construct
// one via ParseName; a Name obtained that way is valid for its whole
// lifetime, so downstream code never re-checks it.
type Name string

// ParseName validates raw and returns it as a Name.
func ParseName(raw string) (Name, error) {
	if raw == "" {
		return "", fmt.Errorf("name must not be empty")
	}
	if utf8.RuneCountInString(raw) > maxNameLength {
		return "", fmt.Errorf("name exceeds %d characters", maxNameLength)
	}
	if i := strings.IndexAny(raw, forbiddenNameRunes); i >= 0 {
		return "", fmt.Errorf("name %q contains forbidden character %q", raw, raw[i])
	}
	return Name(raw), nil
}

// MustName parses raw and panics on failure. Intended for well-known
// compile-time constants (e.g. component names collectors stamp on every
// record), never for external input.
func MustName(raw string) Name {
	n, err := ParseName(raw)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Name) String() string {
	return string(n)
}

// UnmarshalJSON routes deserialization through ParseName so that every
// Name crossing the wire is re-validated.
func (n *Name) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseName(raw)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Amount is a validated non-negative resource quantity.
type Amount int64

// ParseAmount validates v and returns it as an Amount.
func ParseAmount(v int64) (Amount, error) {
	if v < 0 {
		return 0, fmt.Errorf("amount must not be negative, got %d", v)
	}
	return Amount(v), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Factor is a validated finite non-negative scaling factor.
type Factor float64

// ParseFactor validates v and returns it as a Factor.
// NaN, infinities and negative values are rejected.
func ParseFactor(v float64) (Factor, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("factor must be finite")
	}
	if v < 0 {
		return 0, fmt.Errorf("factor must not be negative, got %v", v)
	}
	return Factor(v), nil
}

func (f *Factor) UnmarshalJSON(data []byte) error {
	var raw float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseFactor(raw)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
