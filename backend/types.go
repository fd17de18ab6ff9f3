package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// ID is a server-assigned identifier, unique within a collection
type ID int64

// ParseID parses a decimal identifier
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid id: %q", s)
	}
	return ID(n), nil
}

// String returns the decimal form of the identifier
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// UnmarshalJSON accepts both a JSON number and a numeric string
func (id *ID) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "null" || s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n)
	return nil
}

// Date is a calendar date without time of day
type Date struct {
	time.Time
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// NewDate returns a pointer to the date parsed from s, panicking on bad input.
// Intended for literals in tests and defaults.
func NewDate(s string) *Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

// String formats the date as YYYY-MM-DD
func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	// DRF may serialize dates with a time component
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a time of day
type Clock struct {
	Hour, Minute, Second int
}

// ParseClock parses HH:MM or HH:MM:SS
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	layout := "15:04:05"
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Clock{}, err
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// NewClock returns a pointer to the clock parsed from s, panicking on bad input
func NewClock(s string) *Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return &c
}

// String formats the clock as HH:MM:SS
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// Short formats the clock as HH:MM
func (c Clock) Short() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// MarshalJSON implements json.Marshaler
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Amount is a non-negative decimal with two fractional digits, stored in cents
type Amount int64

// MaxAmountUnits bounds the magnitude of an amount so that every cent value
// stays exact in a float64
const MaxAmountUnits = 1e13

// ParseAmount parses a decimal amount such as "12", "12.5" or "12.50".
// NaN, infinities and magnitudes above MaxAmountUnits are rejected.
func ParseAmount(s string) (Amount, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > MaxAmountUnits {
		return 0, fmt.Errorf("amount out of range: %q", s)
	}
	return AmountFromFloat(f), nil
}

// AmountFromFloat rounds f to cents. NaN yields 0 and values beyond
// MaxAmountUnits saturate at the bound.
func AmountFromFloat(f float64) Amount {
	switch {
	case math.IsNaN(f):
		return 0
	case f > MaxAmountUnits:
		f = MaxAmountUnits
	case f < -MaxAmountUnits:
		f = -MaxAmountUnits
	}
	return Amount(math.Round(f * 100))
}

// Float returns the amount in units
func (a Amount) Float() float64 {
	return float64(a) / 100
}

// String returns the shortest decimal form ("5000", "12.5")
func (a Amount) String() string {
	return strconv.FormatFloat(a.Float(), 'f', -1, 64)
}

// MarshalJSON writes the amount as a JSON number
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a decimal string
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "null" || s == "" {
		*a = 0
		return nil
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
