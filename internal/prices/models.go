package prices

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidValue is returned when a row claims a price that is not a finite,
// non-negative number.
var ErrInvalidValue = errors.New("invalid price value")

// Value is an optional price. The zero Value is absent ("no price found"),
// which is distinct from a price of zero.
type Value struct {
	amount float64
	ok     bool
}

// Some returns a present Value.
func Some(v float64) Value {
	return Value{amount: v, ok: true}
}

// Absent returns a Value carrying no price.
func Absent() Value {
	return Value{}
}

// Get returns the price and whether it is present.
func (v Value) Get() (float64, bool) {
	return v.amount, v.ok
}

// Present reports whether a price was observed.
func (v Value) Present() bool {
	return v.ok
}

// Validate rejects a present value that is NaN, infinite or negative.
func (v Value) Validate() error {
	if !v.ok {
		return nil
	}
	if math.IsNaN(v.amount) || math.IsInf(v.amount, 0) || v.amount < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidValue, v.amount)
	}
	return nil
}

// String returns the at-rest representation: empty when absent.
func (v Value) String() string {
	if !v.ok {
		return ""
	}
	return strconv.FormatFloat(v.amount, 'f', -1, 64)
}

// MarshalJSON encodes an absent value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return []byte(v.String()), nil
}

// UnmarshalJSON accepts null or a number.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*v = Absent()
		return nil
	}
	parsed, err := ParseValue(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseValue converts an at-rest price cell into a Value. An empty cell is an
// absent price; anything else must be a finite, non-negative number.
func ParseValue(raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Absent(), nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	v := Some(f)
	if err := v.Validate(); err != nil {
		return Value{}, err
	}
	return v, nil
}

// Observation is one sampled row of the dataset.
// LocationID, Store, ItemCode and Extra are descriptive metadata carried
// through untouched. Extra holds columns this program does not know about.
type Observation struct {
	Group        string            `json:"group"`
	LocationID   string            `json:"location_id"`
	Store        string            `json:"store"`
	ItemCode     string            `json:"item_code"`
	Value        Value             `json:"value"`
	TimestampRaw string            `json:"timestamp"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Clone returns a copy of o that shares no memory with it.
func (o Observation) Clone() Observation {
	o.Extra = maps.Clone(o.Extra)
	return o
}

// Dataset is the full history in arrival order. Duplicates are legal.
type Dataset []Observation

// Clone returns a deep copy of d. A nil dataset stays nil.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return nil
	}
	out := make(Dataset, len(d))
	for i, o := range d {
		out[i] = o.Clone()
	}
	return out
}

// ParsedObservation is an Observation annotated with its normalized instant.
// Valid is false when the timestamp is unrecognized or the value is absent.
type ParsedObservation struct {
	Observation
	Instant time.Time `json:"instant"`
	Valid   bool      `json:"valid"`
}

// Parse annotates a single observation using the default parser chain.
func Parse(o Observation) ParsedObservation {
	p := ParsedObservation{Observation: o}
	if !o.Value.Present() {
		return p
	}
	instant, ok := Normalize(o.TimestampRaw)
	if !ok {
		return p
	}
	p.Instant = instant
	p.Valid = true
	return p
}

// Reading is the latest valid observation of a group.
type Reading struct {
	Value     float64   `json:"value"`
	Timestamp string    `json:"timestamp"`
	Instant   time.Time `json:"instant"`
}

// Trend is the aggregation result for one group. A nil Current means the
// group has no valid observations; nil WindowAverage/Delta mean there was not
// enough history inside the trailing window.
type Trend struct {
	Group         string   `json:"group"`
	Current       *Reading `json:"current,omitempty"`
	WindowAverage *float64 `json:"window_average,omitempty"`
	Delta         *float64 `json:"delta,omitempty"`
	WindowCount   int      `json:"window_count"`
}

// HasData reports whether the group had at least one valid observation.
func (t Trend) HasData() bool {
	return t.Current != nil
}

// HasTrend reports whether the trailing window produced an average.
func (t Trend) HasTrend() bool {
	return t.WindowAverage != nil && t.Delta != nil
}
