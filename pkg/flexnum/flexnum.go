// Package flexnum provides JSON number types that tolerate legacy
// string-encoded numerics. Older collections store monetary fields as
// strings ("450.00", "", null); the domain only ever sees numbers.
package flexnum

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Float unmarshals from a JSON number, a numeric string, null, or an
// empty string. Anything unparseable coerces to 0.
type Float float64

func (f *Float) UnmarshalJSON(data []byte) error {
	*f = Float(CoerceFloat(data))
	return nil
}

func (f Float) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(f))
}

// Int behaves like Float but truncates to an integer.
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	*i = Int(CoerceFloat(data))
	return nil
}

func (i Int) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(i))
}

// CoerceFloat applies the safe-float rule to a raw JSON value:
// empty, null, or invalid input yields 0.
func CoerceFloat(data []byte) float64 {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0
		}
		return ParseFloat(s)
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseFloat parses a possibly dirty numeric string. Whitespace and a
// leading currency comma grouping are tolerated; failures yield 0.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
