package models

import (
	"database/sql/driver"
	"strconv"
	"strings"
)

// StringArray is a custom type for PostgreSQL text[] that implements Scanner
// and Valuer. Under sqlite (tests) the same "{a,b}" literal round-trips as
// text.
type StringArray []string

// Scan implements the sql.Scanner interface for reading from database
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	str, ok := value.(string)
	if !ok {
		if bytes, ok := value.([]byte); ok {
			str = string(bytes)
		} else {
			*a = nil
			return nil
		}
	}

	str = strings.TrimPrefix(str, "{")
	str = strings.TrimSuffix(str, "}")

	if str == "" {
		*a = []string{}
		return nil
	}

	parts := strings.Split(str, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		// Postgres quotes elements containing commas or spaces; strip one
		// layer of quoting. Values with embedded commas are not used here.
		out = append(out, strings.Trim(p, `"`))
	}
	*a = out
	return nil
}

// Value implements the driver.Valuer interface for writing to database
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	if len(a) == 0 {
		return "{}", nil
	}
	quoted := make([]string, len(a))
	for i, s := range a {
		if strings.ContainsAny(s, `,"{} `) {
			s = `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
		}
		quoted[i] = s
	}
	return "{" + strings.Join(quoted, ",") + "}", nil
}

// Float64Array maps a per-subject hours slice onto PostgreSQL float8[].
type Float64Array []float64

// Scan implements the sql.Scanner interface
func (a *Float64Array) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	str, ok := value.(string)
	if !ok {
		if bytes, ok := value.([]byte); ok {
			str = string(bytes)
		} else {
			*a = nil
			return nil
		}
	}

	str = strings.TrimPrefix(str, "{")
	str = strings.TrimSuffix(str, "}")

	if str == "" {
		*a = []float64{}
		return nil
	}

	parts := strings.Split(str, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			// Malformed element: normalize to zero rather than fail the row.
			f = 0
		}
		out = append(out, f)
	}
	*a = out
	return nil
}

// Value implements the driver.Valuer interface
func (a Float64Array) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	if len(a) == 0 {
		return "{}", nil
	}
	parts := make([]string, len(a))
	for i, f := range a {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// Sum returns the total of all elements.
func (a Float64Array) Sum() float64 {
	var total float64
	for _, f := range a {
		total += f
	}
	return total
}
