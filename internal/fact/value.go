package fact

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Scalar is a sealed interface over the closed value enum for record cells.
// Only Null, String, Int, Float, and Bool implement it. Any other kind is
// rejected at ingestion so every row survives canonical serialization.
type Scalar interface {
	scalar() // Sealed - only these types implement it
}

// Null represents a missing cell. Using an explicit type keeps all cells
// inside the sealed interface; canonical hashing still rejects it.
type Null struct{}

func (Null) scalar() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string cell.
type String string

func (String) scalar() {}

// Int is an integer cell. Always int64.
type Int int64

func (Int) scalar() {}

// Float is a floating-point cell. NaN and Inf are invalid and rejected by
// canonical serialization; use CheckFloat at ingestion boundaries.
type Float float64

func (Float) scalar() {}

// Bool is a boolean cell.
type Bool bool

func (Bool) scalar() {}

// CheckFloat rejects NaN and infinities. Metric values must survive
// deterministic decimal rendering, which neither can.
func CheckFloat(f float64) error {
	if math.IsNaN(f) {
		return fmt.Errorf("NaN is not a valid cell value")
	}
	if math.IsInf(f, 0) {
		return fmt.Errorf("infinity is not a valid cell value")
	}
	return nil
}

// Numeric returns the float value of an Int or Float cell.
// Returns false for every other kind, including Bool.
func Numeric(s Scalar) (float64, bool) {
	switch v := s.(type) {
	case Int:
		return float64(v), true
	case Float:
		return float64(v), true
	default:
		return 0, false
	}
}

// ScalarFromAny converts a decoded Go value into the closed enum.
// json.Number is split into Int or Float; NaN/Inf and unknown kinds error.
func ScalarFromAny(v any) (Scalar, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case float64:
		if err := CheckFloat(val); err != nil {
			return nil, err
		}
		return Float(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("number out of float64 range: %s", s)
			}
			if err := CheckFloat(f); err != nil {
				return nil, err
			}
			return Float(f), nil
		}
		n, err := val.Int64()
		if err != nil {
			// Integer literal too large for int64; keep it as a float.
			f, ferr := val.Float64()
			if ferr != nil {
				return nil, fmt.Errorf("number out of range: %s", s)
			}
			return Float(f), nil
		}
		return Int(n), nil
	case Scalar:
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported cell type: %T", v)
	}
}

// UnmarshalScalar decodes a single JSON value into the closed enum.
func UnmarshalScalar(data []byte) (Scalar, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return ScalarFromAny(raw)
}

// DisplayScalar renders a cell for human-readable messages: strings
// quoted, numbers in shortest decimal form.
func DisplayScalar(s Scalar) string {
	switch v := s.(type) {
	case Null:
		return "null"
	case String:
		return strconv.Quote(string(v))
	case Int:
		return strconv.FormatInt(int64(v), 10)
	case Float:
		return strconv.FormatFloat(float64(v), 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(v))
	default:
		return fmt.Sprintf("%v", s)
	}
}

// MarshalScalar marshals a cell to display JSON (not canonical form).
func MarshalScalar(s Scalar) ([]byte, error) {
	switch v := s.(type) {
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(v))
	case Int:
		return json.Marshal(int64(v))
	case Float:
		if err := CheckFloat(float64(v)); err != nil {
			return nil, err
		}
		return json.Marshal(float64(v))
	case Bool:
		return json.Marshal(bool(v))
	default:
		return nil, fmt.Errorf("unknown Scalar type: %T", s)
	}
}
