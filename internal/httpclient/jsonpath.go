package httpclient

import (
	"fmt"
	"math"
	"strconv"

	"github.com/PaesslerAG/jsonpath"
)

// Lookup evaluates a JSONPath expression against a decoded document.
// A single-element result list is unwrapped to its element.
func Lookup(doc interface{}, path string) (interface{}, error) {
	val, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", path, err)
	}
	if list, ok := val.([]interface{}); ok && len(list) == 1 {
		val = list[0]
	}
	return val, nil
}

// LookupFloat evaluates path and coerces the result to a float64.
// Missing values return NaN without an error.
func LookupFloat(doc interface{}, path string) float64 {
	val, err := Lookup(doc, path)
	if err != nil {
		return math.NaN()
	}
	return ToFloat(val)
}

// LookupString evaluates path and coerces the result to a string.
func LookupString(doc interface{}, path string) string {
	val, err := Lookup(doc, path)
	if err != nil || val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprint(val)
}

// ToFloat converts JSON scalars to float64, returning NaN when not numeric.
func ToFloat(val interface{}) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
