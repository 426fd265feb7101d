package decode

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// Options tunes Map.
type Options struct {
	// "123" -> int, 1.0 -> int64, 42 -> "42"
	WeaklyTypedInput bool
}

func DefaultOptions() Options {
	return Options{WeaklyTypedInput: true}
}

// Map decodes a generic JSON object into T using `json` tags.
// Unknown keys are ignored.
func Map[T any](m map[string]any, opts ...Options) (*T, error) {
	if m == nil {
		return nil, fmt.Errorf("map is nil")
	}
	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			floatToStringHook(),
			floatToIntHook(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	return &out, nil
}

// ReadString returns m[key] as a string; numbers are formatted without exponent.
func ReadString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch t := m[key].(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// ReadID returns m[key] as an id. A nested object such as {"_id": "u-1", "username": "ann"}
// yields its "_id", or "id" when "_id" is absent. Anything else yields "".
func ReadID(m map[string]any, key string) string {
	if s := ReadString(m, key); s != "" {
		return s
	}
	nested, ok := m[key].(map[string]any)
	if !ok {
		return ""
	}
	if s := ReadString(nested, "_id"); s != "" {
		return s
	}
	return ReadString(nested, "id")
}

// floatToStringHook keeps large numeric ids readable ("1700000000000" instead of "1.7e+12").
func floatToStringHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 || to != reflect.String {
			return data, nil
		}
		return strconv.FormatFloat(data.(float64), 'f', -1, 64), nil
	}
}

func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}
