// Package parameters parses the comma-separated configuration strings used to
// select and configure the depth model, e.g. "conv,filters=32,ckpt=/tmp/depth".
package parameters

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Params maps configuration keys to their (still unparsed) string values.
type Params map[string]string

// NewFromConfigString splits a "key=value,key2,key3=value3" configuration
// string into Params. A key without "=" maps to the empty string, which the
// typed getters below interpret as "present" (true for booleans).
func NewFromConfigString(config string) Params {
	params := make(Params)
	for _, part := range strings.Split(config, ",") {
		if part == "" {
			continue
		}
		keyValue := strings.SplitN(part, "=", 2)
		if len(keyValue) == 1 {
			params[keyValue[0]] = ""
		} else {
			params[keyValue[0]] = keyValue[1]
		}
	}
	return params
}

// GetParamOr parses the value under key to the requested type, or returns
// defaultValue if the key is absent. Booleans accept a bare key, "true"/"1"
// and "false"/"0".
func GetParamOr[T interface {
	bool | int | float32 | float64 | string
}](params Params, key string, defaultValue T) (T, error) {
	var zero T
	toT := func(v any) T { return v.(T) }
	switch any(defaultValue).(type) {
	case string:
		if value, exists := params[key]; exists {
			return toT(value), nil
		}
	case int:
		if value, exists := params[key]; exists && value != "" {
			parsed, err := strconv.Atoi(value)
			if err != nil {
				return zero, errors.Wrapf(err, "failed to parse configuration %s=%q to int", key, value)
			}
			return toT(parsed), nil
		}
	case float32:
		if value, exists := params[key]; exists && value != "" {
			parsed, err := strconv.ParseFloat(value, 32)
			if err != nil {
				return zero, errors.Wrapf(err, "failed to parse configuration %s=%q to float", key, value)
			}
			return toT(float32(parsed)), nil
		}
	case float64:
		if value, exists := params[key]; exists && value != "" {
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return zero, errors.Wrapf(err, "failed to parse configuration %s=%q to float", key, value)
			}
			return toT(parsed), nil
		}
	case bool:
		if value, exists := params[key]; exists {
			switch strings.ToLower(value) {
			case "", "true", "1":
				return toT(true), nil
			case "false", "0":
				return toT(false), nil
			}
			return defaultValue, errors.Errorf("failed to parse configuration %s=%q to bool", key, value)
		}
	}
	return defaultValue, nil
}

// PopParamOr is like GetParamOr but also removes the key from params, so that
// AssertExhausted can later flag anything the caller never consumed.
func PopParamOr[T interface {
	bool | int | float32 | float64 | string
}](params Params, key string, defaultValue T) (T, error) {
	value, err := GetParamOr(params, key, defaultValue)
	if err != nil {
		return value, err
	}
	delete(params, key)
	return value, nil
}

// AssertExhausted returns an error listing any keys left in params.
// Call it after all PopParamOr calls: a leftover key is a typo or an option
// the selected model does not understand.
func AssertExhausted(params Params) error {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return errors.Errorf("unknown configuration parameter(s): %s", strings.Join(keys, ", "))
}
