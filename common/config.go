package common

import (
	"fmt"
	"strconv"
	"time"
)

// The goal of this package is to move configuration to a mostly runtime
// consideration.  Lookups are always "optional": a missing key yields the
// supplied default, while a key of the wrong type panics.  A mistyped
// configuration is a programming error and should terminate the program as
// soon as possible.

// In order to support a more robust configuration system, some config
// values will be encoded as different types than what is returned.
// For example, durations will not be stored in explicit time.Duration
// format, but instead will be stored as a normal integer (type: int)
// and interpreted as milliseconds.   This should allow for a nice balance
// between compile time guarantees and operational simplicity.
type ConfigType string

const (
	Bool     = "bool"
	Int      = "int"
	String   = "string"
	Duration = "int(milliseconds)"
)

type ConfigMissingError struct {
	key string
}

func (c ConfigMissingError) Error() string {
	return fmt.Sprintf("Config is missing key [%s]", c.key)
}

type ConfigParsingError struct {
	expected ConfigType
	key      string
	val      interface{}
}

func (c ConfigParsingError) Error() string {
	return fmt.Sprintf("Error parsing config key [%s].  Expected type [%s], which can't be converted from [%v]", c.key, c.expected, c.val)
}

func newConfigMissingError(key string) ConfigMissingError {
	return ConfigMissingError{key}
}

func newConfigParsingError(expected ConfigType, key string, val interface{}) ConfigParsingError {
	return ConfigParsingError{expected, key, val}
}

type Config interface {
	OptionalInt(key string, def int) int
	OptionalBool(key string, def bool) bool
	OptionalString(key string, def string) string
	OptionalDuration(key string, def time.Duration) time.Duration
}

func NewEmptyConfig() Config {
	return NewConfig(nil)
}

func NewConfig(internal map[string]interface{}) Config {
	if internal == nil {
		internal = make(map[string]interface{})
	}

	return &config{internal}
}

type config struct {
	internal map[string]interface{}
}

func (c *config) OptionalInt(key string, def int) int {
	val, err := readInt(c.internal, key)
	return optional(err, val, def).(int)
}

func (c *config) OptionalBool(key string, def bool) bool {
	val, err := readBool(c.internal, key)
	return optional(err, val, def).(bool)
}

func (c *config) OptionalString(key string, def string) string {
	val, err := readString(c.internal, key)
	return optional(err, val, def).(string)
}

func (c *config) OptionalDuration(key string, def time.Duration) time.Duration {
	val, err := readDuration(c.internal, key)
	return optional(err, val, def).(time.Duration)
}

func optional(err error, val interface{}, def interface{}) interface{} {
	if err == nil {
		return val
	}

	switch err.(type) {
	case ConfigMissingError:
		return def
	}

	panic(err)
}

func readInt(m map[string]interface{}, key string) (int, error) {
	val, ok := m[key]
	if !ok {
		return 0, newConfigMissingError(key)
	}

	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	case string:
		if ret, err := strconv.Atoi(v); err == nil {
			return ret, nil
		}
	}

	return 0, newConfigParsingError(Int, key, val)
}

func readBool(m map[string]interface{}, key string) (bool, error) {
	val, ok := m[key]
	if !ok {
		return false, newConfigMissingError(key)
	}

	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		if ret, err := strconv.ParseBool(v); err == nil {
			return ret, nil
		}
	}

	return false, newConfigParsingError(Bool, key, val)
}

func readString(m map[string]interface{}, key string) (string, error) {
	val, ok := m[key]
	if !ok {
		return "", newConfigMissingError(key)
	}

	ret, ok := val.(string)
	if !ok {
		return "", newConfigParsingError(String, key, val)
	}

	return ret, nil
}

func readDuration(m map[string]interface{}, key string) (time.Duration, error) {
	ret, err := readInt(m, key)
	if err != nil {
		if _, ok := err.(ConfigParsingError); ok {
			return 0, newConfigParsingError(Duration, key, m[key])
		}
		return 0, err
	}

	return time.Duration(ret) * time.Millisecond, nil
}
