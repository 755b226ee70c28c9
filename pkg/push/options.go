package push

import (
	"fmt"
	"net/http"
	"time"
)

// Options is the per-gateway/middleware configuration mapping. Gateways merge
// caller options over their backend defaults and validate required keys before
// performing any setup.
type Options map[string]any

// Merge returns a new mapping with defaults laid beneath o. Caller-supplied
// values always win. Neither input is modified.
func (o Options) Merge(defaults Options) Options {
	out := make(Options, len(defaults)+len(o))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Require fails with *OptionError on the first key that is absent, nil, or an
// empty string.
func (o Options) Require(keys ...string) error {
	for _, key := range keys {
		v, ok := o[key]
		if !ok || v == nil {
			return &OptionError{Key: key, Reason: "required option is missing"}
		}
		if s, isString := v.(string); isString && s == "" {
			return &OptionError{Key: key, Reason: "required option is empty"}
		}
	}
	return nil
}

// String returns the value for key as a string, or "" when absent or of
// another type. Non-string scalars from YAML are formatted.
func (o Options) String(key string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return ""
	}
	if s, isString := v.(string); isString {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Bool returns the value for key as a bool, false when absent.
func (o Options) Bool(key string) bool {
	b, _ := o[key].(bool)
	return b
}

// Int returns the value for key as an int, 0 when absent.
func (o Options) Int(key string) int {
	switch n := o[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// Duration returns the value for key as a time.Duration. String values are
// parsed with time.ParseDuration; integers are taken as seconds.
func (o Options) Duration(key string) time.Duration {
	switch v := o[key].(type) {
	case time.Duration:
		return v
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0
		}
		return d
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v) * time.Second
	}
	return 0
}

// Transport returns the value for key as an http.RoundTripper, nil when the
// key is absent or holds another type. Used by the "adapter" option to swap
// the HTTP transport of a gateway.
func (o Options) Transport(key string) http.RoundTripper {
	t, _ := o[key].(http.RoundTripper)
	return t
}

// Sub returns the nested mapping under key, nil when absent. Used for
// passthrough blocks such as "connection".
func (o Options) Sub(key string) Options {
	switch m := o[key].(type) {
	case Options:
		return m
	case map[string]any:
		return Options(m)
	}
	return nil
}
