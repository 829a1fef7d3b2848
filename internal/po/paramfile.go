package po

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"research-terminal/internal/errors"
)

// ReadParamsFile parses an .ini parameter file. Sections are ignored and keys are template
// (or native) parameter names. Unknown keys are returned separately instead of failing.
func ReadParamsFile(path string) (map[string]interface{}, []string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".ini") {
		return nil, nil, fmt.Errorf("%w: %s (expected .ini)", errors.ErrUnsupportedFormat, path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	params := make(map[string]interface{})
	var unknown []string
	for key, raw := range flatten(v.AllSettings()) {
		p, ok := resolve(key)
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" && p.Type() != TypeString {
			continue
		}
		val, err := p.Validate(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		params[p.Name()] = val
	}
	sort.Strings(unknown)
	return params, unknown, nil
}

// flatten drops the section level of an ini document, keeping the last key segment.
func flatten(settings map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	var walk func(map[string]interface{})
	walk = func(m map[string]interface{}) {
		for k, v := range m {
			if nested, ok := v.(map[string]interface{}); ok {
				walk(nested)
				continue
			}
			out[k] = v
		}
	}
	walk(settings)
	return out
}

// SetParamsFromFile loads an .ini parameter file into the engine. Unknown keys are logged
// and skipped, invalid values fail the whole load.
func (e *Engine) SetParamsFromFile(path string) error {
	params, unknown, err := ReadParamsFile(path)
	if err != nil {
		return err
	}
	for _, key := range unknown {
		e.logger.Warn().Str("file", path).Str("key", key).Msg("Ignoring unknown parameter")
	}
	return e.SetParams(params)
}

// WriteParamsFile writes parameters to an .ini file under a single [parameters] section.
func WriteParamsFile(path string, params map[string]interface{}) error {
	if !strings.EqualFold(filepath.Ext(path), ".ini") {
		return fmt.Errorf("%w: %s (expected .ini)", errors.ErrUnsupportedFormat, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("ini")
	for k, val := range params {
		v.Set("parameters."+k, fmt.Sprint(val))
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
