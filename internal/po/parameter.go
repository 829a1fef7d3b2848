package po

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"research-terminal/internal/errors"
)

// ParamType is the declared type of a parameter value.
type ParamType string

const (
	TypeBool   ParamType = "bool"
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeString ParamType = "string"
)

// Parameter is an immutable description of one tunable optimizer input.
// It is validated once at construction and exposes read-only accessors.
type Parameter struct {
	name    string
	native  string
	typ     ParamType
	def     interface{}
	choices []interface{}
	help    string
}

// NewParameter builds a Parameter, rejecting a default that does not match its type or choices.
func NewParameter(name, native string, typ ParamType, def interface{}, choices []interface{}, help string) (Parameter, error) {
	p := Parameter{name: name, native: native, typ: typ, help: help}
	if native == "" {
		p.native = name
	}

	switch typ {
	case TypeBool, TypeInt, TypeFloat, TypeString:
	default:
		return Parameter{}, errors.NewParameterError(name, typ, errors.ErrInvalidType)
	}

	for _, c := range choices {
		v, err := p.coerce(c)
		if err != nil {
			return Parameter{}, errors.NewParameterError(name, c, err)
		}
		p.choices = append(p.choices, v)
	}

	v, err := p.coerce(def)
	if err != nil {
		return Parameter{}, errors.NewParameterError(name, def, err)
	}
	if !p.allowed(v) {
		return Parameter{}, errors.NewParameterError(name, def, errors.ErrInvalidChoice)
	}
	p.def = v

	return p, nil
}

func mustParameter(name, native string, typ ParamType, def interface{}, choices []interface{}, help string) Parameter {
	p, err := NewParameter(name, native, typ, def, choices, help)
	if err != nil {
		panic(err)
	}
	return p
}

// Name returns the user-facing template name.
func (p Parameter) Name() string { return p.name }

// Native returns the key the optimizers read.
func (p Parameter) Native() string { return p.native }

// Type returns the declared type.
func (p Parameter) Type() ParamType { return p.typ }

// Default returns the default value.
func (p Parameter) Default() interface{} { return p.def }

// Help returns the one-line description.
func (p Parameter) Help() string { return p.help }

// Choices returns a copy of the allowed values, empty when unconstrained.
func (p Parameter) Choices() []interface{} {
	return append([]interface{}(nil), p.choices...)
}

// Validate converts raw into the declared type and checks it against the choices.
func (p Parameter) Validate(raw interface{}) (interface{}, error) {
	v, err := p.coerce(raw)
	if err != nil {
		return nil, errors.NewParameterError(p.name, raw, err)
	}
	if !p.allowed(v) {
		return nil, errors.NewParameterError(p.name, raw,
			fmt.Errorf("%w: %s", errors.ErrInvalidChoice, p.choiceList()))
	}
	return v, nil
}

func (p Parameter) allowed(v interface{}) bool {
	if len(p.choices) == 0 {
		return true
	}
	for _, c := range p.choices {
		if s, ok := v.(string); ok {
			if cs, ok := c.(string); ok && strings.EqualFold(s, cs) {
				return true
			}
			continue
		}
		if c == v {
			return true
		}
	}
	return false
}

// canonical returns the choice spelling for a case-insensitive string match.
func (p Parameter) canonical(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	for _, c := range p.choices {
		if cs, ok := c.(string); ok && strings.EqualFold(s, cs) {
			return cs
		}
	}
	return v
}

func (p Parameter) choiceList() string {
	parts := make([]string, len(p.choices))
	for i, c := range p.choices {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, ", ")
}

func (p Parameter) coerce(raw interface{}) (interface{}, error) {
	switch p.typ {
	case TypeBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, errors.ErrInvalidType
			}
			return b, nil
		}
	case TypeInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == math.Trunc(v) {
				return int(v), nil
			}
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, errors.ErrInvalidType
			}
			return n, nil
		}
	case TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, errors.ErrInvalidType
			}
			return f, nil
		}
	case TypeString:
		switch v := raw.(type) {
		case string:
			return p.canonical(strings.TrimSpace(v)), nil
		}
	}
	return nil, errors.ErrInvalidType
}
