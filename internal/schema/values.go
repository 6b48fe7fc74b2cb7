package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/typemap"
	"github.com/arkilian/vectorlayer/pkg/types"
)

func invalid(kind types.FieldKind, v interface{}) error {
	return lerrors.NewValidationError(lerrors.CodeInvalidValue,
		fmt.Sprintf("cannot store %v (%T) as %s", v, v, kind))
}

// EncodeValue converts a caller-supplied value to its storage form. nil is
// stored as NULL.
func EncodeValue(kind types.FieldKind, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case types.FieldInteger:
		return encodeInteger(v)
	case types.FieldReal:
		return encodeReal(v)
	case types.FieldString:
		switch s := v.(type) {
		case string:
			return s, nil
		case fmt.Stringer:
			return s.String(), nil
		}
		return fmt.Sprint(v), nil
	case types.FieldDate, types.FieldTime, types.FieldDateTime:
		return encodeTime(kind, v)
	}
	return nil, invalid(kind, v)
}

func encodeInteger(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, invalid(types.FieldInteger, v)
		}
		return int64(n), nil
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil, invalid(types.FieldInteger, v)
		}
		return i, nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, invalid(types.FieldInteger, v)
		}
		return i, nil
	}
	return nil, invalid(types.FieldInteger, v)
}

func encodeReal(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, invalid(types.FieldReal, v)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, invalid(types.FieldReal, v)
		}
		return f, nil
	}
	return nil, invalid(types.FieldReal, v)
}

func encodeTime(kind types.FieldKind, v interface{}) (interface{}, error) {
	layout, _ := typemap.Layout(kind)
	switch t := v.(type) {
	case time.Time:
		return t.Format(layout), nil
	case string:
		parsed, err := parseTime(kind, t)
		if err != nil {
			return nil, invalid(kind, v)
		}
		return parsed.Format(layout), nil
	}
	return nil, invalid(kind, v)
}

func parseTime(kind types.FieldKind, s string) (time.Time, error) {
	layout, _ := typemap.Layout(kind)
	if t, err := time.Parse(layout, s); err == nil {
		return t, nil
	}
	if kind == types.FieldDateTime {
		return time.Parse(time.RFC3339, s)
	}
	return time.Time{}, fmt.Errorf("%q does not match %s", s, layout)
}

// DecodeValue converts a scanned column value to the Go type of kind:
// int64, float64, string or time.Time.
func DecodeValue(kind types.FieldKind, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch kind {
	case types.FieldInteger:
		switch n := raw.(type) {
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		}
	case types.FieldReal:
		switch n := raw.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
	case types.FieldString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprint(raw), nil
	case types.FieldDate, types.FieldTime, types.FieldDateTime:
		switch t := raw.(type) {
		case string:
			parsed, err := parseTime(kind, t)
			if err != nil {
				return nil, lerrors.NewInternalError("decode stored "+string(kind), err)
			}
			return parsed, nil
		case time.Time:
			return t, nil
		}
	}
	return nil, lerrors.NewInternalError(fmt.Sprintf("decode stored %s from %T", kind, raw), nil)
}
