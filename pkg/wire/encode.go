package wire

import (
	"fmt"
	"io"
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// Marshal encodes v. Fixed-size integers are little-endian of their own
// width (int and uint take eight bytes), lengths of strings and slices use
// the compact natural format, structs are their exported fields in order,
// pointers carry a one byte presence marker and times are Unix nanoseconds
// (0 for the zero time).
// Fields tagged `wire:"-"` are skipped.
func Marshal(v any) ([]byte, error) {
	var e encoder
	if err := e.encode(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// Encoder writes encoded values to a stream.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (enc *Encoder) Encode(v any) error {
	b, err := Marshal(v)
	if err != nil {
		return err
	}
	_, err = enc.w.Write(b)
	return err
}

type encoder struct {
	buf []byte
}

func (e *encoder) encode(v reflect.Value) error {
	if !v.IsValid() {
		return fmt.Errorf("%w: nil", ErrUnsupportedType)
	}
	if v.Type() == timeType {
		var ns int64
		if t := v.Interface().(time.Time); !t.IsZero() {
			ns = t.UnixNano()
		}
		e.buf = appendFixed(e.buf, uint64(ns), 8)
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			e.buf = append(e.buf, 0x01)
		} else {
			e.buf = append(e.buf, 0x00)
		}
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		e.buf = appendFixed(e.buf, v.Uint(), width(v.Kind()))
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		e.buf = appendFixed(e.buf, uint64(v.Int()), width(v.Kind()))
	case reflect.String:
		e.encodeLength(v.Len())
		e.buf = append(e.buf, v.String()...)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			e.encodeLength(v.Len())
			e.buf = append(e.buf, v.Bytes()...)
			return nil
		}
		e.encodeLength(v.Len())
		return e.encodeElems(v)
	case reflect.Array:
		return e.encodeElems(v)
	case reflect.Pointer:
		if v.IsNil() {
			e.buf = append(e.buf, 0x00)
			return nil
		}
		e.buf = append(e.buf, 0x01)
		return e.encode(v.Elem())
	case reflect.Struct:
		return e.encodeStruct(v)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, v.Type())
	}
	return nil
}

func (e *encoder) encodeLength(n int) {
	e.buf = appendCompact(e.buf, uint64(n))
}

func (e *encoder) encodeElems(v reflect.Value) error {
	for i := 0; i < v.Len(); i++ {
		if err := e.encode(v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("wire") == "-" {
			continue
		}
		if err := e.encode(v.Field(i)); err != nil {
			return fmt.Errorf(errEncodingField, field.Name, err)
		}
	}
	return nil
}

// width is the encoded size of an integer kind. int and uint are always
// eight bytes.
func width(k reflect.Kind) int {
	switch k {
	case reflect.Uint8, reflect.Int8:
		return 1
	case reflect.Uint16, reflect.Int16:
		return 2
	case reflect.Uint32, reflect.Int32:
		return 4
	}
	return 8
}
