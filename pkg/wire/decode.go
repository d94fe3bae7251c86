package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"
)

// MaxLength bounds every decoded string or slice length.
const MaxLength = 1 << 24

// Unmarshal decodes data into the value dst points to. Every byte of data
// must be consumed.
func Unmarshal(data []byte, dst any) error {
	r := bytes.NewReader(data)
	if err := NewDecoder(r).Decode(dst); err != nil {
		return err
	}
	if r.Len() > 0 {
		return fmt.Errorf("%w: %d left", ErrTrailingBytes, r.Len())
	}
	return nil
}

// Decoder reads encoded values from a stream.
type Decoder struct {
	r io.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func (d *Decoder) Decode(dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("%w: decode target %T is not a non-nil pointer", ErrUnsupportedType, dst)
	}
	return d.decode(v.Elem())
}

func (d *Decoder) read(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortBuffer
		}
		return nil, err
	}
	return b, nil
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) decodeLength() (int, error) {
	prefix, err := d.readByte()
	if err != nil {
		return 0, err
	}
	tail, err := d.read(compactTail(prefix))
	if err != nil {
		return 0, err
	}
	n := decodeCompact(prefix, tail)
	if n > MaxLength {
		return 0, fmt.Errorf("%w: %d", ErrTooLarge, n)
	}
	return int(n), nil
}

func (d *Decoder) decode(v reflect.Value) error {
	if v.Type() == timeType {
		b, err := d.read(8)
		if err != nil {
			return err
		}
		var t time.Time
		if ns := int64(decodeFixed(b)); ns != 0 {
			t = time.Unix(0, ns).UTC()
		}
		v.Set(reflect.ValueOf(t))
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		b, err := d.readByte()
		if err != nil {
			return err
		}
		switch b {
		case 0x00:
			v.SetBool(false)
		case 0x01:
			v.SetBool(true)
		default:
			return ErrInvalidBool
		}
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		b, err := d.read(width(v.Kind()))
		if err != nil {
			return err
		}
		v.SetUint(decodeFixed(b))
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		b, err := d.read(width(v.Kind()))
		if err != nil {
			return err
		}
		v.SetInt(signExtend(decodeFixed(b), len(b)))
	case reflect.String:
		n, err := d.decodeLength()
		if err != nil {
			return err
		}
		b, err := d.read(n)
		if err != nil {
			return err
		}
		v.SetString(string(b))
	case reflect.Slice:
		return d.decodeSlice(v)
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := d.decode(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Pointer:
		return d.decodePointer(v)
	case reflect.Struct:
		return d.decodeStruct(v)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, v.Type())
	}
	return nil
}

func signExtend(x uint64, size int) int64 {
	shift := 64 - 8*size
	return int64(x<<shift) >> shift
}

func (d *Decoder) decodeSlice(v reflect.Value) error {
	n, err := d.decodeLength()
	if err != nil {
		return err
	}
	if n == 0 {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	if v.Type().Elem().Kind() == reflect.Uint8 {
		b, err := d.read(n)
		if err != nil {
			return err
		}
		v.SetBytes(b)
		return nil
	}
	s := reflect.MakeSlice(v.Type(), n, n)
	for i := 0; i < n; i++ {
		if err := d.decode(s.Index(i)); err != nil {
			return err
		}
	}
	v.Set(s)
	return nil
}

func (d *Decoder) decodePointer(v reflect.Value) error {
	marker, err := d.readByte()
	if err != nil {
		return err
	}
	switch marker {
	case 0x00:
		v.Set(reflect.Zero(v.Type()))
		return nil
	case 0x01:
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return d.decode(v.Elem())
	}
	return ErrInvalidPointer
}

func (d *Decoder) decodeStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("wire") == "-" {
			continue
		}
		if err := d.decode(v.Field(i)); err != nil {
			return fmt.Errorf(errDecodingField, field.Name, err)
		}
	}
	return nil
}
