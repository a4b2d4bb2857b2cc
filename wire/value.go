package wire

import (
	amqp "github.com/cordio/amqp91"
	"github.com/pkg/errors"
)

func kindOfExtended(v any) (Kind, bool) {
	switch v.(type) {
	case amqp.Decimal:
		return KindDecimal, true
	case amqp.FieldArray:
		return KindFieldArray, true
	case amqp.Timestamp:
		return KindTimestamp, true
	case amqp.Table:
		return KindFieldTable, true
	default:
		return 0, false
	}
}

// ReadValue reads a 1-octet type tag followed by the tagged value.
func ReadValue(r byteReader) (Kind, any, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return 0, nil, ErrTruncated
	}
	kind := Kind(tag)
	v, err := ReadNative(r, kind)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "reading tagged value of kind %v", kind)
	}
	return kind, v, nil
}

// WriteValue writes the tag implied by v's Go type, then the value itself.
func WriteValue(w byteWriter, v any) error {
	kind, err := kindOf(v)
	if err != nil {
		return err
	}
	if err := w.WriteByte(byte(kind)); err != nil {
		return err
	}
	return WriteNative(w, kind, v)
}

// kindOf infers the wire Kind from v's Go type, for callers building a
// Table or FieldArray from plain Go values.
func kindOf(v any) (Kind, error) {
	switch v.(type) {
	case nil:
		return KindVoid, nil
	case bool:
		return KindBoolean, nil
	case int8:
		return KindShortShortInt, nil
	case uint8:
		return KindShortShortUint, nil
	case int16:
		return KindShortInt, nil
	case uint16:
		return KindShortUint, nil
	case int32:
		return KindLongInt, nil
	case uint32:
		return KindLongUint, nil
	case int64:
		return KindLongLongInt, nil
	case uint64:
		return KindLongLongUint, nil
	case float32:
		return KindFloat, nil
	case float64:
		return KindDouble, nil
	case string:
		if len(v.(string)) <= 255 {
			return KindShortString, nil
		}
		return KindLongString, nil
	case []byte:
		return KindByteArray, nil
	default:
		if k, ok := kindOfExtended(v); ok {
			return k, nil
		}
		return 0, errors.Wrapf(ErrTypeMismatch, "unsupported Go type %T", v)
	}
}
