package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	amqp "github.com/cordio/amqp91"
	"github.com/pkg/errors"
)

// byteReader is the minimal surface ReadNative/ReadValue need. *bytes.Reader
// and *bytes.Buffer both satisfy it.
type byteReader interface {
	io.Reader
	io.ByteReader
}

// byteWriter is the minimal surface WriteNative/WriteValue need.
type byteWriter interface {
	io.Writer
	io.ByteWriter
}

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, errors.Wrap(err, "wire: read")
	}
	return buf, nil
}

// ReadNative reads one value of the given kind with no leading type tag —
// used inside method-argument blocks and content headers where the type
// is implicit from the spec table. KindBit must never be passed here; use
// ReadNativeSequence instead.
func ReadNative(r byteReader, kind Kind) (any, error) {
	switch kind {
	case KindBoolean:
		b, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		return b != 0, nil
	case KindShortShortInt:
		b, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		return int8(b), nil
	case KindShortShortUint:
		b, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		return b, nil
	case KindShortInt:
		buf, err := readFull(r, 2)
		if err != nil {
			return nil, err
		}
		return int16(binary.BigEndian.Uint16(buf)), nil
	case KindShortUint:
		buf, err := readFull(r, 2)
		if err != nil {
			return nil, err
		}
		return binary.BigEndian.Uint16(buf), nil
	case KindLongInt:
		buf, err := readFull(r, 4)
		if err != nil {
			return nil, err
		}
		return int32(binary.BigEndian.Uint32(buf)), nil
	case KindLongUint:
		buf, err := readFull(r, 4)
		if err != nil {
			return nil, err
		}
		return binary.BigEndian.Uint32(buf), nil
	case KindLongLongInt:
		buf, err := readFull(r, 8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(buf)), nil
	case KindLongLongUint:
		buf, err := readFull(r, 8)
		if err != nil {
			return nil, err
		}
		return binary.BigEndian.Uint64(buf), nil
	case KindFloat:
		buf, err := readFull(r, 4)
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(binary.BigEndian.Uint32(buf)), nil
	case KindDouble:
		buf, err := readFull(r, 8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
	case KindDecimal:
		scale, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		buf, err := readFull(r, 4)
		if err != nil {
			return nil, err
		}
		return amqp.Decimal{Scale: scale, Value: int32(binary.BigEndian.Uint32(buf))}, nil
	case KindShortString:
		return readShortString(r)
	case KindLongString:
		return readLongString(r)
	case KindByteArray:
		return readByteArray(r)
	case KindFieldArray:
		return readFieldArray(r)
	case KindTimestamp:
		buf, err := readFull(r, 8)
		if err != nil {
			return nil, err
		}
		return amqp.Timestamp(int64(binary.BigEndian.Uint64(buf))), nil
	case KindFieldTable:
		return readFieldTable(r)
	case KindVoid:
		return nil, nil
	default:
		return nil, errors.Wrapf(ErrInvalidTag, "kind %v", kind)
	}
}

// WriteNative writes v, whose Go type must match kind, with no leading
// type tag. KindBit must never be passed here; use WriteNativeSequence.
func WriteNative(w byteWriter, kind Kind, v any) error {
	switch kind {
	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return ErrTypeMismatch
		}
		if b {
			return w.WriteByte(1)
		}
		return w.WriteByte(0)
	case KindShortShortInt:
		n, ok := v.(int8)
		if !ok {
			return ErrTypeMismatch
		}
		return w.WriteByte(byte(n))
	case KindShortShortUint:
		n, ok := v.(uint8)
		if !ok {
			return ErrTypeMismatch
		}
		return w.WriteByte(n)
	case KindShortInt:
		n, ok := v.(int16)
		if !ok {
			return ErrTypeMismatch
		}
		return writeUint16(w, uint16(n))
	case KindShortUint:
		n, ok := v.(uint16)
		if !ok {
			return ErrTypeMismatch
		}
		return writeUint16(w, n)
	case KindLongInt:
		n, ok := v.(int32)
		if !ok {
			return ErrTypeMismatch
		}
		return writeUint32(w, uint32(n))
	case KindLongUint:
		n, ok := v.(uint32)
		if !ok {
			return ErrTypeMismatch
		}
		return writeUint32(w, n)
	case KindLongLongInt:
		n, ok := v.(int64)
		if !ok {
			return ErrTypeMismatch
		}
		return writeUint64(w, uint64(n))
	case KindLongLongUint:
		n, ok := v.(uint64)
		if !ok {
			return ErrTypeMismatch
		}
		return writeUint64(w, n)
	case KindFloat:
		n, ok := v.(float32)
		if !ok {
			return ErrTypeMismatch
		}
		return writeUint32(w, math.Float32bits(n))
	case KindDouble:
		n, ok := v.(float64)
		if !ok {
			return ErrTypeMismatch
		}
		return writeUint64(w, math.Float64bits(n))
	case KindDecimal:
		d, ok := v.(amqp.Decimal)
		if !ok {
			return ErrTypeMismatch
		}
		if err := w.WriteByte(d.Scale); err != nil {
			return err
		}
		return writeUint32(w, uint32(d.Value))
	case KindShortString:
		s, ok := v.(string)
		if !ok {
			return ErrTypeMismatch
		}
		return writeShortString(w, s)
	case KindLongString:
		s, ok := v.(string)
		if !ok {
			return ErrTypeMismatch
		}
		return writeLongString(w, []byte(s))
	case KindByteArray:
		b, ok := v.([]byte)
		if !ok {
			return ErrTypeMismatch
		}
		return writeByteArray(w, b)
	case KindFieldArray:
		a, ok := v.(amqp.FieldArray)
		if !ok {
			return ErrTypeMismatch
		}
		return writeFieldArray(w, a)
	case KindTimestamp:
		t, ok := v.(amqp.Timestamp)
		if !ok {
			return ErrTypeMismatch
		}
		return writeUint64(w, uint64(t))
	case KindFieldTable:
		t, ok := v.(amqp.Table)
		if !ok {
			return ErrTypeMismatch
		}
		return writeFieldTable(w, t)
	case KindVoid:
		return nil
	default:
		return errors.Wrapf(ErrInvalidTag, "kind %v", kind)
	}
}

func writeUint16(w io.Writer, n uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], n)
	_, err := w.Write(buf[:])
	return err
}

func writeUint32(w io.Writer, n uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w io.Writer, n uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	_, err := w.Write(buf[:])
	return err
}

func readShortString(r byteReader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", ErrTruncated
	}
	buf, err := readFull(r, int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeShortString(w byteWriter, s string) error {
	if len(s) > 255 {
		return ErrStringTooLong
	}
	if err := w.WriteByte(byte(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readLongString(r byteReader) (string, error) {
	lbuf, err := readFull(r, 4)
	if err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(lbuf)
	buf, err := readFull(r, int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeLongString(w byteWriter, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readByteArray reads a 4-byte length followed by that many raw bytes —
// the same framing as a long string, but returned as []byte rather than
// interpreted as text.
func readByteArray(r byteReader) ([]byte, error) {
	lbuf, err := readFull(r, 4)
	if err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lbuf)
	return readFull(r, int(n))
}

func writeByteArray(w byteWriter, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readFieldArray(r byteReader) (amqp.FieldArray, error) {
	lbuf, err := readFull(r, 4)
	if err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lbuf)
	body, err := readFull(r, int(n))
	if err != nil {
		return nil, err
	}
	br := bytes.NewReader(body)
	arr := amqp.FieldArray{}
	for br.Len() > 0 {
		_, v, err := ReadValue(br)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	return arr, nil
}

func writeFieldArray(w byteWriter, arr amqp.FieldArray) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	for _, v := range arr {
		if err := WriteValue(buf, v); err != nil {
			return err
		}
	}
	return writeLongString(w, buf.B)
}

func readFieldTable(r byteReader) (amqp.Table, error) {
	lbuf, err := readFull(r, 4)
	if err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lbuf)
	body, err := readFull(r, int(n))
	if err != nil {
		return nil, err
	}
	br := bytes.NewReader(body)
	table := amqp.Table{}
	for br.Len() > 0 {
		key, err := readShortString(br)
		if err != nil {
			return nil, err
		}
		_, v, err := ReadValue(br)
		if err != nil {
			return nil, err
		}
		table[key] = v
	}
	return table, nil
}

func writeFieldTable(w byteWriter, t amqp.Table) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	for k, v := range t {
		if err := writeShortString(buf, k); err != nil {
			return err
		}
		if err := WriteValue(buf, v); err != nil {
			return err
		}
	}
	return writeLongString(w, buf.B)
}
