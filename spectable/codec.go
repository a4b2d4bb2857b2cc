package spectable

import (
	"bytes"

	"github.com/cordio/amqp91/wire"
	"github.com/pkg/errors"
)

// EncodeArgs serializes values against m's argument kind list, applying
// the bit-packing rule for consecutive `bit` arguments.
func EncodeArgs(m MethodSpec, values []any) ([]byte, error) {
	if len(values) != len(m.Args) {
		return nil, errors.Errorf("%s.%s: expected %d arguments, got %d", m.ClassName, m.Name, len(m.Args), len(values))
	}
	buf := wire.GetBuffer()
	defer wire.PutBuffer(buf)
	if err := wire.WriteNativeSequence(buf, m.Kinds(), values); err != nil {
		return nil, errors.Wrapf(err, "%s.%s", m.ClassName, m.Name)
	}
	return append([]byte(nil), buf.B...), nil
}

// DecodeArgs parses data against m's argument kind list.
func DecodeArgs(m MethodSpec, data []byte) ([]any, error) {
	values, err := wire.ReadNativeSequence(bytes.NewReader(data), m.Kinds())
	if err != nil {
		return nil, errors.Wrapf(err, "%s.%s", m.ClassName, m.Name)
	}
	return values, nil
}
