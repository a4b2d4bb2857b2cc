package wire

import "github.com/pkg/errors"

// WriteNativeSequence writes values in order according to kinds, applying
// the bit-packing rule: consecutive `bit` kinds are coalesced into
// octets, low bit first, flushed when 8 bits have accumulated, when a
// non-bit kind follows, or at the end of the sequence.
func WriteNativeSequence(w byteWriter, kinds []Kind, values []any) error {
	if len(kinds) != len(values) {
		return errors.New("wire: kinds/values length mismatch")
	}
	var pending byte
	var nbits int

	flush := func() error {
		if nbits == 0 {
			return nil
		}
		if err := w.WriteByte(pending); err != nil {
			return err
		}
		pending = 0
		nbits = 0
		return nil
	}

	for i, kind := range kinds {
		if kind == KindBit {
			b, ok := values[i].(bool)
			if !ok {
				return errors.Wrapf(ErrTypeMismatch, "bit argument %d", i)
			}
			if b {
				pending |= 1 << uint(nbits)
			}
			nbits++
			if nbits == 8 {
				if err := flush(); err != nil {
					return err
				}
			}
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if err := WriteNative(w, kind, values[i]); err != nil {
			return errors.Wrapf(err, "argument %d (%v)", i, kind)
		}
	}
	return flush()
}

// ReadNativeSequence reads len(kinds) values according to kinds, mirroring
// the bit-packing rule: on the first non-bit argument (or at the end) it
// consumes ceil(pending_bits/8) bytes and expands them into booleans
// before decoding the next non-bit value.
func ReadNativeSequence(r byteReader, kinds []Kind) ([]any, error) {
	values := make([]any, len(kinds))
	var bitsAvailable int
	var current byte

	nextBit := func() (bool, error) {
		if bitsAvailable == 0 {
			b, err := r.ReadByte()
			if err != nil {
				return false, ErrTruncated
			}
			current = b
			bitsAvailable = 8
		}
		bit := current&1 != 0
		current >>= 1
		bitsAvailable--
		return bit, nil
	}

	for i, kind := range kinds {
		if kind == KindBit {
			b, err := nextBit()
			if err != nil {
				return nil, errors.Wrapf(err, "bit argument %d", i)
			}
			values[i] = b
			continue
		}
		// A non-bit argument flushes any partially-consumed bit byte —
		// the remaining bits in `current` belong to no later argument.
		bitsAvailable = 0
		v, err := ReadNative(r, kind)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d (%v)", i, kind)
		}
		values[i] = v
	}
	return values, nil
}
