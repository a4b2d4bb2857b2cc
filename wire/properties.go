package wire

import (
	amqp "github.com/cordio/amqp91"
	"github.com/pkg/errors"
)

// EncodeProperties renders p's present fields (p.Normalize() decides
// presence) in property-index order, returning the property-flags word
// and the encoded property bytes that follow it in a content header
// frame.
func EncodeProperties(p amqp.BasicProperties) (uint16, []byte, error) {
	p.Normalize()
	buf := GetBuffer()
	defer PutBuffer(buf)

	write := func(bit int, kind Kind, v any) error {
		if !p.IsSet(bit) {
			return nil
		}
		return WriteNative(buf, kind, v)
	}

	fields := []struct {
		bit  int
		kind Kind
		v    any
	}{
		{0, KindShortString, p.ContentType},
		{1, KindShortString, p.ContentEncoding},
		{2, KindFieldTable, p.Headers},
		{3, KindShortShortUint, p.DeliveryMode},
		{4, KindShortShortUint, p.Priority},
		{5, KindShortString, p.CorrelationID},
		{6, KindShortString, p.ReplyTo},
		{7, KindShortString, p.Expiration},
		{8, KindShortString, p.MessageID},
		{9, KindTimestamp, p.Timestamp},
		{10, KindShortString, p.Type},
		{11, KindShortString, p.UserID},
		{12, KindShortString, p.AppID},
	}
	for _, f := range fields {
		if err := write(f.bit, f.kind, f.v); err != nil {
			return 0, nil, errors.Wrap(err, "wire: encode properties")
		}
	}
	return p.Flags(), append([]byte(nil), buf.B...), nil
}

// DecodeProperties reads the properties present according to flags from
// r, in property-index order.
func DecodeProperties(flags uint16, r byteReader) (amqp.BasicProperties, error) {
	var p amqp.BasicProperties
	p.SetFlags(flags)

	read := func(bit int, kind Kind) (any, error) {
		if !p.IsSet(bit) {
			return nil, nil
		}
		return ReadNative(r, kind)
	}

	var err error
	var v any

	if v, err = read(0, KindShortString); err != nil {
		return p, errors.Wrap(err, "content_type")
	} else if v != nil {
		p.ContentType = v.(string)
	}
	if v, err = read(1, KindShortString); err != nil {
		return p, errors.Wrap(err, "content_encoding")
	} else if v != nil {
		p.ContentEncoding = v.(string)
	}
	if v, err = read(2, KindFieldTable); err != nil {
		return p, errors.Wrap(err, "headers")
	} else if v != nil {
		p.Headers = v.(amqp.Table)
	}
	if v, err = read(3, KindShortShortUint); err != nil {
		return p, errors.Wrap(err, "delivery_mode")
	} else if v != nil {
		p.DeliveryMode = v.(byte)
	}
	if v, err = read(4, KindShortShortUint); err != nil {
		return p, errors.Wrap(err, "priority")
	} else if v != nil {
		p.Priority = v.(byte)
	}
	if v, err = read(5, KindShortString); err != nil {
		return p, errors.Wrap(err, "correlation_id")
	} else if v != nil {
		p.CorrelationID = v.(string)
	}
	if v, err = read(6, KindShortString); err != nil {
		return p, errors.Wrap(err, "reply_to")
	} else if v != nil {
		p.ReplyTo = v.(string)
	}
	if v, err = read(7, KindShortString); err != nil {
		return p, errors.Wrap(err, "expiration")
	} else if v != nil {
		p.Expiration = v.(string)
	}
	if v, err = read(8, KindShortString); err != nil {
		return p, errors.Wrap(err, "message_id")
	} else if v != nil {
		p.MessageID = v.(string)
	}
	if v, err = read(9, KindTimestamp); err != nil {
		return p, errors.Wrap(err, "timestamp")
	} else if v != nil {
		p.Timestamp = v.(amqp.Timestamp)
	}
	if v, err = read(10, KindShortString); err != nil {
		return p, errors.Wrap(err, "type")
	} else if v != nil {
		p.Type = v.(string)
	}
	if v, err = read(11, KindShortString); err != nil {
		return p, errors.Wrap(err, "user_id")
	} else if v != nil {
		p.UserID = v.(string)
	}
	if v, err = read(12, KindShortString); err != nil {
		return p, errors.Wrap(err, "app_id")
	} else if v != nil {
		p.AppID = v.(string)
	}
	return p, nil
}
