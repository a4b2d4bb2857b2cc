// Package auth implements the SASL mechanisms the connection engine
// offers during Connection.StartOk.
package auth

import (
	"bytes"

	amqp "github.com/cordio/amqp91"
	"github.com/cordio/amqp91/wire"
)

// Mechanism is the contract the connection engine expects of a
// credential source: a SASL mechanism name advertised in StartOk and the
// opaque response bytes computed from the server's challenge (empty for
// the mechanisms below, which never challenge past the first round).
type Mechanism interface {
	Name() string
	Response(challenge []byte) ([]byte, error)
}

// Plain implements the SASL PLAIN mechanism (RFC 4616): the response is
// `authzid NUL authcid NUL passwd` with authzid left empty, i.e.
// `NUL username NUL password`.
type Plain struct {
	Username string
	Password string
}

func (p Plain) Name() string { return "PLAIN" }

func (p Plain) Response(challenge []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(0)
	buf.WriteString(p.Username)
	buf.WriteByte(0)
	buf.WriteString(p.Password)
	return buf.Bytes(), nil
}

// AMQPlain implements RabbitMQ's AMQPLAIN mechanism: the response is a
// field table with LOGIN and PASSWORD entries, encoded exactly like any
// other AMQP table except that the leading 4-byte length prefix is
// stripped — the surrounding long-string frame field already carries the
// length, so the prefix would be redundant (Open Question: AMQPLAIN
// table framing, resolved in DESIGN.md).
type AMQPlain struct {
	Username string
	Password string
}

func (a AMQPlain) Name() string { return "AMQPLAIN" }

func (a AMQPlain) Response(challenge []byte) ([]byte, error) {
	table := amqp.Table{
		"LOGIN":    a.Username,
		"PASSWORD": a.Password,
	}
	// wire has no exported "encode table without length prefix"
	// primitive, so the table is written with its usual tag+length
	// framing and that framing is then peeled off below.
	encoded := wire.GetBuffer()
	defer wire.PutBuffer(encoded)
	if err := wire.WriteValue(encoded, table); err != nil {
		return nil, err
	}
	// encoded.B is [tag byte][4-byte length][table body]; AMQPLAIN wants
	// only the table body.
	if len(encoded.B) < 5 {
		return nil, wire.ErrTruncated
	}
	return append([]byte(nil), encoded.B[5:]...), nil
}
