package frame

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/cordio/amqp91/wire"
	"github.com/pkg/errors"
)

// ErrWouldBlock is returned by ReadFrame when fewer than a complete
// frame's worth of bytes are currently available. It is not fatal — the
// caller retries once more bytes have arrived.
var ErrWouldBlock = errors.New("frame: would block, insufficient input")

// ErrFrameTooLarge is returned by WriteFrame (before any byte is written)
// when the encoded frame would exceed maxFrameSize, and by ReadFrame when
// the peer's declared frame size exceeds it.
var ErrFrameTooLarge = errors.New("frame: exceeds max frame size")

// ErrBadEndOctet is returned by ReadFrame when the trailing byte is not
// 0xCE.
var ErrBadEndOctet = errors.New("frame: missing 0xCE end octet")

const headerSize = 7 // type(1) + channel(2) + size(4)

func payloadOf(f *Frame) ([]byte, error) {
	switch f.Type {
	case TypeMethod:
		buf := wire.GetBuffer()
		defer wire.PutBuffer(buf)
		var hdr [4]byte
		binary.BigEndian.PutUint16(hdr[0:2], f.ClassID)
		binary.BigEndian.PutUint16(hdr[2:4], f.MethodID)
		buf.Write(hdr[:])
		buf.Write(f.Arguments)
		return append([]byte(nil), buf.B...), nil
	case TypeHeader:
		buf := wire.GetBuffer()
		defer wire.PutBuffer(buf)
		var hdr [14]byte
		binary.BigEndian.PutUint16(hdr[0:2], f.ClassID)
		binary.BigEndian.PutUint16(hdr[2:4], 0) // weight, always 0
		binary.BigEndian.PutUint64(hdr[4:12], f.ContentSize)
		binary.BigEndian.PutUint16(hdr[12:14], f.PropertyFlags)
		buf.Write(hdr[:])
		buf.Write(f.PropertyBytes)
		return append([]byte(nil), buf.B...), nil
	case TypeBody:
		return f.Body, nil
	case TypeHeartbeat:
		return nil, nil
	default:
		return nil, errors.Errorf("frame: unknown frame type %d", f.Type)
	}
}

// WriteFrame serializes f to a single intermediate buffer and issues one
// Write to w, so that concurrently produced frames never interleave and
// the transport gets a chance to coalesce the frame into one segment. If
// the encoded size would exceed maxFrameSize, it fails with
// ErrFrameTooLarge before any byte reaches w.
func WriteFrame(w io.Writer, maxFrameSize uint32, f *Frame) error {
	payload, err := payloadOf(f)
	if err != nil {
		return err
	}
	total := headerSize + len(payload) + 1
	if maxFrameSize != 0 && uint32(total) > maxFrameSize {
		return errors.Wrapf(ErrFrameTooLarge, "frame size %d exceeds max %d", total, maxFrameSize)
	}

	buf := wire.GetBuffer()
	defer wire.PutBuffer(buf)

	var hdr [headerSize]byte
	hdr[0] = byte(f.Type)
	binary.BigEndian.PutUint16(hdr[1:3], f.Channel)
	binary.BigEndian.PutUint32(hdr[3:7], uint32(len(payload)))
	buf.Write(hdr[:])
	buf.Write(payload)
	buf.WriteByte(EndOctet)

	_, err = w.Write(buf.B)
	if err != nil {
		return errors.Wrap(err, "frame: write")
	}
	return nil
}

// ReadFrame peeks the 7-byte header, validates size against maxFrameSize
// (0 means unlimited — only valid during the pre-Tune window), waits for
// size+8 bytes total, consumes them, verifies the trailing 0xCE, and
// constructs the tagged Frame. Insufficient input returns ErrWouldBlock;
// the caller should retry once more bytes are available.
//
// r must be a *bufio.Reader (or equivalent) so the header can be peeked
// without consuming it on a short read.
func ReadFrame(r *bufio.Reader, maxFrameSize uint32) (*Frame, error) {
	head, err := r.Peek(headerSize)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, bufio.ErrBufferFull) {
			return nil, ErrWouldBlock
		}
		return nil, errors.Wrap(err, "frame: peek header")
	}

	typ := Type(head[0])
	channel := binary.BigEndian.Uint16(head[1:3])
	size := binary.BigEndian.Uint32(head[3:7])

	if maxFrameSize != 0 && size > maxFrameSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "declared size %d exceeds max %d", size, maxFrameSize)
	}

	total := headerSize + int(size) + 1
	full, err := r.Peek(total)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, bufio.ErrBufferFull) {
			return nil, ErrWouldBlock
		}
		return nil, errors.Wrap(err, "frame: peek body")
	}

	payload := full[headerSize : headerSize+int(size)]
	if full[total-1] != EndOctet {
		r.Discard(total)
		return nil, ErrBadEndOctet
	}

	f := &Frame{Type: typ, Channel: channel}
	switch typ {
	case TypeMethod:
		if len(payload) < 4 {
			r.Discard(total)
			return nil, errors.New("frame: method frame too short")
		}
		f.ClassID = binary.BigEndian.Uint16(payload[0:2])
		f.MethodID = binary.BigEndian.Uint16(payload[2:4])
		f.Arguments = append([]byte(nil), payload[4:]...)
	case TypeHeader:
		if len(payload) < 14 {
			r.Discard(total)
			return nil, errors.New("frame: header frame too short")
		}
		f.ClassID = binary.BigEndian.Uint16(payload[0:2])
		f.ContentSize = binary.BigEndian.Uint64(payload[4:12])
		f.PropertyFlags = binary.BigEndian.Uint16(payload[12:14])
		f.PropertyBytes = append([]byte(nil), payload[14:]...)
	case TypeBody:
		f.Body = append([]byte(nil), payload...)
	case TypeHeartbeat:
		// no payload
	default:
		r.Discard(total)
		return nil, errors.Errorf("frame: unknown frame type %d", typ)
	}

	if _, err := r.Discard(total); err != nil {
		return nil, errors.Wrap(err, "frame: discard")
	}
	return f, nil
}
