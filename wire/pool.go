package wire

import "github.com/valyala/bytebufferpool"

// bufferPool recycles the scratch buffers used while building a method's
// argument block or a content header's property list, avoiding an
// allocation per outgoing frame (grounded on packetd's direct dependency
// on valyala/bytebufferpool, and the sync.Pool-of-*bytes.Buffer pattern
// used by the AMQP 1.0 reference codec in other_examples).
var bufferPool bytebufferpool.Pool

// GetBuffer borrows a scratch buffer. Callers must return it via PutBuffer.
func GetBuffer() *bytebufferpool.ByteBuffer { return bufferPool.Get() }

// PutBuffer returns a scratch buffer borrowed from GetBuffer.
func PutBuffer(b *bytebufferpool.ByteBuffer) { bufferPool.Put(b) }
