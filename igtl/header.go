// Package igtl packs OpenIGTLink version 1 messages.
//
// Every message is a 58 byte big-endian header followed by a type specific
// body. Only the message types the sink publishes are implemented: IMAGE and
// TDATA.
package igtl

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/go-pantheon/fabrica-util/errors"
)

const (
	// HeaderSize is the size of the fixed message header.
	HeaderSize = 58
	// HeaderVersion is the protocol version written into every header.
	HeaderVersion = 1

	typeNameSize   = 12
	deviceNameSize = 20
)

var (
	ErrShortHeader    = errors.New("header shorter than 58 bytes")
	ErrShortBody      = errors.New("body shorter than declared")
	ErrCRCMismatch    = errors.New("body crc mismatch")
	ErrDimension      = errors.New("image dimension out of range")
	ErrPayloadLength  = errors.New("payload length does not match image geometry")
	ErrBufferTooSmall = errors.New("destination buffer too small")
)

// Timestamp is an OpenIGTLink time stamp split into whole seconds and
// nanoseconds.
type Timestamp struct {
	Sec     uint32
	Nanosec uint32
}

// SplitTimestamp splits a timestamp in seconds into its integer part and the
// fractional part expressed in nanoseconds. Both parts are truncated.
func SplitTimestamp(seconds float64) Timestamp {
	whole, frac := math.Modf(seconds)

	return Timestamp{
		Sec:     uint32(whole),
		Nanosec: uint32(frac * 1e9),
	}
}

// Seconds returns the timestamp as a real number of seconds.
func (t Timestamp) Seconds() float64 {
	return float64(t.Sec) + float64(t.Nanosec)/1e9
}

// wire encodes the timestamp as seconds in the high word and a binary
// fraction of a second in the low word.
func (t Timestamp) wire() uint64 {
	frac := (uint64(t.Nanosec) << 32) / 1e9

	return uint64(t.Sec)<<32 | frac
}

func timestampFromWire(v uint64) Timestamp {
	frac := v & 0xFFFFFFFF

	return Timestamp{
		Sec:     uint32(v >> 32),
		Nanosec: uint32((frac*1e9 + (1 << 31)) >> 32),
	}
}

// Header is the decoded fixed header of a message.
type Header struct {
	Version    uint16
	Type       string
	DeviceName string
	Timestamp  Timestamp
	BodySize   uint64
	CRC        uint64
}

// Message is a packable OpenIGTLink message.
type Message interface {
	// TypeName is the message type written into the header, e.g. "IMAGE".
	TypeName() string
	// Device is the device name written into the header.
	Device() string
	// Time is the message timestamp.
	Time() Timestamp
	// BodySize is the exact number of body bytes PackBody writes.
	BodySize() int
	// PackBody writes the body into dst, which is BodySize bytes long.
	PackBody(dst []byte) error
}

// PackedSize returns the number of bytes Pack needs for m.
func PackedSize(m Message) int {
	return HeaderSize + m.BodySize()
}

// Pack writes header and body of m into dst and returns the written slice.
// dst must hold at least PackedSize(m) bytes.
func Pack(m Message, dst []byte) ([]byte, error) {
	size := PackedSize(m)
	if len(dst) < size {
		return nil, errors.Wrapf(ErrBufferTooSmall, "need=%d have=%d", size, len(dst))
	}

	dst = dst[:size]
	body := dst[HeaderSize:]

	if err := m.PackBody(body); err != nil {
		return nil, errors.Wrapf(err, "pack %s body failed", m.TypeName())
	}

	h := dst[:HeaderSize]
	binary.BigEndian.PutUint16(h[0:2], HeaderVersion)
	putString(h[2:2+typeNameSize], m.TypeName())
	putString(h[14:14+deviceNameSize], m.Device())
	binary.BigEndian.PutUint64(h[34:42], m.Time().wire())
	binary.BigEndian.PutUint64(h[42:50], uint64(len(body)))
	binary.BigEndian.PutUint64(h[50:58], CRC64(body))

	return dst, nil
}

// Marshal packs m into a freshly allocated slice.
func Marshal(m Message) ([]byte, error) {
	return Pack(m, make([]byte, PackedSize(m)))
}

// UnpackHeader decodes the fixed header at the start of b.
func UnpackHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}

	return Header{
		Version:    binary.BigEndian.Uint16(b[0:2]),
		Type:       getString(b[2 : 2+typeNameSize]),
		DeviceName: getString(b[14 : 14+deviceNameSize]),
		Timestamp:  timestampFromWire(binary.BigEndian.Uint64(b[34:42])),
		BodySize:   binary.BigEndian.Uint64(b[42:50]),
		CRC:        binary.BigEndian.Uint64(b[50:58]),
	}, nil
}

// Verify checks the body against the size and crc declared in h.
func (h Header) Verify(body []byte) error {
	if uint64(len(body)) < h.BodySize {
		return errors.Wrapf(ErrShortBody, "declared=%d have=%d", h.BodySize, len(body))
	}

	if crc := CRC64(body[:h.BodySize]); crc != h.CRC {
		return errors.Wrapf(ErrCRCMismatch, "declared=%#x computed=%#x", h.CRC, crc)
	}

	return nil
}

// putString copies s into a fixed size, zero padded field. Longer strings
// are truncated without a terminator.
func putString(dst []byte, s string) {
	n := copy(dst, s)
	clear(dst[n:])
}

func getString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return string(b)
}
