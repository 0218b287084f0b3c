package record

import (
	"encoding/binary"
	"math"

	"github.com/go-pantheon/fabrica-util/errors"
)

var (
	ErrShortDeviceCopy = errors.New("device copy returned fewer bytes than requested")
	ErrNoData          = errors.New("buffer has no data")
)

// ElementKind is the scalar representation of one pixel.
type ElementKind uint8

const (
	ElementKindUnknown ElementKind = iota
	ElementKindInt8
	ElementKindUint8
	ElementKindInt16
	ElementKindUint16
	ElementKindInt32
	ElementKindFloat32
	ElementKindFloat64
)

// Size returns the number of bytes of one element, or 0 for an unknown kind.
func (k ElementKind) Size() int {
	switch k {
	case ElementKindInt8, ElementKindUint8:
		return 1
	case ElementKindInt16, ElementKindUint16:
		return 2
	case ElementKindInt32, ElementKindFloat32:
		return 4
	case ElementKindFloat64:
		return 8
	default:
		return 0
	}
}

func (k ElementKind) String() string {
	switch k {
	case ElementKindInt8:
		return "int8"
	case ElementKindUint8:
		return "uint8"
	case ElementKindInt16:
		return "int16"
	case ElementKindUint16:
		return "uint16"
	case ElementKindInt32:
		return "int32"
	case ElementKindFloat32:
		return "float32"
	case ElementKindFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// ImageClass tags what an image represents.
type ImageClass uint8

const (
	ImageClassUnknown ImageClass = iota
	ImageClassBMode
	ImageClassDoppler
	ImageClassEnvelope
	ImageClassRF
	ImageClassScan
	ImageClassOther
)

// Location tells where the memory of a buffer lives.
type Location uint8

const (
	LocationHost Location = iota
	LocationDevice
)

// DeviceMemory is memory that is not directly addressable by the host,
// such as a GPU allocation.
type DeviceMemory interface {
	// CopyToHost copies the whole allocation into dst and returns the
	// number of bytes copied.
	CopyToHost(dst []byte) (int, error)
}

// Scalar is the set of element types a host buffer can be built from.
type Scalar interface {
	int8 | uint8 | int16 | uint16 | int32 | float32 | float64
}

// Buffer holds image elements, either as little-endian host bytes or
// as a handle to device memory.
type Buffer struct {
	kind   ElementKind
	count  int
	host   []byte
	device DeviceMemory
}

// NewBuffer builds a host buffer from typed elements.
func NewBuffer[T Scalar](elems []T) Buffer {
	var zero T

	kind := kindOf(zero)
	size := kind.Size()
	host := make([]byte, len(elems)*size)

	for i, e := range elems {
		putElement(host[i*size:], kind, e)
	}

	return Buffer{
		kind:  kind,
		count: len(elems),
		host:  host,
	}
}

// NewRawBuffer wraps little-endian bytes that are already laid out for kind.
func NewRawBuffer(kind ElementKind, raw []byte) Buffer {
	count := 0
	if size := kind.Size(); size > 0 {
		count = len(raw) / size
	}

	return Buffer{
		kind:  kind,
		count: count,
		host:  raw,
	}
}

// NewDeviceBuffer wraps count elements of kind that live in device memory.
func NewDeviceBuffer(kind ElementKind, count int, mem DeviceMemory) Buffer {
	return Buffer{
		kind:   kind,
		count:  count,
		device: mem,
	}
}

func (b Buffer) Kind() ElementKind { return b.kind }
func (b Buffer) Len() int          { return b.count }

// ByteLen is the number of bytes of the whole buffer.
func (b Buffer) ByteLen() int { return b.count * b.kind.Size() }

func (b Buffer) Location() Location {
	if b.device != nil {
		return LocationDevice
	}

	return LocationHost
}

// HostBytes returns host-accessible bytes of the buffer. Device buffers are
// copied into a fresh host slice on every call.
func (b Buffer) HostBytes() ([]byte, error) {
	if b.device == nil {
		if b.host == nil && b.count > 0 {
			return nil, ErrNoData
		}

		return b.host, nil
	}

	host := make([]byte, b.ByteLen())

	n, err := b.device.CopyToHost(host)
	if err != nil {
		return nil, errors.Wrapf(err, "copy %d bytes to host failed", len(host))
	}

	if n != len(host) {
		return nil, ErrShortDeviceCopy
	}

	return host, nil
}

func kindOf(v any) ElementKind {
	switch v.(type) {
	case int8:
		return ElementKindInt8
	case uint8:
		return ElementKindUint8
	case int16:
		return ElementKindInt16
	case uint16:
		return ElementKindUint16
	case int32:
		return ElementKindInt32
	case float32:
		return ElementKindFloat32
	case float64:
		return ElementKindFloat64
	default:
		return ElementKindUnknown
	}
}

func putElement[T Scalar](dst []byte, kind ElementKind, v T) {
	switch kind {
	case ElementKindInt8, ElementKindUint8:
		dst[0] = byte(v)
	case ElementKindInt16, ElementKindUint16:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case ElementKindInt32:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case ElementKindFloat32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
	case ElementKindFloat64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(float64(v)))
	}
}
