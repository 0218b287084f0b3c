package igtl

import (
	"encoding/binary"
	"math"

	"github.com/go-pantheon/fabrica-util/errors"
)

const (
	TypeImage = "IMAGE"

	imageHeaderSize    = 72
	imageHeaderVersion = 1
	maxDimension       = math.MaxUint16
)

// ScalarType is the wire code of a pixel scalar type.
type ScalarType uint8

const (
	ScalarInt8    ScalarType = 2
	ScalarUint8   ScalarType = 3
	ScalarInt16   ScalarType = 4
	ScalarUint16  ScalarType = 5
	ScalarInt32   ScalarType = 6
	ScalarUint32  ScalarType = 7
	ScalarFloat32 ScalarType = 10
	ScalarFloat64 ScalarType = 11
)

// Size returns bytes per scalar.
func (s ScalarType) Size() int {
	switch s {
	case ScalarInt8, ScalarUint8:
		return 1
	case ScalarInt16, ScalarUint16:
		return 2
	case ScalarInt32, ScalarUint32, ScalarFloat32:
		return 4
	case ScalarFloat64:
		return 8
	default:
		return 0
	}
}

// Endian is the byte order of the pixel payload.
type Endian uint8

const (
	EndianBig    Endian = 1
	EndianLittle Endian = 2
)

// Coordinate is the patient coordinate system of the image matrix.
type Coordinate uint8

const (
	CoordinateRAS Coordinate = 1
	CoordinateLPS Coordinate = 2
)

// Matrix4x4 is a homogeneous transform indexed [row][column].
type Matrix4x4 [4][4]float64

// Identity returns the identity transform.
func Identity() Matrix4x4 {
	return Matrix4x4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// ImageMessage is an IMAGE message carrying a whole volume.
type ImageMessage struct {
	DeviceName    string
	Timestamp     Timestamp
	Dimensions    [3]int
	Spacing       [3]float64
	ScalarType    ScalarType
	Endian        Endian
	Coordinate    Coordinate
	Matrix        Matrix4x4
	NumComponents int
	Payload       []byte
}

var _ Message = (*ImageMessage)(nil)

func (m *ImageMessage) TypeName() string { return TypeImage }
func (m *ImageMessage) Device() string   { return m.DeviceName }
func (m *ImageMessage) Time() Timestamp  { return m.Timestamp }
func (m *ImageMessage) BodySize() int    { return imageHeaderSize + len(m.Payload) }

// ElementCount is the number of pixels described by Dimensions.
func (m *ImageMessage) ElementCount() int {
	return m.Dimensions[0] * m.Dimensions[1] * m.Dimensions[2]
}

// Validate checks that geometry and payload agree.
func (m *ImageMessage) Validate() error {
	for i, d := range m.Dimensions {
		if d < 0 || d > maxDimension {
			return errors.Wrapf(ErrDimension, "axis=%d size=%d", i, d)
		}
	}

	want := m.ElementCount() * m.NumComponents * m.ScalarType.Size()
	if want != len(m.Payload) {
		return errors.Wrapf(ErrPayloadLength, "want=%d have=%d", want, len(m.Payload))
	}

	return nil
}

func (m *ImageMessage) PackBody(dst []byte) error {
	if err := m.Validate(); err != nil {
		return err
	}

	if len(dst) < m.BodySize() {
		return errors.Wrapf(ErrBufferTooSmall, "need=%d have=%d", m.BodySize(), len(dst))
	}

	binary.BigEndian.PutUint16(dst[0:2], imageHeaderVersion)
	dst[2] = uint8(m.NumComponents)
	dst[3] = uint8(m.ScalarType)
	dst[4] = uint8(m.Endian)
	dst[5] = uint8(m.Coordinate)

	for i, d := range m.Dimensions {
		binary.BigEndian.PutUint16(dst[6+2*i:], uint16(d))
	}

	putImageMatrix(dst[12:60], m.Matrix, m.Spacing)

	// the whole volume is sent, so the sub-volume is the volume itself
	for i, d := range m.Dimensions {
		binary.BigEndian.PutUint16(dst[60+2*i:], 0)
		binary.BigEndian.PutUint16(dst[66+2*i:], uint16(d))
	}

	copy(dst[imageHeaderSize:], m.Payload)

	return nil
}

// putImageMatrix writes the scaled direction columns followed by the origin.
func putImageMatrix(dst []byte, m Matrix4x4, spacing [3]float64) {
	k := 0

	for col := range 3 {
		for row := range 3 {
			putFloat32(dst[4*k:], m[row][col]*spacing[col])
			k++
		}
	}

	for row := range 3 {
		putFloat32(dst[4*k:], m[row][3])
		k++
	}
}

// UnpackImage decodes an IMAGE body. The payload aliases body.
func UnpackImage(body []byte) (*ImageMessage, error) {
	if len(body) < imageHeaderSize {
		return nil, errors.Wrapf(ErrShortBody, "image header needs %d bytes", imageHeaderSize)
	}

	m := &ImageMessage{
		NumComponents: int(body[2]),
		ScalarType:    ScalarType(body[3]),
		Endian:        Endian(body[4]),
		Coordinate:    Coordinate(body[5]),
		Payload:       body[imageHeaderSize:],
	}

	for i := range 3 {
		m.Dimensions[i] = int(binary.BigEndian.Uint16(body[6+2*i:]))
	}

	k := 0

	for col := range 3 {
		var norm [3]float64

		for row := range 3 {
			norm[row] = getFloat32(body[12+4*k:])
			k++
		}

		m.Spacing[col] = math.Sqrt(norm[0]*norm[0] + norm[1]*norm[1] + norm[2]*norm[2])

		for row := range 3 {
			if m.Spacing[col] != 0 {
				m.Matrix[row][col] = norm[row] / m.Spacing[col]
			}
		}
	}

	for row := range 3 {
		m.Matrix[row][3] = getFloat32(body[12+4*k:])
		k++
	}

	m.Matrix[3][3] = 1

	return m, nil
}

func putFloat32(dst []byte, v float64) {
	binary.BigEndian.PutUint32(dst, math.Float32bits(float32(v)))
}

func getFloat32(b []byte) float64 {
	return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
}
