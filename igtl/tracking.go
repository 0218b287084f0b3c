package igtl

import (
	"github.com/go-pantheon/fabrica-util/errors"
)

const (
	TypeTrackingData = "TDATA"

	trackingElementSize = 70
	trackingNameSize    = 20
)

// TrackingType is the kind of instrument a tracking element describes.
type TrackingType uint8

const (
	TrackingTracker TrackingType = 1
	Tracking6D      TrackingType = 2
	Tracking3D      TrackingType = 3
	Tracking5D      TrackingType = 4
)

var ErrTrackingBody = errors.New("tracking body is not a whole number of elements")

// TrackingElement is one named pose inside a TDATA message.
type TrackingElement struct {
	Name   string
	Type   TrackingType
	Matrix Matrix4x4
}

// TrackingDataMessage is a TDATA message.
type TrackingDataMessage struct {
	DeviceName string
	Timestamp  Timestamp
	Elements   []TrackingElement
}

var _ Message = (*TrackingDataMessage)(nil)

func (m *TrackingDataMessage) TypeName() string { return TypeTrackingData }
func (m *TrackingDataMessage) Device() string   { return m.DeviceName }
func (m *TrackingDataMessage) Time() Timestamp  { return m.Timestamp }
func (m *TrackingDataMessage) BodySize() int    { return trackingElementSize * len(m.Elements) }

// AddElement appends e to the message.
func (m *TrackingDataMessage) AddElement(e TrackingElement) {
	m.Elements = append(m.Elements, e)
}

func (m *TrackingDataMessage) PackBody(dst []byte) error {
	if len(dst) < m.BodySize() {
		return errors.Wrapf(ErrBufferTooSmall, "need=%d have=%d", m.BodySize(), len(dst))
	}

	for i, e := range m.Elements {
		b := dst[i*trackingElementSize : (i+1)*trackingElementSize]

		putString(b[0:trackingNameSize], e.Name)
		b[20] = uint8(e.Type)
		b[21] = 0
		putTransform(b[22:70], e.Matrix)
	}

	return nil
}

// putTransform writes the upper 3x4 part of m column by column.
func putTransform(dst []byte, m Matrix4x4) {
	k := 0

	for col := range 4 {
		for row := range 3 {
			putFloat32(dst[4*k:], m[row][col])
			k++
		}
	}
}

// UnpackTrackingData decodes a TDATA body.
func UnpackTrackingData(body []byte) (*TrackingDataMessage, error) {
	if len(body)%trackingElementSize != 0 {
		return nil, errors.Wrapf(ErrTrackingBody, "len=%d", len(body))
	}

	m := &TrackingDataMessage{
		Elements: make([]TrackingElement, 0, len(body)/trackingElementSize),
	}

	for off := 0; off < len(body); off += trackingElementSize {
		b := body[off : off+trackingElementSize]
		e := TrackingElement{
			Name: getString(b[0:trackingNameSize]),
			Type: TrackingType(b[20]),
		}

		k := 0

		for col := range 4 {
			for row := range 3 {
				e.Matrix[row][col] = getFloat32(b[22+4*k:])
				k++
			}
		}

		e.Matrix[3][3] = 1
		m.Elements = append(m.Elements, e)
	}

	return m, nil
}
