package sink

import (
	"math"
	"time"

	"github.com/go-pantheon/fabrica-igtl/igtl"
	"github.com/go-pantheon/fabrica-igtl/metric"
	"github.com/go-pantheon/fabrica-igtl/record"
	"github.com/go-pantheon/fabrica-util/errors"
)

var (
	ErrImageSkipped           = errors.New("image class is not published")
	ErrUnsupportedElementKind = errors.New("input image data type not supported")
)

// scalarTypes maps the element kinds the sink publishes to their wire type.
var scalarTypes = map[record.ElementKind]igtl.ScalarType{
	record.ElementKindUint8:   igtl.ScalarUint8,
	record.ElementKindInt16:   igtl.ScalarInt16,
	record.ElementKindFloat32: igtl.ScalarFloat32,
}

// orientation flips the first two axes of the scanner frame.
var orientation = igtl.Matrix4x4{
	{-1, 0, 0, 0},
	{0, -1, 0, 0},
	{0, 0, 1, 0},
	{0, 0, 0, 1},
}

// ImageMarshaller turns B-mode and Doppler images into IMAGE messages.
type ImageMarshaller struct {
	streamName string
	metrics    *metric.Metrics
}

func NewImageMarshaller(streamName string, m *metric.Metrics) *ImageMarshaller {
	if m == nil {
		m = metric.New(nil)
	}

	return &ImageMarshaller{
		streamName: streamName,
		metrics:    m,
	}
}

// Marshal builds the IMAGE message for img. Images of other classes yield
// ErrImageSkipped; element kinds without a wire mapping yield
// ErrUnsupportedElementKind.
func (m *ImageMarshaller) Marshal(img *record.Image) (*igtl.ImageMessage, error) {
	if img.Class != record.ImageClassBMode && img.Class != record.ImageClassDoppler {
		return nil, errors.Wrapf(ErrImageSkipped, "class=%d", img.Class)
	}

	kind := img.Data.Kind()

	scalar, ok := scalarTypes[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedElementKind, "kind=%s", kind)
	}

	dims := [3]int{img.Size.X, img.Size.Y, img.Size.Z}
	for i, d := range dims {
		if d < 0 || d > math.MaxUint16 {
			return nil, errors.Wrapf(igtl.ErrDimension, "axis=%d size=%d", i, d)
		}
	}

	data, err := m.hostBytes(img.Data)
	if err != nil {
		return nil, err
	}

	size := img.Size.Count() * kind.Size()
	if len(data) < size {
		return nil, errors.Wrapf(igtl.ErrPayloadLength, "want=%d have=%d", size, len(data))
	}

	return &igtl.ImageMessage{
		DeviceName:    m.streamName,
		Timestamp:     igtl.SplitTimestamp(img.Timestamp),
		Dimensions:    dims,
		Spacing:       [3]float64{img.Resolution, img.Resolution, img.Resolution},
		ScalarType:    scalar,
		Endian:        igtl.EndianLittle,
		Coordinate:    igtl.CoordinateRAS,
		Matrix:        orientation,
		NumComponents: 1,
		Payload:       data[:size],
	}, nil
}

func (m *ImageMarshaller) hostBytes(b record.Buffer) ([]byte, error) {
	if b.Location() != record.LocationDevice {
		return b.HostBytes()
	}

	start := time.Now()

	data, err := b.HostBytes()
	if err != nil {
		return nil, errors.Wrap(err, "device to host copy failed")
	}

	m.metrics.ObserveDeviceCopy(time.Since(start))

	return data, nil
}
