package sink

import (
	"strconv"

	"github.com/go-pantheon/fabrica-igtl/igtl"
	"github.com/go-pantheon/fabrica-igtl/record"
)

// TrackingMarshaller turns tracker sets into TDATA messages.
type TrackingMarshaller struct {
	streamName string
}

func NewTrackingMarshaller(streamName string) *TrackingMarshaller {
	return &TrackingMarshaller{streamName: streamName}
}

// Marshal builds one TDATA message holding every sample of set. Element i is
// named after its instrument followed by i.
func (m *TrackingMarshaller) Marshal(set *record.TrackerSet) *igtl.TrackingDataMessage {
	msg := &igtl.TrackingDataMessage{
		DeviceName: m.streamName,
		Timestamp:  igtl.SplitTimestamp(set.Timestamp),
		Elements:   make([]igtl.TrackingElement, 0, len(set.Samples)),
	}

	for i, sample := range set.Samples {
		msg.AddElement(igtl.TrackingElement{
			Name:   sample.InstrumentName + strconv.Itoa(i),
			Type:   igtl.TrackingTracker,
			Matrix: rowMajor(sample.Matrix),
		})
	}

	return msg
}

func rowMajor(v [16]float64) igtl.Matrix4x4 {
	var m igtl.Matrix4x4

	for r := range 4 {
		for c := range 4 {
			m[r][c] = v[4*r+c]
		}
	}

	return m
}
