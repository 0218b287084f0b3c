package record

import (
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-pantheon/fabrica-util/errors"
)

var ErrInvalidCapture = errors.New("invalid capture entry")

// A capture file is a sequence of CBOR data items, one per record.
type captureEntry struct {
	Kind    Kind            `cbor:"1,keyasint"`
	Time    float64         `cbor:"2,keyasint"`
	Image   *captureImage   `cbor:"3,keyasint,omitempty"`
	Tracker []TrackerSample `cbor:"4,keyasint,omitempty"`
	Main    *captureEntry   `cbor:"5,keyasint,omitempty"`
	Synced  []captureEntry  `cbor:"6,keyasint,omitempty"`
}

type captureImage struct {
	Size       Extent      `cbor:"1,keyasint"`
	Resolution float64     `cbor:"2,keyasint"`
	Class      ImageClass  `cbor:"3,keyasint"`
	Kind       ElementKind `cbor:"4,keyasint"`
	Data       []byte      `cbor:"5,keyasint"`
}

// CaptureWriter appends records to a capture stream.
type CaptureWriter struct {
	enc *cbor.Encoder
}

func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w)}
}

// Write appends r. Device buffers are copied to the host first.
func (w *CaptureWriter) Write(r Record) error {
	e, err := toCapture(r)
	if err != nil {
		return err
	}

	if err := w.enc.Encode(e); err != nil {
		return errors.Wrapf(err, "encode %s record failed", e.Kind)
	}

	return nil
}

// CaptureReader reads records back from a capture stream.
type CaptureReader struct {
	dec *cbor.Decoder
}

func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *CaptureReader) Next() (Record, error) {
	var e captureEntry

	if err := r.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, errors.Wrap(err, "decode capture entry failed")
	}

	return fromCapture(&e)
}

func toCapture(r Record) (*captureEntry, error) {
	switch v := r.(type) {
	case *Image:
		if v == nil {
			return nil, ErrInvalidCapture
		}

		data, err := v.Data.HostBytes()
		if err != nil {
			return nil, err
		}

		return &captureEntry{
			Kind: KindImage,
			Time: v.Timestamp,
			Image: &captureImage{
				Size:       v.Size,
				Resolution: v.Resolution,
				Class:      v.Class,
				Kind:       v.Data.Kind(),
				Data:       data,
			},
		}, nil
	case *TrackerSet:
		if v == nil {
			return nil, ErrInvalidCapture
		}

		return &captureEntry{Kind: KindTrackerSet, Time: v.Timestamp, Tracker: v.Samples}, nil
	case *SyncGroup:
		if v == nil || v.Main == nil {
			return nil, ErrInvalidCapture
		}

		main, err := toCapture(v.Main)
		if err != nil {
			return nil, err
		}

		synced := make([]captureEntry, 0, len(v.Synced))

		for _, s := range v.Synced {
			e, err := toCapture(s)
			if err != nil {
				return nil, err
			}

			synced = append(synced, *e)
		}

		return &captureEntry{Kind: KindSyncGroup, Time: v.Timestamp, Main: main, Synced: synced}, nil
	case *Unknown:
		if v == nil {
			return nil, ErrInvalidCapture
		}

		return &captureEntry{Kind: KindUnknown, Time: v.Timestamp}, nil
	default:
		return nil, ErrInvalidCapture
	}
}

func fromCapture(e *captureEntry) (Record, error) {
	switch e.Kind {
	case KindImage:
		if e.Image == nil {
			return nil, errors.Wrap(ErrInvalidCapture, "image entry without image")
		}

		return &Image{
			Timestamp:  e.Time,
			Size:       e.Image.Size,
			Resolution: e.Image.Resolution,
			Class:      e.Image.Class,
			Data:       NewRawBuffer(e.Image.Kind, e.Image.Data),
		}, nil
	case KindTrackerSet:
		return &TrackerSet{Timestamp: e.Time, Samples: e.Tracker}, nil
	case KindSyncGroup:
		if e.Main == nil {
			return nil, errors.Wrap(ErrInvalidCapture, "sync group without main record")
		}

		main, err := fromCapture(e.Main)
		if err != nil {
			return nil, err
		}

		synced := make([]Record, 0, len(e.Synced))

		for i := range e.Synced {
			s, err := fromCapture(&e.Synced[i])
			if err != nil {
				return nil, err
			}

			synced = append(synced, s)
		}

		return &SyncGroup{Timestamp: e.Time, Main: main, Synced: synced}, nil
	case KindUnknown:
		return &Unknown{Timestamp: e.Time}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidCapture, "kind=%s", e.Kind)
	}
}
