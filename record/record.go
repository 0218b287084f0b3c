// Package record defines the data records a pipeline hands to the sink.
//
// Record is a closed sum type: only the variants declared in this package
// satisfy it, so consumers dispatch with an exhaustive type switch.
package record

// Record is one timestamped unit of data flowing through the pipeline.
type Record interface {
	// SyncTimestamp returns the synchronized timestamp in seconds.
	SyncTimestamp() float64

	isRecord()
}

var (
	_ Record = (*Image)(nil)
	_ Record = (*TrackerSet)(nil)
	_ Record = (*SyncGroup)(nil)
	_ Record = (*Unknown)(nil)
)

// Kind names a record variant. It is used for logging and metric labels.
type Kind string

const (
	KindImage      Kind = "image"
	KindTrackerSet Kind = "tracker_set"
	KindSyncGroup  Kind = "sync_group"
	KindUnknown    Kind = "unknown"
)

// KindOf returns the variant name of r.
func KindOf(r Record) Kind {
	switch r.(type) {
	case *Image:
		return KindImage
	case *TrackerSet:
		return KindTrackerSet
	case *SyncGroup:
		return KindSyncGroup
	default:
		return KindUnknown
	}
}

// Extent is the size of an image in elements along each axis.
type Extent struct {
	X, Y, Z int
}

// Count returns the number of elements covered by the extent.
func (e Extent) Count() int {
	return e.X * e.Y * e.Z
}

// Image is an ultrasound image with isotropic spacing.
type Image struct {
	Timestamp  float64
	Size       Extent
	Resolution float64
	Class      ImageClass
	Data       Buffer
}

func (i *Image) SyncTimestamp() float64 { return i.Timestamp }
func (*Image) isRecord()                {}

// TrackerSample is a single pose reported by a tracking system.
type TrackerSample struct {
	// Matrix is the 4x4 pose in row-major order.
	Matrix         [16]float64
	InstrumentName string
}

// TrackerSet is an ordered set of tracker samples taken at the same time.
type TrackerSet struct {
	Timestamp float64
	Samples   []TrackerSample
}

func (t *TrackerSet) SyncTimestamp() float64 { return t.Timestamp }
func (*TrackerSet) isRecord()                {}

// SyncGroup bundles a main record with the records synchronized to it.
type SyncGroup struct {
	Timestamp float64
	Main      Record
	Synced    []Record
}

func (g *SyncGroup) SyncTimestamp() float64 { return g.Timestamp }
func (*SyncGroup) isRecord()                {}

// Unknown is a record the sink does not know how to publish.
type Unknown struct {
	Timestamp float64
}

func (u *Unknown) SyncTimestamp() float64 { return u.Timestamp }
func (*Unknown) isRecord()                {}
