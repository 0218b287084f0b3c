package main

import (
	"context"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-igtl/record"
	"github.com/go-pantheon/fabrica-igtl/sink"
	"github.com/go-pantheon/fabrica-util/errors"
)

const (
	frameWidth  = 128
	frameHeight = 128
	frameSpace  = 0.3
)

// producer stands in for the acquisition pipeline. It either simulates a
// probe with two tracked needles or replays a capture file.
type producer struct {
	out      *sink.OutputSink
	interval time.Duration

	replay   *os.File
	reader   *record.CaptureReader
	capture  *os.File
	recorder *record.CaptureWriter
}

func newProducer(out *sink.OutputSink, replayPath, recordPath string, interval time.Duration) (*producer, error) {
	p := &producer{out: out, interval: interval}

	if replayPath != "" {
		f, err := os.Open(replayPath)
		if err != nil {
			return nil, errors.Wrapf(err, "open capture failed. path=%s", replayPath)
		}

		p.replay = f
		p.reader = record.NewCaptureReader(f)
	}

	if recordPath != "" {
		f, err := os.Create(recordPath)
		if err != nil {
			p.Close()
			return nil, errors.Wrapf(err, "create capture failed. path=%s", recordPath)
		}

		p.capture = f
		p.recorder = record.NewCaptureWriter(f)
	}

	return p, nil
}

func (p *producer) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	start := time.Now()

	for frame := 0; ; frame++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		r, err := p.next(frame, time.Since(start).Seconds())
		if err != nil {
			return err
		}

		p.out.Write(r)
	}
}

func (p *producer) next(frame int, ts float64) (record.Record, error) {
	if p.reader != nil {
		return p.nextReplayed()
	}

	r := simulate(frame, ts)

	if p.recorder != nil {
		if err := p.recorder.Write(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// nextReplayed loops over the capture file.
func (p *producer) nextReplayed() (record.Record, error) {
	r, err := p.reader.Next()
	if errors.Is(err, io.EOF) {
		if _, err := p.replay.Seek(0, io.SeekStart); err != nil {
			return nil, errors.Wrap(err, "rewind capture failed")
		}

		log.Infof("[producer] capture rewound")

		p.reader = record.NewCaptureReader(p.replay)
		r, err = p.reader.Next()
	}

	if err != nil {
		return nil, err
	}

	return r, nil
}

func (p *producer) Close() {
	if p.replay != nil {
		_ = p.replay.Close()
	}

	if p.capture != nil {
		if err := p.capture.Close(); err != nil {
			log.Errorf("[producer] close capture failed. %+v", err)
		}
	}
}

// simulate returns a B-mode frame synchronized with the needle poses.
func simulate(frame int, ts float64) record.Record {
	pixels := make([]uint8, frameWidth*frameHeight)
	band := frame % frameHeight

	for y := range frameHeight {
		for x := range frameWidth {
			v := uint8((x + y + frame) % 64)
			if y == band {
				v = 255
			}

			pixels[y*frameWidth+x] = v
		}
	}

	angle := float64(frame) * math.Pi / 90
	sin, cos := math.Sincos(angle)

	return &record.SyncGroup{
		Timestamp: ts,
		Main: &record.Image{
			Timestamp:  ts,
			Size:       record.Extent{X: frameWidth, Y: frameHeight, Z: 1},
			Resolution: frameSpace,
			Class:      record.ImageClassBMode,
			Data:       record.NewBuffer(pixels),
		},
		Synced: []record.Record{
			&record.TrackerSet{
				Timestamp: ts,
				Samples: []record.TrackerSample{
					{InstrumentName: "Needle", Matrix: [16]float64{
						cos, -sin, 0, 10,
						sin, cos, 0, 20,
						0, 0, 1, 30,
						0, 0, 0, 1,
					}},
					{InstrumentName: "Needle", Matrix: [16]float64{
						1, 0, 0, -10,
						0, 1, 0, 20 * sin,
						0, 0, 1, 30,
						0, 0, 0, 1,
					}},
				},
			},
		},
	}
}
