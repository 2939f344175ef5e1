package peer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// frameSource yields paced media samples. next returns io.EOF when the
// source is exhausted.
type frameSource interface {
	next() (media.Sample, error)
	Close() error
}

// syntheticSource repeats a fixed payload, enough for an RTP-level echo.
type syntheticSource struct {
	payload  []byte
	duration time.Duration
}

func (s *syntheticSource) next() (media.Sample, error) {
	return media.Sample{Data: s.payload, Duration: s.duration}, nil
}

func (s *syntheticSource) Close() error { return nil }

// Opus TOC for a 20ms CELT silence frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func newSyntheticVideo() frameSource {
	return &syntheticSource{payload: []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}, duration: 33 * time.Millisecond}
}

func newSyntheticAudio() frameSource {
	return &syntheticSource{payload: opusSilence, duration: 20 * time.Millisecond}
}

// ivfSource reads VP8 frames from an IVF file.
type ivfSource struct {
	f        *os.File
	reader   *ivfreader.IVFReader
	interval time.Duration
}

func openIVF(path string) (*ivfSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if header.FourCC != "VP80" {
		f.Close()
		return nil, fmt.Errorf("%s: unsupported codec %q, only VP8 IVF is supported", path, header.FourCC)
	}
	interval := 33 * time.Millisecond
	if header.TimebaseDenominator > 0 {
		interval = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}
	return &ivfSource{f: f, reader: reader, interval: interval}, nil
}

func (s *ivfSource) next() (media.Sample, error) {
	frame, _, err := s.reader.ParseNextFrame()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return media.Sample{}, io.EOF
		}
		return media.Sample{}, err
	}
	return media.Sample{Data: frame, Duration: s.interval}, nil
}

func (s *ivfSource) Close() error { return s.f.Close() }

// oggSource reads Opus pages from an OGG file.
type oggSource struct {
	f            *os.File
	reader       *oggreader.OggReader
	lastGranule  uint64
	sampleRateHz float64
}

func openOGG(path string) (*oggSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, header, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rate := float64(header.SampleRate)
	if rate == 0 {
		rate = 48000
	}
	return &oggSource{f: f, reader: reader, sampleRateHz: rate}, nil
}

func (s *oggSource) next() (media.Sample, error) {
	for {
		page, header, err := s.reader.ParseNextPage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return media.Sample{}, io.EOF
			}
			return media.Sample{}, err
		}
		// Header pages (OpusHead/OpusTags) carry granule 0.
		if header.GranulePosition == 0 || header.GranulePosition < s.lastGranule {
			continue
		}
		samples := header.GranulePosition - s.lastGranule
		s.lastGranule = header.GranulePosition
		return media.Sample{
			Data:     page,
			Duration: time.Duration(float64(samples) / s.sampleRateHz * float64(time.Second)),
		}, nil
	}
}

func (s *oggSource) Close() error { return s.f.Close() }
