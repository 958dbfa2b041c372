package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/mklatt/scribe/utils"
)

// TargetSampleRate is the rate the transcription engine consumes.
const TargetSampleRate = 16000

// BytesPerSecond of wire-format audio: 16 kHz, 16-bit, mono.
const BytesPerSecond = TargetSampleRate * 2

// max WAV file size in bytes
const MaxWAVFileSize = 1024 * 1024 * 512

var ErrNotWAV = fmt.Errorf("not a RIFF/WAVE file")
var ErrUnsupportedFormat = fmt.Errorf("unsupported wav format")

// WAV holds decoded, interleaved 16-bit PCM.
type WAV struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// ReadWAVFile reads and decodes a WAV file with a size limit.
func ReadWAVFile(path string) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	data, err := utils.ReadAllLimit(f, MaxWAVFileSize)
	if errors.Is(err, utils.ErrIOLimitReached) {
		return nil, fmt.Errorf("wav file larger than %d bytes: %w", MaxWAVFileSize, err)
	} else if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return DecodeWAV(data)
}

// DecodeWAV parses a RIFF/WAVE container holding 16-bit PCM, mono or stereo.
func DecodeWAV(data []byte) (*WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		fmtFound      bool
		audioFormat   uint16
		channels      uint16
		sampleRate    uint32
		bitsPerSample uint16
		pcm           []byte
	)

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		offset += 8
		if size < 0 || offset+size > len(data) {
			return nil, fmt.Errorf("truncated %q chunk", id)
		}
		body := data[offset : offset+size]

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too small: %d bytes", size)
			}
			audioFormat = binary.LittleEndian.Uint16(body[0:2])
			channels = binary.LittleEndian.Uint16(body[2:4])
			sampleRate = binary.LittleEndian.Uint32(body[4:8])
			bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			fmtFound = true
		case "data":
			pcm = body
		}

		offset += size
		// chunks are word-aligned
		if size%2 == 1 {
			offset++
		}
	}

	if !fmtFound {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrNotWAV)
	}
	if pcm == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
	}
	if audioFormat != 1 {
		return nil, fmt.Errorf("%w: want PCM (1), got format %d", ErrUnsupportedFormat, audioFormat)
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("%w: want 16 bits per sample, got %d", ErrUnsupportedFormat, bitsPerSample)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("%w: want mono or stereo, got %d channels", ErrUnsupportedFormat, channels)
	}

	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}

	return &WAV{
		SampleRate: int(sampleRate),
		Channels:   int(channels),
		Samples:    samples,
	}, nil
}

// ToPCM16kMono converts decoded audio to the wire format: little-endian
// 16-bit samples, 16 kHz, single channel.
func (w *WAV) ToPCM16kMono() []byte {
	samples := w.Samples
	if w.Channels == 2 {
		samples = DownmixStereo(samples)
	}
	if w.SampleRate != TargetSampleRate {
		samples = Resample(samples, w.SampleRate, TargetSampleRate)
	}
	return PackLE(samples)
}
