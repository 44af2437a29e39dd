package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"voice-geo-go/internal/types"
)

// CanonicalRate is the sample rate every stage after normalize works at.
const CanonicalRate = 16000

var errNotWAV = errors.New("not a RIFF/WAVE stream")

type wavFormat struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// DecodeWAV reads an uncompressed WAV (PCM 8/16/32-bit or IEEE float 32) and
// downmixes it to mono.
func DecodeWAV(b []byte) (types.PCM, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return types.PCM{}, errNotWAV
	}
	var (
		fmtChunk *wavFormat
		data     []byte
	)
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(b) || size < 0 {
			// streamed WAVs often carry a bogus data size; take what is there
			end = len(b)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return types.PCM{}, fmt.Errorf("short fmt chunk")
			}
			fmtChunk = &wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(b[body:]),
				channels:      binary.LittleEndian.Uint16(b[body+2:]),
				sampleRate:    binary.LittleEndian.Uint32(b[body+4:]),
				bitsPerSample: binary.LittleEndian.Uint16(b[body+14:]),
			}
			if fmtChunk.audioFormat == 0xFFFE && end-body >= 26 {
				// WAVE_FORMAT_EXTENSIBLE: sub-format GUID starts with the real tag
				fmtChunk.audioFormat = binary.LittleEndian.Uint16(b[body+24:])
			}
		case "data":
			data = b[body:end]
		}
		pos = end + size%2
		if data != nil && fmtChunk != nil {
			break
		}
	}
	if fmtChunk == nil || data == nil {
		return types.PCM{}, fmt.Errorf("missing fmt or data chunk")
	}
	if fmtChunk.channels == 0 || fmtChunk.sampleRate == 0 {
		return types.PCM{}, fmt.Errorf("invalid wav header: channels=%d rate=%d", fmtChunk.channels, fmtChunk.sampleRate)
	}
	samples, err := decodeSamples(*fmtChunk, data)
	if err != nil {
		return types.PCM{}, err
	}
	return types.PCM{Samples: samples, SampleRate: int(fmtChunk.sampleRate)}, nil
}

func decodeSamples(f wavFormat, data []byte) ([]float32, error) {
	bytesPer := int(f.bitsPerSample) / 8
	ch := int(f.channels)
	if bytesPer == 0 {
		return nil, fmt.Errorf("invalid bits per sample %d", f.bitsPerSample)
	}
	frames := len(data) / (bytesPer * ch)
	out := make([]float32, frames)

	var read func(off int) float32
	switch {
	case f.audioFormat == 1 && f.bitsPerSample == 16:
		read = func(off int) float32 {
			return float32(int16(binary.LittleEndian.Uint16(data[off:]))) / 32768
		}
	case f.audioFormat == 1 && f.bitsPerSample == 8:
		read = func(off int) float32 { return (float32(data[off]) - 128) / 128 }
	case f.audioFormat == 1 && f.bitsPerSample == 32:
		read = func(off int) float32 {
			return float32(int32(binary.LittleEndian.Uint32(data[off:]))) / 2147483648
		}
	case f.audioFormat == 3 && f.bitsPerSample == 32:
		read = func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(data[off:])) }
	default:
		return nil, fmt.Errorf("wav encoding format=%d bits=%d: %w", f.audioFormat, f.bitsPerSample, types.ErrUnsupportedFormat)
	}

	frameBytes := bytesPer * ch
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < ch; c++ {
			sum += read(i*frameBytes + c*bytesPer)
		}
		out[i] = sum / float32(ch)
	}
	return out, nil
}

// EncodeWAV writes 16-bit mono PCM WAV.
func EncodeWAV(w io.Writer, pcm types.PCM) error {
	dataSize := len(pcm.Samples) * 2
	hdr := make([]byte, 44)
	copy(hdr[0:], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:], uint32(36+dataSize))
	copy(hdr[8:], "WAVE")
	copy(hdr[12:], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:], 16)
	binary.LittleEndian.PutUint16(hdr[20:], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:], 1) // mono
	binary.LittleEndian.PutUint32(hdr[24:], uint32(pcm.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:], uint32(pcm.SampleRate*2))
	binary.LittleEndian.PutUint16(hdr[32:], 2)
	binary.LittleEndian.PutUint16(hdr[34:], 16)
	copy(hdr[36:], "data")
	binary.LittleEndian.PutUint32(hdr[40:], uint32(dataSize))
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	buf := make([]byte, dataSize)
	for i, s := range pcm.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(toInt16(s)))
	}
	_, err := w.Write(buf)
	return err
}

// WAVBytes is EncodeWAV into memory.
func WAVBytes(pcm types.PCM) []byte {
	var b bytes.Buffer
	_ = EncodeWAV(&b, pcm)
	return b.Bytes()
}

func toInt16(s float32) int16 {
	switch {
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	}
	return int16(s * 32767)
}

// Resample converts to the target rate using linear interpolation.
func Resample(pcm types.PCM, rate int) types.PCM {
	if pcm.SampleRate == rate || len(pcm.Samples) == 0 || pcm.SampleRate <= 0 {
		return types.PCM{Samples: pcm.Samples, SampleRate: rate}
	}
	ratio := float64(pcm.SampleRate) / float64(rate)
	n := int(float64(len(pcm.Samples)) / ratio)
	out := make([]float32, n)
	last := len(pcm.Samples) - 1
	for i := range out {
		src := float64(i) * ratio
		idx := int(src)
		frac := float32(src - float64(idx))
		s0 := pcm.Samples[min(idx, last)]
		s1 := pcm.Samples[min(idx+1, last)]
		out[i] = s0 + frac*(s1-s0)
	}
	return types.PCM{Samples: out, SampleRate: rate}
}
