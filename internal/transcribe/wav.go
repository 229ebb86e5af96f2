package transcribe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WhisperSampleRate is the sample rate whisper models expect.
const WhisperSampleRate = 16000

// ErrUnsupportedAudio is returned for audio the native decoder cannot read.
var ErrUnsupportedAudio = errors.New("unsupported audio format")

// DecodeWAV reads a RIFF/WAVE stream of 16-bit PCM and returns mono float32
// samples in [-1, 1] together with the source sample rate. Multi-channel audio
// is averaged down to one channel.
func DecodeWAV(r io.Reader) ([]float32, int, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("%w: read header: %v", ErrUnsupportedAudio, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedAudio)
	}

	var (
		channels, bits int
		sampleRate     int
		haveFmt        bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, 0, fmt.Errorf("%w: no data chunk", ErrUnsupportedAudio)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil || size < 16 {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedAudio)
			}
			format := binary.LittleEndian.Uint16(buf[0:2])
			channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			bits = int(binary.LittleEndian.Uint16(buf[14:16]))
			// 0xFFFE is WAVE_FORMAT_EXTENSIBLE; its subformat is assumed PCM.
			if (format != 1 && format != 0xFFFE) || bits != 16 || channels < 1 {
				return nil, 0, fmt.Errorf("%w: need 16-bit PCM, got format %d with %d bits", ErrUnsupportedAudio, format, bits)
			}
			haveFmt = true
			if size%2 == 1 {
				_, _ = io.CopyN(io.Discard, r, 1)
			}
		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedAudio)
			}
			pcm, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, 0, fmt.Errorf("read data chunk: %w", err)
			}
			return pcm16ToMono(pcm, channels), sampleRate, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, 0, fmt.Errorf("%w: truncated %q chunk", ErrUnsupportedAudio, id)
			}
		}
	}
}

func pcm16ToMono(pcm []byte, channels int) []float32 {
	frame := 2 * channels
	n := len(pcm) / frame
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			off := i*frame + c*2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[off:off+2]))) / 32768
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts samples from rate `from` to rate `to` by linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		frac := float32(pos - float64(j))
		if j+1 < len(samples) {
			out[i] = samples[j]*(1-frac) + samples[j+1]*frac
		} else {
			out[i] = samples[len(samples)-1]
		}
	}
	return out
}
