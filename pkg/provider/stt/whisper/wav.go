package whisper

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DecodeWAV parses a RIFF/WAVE byte stream containing 16-bit signed
// little-endian PCM, down-mixes it to mono, and resamples it to [SampleRate].
// Only uncompressed PCM (format tag 1) is accepted.
func DecodeWAV(data []byte) ([]float32, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("wav: not a RIFF/WAVE stream")
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bitDepth   int
		pcm        []byte
	)

	// Walk the chunk list. Chunks are 2-byte aligned.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, errors.New("wav: truncated fmt chunk")
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if pcm == nil {
		return nil, errors.New("wav: missing data chunk")
	}
	if format != 1 {
		return nil, fmt.Errorf("wav: unsupported format tag %d (want PCM)", format)
	}
	if bitDepth != 16 {
		return nil, fmt.Errorf("wav: unsupported bit depth %d (want 16)", bitDepth)
	}
	if channels <= 0 || sampleRate <= 0 {
		return nil, errors.New("wav: invalid fmt chunk")
	}

	mono := pcmToFloat32Mono(pcm, channels)
	if sampleRate == SampleRate {
		return mono, nil
	}
	return resample(mono, sampleRate, SampleRate), nil
}

// pcmToFloat32Mono down-mixes interleaved 16-bit PCM to mono float32 in
// [-1.0, 1.0] by averaging all channels per frame.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// resample performs linear interpolation from srcRate to dstRate. Good enough
// for speech recognition input; no anti-aliasing filter is applied.
func resample(in []float32, srcRate, dstRate int) []float32 {
	if len(in) == 0 || srcRate == dstRate {
		return in
	}
	n := int(int64(len(in)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}
