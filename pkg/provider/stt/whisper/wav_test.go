package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

// buildWAV assembles a minimal RIFF/WAVE stream with 16-bit PCM samples.
func buildWAV(sampleRate, channels int, samples []int16) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, 0, 44+dataLen)

	appendU32 := func(v uint32) []byte {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		return b[:]
	}
	appendU16 := func(v uint16) []byte {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		return b[:]
	}

	buf = append(buf, "RIFF"...)
	buf = append(buf, appendU32(uint32(36+dataLen))...)
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = append(buf, appendU32(16)...)
	buf = append(buf, appendU16(1)...) // PCM
	buf = append(buf, appendU16(uint16(channels))...)
	buf = append(buf, appendU32(uint32(sampleRate))...)
	buf = append(buf, appendU32(uint32(sampleRate*channels*2))...)
	buf = append(buf, appendU16(uint16(channels*2))...)
	buf = append(buf, appendU16(16)...)
	buf = append(buf, "data"...)
	buf = append(buf, appendU32(uint32(dataLen))...)
	for _, s := range samples {
		buf = append(buf, appendU16(uint16(s))...)
	}
	return buf
}

func TestDecodeWAV_Mono16k(t *testing.T) {
	t.Parallel()

	data := buildWAV(16000, 1, []int16{0, 16384, -16384, 32767})
	got, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(got))
	}
	if got[0] != 0 {
		t.Errorf("sample 0 = %v, want 0", got[0])
	}
	if math.Abs(float64(got[1])-0.5) > 0.001 {
		t.Errorf("sample 1 = %v, want ~0.5", got[1])
	}
	if math.Abs(float64(got[2])+0.5) > 0.001 {
		t.Errorf("sample 2 = %v, want ~-0.5", got[2])
	}
}

func TestDecodeWAV_StereoDownmix(t *testing.T) {
	t.Parallel()

	// Two frames: (L=16384, R=-16384) averages to 0, (L=16384, R=16384) to 0.5.
	data := buildWAV(16000, 2, []int16{16384, -16384, 16384, 16384})
	got, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 mono samples, got %d", len(got))
	}
	if math.Abs(float64(got[0])) > 0.001 {
		t.Errorf("frame 0 = %v, want ~0", got[0])
	}
	if math.Abs(float64(got[1])-0.5) > 0.001 {
		t.Errorf("frame 1 = %v, want ~0.5", got[1])
	}
}

func TestDecodeWAV_Resample(t *testing.T) {
	t.Parallel()

	samples := make([]int16, 8000)
	data := buildWAV(8000, 1, samples)
	got, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Half a second at 8 kHz becomes half a second at 16 kHz.
	if len(got) != 16000 {
		t.Errorf("expected 16000 samples after resampling, got %d", len(got))
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("OGGSsomethingelse")},
		{"no data chunk", buildWAV(16000, 1, nil)[:36]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeWAV(tc.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}
