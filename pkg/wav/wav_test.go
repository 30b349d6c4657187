package wav

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeWireFormat(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	blob := Encode(pcm, 44100)

	if !bytes.HasPrefix(blob, []byte("RIFF")) {
		t.Errorf("expected RIFF prefix")
	}
	if !bytes.Contains(blob, []byte("WAVE")) {
		t.Errorf("expected WAVE identifier")
	}
	if want := 44 + len(pcm); len(blob) != want {
		t.Errorf("len = %d, want %d", len(blob), want)
	}

	dataSize := binary.LittleEndian.Uint32(blob[40:44])
	if int(dataSize) != len(pcm) {
		t.Errorf("data chunk size = %d, want %d", dataSize, len(pcm))
	}
}

func TestEncodeFloat32RoundTripsSign(t *testing.T) {
	samples := []float32{0, 1, -1, 0.5, -0.5}
	blob := EncodeFloat32(samples)

	if want := 44 + len(samples)*2; len(blob) != want {
		t.Fatalf("len = %d, want %d", len(blob), want)
	}

	pcm := blob[44:]
	zero := int16(binary.LittleEndian.Uint16(pcm[0:2]))
	if zero != 0 {
		t.Errorf("sample 0 = %d, want 0", zero)
	}
	full := int16(binary.LittleEndian.Uint16(pcm[2:4]))
	if full != 32767 {
		t.Errorf("sample 1.0 = %d, want 32767", full)
	}
	neg := int16(binary.LittleEndian.Uint16(pcm[4:6]))
	if neg != -32767 {
		t.Errorf("sample -1.0 = %d, want -32767", neg)
	}
}

func TestEncodeFloat32ClampsOutOfRange(t *testing.T) {
	blob := EncodeFloat32([]float32{2.0, -2.0})
	pcm := blob[44:]
	hi := int16(binary.LittleEndian.Uint16(pcm[0:2]))
	lo := int16(binary.LittleEndian.Uint16(pcm[2:4]))
	if hi != 32767 || lo != -32767 {
		t.Errorf("got %d, %d; want clamped to +-32767", hi, lo)
	}
}

func TestEncodeSampleRateHeader(t *testing.T) {
	blob := Encode([]byte{0, 0}, 16000)
	rate := binary.LittleEndian.Uint32(blob[24:28])
	if rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	bitsPerSample := binary.LittleEndian.Uint16(blob[34:36])
	if bitsPerSample != 16 {
		t.Errorf("bits per sample = %d, want 16", bitsPerSample)
	}
	channels := binary.LittleEndian.Uint16(blob[22:24])
	if channels != 1 {
		t.Errorf("channels = %d, want 1", channels)
	}
}
