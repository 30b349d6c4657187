// Package wav encodes mono 16-bit PCM WAV blobs from float32 samples.
package wav

import (
	"bytes"
	"encoding/binary"
)

// SampleRate is the fixed capture rate used throughout the engine.
const SampleRate = 16000

// EncodeFloat32 converts samples in [-1, 1] to 16-bit PCM and wraps them in
// a 44-byte RIFF/WAVE header: PCM format 1, mono, 16000 Hz, 16 bits/sample,
// little-endian. Total size is 44 + len(samples)*2.
func EncodeFloat32(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2], pcm[i*2+1] = encodeSample(s)
	}
	return Encode(pcm, SampleRate)
}

func encodeSample(s float32) (byte, byte) {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	v := int16(s * 32767)
	return byte(v), byte(v >> 8)
}

// Encode wraps already-16-bit-PCM bytes in a RIFF/WAVE header for the given
// sample rate, mono, 16 bits/sample.
func Encode(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
