// Package audiobuf implements AudioBuffer: a bounded, single-writer
// single-reader ring of resampled PCM frames with speech-ratio accounting.
package audiobuf

import "sync"

const sampleRate = 16000

// maxFullRecordingDuration bounds a full, unlimited-mode recording.
const maxFullRecordingDuration = 3600 // seconds

// capFactor is the 10% slack the spec allows past the nominal max duration.
const capFactor = 1.1

// Snapshot is the result of takeAll: the buffer's contents at the moment of
// the call, plus the speech ratio computed from the counts being reset.
type Snapshot struct {
	Samples     []float32
	SpeechRatio float64
}

// Buffer is a growing list of float32 mono 16kHz samples plus a running
// count of how many of those samples arrived tagged as speech. All
// operations take an exclusive lock; there is no reader/writer split beyond
// that - "single-writer/single-reader" describes the expected call pattern,
// not the synchronization strategy.
type Buffer struct {
	mu sync.Mutex

	capSamples   int
	samples      []float32
	speechFrames int
}

// New creates an empty Buffer capped at maxFullRecordingDuration * 1.1
// seconds of 16kHz audio.
func New() *Buffer {
	return &Buffer{
		capSamples: int(maxFullRecordingDuration * sampleRate * capFactor),
	}
}

// append rejects excess frames past the cap: it keeps the earliest samples
// already stored and drops the tail of the incoming frames, never mutating
// existing samples.
func (b *Buffer) Append(frames []float32, hasSpeech bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.capSamples - len(b.samples)
	if room <= 0 {
		return
	}
	toStore := frames
	if len(toStore) > room {
		toStore = toStore[:room]
	}
	if len(toStore) == 0 {
		return
	}
	b.samples = append(b.samples, toStore...)
	if hasSpeech {
		b.speechFrames += len(toStore)
	}
}

// TakeAll atomically returns the buffer's contents and resets both the
// sample slice and the speech-frame count. An empty buffer yields a zero
// speech ratio, never NaN.
func (b *Buffer) TakeAll() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	samples := b.samples
	ratio := 0.0
	if len(samples) > 0 {
		ratio = float64(b.speechFrames) / float64(len(samples))
	}
	b.samples = nil
	b.speechFrames = 0
	return Snapshot{Samples: samples, SpeechRatio: ratio}
}

// Duration returns the buffered audio's length in seconds.
func (b *Buffer) Duration() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(len(b.samples)) / sampleRate
}

// SpeechRatio returns speechFrames/len(samples), or 0 when empty.
func (b *Buffer) SpeechRatio() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == 0 {
		return 0
	}
	return float64(b.speechFrames) / float64(len(b.samples))
}

// IsAtCapacity reports whether the buffer has reached its sample cap.
func (b *Buffer) IsAtCapacity() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples) >= b.capSamples
}

// Len returns the number of samples currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Reset discards all buffered samples and speech accounting.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
	b.speechFrames = 0
}
