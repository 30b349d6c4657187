package vad

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Model is the narrow interface a neural VAD backend must satisfy. A real
// implementation would bind to an ONNX/Silero runtime; this package only
// specifies the contract and ships a lightweight energy-based fallback for
// platforms where no such backend is available (see Processor's bypass
// behaviour in processor.go).
type Model interface {
	// Infer returns the probability, in [0,1], that chunk contains speech.
	Infer(chunk []float32) (float64, error)
	// Close releases backend resources.
	Close() error
}

// Loader constructs a Model. Production code supplies a loader that binds to
// the real neural backend; tests supply a fake.
type Loader func() (Model, error)

// Handle is a shared handle to a loaded model, keyed on the threshold it was
// loaded with.
type Handle struct {
	Model     Model
	Threshold float64
}

// ModelCache is the process-wide singleton described in spec §4.2.
// Simultaneous WarmUp callers share one load; a load failure clears the
// in-flight state so the next caller retries; GetManager with a different
// threshold than the cached handle invalidates and reloads.
type ModelCache struct {
	loader Loader

	mu       sync.Mutex
	handle   *Handle
	loaded   bool
	sf       singleflight.Group
	warmDone bool
}

// NewModelCache creates a cache that uses loader to load the model.
func NewModelCache(loader Loader) *ModelCache {
	return &ModelCache{loader: loader}
}

// WarmUp loads the model at a zero threshold and blocks until that load
// finishes. Calls after a successful WarmUp are no-ops; a handle loaded by
// GetManager does not count. A failed load clears the in-flight state so
// the next caller retries.
func (c *ModelCache) WarmUp(ctx context.Context) error {
	c.mu.Lock()
	if c.warmDone {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	_, err := c.load(0)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.warmDone = true
	c.mu.Unlock()
	return nil
}

// GetManager returns a shared Handle for threshold. A call made while a
// load for the same threshold is in flight joins that load; a call with any
// other threshold, including one made during a WarmUp (threshold 0), starts
// its own load. A request with a threshold different from the cached
// handle's invalidates and reloads.
func (c *ModelCache) GetManager(threshold float64) (*Handle, error) {
	c.mu.Lock()
	if c.loaded && c.handle != nil && c.handle.Threshold == threshold {
		h := c.handle
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	return c.load(threshold)
}

// load performs (or joins) a single in-flight load for the given threshold.
// The singleflight key includes the threshold so a concurrent WarmUp(0) and
// GetManager(0.3) don't collapse into one load of the wrong threshold.
func (c *ModelCache) load(threshold float64) (*Handle, error) {
	key := thresholdKey(threshold)
	v, err, _ := c.sf.Do(key, func() (any, error) {
		if c.loader == nil {
			return nil, errors.New("vad: no model loader configured")
		}
		m, err := c.loader()
		if err != nil {
			return nil, err
		}
		h := &Handle{Model: m, Threshold: threshold}

		c.mu.Lock()
		c.handle = h
		c.loaded = true
		c.mu.Unlock()

		return h, nil
	})
	if err != nil {
		// Load failed: clear any partial in-flight state so the next caller
		// retries instead of observing a permanently-broken cache.
		c.mu.Lock()
		c.loaded = false
		c.handle = nil
		c.mu.Unlock()
		return nil, err
	}
	return v.(*Handle), nil
}

func thresholdKey(threshold float64) string {
	// A fixed-precision string key is sufficient: thresholds are configured
	// values, not arbitrary floats from measurement.
	const scale = 1000
	return "threshold:" + strconv.FormatInt(int64(threshold*scale), 10)
}
