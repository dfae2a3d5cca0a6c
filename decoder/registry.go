// Package decoder implements the protocol decoder registry: built-in
// decoders registered statically plus user plugins loaded as JavaScript
// files from a directory. Decoders are pure over their input; a failing
// decoder is logged and skipped, never surfaced to clients.
package decoder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"serialscope/models"
)

// Decoder is one protocol decoder. Decode returns nil when the bytes are
// not recognised.
type Decoder interface {
	Name() string
	Description() string
	Decode(data []byte) *models.DecodedFrame
}

// Info describes a registered decoder for API listings
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Registry holds the registered decoders. The decoder list is swapped
// atomically on reload: a DecodeAll that races a reload sees either the old
// or the new set, never a mix.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	decoders []Decoder
}

// NewRegistry creates a registry that loads plugins from dir
func NewRegistry(dir string, logger *slog.Logger) *Registry {
	return &Registry{dir: dir, logger: logger}
}

// LoadAll registers the built-in decoders and every plugin file in the
// registry's directory. Plugin files that fail to evaluate are logged and
// skipped. The new set replaces the old atomically.
func (r *Registry) LoadAll() error {
	decoders := []Decoder{
		NewModbusRTU(),
		NewNMEA(),
	}

	plugins, err := r.loadPlugins()
	if err != nil {
		return err
	}
	decoders = append(decoders, plugins...)

	r.mu.Lock()
	r.decoders = decoders
	r.mu.Unlock()

	r.logger.Info("Decoders loaded", "count", len(decoders), "plugins", len(plugins))
	return nil
}

// Reload drops prior state and loads again
func (r *Registry) Reload() error {
	return r.LoadAll()
}

// loadPlugins evaluates every .js file in the plugin directory. A missing
// directory simply means no plugins.
func (r *Registry) loadPlugins() ([]Decoder, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug("No plugin directory", "dir", r.dir)
			return nil, nil
		}
		return nil, fmt.Errorf("read plugin directory %s: %w", r.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".js") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var plugins []Decoder
	for _, name := range names {
		path := filepath.Join(r.dir, name)
		d, err := loadJSDecoder(path, r.logger)
		if err != nil {
			r.logger.Warn("Skipping plugin", "file", name, "error", err)
			continue
		}
		plugins = append(plugins, d)
	}
	return plugins, nil
}

// DecodeAll invokes every registered decoder with the same byte slice and
// collects the non-nil results in registration order. A panicking decoder
// yields no result and does not affect the others.
func (r *Registry) DecodeAll(data []byte) []models.DecodedFrame {
	r.mu.RLock()
	decoders := r.decoders
	r.mu.RUnlock()

	var frames []models.DecodedFrame
	for _, d := range decoders {
		if frame := r.safeDecode(d, data); frame != nil {
			f := *frame
			f.Name = d.Name()
			frames = append(frames, f)
		}
	}
	return frames
}

// List returns the registered decoders in registration order
func (r *Registry) List() []Info {
	r.mu.RLock()
	decoders := r.decoders
	r.mu.RUnlock()

	out := make([]Info, len(decoders))
	for i, d := range decoders {
		out[i] = Info{Name: d.Name(), Description: d.Description()}
	}
	return out
}

func (r *Registry) safeDecode(d Decoder, data []byte) (frame *models.DecodedFrame) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("Decoder panicked", "decoder", d.Name(), "panic", rec)
			frame = nil
		}
	}()
	return d.Decode(data)
}
