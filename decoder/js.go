package decoder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"serialscope/models"
)

// jsDecoder wraps a JavaScript plugin. The script must define a string
// `name`, optionally a string `description`, and a function `decode(bytes)`
// receiving an array of byte values and returning either null or an object
// with `protocol`, `fields` and `display` properties.
//
// Each plugin gets its own goja runtime; a mutex serialises calls because a
// runtime is not safe for concurrent use.
type jsDecoder struct {
	name        string
	description string
	logger      *slog.Logger

	mu     sync.Mutex
	vm     *goja.Runtime
	decode goja.Callable
}

// loadJSDecoder evaluates one plugin file in an isolated runtime
func loadJSDecoder(path string, logger *slog.Logger) (*jsDecoder, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin: %w", err)
	}

	vm := goja.New()
	if _, err := vm.RunScript(filepath.Base(path), string(src)); err != nil {
		return nil, fmt.Errorf("evaluate plugin: %w", err)
	}

	nameVal := vm.Get("name")
	if nameVal == nil || goja.IsUndefined(nameVal) || nameVal.String() == "" {
		return nil, fmt.Errorf("plugin does not export a name")
	}

	decodeVal := vm.Get("decode")
	decodeFn, ok := goja.AssertFunction(decodeVal)
	if !ok {
		return nil, fmt.Errorf("plugin does not export a callable decode")
	}

	d := &jsDecoder{
		name:   nameVal.String(),
		logger: logger.With("plugin", filepath.Base(path)),
		vm:     vm,
		decode: decodeFn,
	}
	if desc := vm.Get("description"); desc != nil && !goja.IsUndefined(desc) {
		d.description = desc.String()
	}
	return d, nil
}

func (d *jsDecoder) Name() string        { return d.name }
func (d *jsDecoder) Description() string { return d.description }

func (d *jsDecoder) Decode(data []byte) *models.DecodedFrame {
	d.mu.Lock()
	defer d.mu.Unlock()

	bytes := make([]any, len(data))
	for i, b := range data {
		bytes[i] = int(b)
	}

	res, err := d.decode(goja.Undefined(), d.vm.ToValue(bytes))
	if err != nil {
		// A throwing decoder is swallowed; the live stream continues
		d.logger.Warn("Plugin decode failed", "error", err)
		return nil
	}
	if res == nil || goja.IsNull(res) || goja.IsUndefined(res) {
		return nil
	}

	obj, ok := res.Export().(map[string]any)
	if !ok {
		d.logger.Warn("Plugin returned a non-object result")
		return nil
	}

	frame := &models.DecodedFrame{
		Protocol: stringField(obj, "protocol"),
		Display:  stringField(obj, "display"),
	}
	if fields, ok := obj["fields"].(map[string]any); ok {
		frame.Fields = fields
	}
	if frame.Protocol == "" {
		frame.Protocol = d.name
	}
	if frame.Display == "" {
		frame.Display = frame.Protocol
	}
	return frame
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
