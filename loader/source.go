package loader

import (
	"github.com/wippyai/wasm-bridge/engine"
)

type sourceKind uint8

const (
	kindModule sourceKind = iota + 1
	kindBytes
	kindLocation
)

// Source is where a guest comes from: an already compiled module, raw
// bytes, or a location to fetch.
type Source struct {
	kind     sourceKind
	module   *engine.Module
	bytes    []byte
	location string
}

// FromModule uses a module compiled earlier.
func FromModule(m *engine.Module) Source {
	return Source{kind: kindModule, module: m}
}

// FromBytes compiles wasm directly.
func FromBytes(wasm []byte) Source {
	return Source{kind: kindBytes, bytes: wasm}
}

// FromLocation fetches the module from a file path, a file:// URL or an
// http(s):// URL.
func FromLocation(loc string) Source {
	return Source{kind: kindLocation, location: loc}
}

func (s Source) String() string {
	switch s.kind {
	case kindModule:
		return "module"
	case kindBytes:
		return "bytes"
	case kindLocation:
		return s.location
	default:
		return "empty source"
	}
}
