package bridge

import "github.com/wippyai/wasm-bridge/heap"

const (
	DefaultNamespace    = "bridge"
	DefaultMallocExport = "__wbindgen_malloc"
	DefaultStartExport  = "__wbindgen_start"
)

// Config holds bridge configuration.
type Config struct {
	// Namespace is the import module name the guest links against.
	Namespace string

	// Reserved is the number of permanent handle slots. Values below
	// heap.DefaultReserved are raised to it.
	Reserved uint32

	// MallocExport names the guest allocator export.
	MallocExport string

	// StartExport names the guest entry point.
	StartExport string
}

func (c *Config) withDefaults() Config {
	var out Config
	if c != nil {
		out = *c
	}
	if out.Namespace == "" {
		out.Namespace = DefaultNamespace
	}
	if out.Reserved < heap.DefaultReserved {
		out.Reserved = heap.DefaultReserved
	}
	if out.MallocExport == "" {
		out.MallocExport = DefaultMallocExport
	}
	if out.StartExport == "" {
		out.StartExport = DefaultStartExport
	}
	return out
}
