package wasmbridge

import "context"

// Memory represents guest linear memory as seen by the bridge.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}

// MemorySizer provides the current size of guest linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator hands out guest-owned scratch memory through the guest's
// exported allocator.
type Allocator interface {
	Malloc(ctx context.Context, size uint32) (uint32, error)
}
