package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	wasmbridge "github.com/wippyai/wasm-bridge"
)

// parseRange reads "offset:length"; both accept Go integer literals.
func parseRange(s string) (offset, length uint32, err error) {
	off, n, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("peek %q: want offset:length", s)
	}
	o, err := strconv.ParseUint(off, 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("peek offset: %w", err)
	}
	l, err := strconv.ParseUint(n, 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("peek length: %w", err)
	}
	return uint32(o), uint32(l), nil
}

// peek hex-dumps a range of guest memory.
func peek(mem wasmbridge.Memory, spec string) (string, error) {
	offset, length, err := parseRange(spec)
	if err != nil {
		return "", err
	}
	data, err := mem.Read(offset, length)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("memory [%#x, %#x):\n%s", offset, uint64(offset)+uint64(length), hex.Dump(data)), nil
}

func memorySize(mem wasmbridge.MemorySizer) string {
	return fmt.Sprintf("%d KiB", mem.Size()/1024)
}
