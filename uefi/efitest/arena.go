// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package efitest provides simulated firmware for testing code built on the
// uefi package without UEFI firmware.
//
// An [Arena] stands in for firmware memory, a [Recorder] for the calling
// convention bridge, while [Runtime] and [Boot] implement the runtime and
// boot services function tables in Go.
package efitest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
	"unsafe"
)

// DefaultBase represents the first address of arenas created by [NewArena].
const DefaultBase = 0x100000

// Arena represents a simulated firmware address space, with a bump allocator.
type Arena struct {
	// Base represents the arena start address.
	Base uint64

	buf  []byte
	next int
}

// NewArena returns an arena of the argument size starting at [DefaultBase].
func NewArena(size int) *Arena {
	return &Arena{
		Base: DefaultBase,
		buf:  make([]byte, size),
	}
}

// Slice implements the uefi.Memory interface.
func (a *Arena) Slice(addr uint64, size int) ([]byte, error) {
	if addr < a.Base || size < 0 {
		return nil, fmt.Errorf("invalid address %#x", addr)
	}

	off := addr - a.Base

	if off+uint64(size) > uint64(len(a.buf)) {
		return nil, fmt.Errorf("invalid range %#x-%#x", addr, addr+uint64(size))
	}

	return a.buf[off : off+uint64(size) : off+uint64(size)], nil
}

// Alloc reserves zeroed arena memory, 8 byte aligned.
func (a *Arena) Alloc(size int) uint64 {
	return a.AllocAligned(size, 8)
}

// AllocAligned reserves zeroed arena memory with the argument alignment.
func (a *Arena) AllocAligned(size int, align int) uint64 {
	if r := (int(a.Base) + a.next) % align; r != 0 {
		a.next += align - r
	}

	if a.next+size > len(a.buf) {
		panic("efitest: arena exhausted")
	}

	addr := a.Base + uint64(a.next)
	a.next += size

	return addr
}

// Put allocates and writes a fixed layout record in little-endian format.
func (a *Arena) Put(data any) uint64 {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, data); err != nil {
		panic(err)
	}

	return a.PutBytes(buf.Bytes())
}

// PutBytes allocates and writes the argument bytes.
func (a *Arena) PutBytes(b []byte) uint64 {
	addr := a.Alloc(len(b))
	copy(a.MustSlice(addr, len(b)), b)

	return addr
}

// PutString allocates and writes a NUL terminated UCS-2 string.
func (a *Arena) PutString(s string) uint64 {
	return a.PutBytes(UCS2(s))
}

// PutUint64 writes a 64-bit value at the argument address.
func (a *Arena) PutUint64(addr uint64, val uint64) {
	binary.LittleEndian.PutUint64(a.MustSlice(addr, 8), val)
}

// Uint64 reads a 64-bit value at the argument address.
func (a *Arena) Uint64(addr uint64) uint64 {
	return binary.LittleEndian.Uint64(a.MustSlice(addr, 8))
}

// MustSlice is like Slice but panics on error.
func (a *Arena) MustSlice(addr uint64, size int) []byte {
	buf, err := a.Slice(addr, size)

	if err != nil {
		panic(err)
	}

	return buf
}

// String reads a NUL terminated UCS-2 string at the argument address.
func (a *Arena) String(addr uint64) string {
	var s []uint16

	for ; ; addr += 2 {
		c := binary.LittleEndian.Uint16(a.MustSlice(addr, 2))

		if c == 0 {
			return string(utf16.Decode(s))
		}

		s = append(s, c)
	}
}

// UCS2 returns the NUL terminated little-endian UCS-2 representation of a
// string.
func UCS2(s string) (buf []byte) {
	for _, c := range utf16.Encode([]rune(s)) {
		buf = binary.LittleEndian.AppendUint16(buf, c)
	}

	return binary.LittleEndian.AppendUint16(buf, 0)
}

// Ptr converts a raw call argument, as passed by uefi package adapters, back
// to a Go pointer.
func Ptr[T any](arg uint64) *T {
	return (*T)(unsafe.Pointer(uintptr(arg)))
}

// Bytes converts a raw call argument, as passed by uefi package adapters, back
// to a Go byte slice of the argument length.
func Bytes(arg uint64, n int) []byte {
	if arg == 0 {
		return nil
	}

	return unsafe.Slice(Ptr[byte](arg), n)
}

// GoString reads a NUL terminated UCS-2 string from a raw call argument.
func GoString(arg uint64) string {
	var s []uint16

	for p := arg; ; p += 2 {
		c := *Ptr[uint16](p)

		if c == 0 {
			return string(utf16.Decode(s))
		}

		s = append(s, c)
	}
}
