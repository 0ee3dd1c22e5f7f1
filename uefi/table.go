// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
)

// EFI Table Header Signatures
const (
	systemTableSignature     = 0x5453595320494249 // IBI SYST
	bootServicesSignature    = 0x56524553544f4f42 // BOOTSERV
	runtimeServicesSignature = 0x56524553544e5552 // RUNTSERV
	dxeServicesSignature     = 0x565245535f455844 // DXE_SERV
)

// ErrBootServicesExited is returned by boot phase views once
// ExitBootServices() has been called.
var ErrBootServicesExited = errors.New("EFI Boot Services have been terminated")

// Handle represents an EFI_HANDLE.
type Handle uint64

// TableHeader represents the data structure that precedes all of the standard
// EFI table types.
type TableHeader struct {
	Signature  uint64
	Revision   uint32
	HeaderSize uint32
	CRC32      uint32
	Reserved   uint32
}

// Lifetime represents the validity of firmware memory which is only
// guaranteed until EFI Boot Services are terminated. A nil Lifetime never
// ends, which is the case for runtime services memory.
type Lifetime struct {
	ended bool
}

// End marks the memory as no longer valid.
func (l *Lifetime) End() {
	if l != nil {
		l.ended = true
	}
}

// Valid reports whether the memory is still valid.
func (l *Lifetime) Valid() bool {
	return l == nil || !l.ended
}

func (l *Lifetime) check() error {
	if !l.Valid() {
		return ErrBootServicesExited
	}

	return nil
}

// overlayTable decodes a standard EFI table and verifies its signature, a
// mismatch is a fatal firmware contract violation.
func overlayTable(op string, mem Memory, addr uint64, t any, hdr *TableHeader, signature uint64) (buf []byte, err error) {
	if buf, err = decode(mem, addr, t); err != nil {
		return nil, fmt.Errorf("could not decode %s table, %v", op, err)
	}

	if hdr.Signature != signature {
		fault(op, EFI_SUCCESS, "invalid table signature %#x (expected %#x)", hdr.Signature, signature)
	}

	return
}

// Pool represents the firmware pool allocator, used to release buffers
// allocated by the firmware on behalf of the caller.
type Pool interface {
	FreePool(addr uint64) (Status, error)
}

// Binding represents a firmware interface instance: its address, the memory
// it lives in, the calling convention bridge and the validity of its memory.
//
// Pool is optional, when nil firmware allocated buffers are not released.
type Binding struct {
	Addr uint64
	Mem  Memory
	Call Invoker
	Life *Lifetime
	Pool Pool
}

func (b *Binding) free(addr uint64) {
	if b.Pool != nil && addr != 0 {
		b.Pool.FreePool(addr)
	}
}

func (b *Binding) valid() error {
	if b.Addr == 0 {
		return errors.New("invalid interface address")
	}

	if b.Mem == nil || b.Call == nil {
		return errors.New("invalid binding")
	}

	return b.Life.check()
}

// Protocol represents an EFI protocol interface view.
type Protocol interface {
	GUID() GUID
}

type protocol[T any] interface {
	*T
	Protocol
	bind(b *Binding) error
}

// Bind returns a typed protocol view over the interface described by the
// argument binding. The caller asserts that the interface implements the
// protocol, as obtained from a lookup by its GUID.
func Bind[T any, P protocol[T]](b *Binding) (P, error) {
	if err := b.valid(); err != nil {
		return nil, err
	}

	p := P(new(T))

	if err := p.bind(b); err != nil {
		return nil, err
	}

	return p, nil
}

// HandleProtocol returns a typed protocol view for the protocol interface
// supported by the argument handle.
func HandleProtocol[T any, P protocol[T]](s *BootServices, handle Handle) (P, error) {
	guid := P(new(T)).GUID()
	c, err := s.HandleProtocol(handle, guid)

	if err != nil {
		return nil, err
	}

	return Bind[T, P](s.binding(c.Value))
}

// LocateProtocol returns a typed protocol view for the first protocol
// interface matching its GUID.
func LocateProtocol[T any, P protocol[T]](s *BootServices) (P, error) {
	guid := P(new(T)).GUID()
	c, err := s.LocateProtocol(guid)

	if err != nil {
		return nil, err
	}

	return Bind[T, P](s.binding(c.Value))
}
