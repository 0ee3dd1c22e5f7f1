// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
)

// SearchType represents an EFI_LOCATE_SEARCH_TYPE.
type SearchType uint32

// EFI_LOCATE_SEARCH_TYPE
const (
	AllHandles SearchType = iota
	ByRegisterNotify
	ByProtocol
)

// HandleProtocol calls EFI_BOOT_SERVICES.HandleProtocol(), returning the
// address of the protocol interface supported by the argument handle.
func (s *BootServices) HandleProtocol(handle Handle, guid GUID) (c Completion[uint64], err error) {
	var addr uint64

	if err = s.life.check(); err != nil {
		return
	}

	status := s.table.HandleProtocol(handle, &guid, &addr)

	return Complete(status, func() uint64 { return addr })
}

// LocateProtocol calls EFI_BOOT_SERVICES.LocateProtocol(), returning the
// address of the first protocol interface matching the argument GUID.
func (s *BootServices) LocateProtocol(guid GUID) (c Completion[uint64], err error) {
	var addr uint64

	if err = s.life.check(); err != nil {
		return
	}

	status := s.table.LocateProtocol(&guid, 0, &addr)

	return Complete(status, func() uint64 { return addr })
}

// LocateHandleBuffer calls EFI_BOOT_SERVICES.LocateHandleBuffer() returning
// all handles supporting the argument protocol. The firmware allocated handle
// buffer is copied and released.
func (s *BootServices) LocateHandleBuffer(guid GUID) (c Completion[[]Handle], err error) {
	var count uint64
	var addr uint64

	if err = s.life.check(); err != nil {
		return
	}

	status := s.table.LocateHandleBuffer(ByProtocol, &guid, 0, &count, &addr)

	if status.IsError() {
		return c, StatusError(status)
	}

	if addr != 0 {
		defer s.table.FreePool(addr)
	}

	if count == 0 {
		return Complete(status, func() []Handle { return nil })
	}

	buf, err := s.mem.Slice(addr, int(count)*8)

	if err != nil {
		return
	}

	handles := make([]Handle, count)

	for i := range handles {
		handles[i] = Handle(binary.LittleEndian.Uint64(buf[i*8:]))
	}

	return Complete(status, func() []Handle { return handles })
}
