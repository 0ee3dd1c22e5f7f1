// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"bytes"
	"encoding/binary"

	"github.com/usbarmory/go-efi/uefi"
)

// Faults maps function names to the status they are forced to return.
type Faults map[string]uefi.Status

func (f Faults) status(fn string) (status uefi.Status, ok bool) {
	status, ok = f[fn]
	return
}

// Reset represents a recorded ResetSystem() request.
type Reset struct {
	Type   uefi.ResetType
	Status uefi.Status
	Data   []byte
}

// Runtime implements the uefi.RuntimeTable interface.
type Runtime struct {
	*Variables

	// Clock represents the real time clock.
	Clock uefi.Time
	// Capabilities represents the real time clock capabilities.
	Capabilities uefi.TimeCapabilities
	// Wakeup represents the wakeup alarm.
	Wakeup uefi.WakeupTime

	// Count represents the high 32 bits of the monotonic counter.
	Count uint32

	// VirtualMap represents the map set by SetVirtualAddressMap().
	VirtualMap []uefi.MemoryDescriptor
	// VirtualOffset is added to pointers by ConvertPointer().
	VirtualOffset uint64

	// Resets represents all ResetSystem() requests.
	Resets []Reset

	// Faults forces the return status of the named functions.
	Faults Faults
}

// NewRuntime returns a runtime services simulation with an empty variable
// store and a valid clock.
func NewRuntime() *Runtime {
	return &Runtime{
		Variables: NewVariables(),
		Clock: uefi.Time{
			Year:     2024,
			Month:    1,
			Day:      1,
			TimeZone: uefi.UnspecifiedTimezone,
		},
		Capabilities: uefi.TimeCapabilities{
			Resolution: 1,
			Accuracy:   50_000_000,
		},
		Faults: make(Faults),
	}
}

// GetTime implements uefi.RuntimeTable.
func (r *Runtime) GetTime(t *uefi.Time, caps *uefi.TimeCapabilities) uefi.Status {
	if status, ok := r.Faults.status("GetTime"); ok {
		return status
	}

	if t == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	*t = r.Clock

	if caps != nil {
		*caps = r.Capabilities
	}

	return uefi.EFI_SUCCESS
}

// SetTime implements uefi.RuntimeTable.
func (r *Runtime) SetTime(t *uefi.Time) uefi.Status {
	if status, ok := r.Faults.status("SetTime"); ok {
		return status
	}

	if t == nil || t.Validate() != nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	r.Clock = *t

	return uefi.EFI_SUCCESS
}

// GetWakeupTime implements uefi.RuntimeTable.
func (r *Runtime) GetWakeupTime(enabled *bool, pending *bool, t *uefi.Time) uefi.Status {
	if status, ok := r.Faults.status("GetWakeupTime"); ok {
		return status
	}

	if enabled == nil || pending == nil || t == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	*enabled = r.Wakeup.Enabled
	*pending = r.Wakeup.Pending
	*t = r.Wakeup.Time

	return uefi.EFI_SUCCESS
}

// SetWakeupTime implements uefi.RuntimeTable.
func (r *Runtime) SetWakeupTime(enable bool, t *uefi.Time) uefi.Status {
	if status, ok := r.Faults.status("SetWakeupTime"); ok {
		return status
	}

	if enable && (t == nil || t.Validate() != nil) {
		return uefi.EFI_INVALID_PARAMETER
	}

	r.Wakeup.Enabled = enable
	r.Wakeup.Pending = false

	if enable {
		r.Wakeup.Time = *t
	}

	return uefi.EFI_SUCCESS
}

// SetVirtualAddressMap implements uefi.RuntimeTable.
func (r *Runtime) SetVirtualAddressMap(mapSize uint64, descriptorSize uint64, descriptorVersion uint32, virtualMap []byte) uefi.Status {
	if status, ok := r.Faults.status("SetVirtualAddressMap"); ok {
		return status
	}

	switch {
	case r.VirtualMap != nil:
		return uefi.EFI_UNSUPPORTED
	case descriptorVersion != uefi.MemoryDescriptorVersion || descriptorSize == 0:
		return uefi.EFI_INVALID_PARAMETER
	case mapSize%descriptorSize != 0 || mapSize > uint64(len(virtualMap)):
		return uefi.EFI_INVALID_PARAMETER
	}

	r.VirtualMap = []uefi.MemoryDescriptor{}

	for off := uint64(0); off < mapSize; off += descriptorSize {
		var d uefi.MemoryDescriptor

		if err := binary.Read(bytes.NewReader(virtualMap[off:off+descriptorSize]), binary.LittleEndian, &d); err != nil {
			return uefi.EFI_INVALID_PARAMETER
		}

		r.VirtualMap = append(r.VirtualMap, d)
	}

	return uefi.EFI_SUCCESS
}

// ConvertPointer implements uefi.RuntimeTable.
func (r *Runtime) ConvertPointer(debugDisposition uint64, addr *uint64) uefi.Status {
	if status, ok := r.Faults.status("ConvertPointer"); ok {
		return status
	}

	if addr == nil || *addr == 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	*addr += r.VirtualOffset

	return uefi.EFI_SUCCESS
}

// GetNextHighMonotonicCount implements uefi.RuntimeTable.
func (r *Runtime) GetNextHighMonotonicCount(count *uint32) uefi.Status {
	if status, ok := r.Faults.status("GetNextHighMonotonicCount"); ok {
		return status
	}

	if count == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	r.Count += 1
	*count = r.Count

	return uefi.EFI_SUCCESS
}

// ResetSystem implements uefi.RuntimeTable, the request is recorded and the
// function returns.
func (r *Runtime) ResetSystem(resetType uefi.ResetType, status uefi.Status, data []byte) uefi.Status {
	r.Resets = append(r.Resets, Reset{
		Type:   resetType,
		Status: status,
		Data:   bytes.Clone(data),
	})

	if status, ok := r.Faults.status("ResetSystem"); ok {
		return status
	}

	return uefi.EFI_SUCCESS
}
