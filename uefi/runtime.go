// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"unsafe"
)

// runtimeServicesTable represents the EFI_RUNTIME_SERVICES table layout.
type runtimeServicesTable struct {
	Header                    TableHeader
	GetTime                   uint64
	SetTime                   uint64
	GetWakeupTime             uint64
	SetWakeupTime             uint64
	SetVirtualAddressMap      uint64
	ConvertPointer            uint64
	GetVariable               uint64
	GetNextVariableName       uint64
	SetVariable               uint64
	GetNextHighMonotonicCount uint64
	ResetSystem               uint64
	UpdateCapsule             uint64
	QueryCapsuleCapabilities  uint64
	QueryVariableInfo         uint64
}

// VariableTable represents the variable services functions of
// EFI_RUNTIME_SERVICES. Sizes are expressed in bytes, name buffers hold NUL
// terminated UCS-2 strings.
type VariableTable interface {
	GetVariable(name []uint16, vendor *GUID, attributes *uint32, dataSize *uint64, data []byte) Status
	GetNextVariableName(nameSize *uint64, name []uint16, vendor *GUID) Status
	SetVariable(name []uint16, vendor *GUID, attributes uint32, data []byte) Status
	QueryVariableInfo(attributes uint32, maxStorage *uint64, remainingStorage *uint64, maxVariableSize *uint64) Status
}

// RuntimeTable represents the EFI_RUNTIME_SERVICES function table.
type RuntimeTable interface {
	VariableTable

	GetTime(t *Time, caps *TimeCapabilities) Status
	SetTime(t *Time) Status
	GetWakeupTime(enabled *bool, pending *bool, t *Time) Status
	SetWakeupTime(enable bool, t *Time) Status
	SetVirtualAddressMap(mapSize uint64, descriptorSize uint64, descriptorVersion uint32, virtualMap []byte) Status
	ConvertPointer(debugDisposition uint64, addr *uint64) Status
	GetNextHighMonotonicCount(count *uint32) Status
	ResetSystem(resetType ResetType, status Status, data []byte) Status
}

// runtimeAdapter implements RuntimeTable over a firmware EFI_RUNTIME_SERVICES
// instance.
type runtimeAdapter struct {
	base uint64
	call Invoker
}

func (r *runtimeAdapter) fn(offset uintptr, args ...uint64) Status {
	return Status(r.call.Call(slot(r.base, offset), args...))
}

var rt runtimeServicesTable

// GetTime calls EFI_RUNTIME_SERVICES.GetTime().
func (r *runtimeAdapter) GetTime(t *Time, caps *TimeCapabilities) Status {
	return r.fn(unsafe.Offsetof(rt.GetTime), ptrval(t), ptrval(caps))
}

// SetTime calls EFI_RUNTIME_SERVICES.SetTime().
func (r *runtimeAdapter) SetTime(t *Time) Status {
	return r.fn(unsafe.Offsetof(rt.SetTime), ptrval(t))
}

// GetWakeupTime calls EFI_RUNTIME_SERVICES.GetWakeupTime().
func (r *runtimeAdapter) GetWakeupTime(enabled *bool, pending *bool, t *Time) Status {
	return r.fn(unsafe.Offsetof(rt.GetWakeupTime), ptrval(enabled), ptrval(pending), ptrval(t))
}

// SetWakeupTime calls EFI_RUNTIME_SERVICES.SetWakeupTime().
func (r *runtimeAdapter) SetWakeupTime(enable bool, t *Time) Status {
	return r.fn(unsafe.Offsetof(rt.SetWakeupTime), boolval(enable), ptrval(t))
}

// SetVirtualAddressMap calls EFI_RUNTIME_SERVICES.SetVirtualAddressMap().
func (r *runtimeAdapter) SetVirtualAddressMap(mapSize uint64, descriptorSize uint64, descriptorVersion uint32, virtualMap []byte) Status {
	return r.fn(unsafe.Offsetof(rt.SetVirtualAddressMap), mapSize, descriptorSize, uint64(descriptorVersion), sliceval(virtualMap))
}

// ConvertPointer calls EFI_RUNTIME_SERVICES.ConvertPointer().
func (r *runtimeAdapter) ConvertPointer(debugDisposition uint64, addr *uint64) Status {
	return r.fn(unsafe.Offsetof(rt.ConvertPointer), debugDisposition, ptrval(addr))
}

// GetVariable calls EFI_RUNTIME_SERVICES.GetVariable().
func (r *runtimeAdapter) GetVariable(name []uint16, vendor *GUID, attributes *uint32, dataSize *uint64, data []byte) Status {
	return r.fn(unsafe.Offsetof(rt.GetVariable), sliceval(name), ptrval(vendor), ptrval(attributes), ptrval(dataSize), sliceval(data))
}

// GetNextVariableName calls EFI_RUNTIME_SERVICES.GetNextVariableName().
func (r *runtimeAdapter) GetNextVariableName(nameSize *uint64, name []uint16, vendor *GUID) Status {
	return r.fn(unsafe.Offsetof(rt.GetNextVariableName), ptrval(nameSize), sliceval(name), ptrval(vendor))
}

// SetVariable calls EFI_RUNTIME_SERVICES.SetVariable().
func (r *runtimeAdapter) SetVariable(name []uint16, vendor *GUID, attributes uint32, data []byte) Status {
	return r.fn(unsafe.Offsetof(rt.SetVariable), sliceval(name), ptrval(vendor), uint64(attributes), uint64(len(data)), sliceval(data))
}

// GetNextHighMonotonicCount calls
// EFI_RUNTIME_SERVICES.GetNextHighMonotonicCount().
func (r *runtimeAdapter) GetNextHighMonotonicCount(count *uint32) Status {
	return r.fn(unsafe.Offsetof(rt.GetNextHighMonotonicCount), ptrval(count))
}

// ResetSystem calls EFI_RUNTIME_SERVICES.ResetSystem().
func (r *runtimeAdapter) ResetSystem(resetType ResetType, status Status, data []byte) Status {
	return r.fn(unsafe.Offsetof(rt.ResetSystem), uint64(resetType), uint64(status), uint64(len(data)), sliceval(data))
}

// QueryVariableInfo calls EFI_RUNTIME_SERVICES.QueryVariableInfo().
func (r *runtimeAdapter) QueryVariableInfo(attributes uint32, maxStorage *uint64, remainingStorage *uint64, maxVariableSize *uint64) Status {
	return r.fn(unsafe.Offsetof(rt.QueryVariableInfo), uint64(attributes), ptrval(maxStorage), ptrval(remainingStorage), ptrval(maxVariableSize))
}

// RuntimeServices represents an EFI Runtime Services instance.
//
// Runtime services remain available after ExitBootServices(), therefore its
// functions are not bound to the boot services [Lifetime].
type RuntimeServices struct {
	VariableServices

	// Header represents the runtime services table header, it is only
	// populated for firmware instances.
	Header TableHeader

	table RuntimeTable
}

// NewRuntimeServices returns a runtime services instance forwarding to the
// argument function table.
func NewRuntimeServices(t RuntimeTable) *RuntimeServices {
	return &RuntimeServices{
		VariableServices: VariableServices{table: t},
		table:            t,
	}
}

// openRuntimeServices overlays the EFI_RUNTIME_SERVICES table at the argument
// address.
func openRuntimeServices(mem Memory, call Invoker, addr uint64) (s *RuntimeServices, err error) {
	t := &runtimeServicesTable{}

	if _, err = overlayTable("EFI_RUNTIME_SERVICES", mem, addr, t, &t.Header, runtimeServicesSignature); err != nil {
		return
	}

	s = NewRuntimeServices(&runtimeAdapter{base: addr, call: call})
	s.Header = t.Header

	return
}

// GetTime calls EFI_RUNTIME_SERVICES.GetTime().
func (s *RuntimeServices) GetTime() (Completion[Time], error) {
	var t Time

	status := s.table.GetTime(&t, nil)

	return Complete(status, func() Time { return t })
}

// TimeAndCapabilities represents the result of
// [RuntimeServices.GetTimeAndCapabilities].
type TimeAndCapabilities struct {
	Time         Time
	Capabilities TimeCapabilities
}

// GetTimeAndCapabilities calls EFI_RUNTIME_SERVICES.GetTime() requesting the
// real time clock capabilities.
func (s *RuntimeServices) GetTimeAndCapabilities() (Completion[TimeAndCapabilities], error) {
	var r TimeAndCapabilities

	status := s.table.GetTime(&r.Time, &r.Capabilities)

	return Complete(status, func() TimeAndCapabilities { return r })
}

// SetTime calls EFI_RUNTIME_SERVICES.SetTime().
//
// The firmware performs no serialization of real time clock access: when
// multiple processors may call this service it is the caller responsibility
// to synchronize them.
func (s *RuntimeServices) SetTime(t *Time) (Status, error) {
	if err := t.Validate(); err != nil {
		return EFI_INVALID_PARAMETER, err
	}

	return check(s.table.SetTime(t))
}

// WakeupTime represents the result of [RuntimeServices.GetWakeupTime].
type WakeupTime struct {
	Enabled bool
	Pending bool
	Time    Time
}

// GetWakeupTime calls EFI_RUNTIME_SERVICES.GetWakeupTime().
func (s *RuntimeServices) GetWakeupTime() (Completion[WakeupTime], error) {
	var w WakeupTime

	status := s.table.GetWakeupTime(&w.Enabled, &w.Pending, &w.Time)

	return Complete(status, func() WakeupTime { return w })
}

// SetWakeupTime calls EFI_RUNTIME_SERVICES.SetWakeupTime(), a nil time
// disables the wakeup alarm.
func (s *RuntimeServices) SetWakeupTime(t *Time) (Status, error) {
	if t != nil {
		if err := t.Validate(); err != nil {
			return EFI_INVALID_PARAMETER, err
		}
	}

	return check(s.table.SetWakeupTime(t != nil, t))
}

// SetVirtualAddressMap calls EFI_RUNTIME_SERVICES.SetVirtualAddressMap().
//
// Changing the runtime addressing mode invalidates every pointer previously
// obtained from the firmware.
func (s *RuntimeServices) SetVirtualAddressMap(m []*MemoryDescriptor) (Status, error) {
	var buf []byte

	for _, d := range m {
		b, err := marshalBinary(d)

		if err != nil {
			return EFI_INVALID_PARAMETER, err
		}

		buf = append(buf, b...)
	}

	return check(s.table.SetVirtualAddressMap(uint64(len(buf)), uint64(memoryDescriptorSize), MemoryDescriptorVersion, buf))
}

// ConvertPointer calls EFI_RUNTIME_SERVICES.ConvertPointer().
func (s *RuntimeServices) ConvertPointer(debugDisposition uint64, addr uint64) (Completion[uint64], error) {
	status := s.table.ConvertPointer(debugDisposition, &addr)
	return Complete(status, func() uint64 { return addr })
}

// GetNextHighMonotonicCount calls
// EFI_RUNTIME_SERVICES.GetNextHighMonotonicCount().
func (s *RuntimeServices) GetNextHighMonotonicCount() (Completion[uint32], error) {
	var count uint32

	status := s.table.GetNextHighMonotonicCount(&count)

	return Complete(status, func() uint32 { return count })
}
