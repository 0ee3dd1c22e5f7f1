// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"unsafe"
)

// dxeServicesTable represents the DXE Services Table layout (Platform
// Initialization Specification, Volume 2).
type dxeServicesTable struct {
	Header                     TableHeader
	AddMemorySpace             uint64
	AllocateMemorySpace        uint64
	FreeMemorySpace            uint64
	RemoveMemorySpace          uint64
	GetMemorySpaceDescriptor   uint64
	SetMemorySpaceAttributes   uint64
	GetMemorySpaceMap          uint64
	AddIoSpace                 uint64
	AllocateIoSpace            uint64
	FreeIoSpace                uint64
	RemoveIoSpace              uint64
	GetIoSpaceDescriptor       uint64
	GetIoSpaceMap              uint64
	Dispatch                   uint64
	Schedule                   uint64
	Trust                      uint64
	ProcessFirmwareVolume      uint64
	SetMemorySpaceCapabilities uint64
}

// DXETable represents the DXE Services function table.
type DXETable interface {
	Dispatch() Status
}

type dxeAdapter struct {
	Binding
}

func (d *dxeAdapter) Dispatch() Status {
	var t dxeServicesTable
	return Status(d.Call.Call(slot(d.Addr, unsafe.Offsetof(t.Dispatch))))
}

// DXEServices represents a DXE Services Table instance.
type DXEServices struct {
	Header TableHeader

	table DXETable
	life  *Lifetime
}

// NewDXEServices returns a DXE services instance forwarding to the argument
// function table, bound to the argument lifetime.
func NewDXEServices(t DXETable, life *Lifetime) *DXEServices {
	return &DXEServices{
		table: t,
		life:  life,
	}
}

// DXEServices locates the DXE Services Table among the EFI Configuration
// Tables.
func (s *Services) DXEServices() (d *DXEServices, err error) {
	var c *ConfigurationTable

	if err = s.Boot.life.check(); err != nil {
		return
	}

	if c, err = s.LocateConfiguration(EFI_DXE_SERVICES_GUID); err != nil {
		return
	}

	t := &dxeServicesTable{}

	if _, err = overlayTable("DXE_SERVICES", s.Mem, c.VendorTable, t, &t.Header, dxeServicesSignature); err != nil {
		return
	}

	b := s.Boot.binding(c.VendorTable)
	d = NewDXEServices(&dxeAdapter{*b}, b.Life)
	d.Header = t.Header

	return
}

// Dispatch calls DXE_SERVICES.Dispatch(), loading and starting drivers
// from firmware volumes which were not yet dispatched.
func (d *DXEServices) Dispatch() (Status, error) {
	if err := d.life.check(); err != nil {
		return EFI_SUCCESS, err
	}

	return check(d.table.Dispatch())
}
