// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"unsafe"
)

// EFI Boot Manager Policy Protocol GUIDs
var (
	EFI_BOOT_MANAGER_POLICY_PROTOCOL_GUID = MustParseGUID("fedf8e0c-e147-11e3-9903-b8e8562cbafa")

	EFI_BOOT_MANAGER_POLICY_CONSOLE_GUID     = MustParseGUID("cab0e94c-e15f-11e3-918d-b8e8562cbafa")
	EFI_BOOT_MANAGER_POLICY_NETWORK_GUID     = MustParseGUID("d04159dc-e15f-11e3-b261-b8e8562cbafa")
	EFI_BOOT_MANAGER_POLICY_CONNECT_ALL_GUID = MustParseGUID("113b2126-fc8a-11e3-bd6c-b8e8562cbafa")
)

// bootManagerPolicy represents the EFI_BOOT_MANAGER_POLICY_PROTOCOL layout.
type bootManagerPolicy struct {
	Revision           uint64
	ConnectDevicePath  uint64
	ConnectDeviceClass uint64
}

// BootManagerPolicyTable represents the EFI_BOOT_MANAGER_POLICY_PROTOCOL
// function table, a nil device path connects all controllers.
type BootManagerPolicyTable interface {
	ConnectDevicePath(path DevicePath, recursive bool) Status
	ConnectDeviceClass(class *GUID) Status
}

type bootManagerPolicyAdapter struct {
	Binding
}

var bmp bootManagerPolicy

func (d *bootManagerPolicyAdapter) ConnectDevicePath(path DevicePath, recursive bool) Status {
	return Status(d.Call.Call(slot(d.Addr, unsafe.Offsetof(bmp.ConnectDevicePath)), d.Addr, sliceval(path), boolval(recursive)))
}

func (d *bootManagerPolicyAdapter) ConnectDeviceClass(class *GUID) Status {
	return Status(d.Call.Call(slot(d.Addr, unsafe.Offsetof(bmp.ConnectDeviceClass)), d.Addr, ptrval(class)))
}

// BootManagerPolicy represents an EFI Boot Manager Policy Protocol instance.
type BootManagerPolicy struct {
	// Revision represents the protocol revision.
	Revision uint64

	table BootManagerPolicyTable
	life  *Lifetime
}

// GUID returns the EFI Boot Manager Policy Protocol GUID.
func (p *BootManagerPolicy) GUID() GUID {
	return EFI_BOOT_MANAGER_POLICY_PROTOCOL_GUID
}

func (p *BootManagerPolicy) bind(b *Binding) (err error) {
	t := &bootManagerPolicy{}

	if _, err = decode(b.Mem, b.Addr, t); err != nil {
		return
	}

	p.Revision = t.Revision
	p.table = &bootManagerPolicyAdapter{*b}
	p.life = b.Life

	return
}

// NewBootManagerPolicy returns a protocol instance forwarding to the argument
// function table.
func NewBootManagerPolicy(t BootManagerPolicyTable, life *Lifetime) *BootManagerPolicy {
	return &BootManagerPolicy{
		table: t,
		life:  life,
	}
}

// ConnectDevicePath connects a device path following the platform boot
// manager policy.
func (p *BootManagerPolicy) ConnectDevicePath(path DevicePath, recursive bool) (Status, error) {
	if err := p.life.check(); err != nil {
		return EFI_SUCCESS, err
	}

	if _, err := path.Size(); err != nil {
		return EFI_INVALID_PARAMETER, err
	}

	return check(p.table.ConnectDevicePath(path, recursive))
}

// ConnectDeviceClass connects a class of devices following the platform boot
// manager policy.
func (p *BootManagerPolicy) ConnectDeviceClass(class GUID) (Status, error) {
	if err := p.life.check(); err != nil {
		return EFI_SUCCESS, err
	}

	return check(p.table.ConnectDeviceClass(&class))
}

// ConnectAllControllers connects all controllers following the platform boot
// manager policy.
func (p *BootManagerPolicy) ConnectAllControllers() (Status, error) {
	if err := p.life.check(); err != nil {
		return EFI_SUCCESS, err
	}

	return check(p.table.ConnectDevicePath(nil, false))
}
