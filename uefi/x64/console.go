// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package x64

import (
	_ "unsafe"

	"github.com/usbarmory/go-efi/uefi"
)

// Console represents the early UEFI services console for pre UEFI.Init()
// standard output, it is replaced by UEFI.Console once services are
// initialized.
var Console = uefi.NewConsole(
	&uefi.Binding{Addr: conIn, Mem: uefi.FirmwareMemory{}, Call: uefi.Firmware{}},
	&uefi.Binding{Addr: conOut, Mem: uefi.FirmwareMemory{}, Call: uefi.Firmware{}},
)

//go:linkname printk runtime.printk
func printk(c byte) {
	Console.Write([]byte{c})
}
