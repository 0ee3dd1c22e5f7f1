// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"time"

	"github.com/usbarmory/go-efi/shell"
	"github.com/usbarmory/go-efi/uefi"
)

const guidPattern = `[[:xdigit:]]{8}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{12}`

var configurationTableNames = map[uefi.GUID]string{
	uefi.ACPI_20_TABLE_GUID:         "ACPI 2.0",
	uefi.SMBIOS3_TABLE_GUID:         "SMBIOS 3",
	uefi.EFI_DXE_SERVICES_GUID:      "DXE Services",
	uefi.EFI_MEMORY_ATTRIBUTES_GUID: "Memory Attributes",
}

func init() {
	shell.Add(shell.Cmd{
		Name: "uefi",
		Help: "UEFI information",
		Fn:   uefiCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "protocol",
		Args:    1,
		Pattern: regexp.MustCompile(`^protocol (` + guidPattern + `)$`),
		Syntax:  "<registry format GUID>",
		Help:    "EFI_BOOT_SERVICES.LocateProtocol()",
		Fn:      locateCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "handles",
		Args:    1,
		Pattern: regexp.MustCompile(`^handles (` + guidPattern + `)$`),
		Syntax:  "<registry format GUID>",
		Help:    "EFI_BOOT_SERVICES.LocateHandleBuffer()",
		Fn:      handlesCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "memmap",
		Args:    1,
		Pattern: regexp.MustCompile(`^memmap( e820)?$`),
		Syntax:  "(e820)?",
		Help:    "EFI_BOOT_SERVICES.GetMemoryMap()",
		Fn:      memmapCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "alloc",
		Args:    2,
		Pattern: regexp.MustCompile(`^alloc ([[:xdigit:]]+) (\d+)$`),
		Syntax:  "<hex offset> <size>",
		Help:    "EFI_BOOT_SERVICES.AllocatePages()",
		Fn:      allocCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "time",
		Args:    1,
		Pattern: regexp.MustCompile(`^time(?: (\S+))?$`),
		Syntax:  "(time in RFC3339 format)?",
		Help:    "EFI_RUNTIME_SERVICES.GetTime()/SetTime()",
		Fn:      timeCmd,
	})

	shell.Add(shell.Cmd{
		Name: "wakeup",
		Help: "EFI_RUNTIME_SERVICES.GetWakeupTime()",
		Fn:   wakeupCmd,
	})

	shell.Add(shell.Cmd{
		Name: "dispatch",
		Help: "DXE_SERVICES.Dispatch()",
		Fn:   dispatchCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "reset",
		Args:    1,
		Pattern: regexp.MustCompile(`^reset(?: (cold|warm))?$`),
		Help:    "EFI_RUNTIME_SERVICES.ResetSystem()",
		Syntax:  "(cold|warm)?",
		Fn:      resetCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "halt, shutdown",
		Args:    1,
		Pattern: regexp.MustCompile(`^(halt|shutdown)$`),
		Help:    "shutdown system",
		Fn:      shutdownCmd,
	})
}

func uefiCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	s, err := services()

	if err != nil {
		return
	}

	t := s.SystemTable
	vendor, err := s.FirmwareVendor()

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "UEFI Revision ......: %s\n", s.Revision())
	fmt.Fprintf(&buf, "Firmware Vendor ....: %s\n", vendor)
	fmt.Fprintf(&buf, "Firmware Revision ..: %#x\n", t.FirmwareRevision)
	fmt.Fprintf(&buf, "Runtime Services  ..: %#x\n", t.RuntimeServices)
	fmt.Fprintf(&buf, "Boot Services ......: %#x\n", t.BootServices)
	fmt.Fprintf(&buf, "Configuration Tables: %#x\n", t.ConfigurationTable)

	if c, err := s.ConfigurationTables(); err == nil {
		for _, t := range c {
			fmt.Fprintf(&buf, "  %s (%#x) %s\n", t.GUID, t.VendorTable, configurationTableNames[t.GUID])
		}
	}

	return buf.String(), nil
}

func locateCmd(_ *shell.Interface, arg []string) (res string, err error) {
	b, err := bootServices()

	if err != nil {
		return
	}

	c, err := b.LocateProtocol(uefi.MustParseGUID(arg[0]))

	if err != nil {
		return
	}

	return fmt.Sprintf("%s: %#08x", arg[0], c.Value), nil
}

func handlesCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer

	b, err := bootServices()

	if err != nil {
		return
	}

	c, err := b.LocateHandleBuffer(uefi.MustParseGUID(arg[0]))

	if err != nil {
		return
	}

	for _, h := range c.Value {
		fmt.Fprintf(&buf, "%#08x\n", uint64(h))
	}

	return buf.String(), nil
}

func memmapCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer

	b, err := bootServices()

	if err != nil {
		return
	}

	c, err := b.GetMemoryMap()

	if err != nil {
		return
	}

	m := c.Value

	if arg[0] != "" {
		e820, err := m.E820()

		if err != nil {
			return "", err
		}

		fmt.Fprintf(&buf, "Type Start            End\n")

		for _, e := range e820 {
			fmt.Fprintf(&buf, "%02d   %016x %016x\n", e.MemType, e.Addr, e.Addr+e.Size-1)
		}

		return buf.String(), nil
	}

	fmt.Fprintf(&buf, "Type Start            End              Pages            Attributes\n")

	for _, desc := range m.Descriptors {
		fmt.Fprintf(&buf, "%02d   %016x %016x %016x %016x %s\n",
			desc.Type, desc.PhysicalStart, desc.PhysicalEnd()-1, desc.NumberOfPages, desc.Attribute, desc.Type)
	}

	return buf.String(), nil
}

func allocCmd(_ *shell.Interface, arg []string) (res string, err error) {
	b, err := bootServices()

	if err != nil {
		return
	}

	addr, err := strconv.ParseUint(arg[0], 16, 64)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	size, err := strconv.ParseUint(arg[1], 10, 64)

	if err != nil {
		return "", fmt.Errorf("invalid size, %v", err)
	}

	if (addr % uefi.PageSize) != 0 {
		return "", fmt.Errorf("address must be page aligned")
	}

	log.Printf("allocating memory range %#08x - %#08x", addr, addr+size)

	c, err := b.AllocatePages(uefi.AllocateAddress, uefi.EfiLoaderData, int(size), addr)

	if err != nil {
		return
	}

	return fmt.Sprintf("allocated %#08x (%s)", c.Value, c.Status), nil
}

func timeCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer

	rt, err := runtimeServices()

	if err != nil {
		return
	}

	if arg[0] != "" {
		tm, err := time.Parse(time.RFC3339, arg[0])

		if err != nil {
			return "", err
		}

		t, err := uefi.FromTime(tm)

		if err != nil {
			return "", err
		}

		if _, err = rt.SetTime(t); err != nil {
			return "", err
		}
	}

	c, err := rt.GetTimeAndCapabilities()

	if err != nil {
		return
	}

	t := c.Value.Time
	caps := c.Value.Capabilities

	fmt.Fprintf(&buf, "Time .......: %s\n", t.Time(time.UTC).Format(time.RFC3339))
	fmt.Fprintf(&buf, "Resolution .: %d Hz\n", caps.Resolution)
	fmt.Fprintf(&buf, "Accuracy ...: %d ppm\n", caps.Accuracy/1_000_000)

	return buf.String(), nil
}

func wakeupCmd(_ *shell.Interface, _ []string) (res string, err error) {
	rt, err := runtimeServices()

	if err != nil {
		return
	}

	c, err := rt.GetWakeupTime()

	if err != nil {
		return
	}

	w := c.Value

	if !w.Enabled {
		return fmt.Sprintf("disabled (pending: %v)", w.Pending), nil
	}

	return fmt.Sprintf("%s (pending: %v)", w.Time.String(), w.Pending), nil
}

func dispatchCmd(_ *shell.Interface, _ []string) (res string, err error) {
	s, err := services()

	if err != nil {
		return
	}

	dxe, err := s.DXEServices()

	if err != nil {
		return
	}

	status, err := dxe.Dispatch()

	return status.String(), err
}

func resetCmd(_ *shell.Interface, arg []string) (_ string, err error) {
	var resetType uefi.ResetType

	rt, err := runtimeServices()

	if err != nil {
		return
	}

	switch arg[0] {
	case "cold":
		resetType = uefi.EfiResetCold
	case "warm", "":
		resetType = uefi.EfiResetWarm
	case "shutdown":
		resetType = uefi.EfiResetShutdown
	}

	log.Printf("performing system reset type %s", resetType)

	return "", rt.ResetSystem(resetType, uefi.EFI_SUCCESS, nil)
}

func shutdownCmd(_ *shell.Interface, _ []string) (_ string, err error) {
	return resetCmd(nil, []string{"shutdown"})
}
