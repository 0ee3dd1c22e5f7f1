// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/usbarmory/go-efi/uefi"
	"github.com/usbarmory/go-efi/uefi/efitest"
)

const testVendor = "1b7a1b6a-4a8b-4c1e-9a3c-6f0e2c9d5e11"

// setup initializes the command services over simulated firmware, the
// argument functions prepare the firmware tables before initialization.
func setup(t *testing.T, prepare ...func(sys *efitest.System)) *efitest.System {
	t.Helper()

	sys := efitest.NewSystem()

	for _, fn := range prepare {
		fn(sys)
	}

	svc, err := sys.Services()

	if err != nil {
		t.Fatal(err)
	}

	UEFI = svc
	Variables = nil

	t.Cleanup(func() {
		UEFI = nil
		Variables = nil
	})

	return sys
}

func TestNoServices(t *testing.T) {
	UEFI = nil

	if _, err := uefiCmd(nil, nil); !errors.Is(err, errNoServices) {
		t.Errorf("expected errNoServices, got %v", err)
	}

	if _, err := varsCmd(nil, []string{""}); !errors.Is(err, errNoServices) {
		t.Errorf("expected errNoServices, got %v", err)
	}
}

func TestUEFI(t *testing.T) {
	setup(t, func(sys *efitest.System) {
		sys.InstallConfigurationTable(uefi.ACPI_20_TABLE_GUID, 0xe0000)
	})

	res, err := uefiCmd(nil, nil)

	if err != nil {
		t.Fatal(err)
	}

	for _, s := range []string{"EDK II", "2.7", "ACPI 2.0"} {
		if !strings.Contains(res, s) {
			t.Errorf("missing %q in output:\n%s", s, res)
		}
	}
}

func TestVariables(t *testing.T) {
	sys := setup(t)

	if _, err := setvarCmd(nil, []string{"Test", testVendor, "7", "cafe"}); err != nil {
		t.Fatal(err)
	}

	if sys.Runtime.Len() != 1 {
		t.Fatalf("expected 1 variable, got %d", sys.Runtime.Len())
	}

	res, err := varsCmd(nil, []string{testVendor})

	if err != nil {
		t.Fatal(err)
	}

	if res != testVendor+" Test\n" {
		t.Errorf("unexpected listing %q", res)
	}

	if res, _ = varsCmd(nil, []string{uefi.EFI_GLOBAL_VARIABLE_GUID.String()}); res != "" {
		t.Errorf("unexpected listing %q", res)
	}

	res, err = varCmd(nil, []string{"Test", testVendor})

	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(res, "Size ......: 2") || !strings.Contains(res, "ca fe") {
		t.Errorf("unexpected variable dump:\n%s", res)
	}

	if _, err = delvarCmd(nil, []string{"Test", testVendor}); err != nil {
		t.Fatal(err)
	}

	if _, err = varCmd(nil, []string{"Test", testVendor}); !errors.Is(err, uefi.ErrNotFound) {
		t.Errorf("expected EFI_NOT_FOUND, got %v", err)
	}
}

func TestVariablesOverride(t *testing.T) {
	UEFI = nil
	Variables = uefi.NewVariableServices(efitest.NewVariables())

	t.Cleanup(func() { Variables = nil })

	if _, err := setvarCmd(nil, []string{"Boot0000", uefi.EFI_GLOBAL_VARIABLE_GUID.String(), "7", "00"}); err != nil {
		t.Fatal(err)
	}

	// the default vendor is the EFI global variable GUID
	res, err := varsCmd(nil, []string{""})

	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasSuffix(res, " Boot0000\n") {
		t.Errorf("unexpected listing %q", res)
	}

	res, err = varinfoCmd(nil, nil)

	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(res, "Maximum Variable Size : 8192") {
		t.Errorf("unexpected variable info:\n%s", res)
	}
}

func TestSetVariableInvalid(t *testing.T) {
	setup(t)

	if _, err := setvarCmd(nil, []string{"Test", testVendor, "7", "abc"}); err == nil {
		t.Error("odd length data should fail")
	}
}

func TestMemoryMap(t *testing.T) {
	sys := setup(t)

	res, err := memmapCmd(nil, []string{""})

	if err != nil {
		t.Fatal(err)
	}

	if n := strings.Count(res, "\n"); n != len(sys.Boot.Memory)+1 {
		t.Errorf("expected %d lines, got %d:\n%s", len(sys.Boot.Memory)+1, n, res)
	}

	if _, err = memmapCmd(nil, []string{" e820"}); err != nil {
		t.Fatal(err)
	}
}

func TestExitedBootServices(t *testing.T) {
	setup(t)

	if _, err := UEFI.Boot.ExitBootServices(); err != nil {
		t.Fatal(err)
	}

	if _, err := memmapCmd(nil, []string{""}); !errors.Is(err, uefi.ErrBootServicesExited) {
		t.Errorf("expected ErrBootServicesExited, got %v", err)
	}

	// runtime services remain available
	if _, err := timeCmd(nil, []string{""}); err != nil {
		t.Error(err)
	}
}

func TestTime(t *testing.T) {
	sys := setup(t)

	res, err := timeCmd(nil, []string{"2025-02-03T04:05:06Z"})

	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(res, "2025-02-03T04:05:06Z") {
		t.Errorf("unexpected time output:\n%s", res)
	}

	if sys.Runtime.Clock.Year != 2025 || sys.Runtime.Clock.Second != 6 {
		t.Errorf("clock not set, %s", sys.Runtime.Clock.String())
	}

	if _, err = timeCmd(nil, []string{"yesterday"}); err == nil {
		t.Error("invalid time should fail")
	}
}

func TestWakeup(t *testing.T) {
	setup(t)

	res, err := wakeupCmd(nil, nil)

	if err != nil {
		t.Fatal(err)
	}

	if res != "disabled (pending: false)" {
		t.Errorf("unexpected wakeup output %q", res)
	}
}

func TestDispatch(t *testing.T) {
	setup(t, func(sys *efitest.System) {
		sys.InstallDXEServices(uefi.EFI_SUCCESS)
	})

	res, err := dispatchCmd(nil, nil)

	if err != nil {
		t.Fatal(err)
	}

	if res != "EFI_SUCCESS" {
		t.Errorf("unexpected dispatch output %q", res)
	}
}

func TestReset(t *testing.T) {
	sys := setup(t)

	if _, err := resetCmd(nil, []string{"cold"}); err == nil {
		t.Error("returning reset should fail")
	}

	if _, err := shutdownCmd(nil, nil); err == nil {
		t.Error("returning reset should fail")
	}

	if len(sys.Runtime.Resets) != 2 {
		t.Fatalf("expected 2 resets, got %d", len(sys.Runtime.Resets))
	}

	if r := sys.Runtime.Resets[0]; r.Type != uefi.EfiResetCold {
		t.Errorf("unexpected reset type %s", r.Type)
	}

	if r := sys.Runtime.Resets[1]; r.Type != uefi.EfiResetShutdown {
		t.Errorf("unexpected reset type %s", r.Type)
	}
}

func TestProtocols(t *testing.T) {
	sys := setup(t)

	guid := uefi.EFI_BLOCK_IO_PROTOCOL_GUID
	sys.Boot.Install(0x3000, guid, 0x5000)
	sys.Boot.Install(0x3001, guid, 0x6000)

	res, err := locateCmd(nil, []string{guid.String()})

	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasSuffix(res, "0x00005000") {
		t.Errorf("unexpected protocol output %q", res)
	}

	res, err = handlesCmd(nil, []string{guid.String()})

	if err != nil {
		t.Fatal(err)
	}

	if res != "0x00003000\n0x00003001\n" {
		t.Errorf("unexpected handles output %q", res)
	}

	if _, err = handlesCmd(nil, []string{uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID.String()}); !errors.Is(err, uefi.ErrNotFound) {
		t.Errorf("expected EFI_NOT_FOUND, got %v", err)
	}
}

func TestUptime(t *testing.T) {
	res, err := uptimeCmd(nil, nil)

	if err != nil {
		t.Fatal(err)
	}

	if len(res) == 0 {
		t.Error("empty uptime")
	}
}
