// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest_test

import (
	"errors"
	"testing"

	"github.com/usbarmory/go-efi/uefi"
	"github.com/usbarmory/go-efi/uefi/efitest"
)

const access = uefi.EFI_VARIABLE_NON_VOLATILE | uefi.EFI_VARIABLE_BOOTSERVICE_ACCESS

func TestVariables(t *testing.T) {
	efitest.TestVariableTable(t, func(t *testing.T) uefi.VariableTable {
		return efitest.NewVariables()
	})
}

func TestVariablesAppend(t *testing.T) {
	s := uefi.NewVariableServices(efitest.NewVariables())

	if _, err := s.SetVariable("Log", efitest.TestVendor, access, []byte("ab")); err != nil {
		t.Fatal(err)
	}

	if _, err := s.SetVariable("Log", efitest.TestVendor, access|uefi.EFI_VARIABLE_APPEND_WRITE, []byte("cd")); err != nil {
		t.Fatal(err)
	}

	c, err := s.GetVariable("Log", efitest.TestVendor)

	if err != nil {
		t.Fatal(err)
	}

	if string(c.Value.Data) != "abcd" {
		t.Errorf("unexpected data %q", c.Value.Data)
	}
}

func TestVariablesLimits(t *testing.T) {
	v := efitest.NewVariables()
	v.MaxStorage = 64
	v.MaxVariableSize = 32

	s := uefi.NewVariableServices(v)

	// name and terminator account for 4 bytes
	if _, err := s.SetVariable("A", efitest.TestVendor, access, make([]byte, 29)); !errors.Is(err, uefi.ErrInvalidParameter) {
		t.Errorf("expected EFI_INVALID_PARAMETER, got %v", err)
	}

	if _, err := s.SetVariable("A", efitest.TestVendor, access, make([]byte, 28)); err != nil {
		t.Fatal(err)
	}

	if _, err := s.SetVariable("B", efitest.TestVendor, access, make([]byte, 28)); err != nil {
		t.Fatal(err)
	}

	if _, err := s.SetVariable("C", efitest.TestVendor, access, []byte{1}); !errors.Is(err, uefi.ErrOutOfResources) {
		t.Errorf("expected EFI_OUT_OF_RESOURCES, got %v", err)
	}

	c, err := s.QueryVariableInfo(access)

	if err != nil {
		t.Fatal(err)
	}

	if c.Value.RemainingVariableStorageSize != 0 || c.Value.MaximumVariableSize != 32 {
		t.Errorf("unexpected storage information %+v", c.Value)
	}
}

func TestVariablesAttributes(t *testing.T) {
	s := uefi.NewVariableServices(efitest.NewVariables())

	if _, err := s.SetVariable("Auth", efitest.TestVendor, access|uefi.EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS, []byte{1}); !errors.Is(err, uefi.ErrUnsupported) {
		t.Errorf("expected EFI_UNSUPPORTED, got %v", err)
	}

	if _, err := s.SetVariable("RT", efitest.TestVendor, uefi.EFI_VARIABLE_RUNTIME_ACCESS, []byte{1}); !errors.Is(err, uefi.ErrInvalidParameter) {
		t.Errorf("expected EFI_INVALID_PARAMETER, got %v", err)
	}

	if _, err := s.SetVariable("V", efitest.TestVendor, access, []byte{1}); err != nil {
		t.Fatal(err)
	}

	// attributes of an existing variable cannot change
	if _, err := s.SetVariable("V", efitest.TestVendor, access|uefi.EFI_VARIABLE_RUNTIME_ACCESS, []byte{1}); !errors.Is(err, uefi.ErrInvalidParameter) {
		t.Errorf("expected EFI_INVALID_PARAMETER, got %v", err)
	}
}

func TestVariablesFaults(t *testing.T) {
	v := efitest.NewVariables()
	v.Faults["GetVariable"] = uefi.EFI_DEVICE_ERROR

	s := uefi.NewVariableServices(v)

	if _, err := s.GetVariable("Any", efitest.TestVendor); !errors.Is(err, uefi.ErrDeviceError) {
		t.Errorf("expected EFI_DEVICE_ERROR, got %v", err)
	}
}

func TestVariablesNextNameOversizedLength(t *testing.T) {
	var vendor uefi.GUID

	v := efitest.NewVariables()
	v.Put("Boot0001", efitest.TestVendor, access, []byte{1})

	name := make([]uint16, 2)
	size := uint64(100)

	if status := v.GetNextVariableName(&size, name, &vendor); status != uefi.EFI_BUFFER_TOO_SMALL {
		t.Fatalf("expected EFI_BUFFER_TOO_SMALL, got %s", status)
	}

	if size != 18 {
		t.Errorf("unexpected required size %d", size)
	}
}
