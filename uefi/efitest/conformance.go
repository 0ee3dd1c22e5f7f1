// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/usbarmory/go-efi/uefi"
)

// TestVendor represents the vendor GUID used by [TestVariableTable].
var TestVendor = uefi.MustParseGUID("1b7a1b6a-4a8b-4c1e-9a3c-6f0e2c9d5e11")

const bootAccess = uefi.EFI_VARIABLE_NON_VOLATILE | uefi.EFI_VARIABLE_BOOTSERVICE_ACCESS

// TestVariableTable tests a variable store implementation against the
// behaviour expected from firmware variable services. Each subtest runs
// against an empty store returned by the argument function.
func TestVariableTable(t *testing.T, open func(t *testing.T) uefi.VariableTable) {
	t.Run("GetSet", func(t *testing.T) {
		s := uefi.NewVariableServices(open(t))
		data := bytes.Repeat([]byte{0xa5}, 200)

		if _, err := s.SetVariable("Large", TestVendor, bootAccess, data); err != nil {
			t.Fatal(err)
		}

		c, err := s.GetVariable("Large", TestVendor)

		if err != nil {
			t.Fatal(err)
		}

		if c.Value.Attributes != bootAccess {
			t.Errorf("attributes %s, expected %s", c.Value.Attributes, bootAccess)
		}

		if !bytes.Equal(c.Value.Data, data) {
			t.Errorf("data mismatch, got %d bytes", len(c.Value.Data))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s := uefi.NewVariableServices(open(t))

		if _, err := s.GetVariable("Missing", TestVendor); !errors.Is(err, uefi.ErrNotFound) {
			t.Errorf("expected EFI_NOT_FOUND, got %v", err)
		}

		if _, err := s.DeleteVariable("Missing", TestVendor); !errors.Is(err, uefi.ErrNotFound) {
			t.Errorf("expected EFI_NOT_FOUND, got %v", err)
		}
	})

	t.Run("Enumerate", func(t *testing.T) {
		s := uefi.NewVariableServices(open(t))

		names := []string{
			"Boot0000",
			"BootOrder",
			strings.Repeat("LongVariableName", 4),
		}

		for _, name := range names {
			if _, err := s.SetVariable(name, TestVendor, bootAccess, []byte(name)); err != nil {
				t.Fatal(err)
			}
		}

		var got []string

		it := s.Variables()

		for v := range it.All() {
			if v.Vendor != TestVendor {
				t.Errorf("unexpected vendor %s", v.Vendor)
			}

			got = append(got, v.Name)
		}

		if it.Err() != nil {
			t.Fatal(it.Err())
		}

		slices.Sort(got)
		slices.Sort(names)

		if !slices.Equal(got, names) {
			t.Errorf("enumerated %q, expected %q", got, names)
		}

		if it.Next() {
			t.Error("exhausted iterator advanced")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := uefi.NewVariableServices(open(t))

		if _, err := s.SetVariable("Temp", TestVendor, bootAccess, []byte{1}); err != nil {
			t.Fatal(err)
		}

		if _, err := s.DeleteVariable("Temp", TestVendor); err != nil {
			t.Fatal(err)
		}

		if _, err := s.GetVariable("Temp", TestVendor); !errors.Is(err, uefi.ErrNotFound) {
			t.Errorf("expected EFI_NOT_FOUND, got %v", err)
		}
	})

	t.Run("Append", func(t *testing.T) {
		s := uefi.NewVariableServices(open(t))
		appendWrite := bootAccess | uefi.EFI_VARIABLE_APPEND_WRITE

		if _, err := s.SetVariable("Log", TestVendor, bootAccess, []byte("abc")); err != nil {
			t.Fatal(err)
		}

		if _, err := s.SetVariable("Log", TestVendor, appendWrite, []byte("def")); err != nil {
			t.Fatal(err)
		}

		// empty appends are no-ops
		if _, err := s.SetVariable("Log", TestVendor, appendWrite, nil); err != nil {
			t.Fatal(err)
		}

		c, err := s.GetVariable("Log", TestVendor)

		if err != nil {
			t.Fatal(err)
		}

		if string(c.Value.Data) != "abcdef" {
			t.Errorf("data %q, expected %q", c.Value.Data, "abcdef")
		}
	})

	t.Run("Attributes", func(t *testing.T) {
		s := uefi.NewVariableServices(open(t))

		if _, err := s.SetVariable("Var", TestVendor, bootAccess, []byte{1}); err != nil {
			t.Fatal(err)
		}

		if _, err := s.SetVariable("Var", TestVendor, uefi.EFI_VARIABLE_BOOTSERVICE_ACCESS, []byte{2}); !errors.Is(err, uefi.ErrInvalidParameter) {
			t.Errorf("attribute change, expected EFI_INVALID_PARAMETER, got %v", err)
		}

		if _, err := s.SetVariable("Runtime", TestVendor, uefi.EFI_VARIABLE_RUNTIME_ACCESS, []byte{1}); !errors.Is(err, uefi.ErrInvalidParameter) {
			t.Errorf("runtime only access, expected EFI_INVALID_PARAMETER, got %v", err)
		}
	})

	t.Run("QueryVariableInfo", func(t *testing.T) {
		s := uefi.NewVariableServices(open(t))

		before, err := s.QueryVariableInfo(bootAccess)

		if err != nil {
			t.Fatal(err)
		}

		if _, err = s.SetVariable("Var", TestVendor, bootAccess, make([]byte, 100)); err != nil {
			t.Fatal(err)
		}

		after, err := s.QueryVariableInfo(bootAccess)

		if err != nil {
			t.Fatal(err)
		}

		if after.Value.RemainingVariableStorageSize >= before.Value.RemainingVariableStorageSize {
			t.Errorf("remaining storage did not decrease (%d, %d)", before.Value.RemainingVariableStorageSize, after.Value.RemainingVariableStorageSize)
		}

		if after.Value.MaximumVariableStorageSize != before.Value.MaximumVariableStorageSize {
			t.Error("maximum storage changed")
		}
	})

	t.Run("UnknownCursor", func(t *testing.T) {
		table := open(t)
		vendor := TestVendor
		name, _ := uefi.EncodeString("Unknown")
		size := uint64(len(name) * 2)

		if status := table.GetNextVariableName(&size, name, &vendor); status != uefi.EFI_INVALID_PARAMETER {
			t.Errorf("expected EFI_INVALID_PARAMETER, got %s", status)
		}
	})

	t.Run("BufferTooSmall", func(t *testing.T) {
		table := open(t)
		s := uefi.NewVariableServices(table)

		if _, err := s.SetVariable("Var", TestVendor, bootAccess, make([]byte, 16)); err != nil {
			t.Fatal(err)
		}

		var attr uint32

		vendor := TestVendor
		name, _ := uefi.EncodeString("Var")
		size := uint64(4)

		if status := table.GetVariable(name, &vendor, &attr, &size, make([]byte, 4)); status != uefi.EFI_BUFFER_TOO_SMALL {
			t.Fatalf("expected EFI_BUFFER_TOO_SMALL, got %s", status)
		}

		if size != 16 {
			t.Errorf("required size %d, expected 16", size)
		}
	})
}
