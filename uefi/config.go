// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
)

// Well known EFI Configuration Table GUIDs
var (
	ACPI_20_TABLE_GUID         = MustParseGUID("8868e871-e4f1-11d3-bc22-0080c73c8881")
	SMBIOS3_TABLE_GUID         = MustParseGUID("f2fd1544-9794-4a2c-992e-e5bbcf20e394")
	EFI_DXE_SERVICES_GUID      = MustParseGUID("05ad34ba-6f02-4214-952e-4da0398e2bb9")
	EFI_MEMORY_ATTRIBUTES_GUID = MustParseGUID("dcfa911d-26eb-469f-a220-38b7dc461220")
)

// ConfigurationTable represents an EFI Configuration Table.
type ConfigurationTable struct {
	GUID        GUID
	VendorTable uint64
}

// ConfigurationTables returns the EFI Configuration Tables.
func (s *Services) ConfigurationTables() (c []*ConfigurationTable, err error) {
	t := &ConfigurationTable{}
	d := s.SystemTable

	if d.NumberOfTableEntries == 0 || d.ConfigurationTable == 0 {
		return nil, errors.New("EFI Configuration Table is invalid")
	}

	buf, _ := marshalBinary(t)
	entrySize := len(buf)
	tableSize := entrySize * int(d.NumberOfTableEntries)

	if buf, err = s.Mem.Slice(d.ConfigurationTable, tableSize); err != nil {
		return
	}

	for i := 0; i < tableSize; i += entrySize {
		if err = unmarshalBinary(buf[i:i+entrySize], t); err != nil {
			return
		}

		c = append(c, t)
		t = &ConfigurationTable{}
	}

	return
}

// LocateConfiguration locates an EFI Configuration Table.
func (s *Services) LocateConfiguration(guid GUID) (t *ConfigurationTable, err error) {
	var c []*ConfigurationTable

	if c, err = s.ConfigurationTables(); err != nil {
		return
	}

	for _, t := range c {
		if t.GUID.Equal(guid) {
			return t, nil
		}
	}

	return nil, fmt.Errorf("could not find configuration table %s, %w", guid, ErrNotFound)
}
