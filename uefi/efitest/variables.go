// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"slices"

	"github.com/usbarmory/go-efi/uefi"
)

// Default variable store limits.
const (
	DefaultMaxStorage      = 64 * 1024
	DefaultMaxVariableSize = 8 * 1024
)

const authenticated = uefi.EFI_VARIABLE_AUTHENTICATED_WRITE_ACCESS |
	uefi.EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS |
	uefi.EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS

type variable struct {
	name   []uint16
	vendor uefi.GUID
	attr   uefi.VariableAttributes
	data   []byte
}

func (v *variable) size() uint64 {
	return uint64((len(v.name)+1)*2 + len(v.data))
}

// Variables implements the uefi.VariableTable interface over an in-memory
// store, variables are enumerated in creation order.
type Variables struct {
	// MaxStorage represents the store capacity in bytes, variable sizes
	// account for their name and data.
	MaxStorage uint64
	// MaxVariableSize represents the maximum size of a single variable.
	MaxVariableSize uint64

	// Faults forces the return status of the named functions.
	Faults Faults

	vars []*variable
}

// NewVariables returns an empty variable store with default limits.
func NewVariables() *Variables {
	return &Variables{
		MaxStorage:      DefaultMaxStorage,
		MaxVariableSize: DefaultMaxVariableSize,
		Faults:          make(Faults),
	}
}

// Put stores a variable, bypassing attribute checks.
func (s *Variables) Put(name string, vendor uefi.GUID, attr uefi.VariableAttributes, data []byte) {
	n, err := uefi.EncodeString(name)

	if err != nil {
		panic(err)
	}

	n = n[:len(n)-1]

	if i := s.find(n, vendor); i >= 0 {
		s.vars[i].attr = attr
		s.vars[i].data = slices.Clone(data)
		return
	}

	s.vars = append(s.vars, &variable{
		name:   n,
		vendor: vendor,
		attr:   attr,
		data:   slices.Clone(data),
	})
}

// Len returns the number of stored variables.
func (s *Variables) Len() int {
	return len(s.vars)
}

func (s *Variables) find(name []uint16, vendor uefi.GUID) int {
	return slices.IndexFunc(s.vars, func(v *variable) bool {
		return v.vendor == vendor && slices.Equal(v.name, name)
	})
}

func (s *Variables) used() (n uint64) {
	for _, v := range s.vars {
		n += v.size()
	}

	return
}

// terminated returns the argument string up to its NUL terminator, which
// must be present.
func terminated(s []uint16) ([]uint16, bool) {
	if i := slices.Index(s, 0); i >= 0 {
		return s[:i], true
	}

	return nil, false
}

// GetVariable implements uefi.VariableTable.
func (s *Variables) GetVariable(name []uint16, vendor *uefi.GUID, attributes *uint32, dataSize *uint64, data []byte) uefi.Status {
	if status, ok := s.Faults.status("GetVariable"); ok {
		return status
	}

	n, ok := terminated(name)

	if !ok || len(n) == 0 || vendor == nil || dataSize == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	i := s.find(n, *vendor)

	if i < 0 {
		return uefi.EFI_NOT_FOUND
	}

	v := s.vars[i]

	if attributes != nil {
		*attributes = uint32(v.attr)
	}

	if *dataSize < uint64(len(v.data)) || len(data) < len(v.data) {
		*dataSize = uint64(len(v.data))
		return uefi.EFI_BUFFER_TOO_SMALL
	}

	*dataSize = uint64(copy(data, v.data))

	return uefi.EFI_SUCCESS
}

// GetNextVariableName implements uefi.VariableTable.
func (s *Variables) GetNextVariableName(nameSize *uint64, name []uint16, vendor *uefi.GUID) uefi.Status {
	if status, ok := s.Faults.status("GetNextVariableName"); ok {
		return status
	}

	if nameSize == nil || vendor == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	name = name[:min(len(name), int(*nameSize/2))]
	prev, ok := terminated(name)

	if !ok {
		return uefi.EFI_INVALID_PARAMETER
	}

	next := 0

	if len(prev) > 0 {
		if next = s.find(prev, *vendor); next < 0 {
			return uefi.EFI_INVALID_PARAMETER
		}

		next += 1
	}

	if next >= len(s.vars) {
		return uefi.EFI_NOT_FOUND
	}

	v := s.vars[next]
	required := uint64(len(v.name)+1) * 2

	if *nameSize < required || uint64(len(name))*2 < required {
		*nameSize = required
		return uefi.EFI_BUFFER_TOO_SMALL
	}

	copy(name, v.name)
	name[len(v.name)] = 0

	*vendor = v.vendor
	*nameSize = required

	return uefi.EFI_SUCCESS
}

// SetVariable implements uefi.VariableTable.
func (s *Variables) SetVariable(name []uint16, vendor *uefi.GUID, attributes uint32, data []byte) uefi.Status {
	if status, ok := s.Faults.status("SetVariable"); ok {
		return status
	}

	n, ok := terminated(name)

	if !ok || len(n) == 0 || vendor == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	attr := uefi.VariableAttributes(attributes)
	appendWrite := attr.Has(uefi.EFI_VARIABLE_APPEND_WRITE)
	attr &^= uefi.EFI_VARIABLE_APPEND_WRITE

	switch {
	case attr&authenticated != 0:
		return uefi.EFI_UNSUPPORTED
	case attr.Has(uefi.EFI_VARIABLE_RUNTIME_ACCESS) && !attr.Has(uefi.EFI_VARIABLE_BOOTSERVICE_ACCESS):
		return uefi.EFI_INVALID_PARAMETER
	}

	i := s.find(n, *vendor)

	// deletion
	if !appendWrite && (attr == 0 || len(data) == 0) {
		if i < 0 {
			return uefi.EFI_NOT_FOUND
		}

		s.vars = slices.Delete(s.vars, i, i+1)

		return uefi.EFI_SUCCESS
	}

	v := &variable{
		name:   slices.Clone(n),
		vendor: *vendor,
		attr:   attr,
	}

	var prev uint64

	if i >= 0 {
		if s.vars[i].attr != attr {
			return uefi.EFI_INVALID_PARAMETER
		}

		prev = s.vars[i].size()

		if appendWrite {
			v.data = slices.Clone(s.vars[i].data)
		}
	}

	if appendWrite && len(data) == 0 {
		return uefi.EFI_SUCCESS
	}

	v.data = append(v.data, data...)

	if v.size() > s.MaxVariableSize {
		return uefi.EFI_INVALID_PARAMETER
	}

	if s.used()-prev+v.size() > s.MaxStorage {
		return uefi.EFI_OUT_OF_RESOURCES
	}

	if i >= 0 {
		s.vars[i] = v
	} else {
		s.vars = append(s.vars, v)
	}

	return uefi.EFI_SUCCESS
}

// QueryVariableInfo implements uefi.VariableTable.
func (s *Variables) QueryVariableInfo(attributes uint32, maxStorage *uint64, remainingStorage *uint64, maxVariableSize *uint64) uefi.Status {
	if status, ok := s.Faults.status("QueryVariableInfo"); ok {
		return status
	}

	if attributes == 0 || maxStorage == nil || remainingStorage == nil || maxVariableSize == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	*maxStorage = s.MaxStorage
	*remainingStorage = s.MaxStorage - s.used()
	*maxVariableSize = s.MaxVariableSize

	return uefi.EFI_SUCCESS
}
