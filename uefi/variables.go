// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"iter"
	"strings"
)

var (
	EFI_GLOBAL_VARIABLE_GUID = MustParseGUID("8BE4DF61-93CA-11D2-AA0D-00E098032B8C")
)

// Initial buffer sizes for variable services.
const (
	// in UCS-2 characters
	variableNameSize = 32
	// in bytes
	variableDataSize = 64
)

// VariableAttributes represents the attributes of a UEFI variable.
// See: https://uefi.org/specs/UEFI/2.11/08_Services_Runtime_Services.html#getvariable
type VariableAttributes uint32

// EFI Variable Attributes
const (
	EFI_VARIABLE_NON_VOLATILE                          VariableAttributes = 0x01
	EFI_VARIABLE_BOOTSERVICE_ACCESS                    VariableAttributes = 0x02
	EFI_VARIABLE_RUNTIME_ACCESS                        VariableAttributes = 0x04
	EFI_VARIABLE_HARDWARE_ERROR_RECORD                 VariableAttributes = 0x08
	EFI_VARIABLE_AUTHENTICATED_WRITE_ACCESS            VariableAttributes = 0x10
	EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS VariableAttributes = 0x20
	EFI_VARIABLE_APPEND_WRITE                          VariableAttributes = 0x40
	EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS         VariableAttributes = 0x80
)

var attributeNames = []struct {
	a    VariableAttributes
	name string
}{
	{EFI_VARIABLE_NON_VOLATILE, "NV"},
	{EFI_VARIABLE_BOOTSERVICE_ACCESS, "BS"},
	{EFI_VARIABLE_RUNTIME_ACCESS, "RT"},
	{EFI_VARIABLE_HARDWARE_ERROR_RECORD, "HR"},
	{EFI_VARIABLE_AUTHENTICATED_WRITE_ACCESS, "AW"},
	{EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS, "AT"},
	{EFI_VARIABLE_APPEND_WRITE, "AP"},
	{EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS, "EA"},
}

// Has reports whether all argument attribute bits are set.
func (a VariableAttributes) Has(b VariableAttributes) bool {
	return a&b == b
}

func (a VariableAttributes) String() string {
	var s []string

	for _, n := range attributeNames {
		if a.Has(n.a) {
			s = append(s, n.name)
		}
	}

	return strings.Join(s, "+")
}

// Variable represents the name of a UEFI variable.
type Variable struct {
	Name   string
	Vendor GUID
}

func (v Variable) String() string {
	return v.Name + "-" + v.Vendor.String()
}

// VariableData represents the contents of a UEFI variable.
type VariableData struct {
	Attributes VariableAttributes
	Data       []byte
}

// VariableInfo represents the result of [VariableServices.QueryVariableInfo].
type VariableInfo struct {
	MaximumVariableStorageSize   uint64
	RemainingVariableStorageSize uint64
	MaximumVariableSize          uint64
}

// VariableServices represents the UEFI variable services.
type VariableServices struct {
	// Policy represents the size discovery retry policy.
	Policy RetryPolicy

	table VariableTable
}

// NewVariableServices returns a variable services instance forwarding to the
// argument function table.
func NewVariableServices(t VariableTable) *VariableServices {
	return &VariableServices{table: t}
}

// GetVariable calls EFI_RUNTIME_SERVICES.GetVariable(), retrying with a
// larger buffer until the whole variable payload is returned. The variable
// attributes are always reported alongside the payload.
func (s *VariableServices) GetVariable(name string, vendor GUID) (c Completion[VariableData], err error) {
	var attr uint32

	n, err := EncodeString(name)

	if err != nil {
		return c, err
	}

	data, status, err := Discover(make([]byte, variableDataSize), s.Policy, func(buf []byte) (int, Status) {
		size := uint64(len(buf))
		status := s.table.GetVariable(n, &vendor, &attr, &size, buf)
		return int(size), status
	})

	if err != nil {
		return
	}

	return Complete(status, func() VariableData {
		return VariableData{
			Attributes: VariableAttributes(attr),
			Data:       data,
		}
	})
}

// SetVariable calls EFI_RUNTIME_SERVICES.SetVariable(), an empty payload
// deletes the variable unless EFI_VARIABLE_APPEND_WRITE is set.
func (s *VariableServices) SetVariable(name string, vendor GUID, attr VariableAttributes, data []byte) (Status, error) {
	n, err := EncodeString(name)

	if err != nil {
		return EFI_INVALID_PARAMETER, err
	}

	return check(s.table.SetVariable(n, &vendor, uint32(attr), data))
}

// DeleteVariable deletes a UEFI variable by writing an empty payload.
func (s *VariableServices) DeleteVariable(name string, vendor GUID) (Status, error) {
	return s.SetVariable(name, vendor, 0, nil)
}

// QueryVariableInfo calls EFI_RUNTIME_SERVICES.QueryVariableInfo() for the
// storage identified by the argument attributes.
func (s *VariableServices) QueryVariableInfo(attr VariableAttributes) (Completion[VariableInfo], error) {
	var info VariableInfo

	status := s.table.QueryVariableInfo(uint32(attr),
		&info.MaximumVariableStorageSize,
		&info.RemainingVariableStorageSize,
		&info.MaximumVariableSize,
	)

	return Complete(status, func() VariableInfo { return info })
}

// Variables returns an iterator over all variable names.
func (s *VariableServices) Variables() *VariableIterator {
	return &VariableIterator{
		table:  s.table,
		policy: s.Policy,
		name:   make([]uint16, variableNameSize),
	}
}

// VariableIterator enumerates variable names through
// EFI_RUNTIME_SERVICES.GetNextVariableName().
//
// The iterator is forward only and cannot be rewound, a new one must be
// obtained to restart the enumeration. The firmware variable store must not be
// modified while iterating.
type VariableIterator struct {
	table  VariableTable
	policy RetryPolicy

	// enumeration cursor, the name buffer is reused across calls
	name   []uint16
	vendor GUID
	cur    Variable
	done   bool
	err    error
}

// Next advances the iterator to the next variable name, it returns false once
// the enumeration is complete.
//
// The enumeration ends when the firmware reports EFI_NOT_FOUND, any other
// error is a firmware contract violation and results in a panic with a
// [*FirmwareFault] value.
func (it *VariableIterator) Next() bool {
	if it.done {
		return false
	}

	vendor := it.vendor

	name, status, err := Discover(it.name, it.policy, func(buf []uint16) (int, Status) {
		// a resize preserves the previous name which is the cursor
		size := uint64(len(buf) * 2)
		vendor = it.vendor
		status := it.table.GetNextVariableName(&size, buf, &vendor)
		return int(size+1) / 2, status
	})

	var tooSmall *BufferTooSmallError

	switch {
	case errors.Is(err, ErrNotFound):
		it.done = true
		return false
	case errors.As(err, &tooSmall):
		// retry policy cap reached
		it.done = true
		it.err = err
		return false
	case err != nil:
		it.done = true
		fault("GetNextVariableName", status, "unexpected enumeration error, %v", err)
	}

	// keep the grown buffer, restoring its full length for the next call
	it.name = name[:cap(name)]
	it.vendor = vendor

	it.cur = Variable{
		Name:   mustDecode("GetNextVariableName", name),
		Vendor: vendor,
	}

	return true
}

// Err returns the error which ended the enumeration early, which is only
// possible when the retry policy caps the number of attempts.
func (it *VariableIterator) Err() error {
	return it.err
}

// Variable returns the current variable name.
func (it *VariableIterator) Variable() Variable {
	return it.cur
}

// All returns a range function over all remaining variable names.
func (it *VariableIterator) All() iter.Seq[Variable] {
	return func(yield func(Variable) bool) {
		for it.Next() {
			if !yield(it.cur) {
				return
			}
		}
	}
}
