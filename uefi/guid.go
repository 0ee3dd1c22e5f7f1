// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var guidPattern = regexp.MustCompile(`^[[:xdigit:]]{8}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{12}$`)

// GUID represents an EFI GUID (Globally Unique Identifier) as a 16-byte array
// with the native EFI byte order.
//
// Note: The registry string format (xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx)
// reorders the first three fields as little-endian. Internally, we keep the
// native EFI layout (as used in memory), i.e. 16 bytes where the first three
// fields are little-endian values.
type GUID [16]byte

// NewGUID returns the GUID matching the EFI_GUID structure fields, as found
// in the UEFI specification and firmware headers.
func NewGUID(data1 uint32, data2 uint16, data3 uint16, data4 [8]byte) (g GUID) {
	binary.LittleEndian.PutUint32(g[0:4], data1)
	binary.LittleEndian.PutUint16(g[4:6], data2)
	binary.LittleEndian.PutUint16(g[6:8], data3)
	copy(g[8:], data4[:])

	return
}

// ParseGUID parses a GUID in registry string format into a native EFI GUID.
func ParseGUID(s string) (GUID, error) {
	if !guidPattern.MatchString(s) {
		return GUID{}, fmt.Errorf("invalid GUID format: %q", s)
	}

	u, err := uuid.Parse(s)

	if err != nil {
		return GUID{}, err
	}

	return fromUUID(u), nil
}

// MustParseGUID is like ParseGUID but panics on error. It is intended for package
// level GUID declarations.
func MustParseGUID(s string) (g GUID) {
	var err error

	if g, err = ParseGUID(s); err != nil {
		panic(err)
	}

	return
}

// fromUUID converts a big-endian RFC 4122 UUID to the EFI mixed-endian layout.
func fromUUID(u uuid.UUID) (g GUID) {
	g[0], g[1], g[2], g[3] = u[3], u[2], u[1], u[0]
	g[4], g[5] = u[5], u[4]
	g[6], g[7] = u[7], u[6]
	copy(g[8:], u[8:])

	return
}

// UUID returns the GUID as a big-endian RFC 4122 UUID.
func (g GUID) UUID() (u uuid.UUID) {
	u[0], u[1], u[2], u[3] = g[3], g[2], g[1], g[0]
	u[4], u[5] = g[5], g[4]
	u[6], u[7] = g[7], g[6]
	copy(u[8:], g[8:])

	return
}

// Data1 returns the first GUID field.
func (g GUID) Data1() uint32 {
	return binary.LittleEndian.Uint32(g[0:4])
}

// Data2 returns the second GUID field.
func (g GUID) Data2() uint16 {
	return binary.LittleEndian.Uint16(g[4:6])
}

// Data3 returns the third GUID field.
func (g GUID) Data3() uint16 {
	return binary.LittleEndian.Uint16(g[6:8])
}

// Data4 returns the trailing 8 bytes of the GUID.
func (g GUID) Data4() (d [8]byte) {
	copy(d[:], g[8:])
	return
}

// Equal reports whether both GUIDs have identical bit patterns.
func (g GUID) Equal(other GUID) bool {
	return g == other
}

// String returns the registry format string representation of the GUID.
// https://uefi.org/specs/UEFI/2.10/Apx_A_GUID_and_Time_Formats.html
func (g GUID) String() string {
	return g.UUID().String()
}
