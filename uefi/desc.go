// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// maximum number of UCS-2 characters read from firmware strings
const maxStringLength = 4096

// Memory represents the address space shared with the firmware.
//
// Slice returns a view of size bytes at the argument address, the returned
// slice aliases firmware memory: writes to it are writes to the firmware
// owned bytes and it remains valid only as long as the underlying memory
// does.
type Memory interface {
	Slice(addr uint64, size int) ([]byte, error)
}

func marshalBinary(data any) (buf []byte, err error) {
	b := new(bytes.Buffer)
	err = binary.Write(b, binary.LittleEndian, data)
	return b.Bytes(), err
}

func unmarshalBinary(buf []byte, data any) (err error) {
	_, err = binary.Decode(buf, binary.LittleEndian, data)
	return
}

// decode reads a fixed layout record from firmware memory.
func decode(mem Memory, addr uint64, data any) (buf []byte, err error) {
	if addr == 0 {
		return nil, errors.New("invalid address")
	}

	n := binary.Size(data)

	if n <= 0 {
		return nil, fmt.Errorf("invalid record %T", data)
	}

	if buf, err = mem.Slice(addr, n); err != nil {
		return
	}

	return buf, unmarshalBinary(buf, data)
}

// readString reads a NUL terminated UCS-2 string from firmware memory.
func readString(mem Memory, addr uint64) (s []uint16, err error) {
	if addr == 0 {
		return nil, errors.New("invalid address")
	}

	for i := 0; i < maxStringLength; i++ {
		buf, err := mem.Slice(addr+uint64(i*2), 2)

		if err != nil {
			return nil, err
		}

		c := binary.LittleEndian.Uint16(buf)

		if c == 0 {
			return s, nil
		}

		s = append(s, c)
	}

	return nil, errors.New("string exceeds maximum length")
}
