// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// EncodeString converts a string to a NUL terminated UCS-2 string as used by
// firmware interfaces. Characters which cannot be represented in UCS-2 (or
// embedded NUL characters) are rejected.
func EncodeString(s string) (ucs2 []uint16, err error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("invalid UTF-8 string %q", s)
	}

	for i, r := range s {
		switch {
		case r == 0:
			return nil, fmt.Errorf("invalid NUL character at offset %d", i)
		case r > 0xffff || utf16.IsSurrogate(r):
			return nil, fmt.Errorf("character %U at offset %d not representable in UCS-2", r, i)
		}

		ucs2 = append(ucs2, uint16(r))
	}

	return append(ucs2, 0), nil
}

// DecodeString converts a UCS-2 string, terminated by the first NUL character
// or by the slice length, to a string. Surrogate code units are rejected as
// they have no lossless UCS-2 representation.
func DecodeString(ucs2 []uint16) (string, error) {
	runes := make([]rune, 0, len(ucs2))

	for i, c := range ucs2 {
		if c == 0 {
			break
		}

		if utf16.IsSurrogate(rune(c)) {
			return "", fmt.Errorf("invalid UCS-2 code unit %#04x at offset %d", c, i)
		}

		runes = append(runes, rune(c))
	}

	return string(runes), nil
}

// mustDecode decodes a UCS-2 string returned by the firmware, which is
// guaranteed to be well formed.
func mustDecode(op string, ucs2 []uint16) string {
	s, err := DecodeString(ucs2)

	if err != nil {
		fault(op, EFI_SUCCESS, "%v", err)
	}

	return s
}

// toUTF16 converts a string to its NUL terminated little-endian UCS-2 byte
// representation.
func toUTF16(s string) ([]byte, error) {
	ucs2, err := EncodeString(s)

	if err != nil {
		return nil, err
	}

	return ucs2Bytes(ucs2), nil
}

func ucs2Bytes(ucs2 []uint16) (buf []byte) {
	buf = make([]byte, len(ucs2)*2)

	for i, c := range ucs2 {
		binary.LittleEndian.PutUint16(buf[i*2:], c)
	}

	return
}

func bytesUCS2(buf []byte) (ucs2 []uint16) {
	ucs2 = make([]uint16, len(buf)/2)

	for i := range ucs2 {
		ucs2[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}

	return
}
