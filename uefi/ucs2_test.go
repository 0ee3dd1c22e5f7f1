// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"bytes"
	"slices"
	"testing"
)

func TestEncodeString(t *testing.T) {
	ucs2, err := EncodeString("Boot0001 ü€")

	if err != nil {
		t.Fatal(err)
	}

	want := []uint16{'B', 'o', 'o', 't', '0', '0', '0', '1', ' ', 0x00fc, 0x20ac, 0}

	if !slices.Equal(ucs2, want) {
		t.Errorf("unexpected encoding %x", ucs2)
	}

	s, err := DecodeString(ucs2)

	if err != nil || s != "Boot0001 ü€" {
		t.Errorf("unexpected decoding %q, %v", s, err)
	}

	if ucs2, _ = EncodeString(""); !slices.Equal(ucs2, []uint16{0}) {
		t.Errorf("unexpected empty string encoding %x", ucs2)
	}
}

func TestEncodeStringInvalid(t *testing.T) {
	for _, s := range []string{
		"emoji 😀",
		"nul\x00char",
		"invalid \xff utf-8",
	} {
		if _, err := EncodeString(s); err == nil {
			t.Errorf("%q encoded without error", s)
		}
	}
}

func TestDecodeString(t *testing.T) {
	// terminated by the first NUL
	if s, _ := DecodeString([]uint16{'a', 'b', 0, 'c'}); s != "ab" {
		t.Errorf("unexpected decoding %q", s)
	}

	// or by the slice length
	if s, _ := DecodeString([]uint16{'a', 'b'}); s != "ab" {
		t.Errorf("unexpected decoding %q", s)
	}

	if _, err := DecodeString([]uint16{'a', 0xd83d, 0xde00}); err == nil {
		t.Error("surrogate pair decoded without error")
	}
}

func TestUCS2Bytes(t *testing.T) {
	buf, err := toUTF16("AB")

	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(buf, []byte{'A', 0, 'B', 0, 0, 0}) {
		t.Errorf("unexpected bytes %x", buf)
	}

	if !slices.Equal(bytesUCS2(buf), []uint16{'A', 'B', 0}) {
		t.Errorf("unexpected round trip")
	}
}
