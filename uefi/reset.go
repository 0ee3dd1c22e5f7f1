// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"fmt"
)

// ResetType represents an EFI_RESET_TYPE.
type ResetType uint32

// EFI_RESET_TYPE
const (
	EfiResetCold ResetType = iota
	EfiResetWarm
	EfiResetShutdown
	EfiResetPlatformSpecific
)

func (t ResetType) String() string {
	switch t {
	case EfiResetCold:
		return "cold"
	case EfiResetWarm:
		return "warm"
	case EfiResetShutdown:
		return "shutdown"
	case EfiResetPlatformSpecific:
		return "platform specific"
	default:
		return fmt.Sprintf("reset(%d)", uint32(t))
	}
}

// ResetSystem calls EFI_RUNTIME_SERVICES.ResetSystem(), which does not return
// on success.
//
// The reset data is passed to the firmware unmodified. For
// EfiResetPlatformSpecific resets the firmware expects a NUL terminated UCS-2
// string optionally followed by a GUID identifying the reset type, this layout
// is not confirmed across firmware implementations and therefore the data is
// treated as opaque.
func (s *RuntimeServices) ResetSystem(resetType ResetType, status Status, data []byte) error {
	if resetType > EfiResetPlatformSpecific {
		return fmt.Errorf("invalid reset type %d", resetType)
	}

	if ret := s.table.ResetSystem(resetType, status, data); ret.IsError() {
		return StatusError(ret)
	}

	// a conforming firmware never returns
	return fmt.Errorf("%s reset did not occur", resetType)
}
