// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"time"
)

// watchdog code used for timers set by this package, codes up to 0xffff are
// reserved for firmware use
const watchdogCode = 0xba3e5e7a1

// SetWatchdogTimer calls EFI_BOOT_SERVICES.SetWatchdogTimer(), a zero timeout
// disables the watchdog.
func (s *BootServices) SetWatchdogTimer(timeout time.Duration) (Status, error) {
	if err := s.life.check(); err != nil {
		return EFI_SUCCESS, err
	}

	if timeout < 0 {
		return EFI_INVALID_PARAMETER, ErrInvalidParameter
	}

	return check(s.table.SetWatchdogTimer(uint64(timeout/time.Second), watchdogCode, 0, nil))
}

// Stall calls EFI_BOOT_SERVICES.Stall().
func (s *BootServices) Stall(d time.Duration) (Status, error) {
	if err := s.life.check(); err != nil {
		return EFI_SUCCESS, err
	}

	return check(s.table.Stall(uint64(d / time.Microsecond)))
}
