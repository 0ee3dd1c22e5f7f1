// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
)

// Exit calls EFI_BOOT_SERVICES.Exit(), returning control to the image loader
// with the argument exit status.
func (s *BootServices) Exit(status Status) (err error) {
	if err = s.life.check(); err != nil {
		return
	}

	ret := s.table.Exit(s.image, status, 0, 0)

	if ret.IsError() {
		return StatusError(ret)
	}

	return errors.New("image did not exit")
}

// ExitBootServices calls EFI_BOOT_SERVICES.ExitBootServices() with the key of
// a freshly retrieved memory map, which is returned on success.
//
// A stale key, caused by allocations between the two calls, is retried once
// as permitted by the firmware interface. On success the boot services
// lifetime ends and all boot phase views become invalid.
func (s *BootServices) ExitBootServices() (m *MemoryMap, err error) {
	for range 2 {
		var c Completion[*MemoryMap]

		if c, err = s.GetMemoryMap(); err != nil {
			return
		}

		m = c.Value
		status := s.table.ExitBootServices(s.image, m.MapKey)

		if status == EFI_INVALID_PARAMETER {
			err = StatusError(status)
			continue
		}

		if _, err = check(status); err != nil {
			return nil, err
		}

		s.life.End()

		return m, nil
	}

	return nil, err
}
