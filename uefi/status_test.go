// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
	"regexp"
	"testing"
)

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status Status
		class  Class
	}{
		{EFI_SUCCESS, Success},
		{EFI_WARN_UNKNOWN_GLYPH, Warning},
		{EFI_WARN_RESET_REQUIRED, Warning},
		{Status(0x1234), Warning},
		{EFI_LOAD_ERROR, Failure},
		{EFI_BUFFER_TOO_SMALL, Failure},
		{EFI_NOT_FOUND, Failure},
		{EFI_HTTP_ERROR, Failure},
		{Status(errorBit | 0x7fff), Failure},
	}

	for _, tt := range tests {
		if c := tt.status.Class(); c != tt.class {
			t.Errorf("%s class %s, expected %s", tt.status, c, tt.class)
		}

		if tt.status.IsError() != (tt.class == Failure) {
			t.Errorf("%s IsError mismatch", tt.status)
		}

		if tt.status.IsWarning() != (tt.class == Warning) {
			t.Errorf("%s IsWarning mismatch", tt.status)
		}
	}
}

func TestStatusCodes(t *testing.T) {
	if EFI_BUFFER_TOO_SMALL.Code() != 5 {
		t.Errorf("EFI_BUFFER_TOO_SMALL code %d, expected 5", EFI_BUFFER_TOO_SMALL.Code())
	}

	if EFI_NOT_FOUND.Code() != 14 {
		t.Errorf("EFI_NOT_FOUND code %d, expected 14", EFI_NOT_FOUND.Code())
	}

	if EFI_END_OF_FILE.Code() != 31 {
		t.Errorf("EFI_END_OF_FILE code %d, expected 31", EFI_END_OF_FILE.Code())
	}

	if EFI_HTTP_ERROR.Code() != 35 {
		t.Errorf("EFI_HTTP_ERROR code %d, expected 35", EFI_HTTP_ERROR.Code())
	}
}

func TestStatusError(t *testing.T) {
	if err := StatusError(EFI_SUCCESS); err != nil {
		t.Errorf("unexpected error for EFI_SUCCESS, %v", err)
	}

	if err := EFI_WARN_STALE_DATA.Err(); err != nil {
		t.Errorf("unexpected error for warning, %v", err)
	}

	if err := EFI_NOT_FOUND.Err(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	wrapped := fmt.Errorf("lookup failed, %w", StatusError(EFI_ACCESS_DENIED))

	if !errors.Is(wrapped, ErrAccessDenied) {
		t.Errorf("wrapped error does not match ErrAccessDenied")
	}

	if errors.Is(wrapped, ErrNotFound) {
		t.Errorf("wrapped error matches ErrNotFound")
	}

	unknown := StatusError(Status(errorBit | 0x100))

	if ok, _ := regexp.MatchString(`^EFI_STATUS\(0x8000000000000100\)`, unknown.Error()); !ok {
		t.Errorf("unexpected unknown status error %q", unknown.Error())
	}

	if unknown.Status.String() != "EFI_STATUS(0x8000000000000100)" {
		t.Errorf("unexpected unknown status string %q", unknown.Status)
	}
}

func TestBufferTooSmallError(t *testing.T) {
	var err error = &BufferTooSmallError{Required: 42}

	if !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("expected ErrBufferTooSmall match")
	}

	var target *BufferTooSmallError

	if !errors.As(fmt.Errorf("%w", err), &target) || target.Required != 42 {
		t.Errorf("expected required size 42")
	}
}

func TestComplete(t *testing.T) {
	called := false
	value := func() int {
		called = true
		return 7
	}

	c, err := Complete(EFI_SUCCESS, value)

	if err != nil || c.Value != 7 || c.Warning() {
		t.Errorf("unexpected completion %+v, %v", c, err)
	}

	c, err = Complete(EFI_WARN_STALE_DATA, value)

	if err != nil || c.Value != 7 || !c.Warning() {
		t.Errorf("unexpected completion %+v, %v", c, err)
	}

	called = false
	c, err = Complete(EFI_DEVICE_ERROR, value)

	if !errors.Is(err, ErrDeviceError) {
		t.Errorf("expected ErrDeviceError, got %v", err)
	}

	if called || c.Value != 0 {
		t.Errorf("value produced for error status")
	}
}

func TestFirmwareFault(t *testing.T) {
	defer func() {
		r := recover()
		f, ok := r.(*FirmwareFault)

		if !ok {
			t.Fatalf("expected *FirmwareFault panic, got %v", r)
		}

		if f.Op != "GetNextVariableName" || f.Status != EFI_DEVICE_ERROR {
			t.Errorf("unexpected fault %+v", f)
		}

		if ok, _ := regexp.MatchString(`^firmware fault in GetNextVariableName: .* \(EFI_DEVICE_ERROR\)$`, f.Error()); !ok {
			t.Errorf("unexpected fault message %q", f.Error())
		}
	}()

	fault("GetNextVariableName", EFI_DEVICE_ERROR, "unexpected error")
}
