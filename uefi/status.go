// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
)

// Status represents an EFI_STATUS code, a native width (UINTN) value whose
// high bit denotes an error.
type Status uint64

const errorBit = 1 << 63

// EFI_STATUS success and warning codes
const (
	EFI_SUCCESS Status = iota
	EFI_WARN_UNKNOWN_GLYPH
	EFI_WARN_DELETE_FAILURE
	EFI_WARN_WRITE_FAILURE
	EFI_WARN_BUFFER_TOO_SMALL
	EFI_WARN_STALE_DATA
	EFI_WARN_FILE_SYSTEM
	EFI_WARN_RESET_REQUIRED
)

// EFI_STATUS error codes
const (
	EFI_LOAD_ERROR Status = errorBit | (iota + 1)
	EFI_INVALID_PARAMETER
	EFI_UNSUPPORTED
	EFI_BAD_BUFFER_SIZE
	EFI_BUFFER_TOO_SMALL
	EFI_NOT_READY
	EFI_DEVICE_ERROR
	EFI_WRITE_PROTECTED
	EFI_OUT_OF_RESOURCES
	EFI_VOLUME_CORRUPTED
	EFI_VOLUME_FULL
	EFI_NO_MEDIA
	EFI_MEDIA_CHANGED
	EFI_NOT_FOUND
	EFI_ACCESS_DENIED
	EFI_NO_RESPONSE
	EFI_NO_MAPPING
	EFI_TIMEOUT
	EFI_NOT_STARTED
	EFI_ALREADY_STARTED
	EFI_ABORTED
	EFI_ICMP_ERROR
	EFI_TFTP_ERROR
	EFI_PROTOCOL_ERROR
	EFI_INCOMPATIBLE_VERSION
	EFI_SECURITY_VIOLATION
	EFI_CRC_ERROR
	EFI_END_OF_MEDIA
	_
	_
	EFI_END_OF_FILE
	EFI_INVALID_LANGUAGE
	EFI_COMPROMISED_DATA
	EFI_IP_ADDRESS_CONFLICT
	EFI_HTTP_ERROR
)

// Class represents the partition a status code belongs to.
type Class int

// Status classes
const (
	Success Class = iota
	Warning
	Failure
)

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case Warning:
		return "warning"
	default:
		return "error"
	}
}

var statusNames = map[Status]string{
	EFI_SUCCESS:               "EFI_SUCCESS",
	EFI_WARN_UNKNOWN_GLYPH:    "EFI_WARN_UNKNOWN_GLYPH",
	EFI_WARN_DELETE_FAILURE:   "EFI_WARN_DELETE_FAILURE",
	EFI_WARN_WRITE_FAILURE:    "EFI_WARN_WRITE_FAILURE",
	EFI_WARN_BUFFER_TOO_SMALL: "EFI_WARN_BUFFER_TOO_SMALL",
	EFI_WARN_STALE_DATA:       "EFI_WARN_STALE_DATA",
	EFI_WARN_FILE_SYSTEM:      "EFI_WARN_FILE_SYSTEM",
	EFI_WARN_RESET_REQUIRED:   "EFI_WARN_RESET_REQUIRED",
}

// Class returns the status partition: exactly EFI_SUCCESS is a success, any
// other code with the high bit clear is a warning, the rest are errors.
func (s Status) Class() Class {
	switch {
	case s == EFI_SUCCESS:
		return Success
	case s&errorBit == 0:
		return Warning
	default:
		return Failure
	}
}

// IsError reports whether the status is an error code.
func (s Status) IsError() bool {
	return s.Class() == Failure
}

// IsWarning reports whether the status is a warning code.
func (s Status) IsWarning() bool {
	return s.Class() == Warning
}

// Code returns the status value without the error bit.
func (s Status) Code() uint64 {
	return uint64(s &^ errorBit)
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	if err, ok := errMap[s]; ok {
		return err.name
	}

	return fmt.Sprintf("EFI_STATUS(%#x)", uint64(s))
}

// Err returns the error matching an error status, nil is returned for success
// and warning codes.
func (s Status) Err() error {
	if !s.IsError() {
		return nil
	}

	return StatusError(s)
}

var errMap = make(map[Status]*Error)

// Error represents an EFI error status, errors can be matched against the
// package sentinels with [errors.Is].
type Error struct {
	Status Status

	name string
	msg  string
}

func newError(status Status, name string, msg string) *Error {
	err := &Error{
		Status: status,
		name:   name,
		msg:    msg,
	}

	errMap[status] = err

	return err
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s, %s", e.name, e.msg)
}

// Is implements error matching on the status code.
func (e *Error) Is(target error) bool {
	var t *Error

	if !errors.As(target, &t) {
		return false
	}

	return t.Status == e.Status
}

// StatusError returns the error object given by status, nil for success or
// warning codes.
func StatusError(status Status) *Error {
	if !status.IsError() {
		return nil
	}

	if err, ok := errMap[status]; ok {
		return err
	}

	return &Error{
		Status: status,
		name:   fmt.Sprintf("EFI_STATUS(%#x)", uint64(status)),
		msg:    "unknown EFI error",
	}
}

var (
	ErrLoadError           = newError(EFI_LOAD_ERROR, "EFI_LOAD_ERROR", "image failed to load")
	ErrInvalidParameter    = newError(EFI_INVALID_PARAMETER, "EFI_INVALID_PARAMETER", "a parameter was incorrect")
	ErrUnsupported         = newError(EFI_UNSUPPORTED, "EFI_UNSUPPORTED", "operation not supported")
	ErrBadBufferSize       = newError(EFI_BAD_BUFFER_SIZE, "EFI_BAD_BUFFER_SIZE", "buffer size incorrect for request")
	ErrBufferTooSmall      = newError(EFI_BUFFER_TOO_SMALL, "EFI_BUFFER_TOO_SMALL", "buffer too small")
	ErrNotReady            = newError(EFI_NOT_READY, "EFI_NOT_READY", "no data pending")
	ErrDeviceError         = newError(EFI_DEVICE_ERROR, "EFI_DEVICE_ERROR", "physical device reported an error")
	ErrWriteProtected      = newError(EFI_WRITE_PROTECTED, "EFI_WRITE_PROTECTED", "device is write-protected")
	ErrOutOfResources      = newError(EFI_OUT_OF_RESOURCES, "EFI_OUT_OF_RESOURCES", "out of resources")
	ErrVolumeCorrupted     = newError(EFI_VOLUME_CORRUPTED, "EFI_VOLUME_CORRUPTED", "filesystem inconsistency detected")
	ErrVolumeFull          = newError(EFI_VOLUME_FULL, "EFI_VOLUME_FULL", "no more space on filesystem")
	ErrNoMedia             = newError(EFI_NO_MEDIA, "EFI_NO_MEDIA", "device contains no medium")
	ErrMediaChanged        = newError(EFI_MEDIA_CHANGED, "EFI_MEDIA_CHANGED", "medium changed since last access")
	ErrNotFound            = newError(EFI_NOT_FOUND, "EFI_NOT_FOUND", "item not found")
	ErrAccessDenied        = newError(EFI_ACCESS_DENIED, "EFI_ACCESS_DENIED", "access denied")
	ErrNoResponse          = newError(EFI_NO_RESPONSE, "EFI_NO_RESPONSE", "server not found or no response")
	ErrNoMapping           = newError(EFI_NO_MAPPING, "EFI_NO_MAPPING", "no device mapping exists")
	ErrTimeout             = newError(EFI_TIMEOUT, "EFI_TIMEOUT", "timeout expired")
	ErrNotStarted          = newError(EFI_NOT_STARTED, "EFI_NOT_STARTED", "protocol not started")
	ErrAlreadyStarted      = newError(EFI_ALREADY_STARTED, "EFI_ALREADY_STARTED", "protocol already started")
	ErrAborted             = newError(EFI_ABORTED, "EFI_ABORTED", "operation aborted")
	ErrICMPError           = newError(EFI_ICMP_ERROR, "EFI_ICMP_ERROR", "ICMP error during network operation")
	ErrTFTPError           = newError(EFI_TFTP_ERROR, "EFI_TFTP_ERROR", "TFTP error during network operation")
	ErrProtocolError       = newError(EFI_PROTOCOL_ERROR, "EFI_PROTOCOL_ERROR", "protocol error during network operation")
	ErrIncompatibleVersion = newError(EFI_INCOMPATIBLE_VERSION, "EFI_INCOMPATIBLE_VERSION", "requested version incompatible")
	ErrSecurityViolation   = newError(EFI_SECURITY_VIOLATION, "EFI_SECURITY_VIOLATION", "security violation")
	ErrCRCError            = newError(EFI_CRC_ERROR, "EFI_CRC_ERROR", "CRC error detected")
	ErrEndOfMedia          = newError(EFI_END_OF_MEDIA, "EFI_END_OF_MEDIA", "beginning or end of media reached")
	ErrEndOfFile           = newError(EFI_END_OF_FILE, "EFI_END_OF_FILE", "end of file reached")
	ErrInvalidLanguage     = newError(EFI_INVALID_LANGUAGE, "EFI_INVALID_LANGUAGE", "invalid language specified")
	ErrCompromisedData     = newError(EFI_COMPROMISED_DATA, "EFI_COMPROMISED_DATA", "data security status unknown or compromised")
	ErrIPAddressConflict   = newError(EFI_IP_ADDRESS_CONFLICT, "EFI_IP_ADDRESS_CONFLICT", "IP address conflict detected")
	ErrHTTPError           = newError(EFI_HTTP_ERROR, "EFI_HTTP_ERROR", "HTTP error during network operation")
)

// BufferTooSmallError represents an EFI_BUFFER_TOO_SMALL condition along with
// the length, in buffer elements, reported by the firmware for a successful
// retry.
type BufferTooSmallError struct {
	Required int
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("%s, length %d required", ErrBufferTooSmall.name, e.Required)
}

// Is matches [ErrBufferTooSmall].
func (e *BufferTooSmallError) Is(target error) bool {
	return target == ErrBufferTooSmall
}

// FirmwareFault represents a violation of the firmware interface contract
// (e.g. an invalid table signature or a malformed string). It is only ever
// raised through panic as such conditions are not recoverable.
type FirmwareFault struct {
	Op     string
	Status Status
	Reason string
}

func (e *FirmwareFault) Error() string {
	if e.Status != EFI_SUCCESS {
		return fmt.Sprintf("firmware fault in %s: %s (%s)", e.Op, e.Reason, e.Status)
	}

	return fmt.Sprintf("firmware fault in %s: %s", e.Op, e.Reason)
}

func fault(op string, status Status, format string, a ...any) {
	panic(&FirmwareFault{
		Op:     op,
		Status: status,
		Reason: fmt.Sprintf(format, a...),
	})
}
