// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

// Completion represents the outcome of a successful firmware call, carrying
// its value along with the originating status, which is either EFI_SUCCESS or
// a warning that callers may need to inspect.
type Completion[T any] struct {
	Status Status
	Value  T
}

// Warning reports whether the call succeeded with a warning status.
func (c Completion[T]) Warning() bool {
	return c.Status.IsWarning()
}

// Complete converts a raw status into a [Completion], the value function is
// only invoked for success and warning codes. Error codes return a zero
// Completion and the [*Error] matching the status.
func Complete[T any](status Status, value func() T) (c Completion[T], err error) {
	if status.IsError() {
		return c, StatusError(status)
	}

	c.Status = status

	if value != nil {
		c.Value = value()
	}

	return
}

// check converts a raw status into its warning (or EFI_SUCCESS) and error
// parts for calls which do not return a value.
func check(status Status) (Status, error) {
	if status.IsError() {
		return status, StatusError(status)
	}

	return status, nil
}
