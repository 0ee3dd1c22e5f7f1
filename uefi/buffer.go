// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"fmt"
)

// DiscoveryState represents the state of a size discovery exchange with the
// firmware.
type DiscoveryState int

// Size discovery states, Success and Failed are terminal.
const (
	Attempt DiscoveryState = iota
	NeedsResize
	Succeeded
	Failed
)

func (s DiscoveryState) String() string {
	switch s {
	case Attempt:
		return "attempt"
	case NeedsResize:
		return "needs resize"
	case Succeeded:
		return "success"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RetryPolicy controls size discovery retries.
type RetryPolicy struct {
	// MaxAttempts bounds the number of firmware calls, zero means unbounded.
	MaxAttempts int

	// Grow, when set, returns the new buffer length (in elements) given the
	// current one and the firmware reported requirement. Results smaller
	// than the requirement, or not larger than the current length, are
	// ignored in favour of the default growth.
	Grow func(current int, required int) int
}

func (p RetryPolicy) next(current int, required int) (n int) {
	if p.Grow != nil {
		n = p.Grow(current, required)
	}

	if n < required {
		n = required
	}

	// progress is guaranteed even with a firmware repeating a stale size
	if n <= current {
		n = current * 2

		if n == 0 {
			n = 1
		}
	}

	return
}

// SizedCall performs a single firmware call against buf, it returns the
// firmware reported length (in elements) along with the call status. On
// success the length is the amount of valid data, on EFI_BUFFER_TOO_SMALL it
// is the required length.
type SizedCall[E any] func(buf []E) (n int, status Status)

// Discovery implements the size discovery state machine used by firmware
// calls returning data of a priori unknown size:
//
//	Attempt -> Succeeded | NeedsResize | Failed
//	NeedsResize -> Attempt | Failed (attempts exhausted)
type Discovery[E any] struct {
	// Policy represents the retry policy.
	Policy RetryPolicy

	// State represents the current state.
	State DiscoveryState
	// Buf represents the current buffer, truncated to the returned length
	// once Succeeded.
	Buf []E
	// Status represents the last firmware status.
	Status Status
	// Required represents the last length requested by the firmware.
	Required int
	// Attempts represents the number of firmware calls performed.
	Attempts int
	// Err represents the terminal error once Failed.
	Err error
}

// NewDiscovery returns a size discovery exchange starting with the argument
// buffer, whose contents are preserved across resizes.
func NewDiscovery[E any](buf []E, policy RetryPolicy) *Discovery[E] {
	return &Discovery[E]{
		Policy: policy,
		State:  Attempt,
		Buf:    buf,
	}
}

// Done reports whether the state machine reached a terminal state.
func (d *Discovery[E]) Done() bool {
	return d.State == Succeeded || d.State == Failed
}

// Step performs a single state transition.
func (d *Discovery[E]) Step(call SizedCall[E]) DiscoveryState {
	switch d.State {
	case Attempt:
		d.attempt(call)
	case NeedsResize:
		d.resize()
	}

	return d.State
}

func (d *Discovery[E]) attempt(call SizedCall[E]) {
	n, status := call(d.Buf)
	d.Attempts += 1
	d.Status = status

	switch {
	case status == EFI_BUFFER_TOO_SMALL:
		d.Required = n
		d.State = NeedsResize
	case status.IsError():
		d.Err = StatusError(status)
		d.State = Failed
	default:
		if n > len(d.Buf) || n < 0 {
			fault("size discovery", status, "returned length %d exceeds buffer length %d", n, len(d.Buf))
		}

		d.Buf = d.Buf[:n]
		d.State = Succeeded
	}
}

func (d *Discovery[E]) resize() {
	if d.Policy.MaxAttempts > 0 && d.Attempts >= d.Policy.MaxAttempts {
		d.Err = &BufferTooSmallError{Required: d.Required}
		d.State = Failed
		return
	}

	n := d.Policy.next(len(d.Buf), d.Required)

	if n <= cap(d.Buf) {
		d.Buf = d.Buf[:n]
	} else {
		buf := make([]E, n)
		copy(buf, d.Buf)
		d.Buf = buf
	}

	d.State = Attempt
}

// Run drives the state machine to a terminal state and returns the resulting
// buffer, truncated to the returned length, and the final status.
func (d *Discovery[E]) Run(call SizedCall[E]) ([]E, Status, error) {
	for !d.Done() {
		d.Step(call)
	}

	if d.State == Failed {
		return nil, d.Status, d.Err
	}

	return d.Buf, d.Status, nil
}

// Discover runs a size discovery exchange starting with buf.
func Discover[E any](buf []E, policy RetryPolicy, call SizedCall[E]) ([]E, Status, error) {
	return NewDiscovery(buf, policy).Run(call)
}
