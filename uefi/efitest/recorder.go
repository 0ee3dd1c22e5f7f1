// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"github.com/usbarmory/go-efi/uefi"
)

// Call represents a recorded firmware call.
type Call struct {
	Slot uint64
	Args []uint64
}

// Handler represents a simulated firmware function, it receives the raw call
// arguments and returns the raw return value.
type Handler func(args ...uint64) uint64

// Recorder implements the uefi.Invoker interface by recording all calls and
// dispatching them to the handlers registered for their function pointer
// slot.
type Recorder struct {
	// Calls represents all recorded calls, in order.
	Calls []Call

	// Default represents the return value for calls without a handler.
	Default uint64

	handlers map[uint64]Handler
}

// Handle registers a handler for the function pointer at the argument slot
// address (a table base plus the function pointer field offset).
func (r *Recorder) Handle(slot uint64, fn Handler) {
	if r.handlers == nil {
		r.handlers = make(map[uint64]Handler)
	}

	r.handlers[slot] = fn
}

// HandleStatus registers a handler returning the argument status.
func (r *Recorder) HandleStatus(slot uint64, status uefi.Status) {
	r.Handle(slot, func(...uint64) uint64 { return uint64(status) })
}

// Call implements the uefi.Invoker interface.
func (r *Recorder) Call(slot uint64, args ...uint64) uint64 {
	r.Calls = append(r.Calls, Call{
		Slot: slot,
		Args: append([]uint64(nil), args...),
	})

	if fn, ok := r.handlers[slot]; ok {
		return fn(args...)
	}

	return r.Default
}

// Last returns the last recorded call.
func (r *Recorder) Last() (c Call, ok bool) {
	if len(r.Calls) == 0 {
		return
	}

	return r.Calls[len(r.Calls)-1], true
}

// Reset clears all recorded calls.
func (r *Recorder) Reset() {
	r.Calls = nil
}
