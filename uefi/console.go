// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"unicode/utf8"
	"unsafe"
)

// EFI Simple Text Input/Output Protocol GUIDs
var (
	EFI_SIMPLE_TEXT_INPUT_PROTOCOL_GUID  = MustParseGUID("387477c1-69c7-11d2-8e39-00a0c969723b")
	EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL_GUID = MustParseGUID("387477c2-69c7-11d2-8e39-00a0c969723b")
)

// simpleTextInput represents the EFI_SIMPLE_TEXT_INPUT_PROTOCOL layout.
type simpleTextInput struct {
	Reset         uint64
	ReadKeyStroke uint64
	WaitForKey    uint64
}

// simpleTextOutput represents the EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL layout.
type simpleTextOutput struct {
	Reset             uint64
	OutputString      uint64
	TestString        uint64
	QueryMode         uint64
	SetMode           uint64
	SetAttribute      uint64
	ClearScreen       uint64
	SetCursorPosition uint64
	EnableCursor      uint64
	Mode              uint64
}

// InputKey represents an EFI Input Key descriptor.
type InputKey struct {
	ScanCode    uint16
	UnicodeChar uint16
}

// TextInputTable represents the EFI_SIMPLE_TEXT_INPUT_PROTOCOL function
// table.
type TextInputTable interface {
	ReadKeyStroke(key *InputKey) Status
}

// TextOutputTable represents the EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL function
// table.
type TextOutputTable interface {
	OutputString(s []uint16) Status
	ClearScreen() Status
}

type textInputAdapter struct {
	Binding
}

func (t *textInputAdapter) ReadKeyStroke(key *InputKey) Status {
	var p simpleTextInput
	return Status(t.Call.Call(slot(t.Addr, unsafe.Offsetof(p.ReadKeyStroke)), t.Addr, ptrval(key)))
}

type textOutputAdapter struct {
	Binding
}

func (t *textOutputAdapter) OutputString(s []uint16) Status {
	var p simpleTextOutput
	return Status(t.Call.Call(slot(t.Addr, unsafe.Offsetof(p.OutputString)), t.Addr, sliceval(s)))
}

func (t *textOutputAdapter) ClearScreen() Status {
	var p simpleTextOutput
	return Status(t.Call.Call(slot(t.Addr, unsafe.Offsetof(p.ClearScreen)), t.Addr))
}

// Console implements the [io.ReadWriter] interface over EFI Simple Text
// Input/Output protocol.
type Console struct {
	// ForceLine controls whether line feeds (LF) should be supplemented
	// with a carriage return (CR).
	ForceLine bool

	// ReplaceTabs controls whether Console I/O output should have Tab
	// characters replaced with a number of spaces.
	ReplaceTabs int

	// In and Out represent the console protocol interfaces, a nil
	// interface discards I/O.
	In  TextInputTable
	Out TextOutputTable
}

// NewConsole returns a console over the EFI Simple Text Input/Output protocol
// interfaces described by the argument bindings, a zero address disables the
// respective direction.
func NewConsole(in *Binding, out *Binding) *Console {
	c := &Console{
		ForceLine:   true,
		ReplaceTabs: 8,
	}

	if in.Addr != 0 {
		c.In = &textInputAdapter{*in}
	}

	if out.Addr != 0 {
		c.Out = &textOutputAdapter{*out}
	}

	return c
}

// Read available data to buffer from console, it returns without blocking
// when no keystroke is pending.
func (c *Console) Read(p []byte) (n int, err error) {
	var k InputKey

	if c.In == nil {
		return
	}

	for n+utf8.UTFMax <= len(p) {
		status := c.In.ReadKeyStroke(&k)

		switch {
		case status == EFI_NOT_READY:
			return
		case status.IsError():
			return n, StatusError(status)
		case k.UnicodeChar == 0:
			// scan code only
			continue
		}

		n += utf8.EncodeRune(p[n:], rune(k.UnicodeChar))
	}

	return
}

// Write data from buffer to console.
func (c *Console) Write(p []byte) (n int, err error) {
	var s []uint16

	if len(p) == 0 || c.Out == nil {
		return len(p), nil
	}

	// We receive an UTF-8 string but we can output only UCS-2 ones.
	for _, r := range string(p) {
		switch {
		case r == '\t' && c.ReplaceTabs > 0:
			for range c.ReplaceTabs {
				s = append(s, ' ')
			}
			continue
		case r > 0xffff:
			r = utf8.RuneError
		}

		s = append(s, uint16(r))

		if r == '\n' && c.ForceLine {
			s = append(s, '\r')
		}
	}

	if status := c.Out.OutputString(append(s, 0)); status.IsError() {
		return 0, StatusError(status)
	}

	return len(p), nil
}

// ClearScreen clears the console output device.
func (c *Console) ClearScreen() (err error) {
	if c.Out == nil {
		return
	}

	_, err = check(c.Out.ClearScreen())

	return
}
