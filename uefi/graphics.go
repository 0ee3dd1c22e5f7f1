// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"unsafe"
)

var EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID = MustParseGUID("9042a9de-23dc-4a38-96fb-7aded080516a")

// BltOperation represents an EFI_GRAPHICS_OUTPUT_BLT_OPERATION.
type BltOperation int

// EFI_GRAPHICS_OUTPUT_BLT_OPERATION
const (
	EfiBltVideoFill BltOperation = iota
	EfiBltVideoToBltBuffer
	EfiBltBufferToVideo
	EfiBltVideoToVideo
	EfiGraphicsOutputBltOperationMax
)

// graphicsOutput represents the EFI_GRAPHICS_OUTPUT_PROTOCOL layout.
type graphicsOutput struct {
	QueryMode uint64
	SetMode   uint64
	Blt       uint64
	Mode      uint64
}

// ModeInformation represents an EFI Graphics Output Mode Information instance.
type ModeInformation struct {
	Version              uint32
	HorizontalResolution uint32
	VerticalResolution   uint32
	PixelFormat          uint32
	RedMask              uint32
	GreenMask            uint32
	BlueMask             uint32
	ReservedMask         uint32
	PixelsPerScanLine    uint32
}

// ProtocolMode represents an EFI Graphics Output Protocol Mode instance.
type ProtocolMode struct {
	MaxMode         uint32
	Mode            uint32
	Info            uint64
	SizeOfInfo      uint64
	FrameBufferBase uint64
	FrameBufferSize uint64
}

// BltRect represents the source and destination of a Blt() operation.
type BltRect struct {
	SrcX, SrcY uint64
	DstX, DstY uint64
	Width      uint64
	Height     uint64
	Delta      uint64
}

// GraphicsOutputTable represents the EFI_GRAPHICS_OUTPUT_PROTOCOL function
// table.
type GraphicsOutputTable interface {
	Blt(buf []byte, op BltOperation, r *BltRect) Status
}

type graphicsOutputAdapter struct {
	Binding
}

func (g *graphicsOutputAdapter) Blt(buf []byte, op BltOperation, r *BltRect) Status {
	var t graphicsOutput

	return Status(g.Call.Call(slot(g.Addr, unsafe.Offsetof(t.Blt)),
		g.Addr,
		sliceval(buf),
		uint64(op),
		r.SrcX,
		r.SrcY,
		r.DstX,
		r.DstY,
		r.Width,
		r.Height,
		r.Delta,
	))
}

// GraphicsOutput represents an EFI Graphics Output Protocol instance.
type GraphicsOutput struct {
	table GraphicsOutputTable
	b     Binding
	mode  uint64
}

// GUID returns the EFI Graphics Output Protocol GUID.
func (gop *GraphicsOutput) GUID() GUID {
	return EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID
}

func (gop *GraphicsOutput) bind(b *Binding) (err error) {
	t := &graphicsOutput{}

	if _, err = decode(b.Mem, b.Addr, t); err != nil {
		return
	}

	gop.b = *b
	gop.mode = t.Mode
	gop.table = &graphicsOutputAdapter{*b}

	return
}

// GetMode returns the EFI Graphics Output Mode instance.
func (gop *GraphicsOutput) GetMode() (pm *ProtocolMode, err error) {
	if err = gop.b.Life.check(); err != nil {
		return
	}

	pm = &ProtocolMode{}
	_, err = decode(gop.b.Mem, gop.mode, pm)

	return
}

// GetInfo returns the EFI Graphics Output Mode information instance.
func (gop *GraphicsOutput) GetInfo() (m *ModeInformation, err error) {
	pm, err := gop.GetMode()

	if err != nil {
		return
	}

	m = &ModeInformation{}
	_, err = decode(gop.b.Mem, pm.Info, m)

	return
}

// Blt calls EFI_GRAPHICS_OUTPUT_PROTCOL.Blt().
func (gop *GraphicsOutput) Blt(buf []byte, op BltOperation, r *BltRect) (Status, error) {
	if err := gop.b.Life.check(); err != nil {
		return EFI_SUCCESS, err
	}

	if op >= EfiGraphicsOutputBltOperationMax || r == nil {
		return EFI_INVALID_PARAMETER, ErrInvalidParameter
	}

	return check(gop.table.Blt(buf, op, r))
}
