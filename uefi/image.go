// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

var (
	EFI_LOADED_IMAGE_PROTOCOL_GUID             = MustParseGUID("5b1b31a1-9562-11d2-8e3f-00a0c969723b")
	EFI_LOADED_IMAGE_DEVICE_PATH_PROTOCOL_GUID = MustParseGUID("bc62157e-3e33-4fec-9920-2d3b36d750df")
)

const EFI_LOADED_IMAGE_PROTOCOL_REVISION = 0x00001000

// loadedImage represents the EFI_LOADED_IMAGE_PROTOCOL layout.
type loadedImage struct {
	Revision        uint32
	_               uint32
	ParentHandle    uint64
	SystemTable     uint64
	DeviceHandle    uint64
	FilePath        uint64
	_               uint64
	LoadOptionsSize uint32
	_               uint32
	LoadOptions     uint64
	ImageBase       uint64
	ImageSize       uint64
	ImageCodeType   MemoryType
	ImageDataType   MemoryType
	Unload          uint64
}

// LoadedImage represents an EFI Loaded Image Protocol instance.
//
// Fields are read from firmware memory on every access, the only mutations
// performed are the ones documented as such.
type LoadedImage struct {
	b   Binding
	buf []byte
}

// GUID returns the EFI Loaded Image Protocol GUID.
func (p *LoadedImage) GUID() GUID {
	return EFI_LOADED_IMAGE_PROTOCOL_GUID
}

func (p *LoadedImage) bind(b *Binding) (err error) {
	p.b = *b
	p.buf, err = b.Mem.Slice(b.Addr, binary.Size(loadedImage{}))
	return
}

func (p *LoadedImage) fields() (l *loadedImage, err error) {
	if err = p.b.Life.check(); err != nil {
		return
	}

	l = &loadedImage{}
	err = unmarshalBinary(p.buf, l)

	return
}

// Revision returns the protocol revision.
func (p *LoadedImage) Revision() (uint32, error) {
	l, err := p.fields()

	if err != nil {
		return 0, err
	}

	return l.Revision, nil
}

// ParentHandle returns the handle of the image which loaded this one, or 0
// for images loaded by the firmware boot manager.
func (p *LoadedImage) ParentHandle() (Handle, error) {
	l, err := p.fields()

	if err != nil {
		return 0, err
	}

	return Handle(l.ParentHandle), nil
}

// DeviceHandle returns the handle of the device the image was loaded from.
func (p *LoadedImage) DeviceHandle() (Handle, error) {
	l, err := p.fields()

	if err != nil {
		return 0, err
	}

	return Handle(l.DeviceHandle), nil
}

// FilePath returns the first node of the image file path, relative to its
// device handle, or nil when not available.
func (p *LoadedImage) FilePath() (*Node, error) {
	l, err := p.fields()

	if err != nil || l.FilePath == 0 {
		return nil, err
	}

	return NodeAt(p.b.Mem, l.FilePath)
}

// ImageBase returns the image load address and size.
func (p *LoadedImage) ImageBase() (base uint64, size uint64, err error) {
	l, err := p.fields()

	if err != nil {
		return
	}

	return l.ImageBase, l.ImageSize, nil
}

// ImageTypes returns the memory types used for the image code and data
// sections.
func (p *LoadedImage) ImageTypes() (code MemoryType, data MemoryType, err error) {
	l, err := p.fields()

	if err != nil {
		return
	}

	return l.ImageCodeType, l.ImageDataType, nil
}

// RawLoadOptions returns the image load options, the returned slice aliases
// firmware memory.
func (p *LoadedImage) RawLoadOptions() ([]byte, error) {
	l, err := p.fields()

	if err != nil || l.LoadOptionsSize == 0 || l.LoadOptions == 0 {
		return nil, err
	}

	return p.b.Mem.Slice(l.LoadOptions, int(l.LoadOptionsSize))
}

// LoadOptions returns the image load options as a string, such as the command
// line of images started from a shell or a boot option.
//
// Load options are arbitrary data, they are only converted when holding a
// well formed UCS-2 string.
func (p *LoadedImage) LoadOptions() (string, error) {
	buf, err := p.RawLoadOptions()

	if err != nil {
		return "", err
	}

	if len(buf)%2 != 0 {
		return "", errors.New("load options are not an UCS-2 string")
	}

	s, err := DecodeString(bytesUCS2(buf))

	if err != nil {
		return "", fmt.Errorf("load options are not an UCS-2 string, %w", err)
	}

	return s, nil
}

func (p *LoadedImage) write(offset uintptr, val uint64, size int) (err error) {
	if err = p.b.Life.check(); err != nil {
		return
	}

	switch size {
	case 4:
		binary.LittleEndian.PutUint32(p.buf[offset:], uint32(val))
	case 8:
		binary.LittleEndian.PutUint64(p.buf[offset:], val)
	}

	return
}

var li loadedImage

// OverwriteParentHandle replaces the image parent handle.
func (p *LoadedImage) OverwriteParentHandle(handle Handle) error {
	return p.write(unsafe.Offsetof(li.ParentHandle), uint64(handle), 8)
}

// OverwriteLoadOptions replaces the image load options with the ones at the
// argument address.
//
// The load options memory must be owned by the caller (e.g. allocated with
// [BootServices.AllocatePool]) and remain valid as long as the image can
// access it.
func (p *LoadedImage) OverwriteLoadOptions(addr uint64, size uint32) (err error) {
	if (addr == 0) != (size == 0) {
		return ErrInvalidParameter
	}

	if err = p.write(unsafe.Offsetof(li.LoadOptions), addr, 8); err != nil {
		return
	}

	return p.write(unsafe.Offsetof(li.LoadOptionsSize), uint64(size), 4)
}

// Unload calls the image unload function, if any, on behalf of the argument
// image handle.
func (p *LoadedImage) Unload(image Handle) (Status, error) {
	l, err := p.fields()

	if err != nil {
		return EFI_SUCCESS, err
	}

	if l.Unload == 0 {
		return EFI_UNSUPPORTED, ErrUnsupported
	}

	status := Status(p.b.Call.Call(slot(p.b.Addr, unsafe.Offsetof(li.Unload)), uint64(image)))

	return check(status)
}

// LoadedImageDevicePath represents an EFI Loaded Image Device Path Protocol
// instance, the file path of a loaded image including its device.
type LoadedImageDevicePath struct {
	DevicePathProtocol
}

// GUID returns the EFI Loaded Image Device Path Protocol GUID.
func (p *LoadedImageDevicePath) GUID() GUID {
	return EFI_LOADED_IMAGE_DEVICE_PATH_PROTOCOL_GUID
}

// LoadedImage returns the EFI Loaded Image Protocol instance of the running
// image.
func (s *BootServices) LoadedImage() (*LoadedImage, error) {
	return HandleProtocol[LoadedImage](s, s.image)
}
