// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/usbarmory/go-efi/uefi"
	"github.com/usbarmory/go-efi/uefi/efitest"
)

// loadedImage mirrors the EFI_LOADED_IMAGE_PROTOCOL layout.
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
	ImageCodeType   uefi.MemoryType
	ImageDataType   uefi.MemoryType
	Unload          uint64
}

const (
	loadOptionsSizeOffset = 48
	loadOptionsOffset     = 56
)

func TestLoadedImage(t *testing.T) {
	var addr uint64
	var filePath uint64

	sys, svc := open(t, func(sys *efitest.System) {
		opts := efitest.UCS2("-v quiet")
		entry, _ := uefi.FilePath(`\EFI\BOOT\BOOTX64.EFI`)
		filePath = sys.PutBytes(uefi.NewDevicePath(entry))

		addr = sys.Put(&loadedImage{
			Revision:        uefi.EFI_LOADED_IMAGE_PROTOCOL_REVISION,
			ParentHandle:    0x10,
			SystemTable:     sys.Table,
			DeviceHandle:    0x20,
			FilePath:        filePath,
			LoadOptionsSize: uint32(len(opts)),
			LoadOptions:     sys.PutBytes(opts),
			ImageBase:       0x400000,
			ImageSize:       0x2000,
			ImageCodeType:   uefi.EfiLoaderCode,
			ImageDataType:   uefi.EfiLoaderData,
		})

		sys.Boot.Install(sys.Image, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID, addr)
	})

	img, err := svc.Boot.LoadedImage()

	if err != nil {
		t.Fatal(err)
	}

	if rev, _ := img.Revision(); rev != uefi.EFI_LOADED_IMAGE_PROTOCOL_REVISION {
		t.Errorf("unexpected revision %#x", rev)
	}

	if h, _ := img.ParentHandle(); h != 0x10 {
		t.Errorf("unexpected parent handle %#x", h)
	}

	if h, _ := img.DeviceHandle(); h != 0x20 {
		t.Errorf("unexpected device handle %#x", h)
	}

	if base, size, _ := img.ImageBase(); base != 0x400000 || size != 0x2000 {
		t.Errorf("unexpected image base %#x or size %#x", base, size)
	}

	if code, data, _ := img.ImageTypes(); code != uefi.EfiLoaderCode || data != uefi.EfiLoaderData {
		t.Errorf("unexpected memory types %s/%s", code, data)
	}

	if n, err := img.FilePath(); err != nil || n.Address() != filePath || n.Type != uefi.MEDIA_DEVICE_PATH {
		t.Errorf("unexpected file path node %v, %v", n, err)
	}

	if opts, err := img.LoadOptions(); err != nil || opts != "-v quiet" {
		t.Errorf("unexpected load options %q, %v", opts, err)
	}

	// replacement options are owned by the caller
	opts := efitest.UCS2("-v debug")
	c, err := svc.Boot.AllocatePool(uefi.EfiLoaderData, len(opts))

	if err != nil {
		t.Fatal(err)
	}

	copy(sys.MustSlice(c.Value, len(opts)), opts)

	if err = img.OverwriteLoadOptions(c.Value, uint32(len(opts))); err != nil {
		t.Fatal(err)
	}

	if sys.Uint64(addr+loadOptionsOffset) != c.Value {
		t.Errorf("load options address not written")
	}

	if size := sys.MustSlice(addr+loadOptionsSizeOffset, 1)[0]; int(size) != len(opts) {
		t.Errorf("unexpected load options size %d", size)
	}

	if s, _ := img.LoadOptions(); s != "-v debug" {
		t.Errorf("unexpected load options %q", s)
	}

	if err = img.OverwriteLoadOptions(0, 4); !errors.Is(err, uefi.ErrInvalidParameter) {
		t.Errorf("expected EFI_INVALID_PARAMETER, got %v", err)
	}

	if _, err = svc.Boot.ExitBootServices(); err != nil {
		t.Fatal(err)
	}

	if _, err = img.Revision(); !errors.Is(err, uefi.ErrBootServicesExited) {
		t.Errorf("expected ErrBootServicesExited, got %v", err)
	}

	if err = img.OverwriteParentHandle(0); !errors.Is(err, uefi.ErrBootServicesExited) {
		t.Errorf("expected ErrBootServicesExited, got %v", err)
	}
}

func TestLoadedImageUnsupported(t *testing.T) {
	_, svc := open(t)

	if _, err := svc.Boot.LoadedImage(); !errors.Is(err, uefi.ErrUnsupported) {
		t.Errorf("expected EFI_UNSUPPORTED, got %v", err)
	}
}

func TestLocateHandleBuffer(t *testing.T) {
	sys, svc := open(t)

	sys.Boot.Install(0x3000, uefi.EFI_BLOCK_IO_PROTOCOL_GUID, 0x5000)
	sys.Boot.Install(0x3001, uefi.EFI_BLOCK_IO_PROTOCOL_GUID, 0x5100)
	sys.Boot.Install(0x3002, uefi.EFI_DEVICE_PATH_PROTOCOL_GUID, 0x5200)

	c, err := svc.Boot.LocateHandleBuffer(uefi.EFI_BLOCK_IO_PROTOCOL_GUID)

	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(c.Value, []uefi.Handle{0x3000, 0x3001}) {
		t.Errorf("unexpected handles %v", c.Value)
	}

	if len(sys.Boot.Pool) != 0 {
		t.Errorf("handle buffer not released")
	}

	if _, err = svc.Boot.LocateHandleBuffer(uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID); !errors.Is(err, uefi.ErrNotFound) {
		t.Errorf("expected EFI_NOT_FOUND, got %v", err)
	}
}

func TestLocateHandleBufferEmpty(t *testing.T) {
	sys, svc := open(t)

	// firmware reporting success without a handle buffer
	sys.HandleStatus(sys.BootServices+efitest.BootLocateHandleBuffer, uefi.EFI_SUCCESS)

	c, err := svc.Boot.LocateHandleBuffer(uefi.EFI_BLOCK_IO_PROTOCOL_GUID)

	if err != nil {
		t.Fatal(err)
	}

	if len(c.Value) != 0 {
		t.Errorf("unexpected handles %v", c.Value)
	}

	for _, call := range sys.Calls {
		if call.Slot == sys.BootServices+efitest.BootFreePool {
			t.Error("absent handle buffer released")
		}
	}
}

func TestBlockIO(t *testing.T) {
	sys, svc := open(t)

	media := sys.Put(&uefi.BlockIOMedia{
		MediaID:      1,
		MediaPresent: true,
		ReadOnly:     true,
		BlockSize:    512,
		LastBlock:    2047,
	})

	sys.Boot.Install(0x3000, uefi.EFI_BLOCK_IO_PROTOCOL_GUID, sys.Put([]uint64{0x20001, media, 0, 0, 0, 0}))

	bio, err := uefi.HandleProtocol[uefi.BlockIO](svc.Boot, 0x3000)

	if err != nil {
		t.Fatal(err)
	}

	m, err := bio.Media()

	if err != nil {
		t.Fatal(err)
	}

	if bio.Revision != 0x20001 || !m.MediaPresent || !m.ReadOnly || m.RemovableMedia {
		t.Errorf("unexpected media %+v", m)
	}

	if m.Size() != 1<<20 {
		t.Errorf("unexpected media size %d", m.Size())
	}

	if _, err = uefi.HandleProtocol[uefi.BlockIO](svc.Boot, 0x3001); !errors.Is(err, uefi.ErrUnsupported) {
		t.Errorf("expected EFI_UNSUPPORTED, got %v", err)
	}
}

func TestGraphicsOutput(t *testing.T) {
	var blt []uint64

	sys, svc := open(t)

	info := sys.Put(&uefi.ModeInformation{
		HorizontalResolution: 1024,
		VerticalResolution:   768,
		PixelsPerScanLine:    1024,
	})

	mode := sys.Put(&uefi.ProtocolMode{
		MaxMode:         3,
		Mode:            1,
		Info:            info,
		SizeOfInfo:      36,
		FrameBufferBase: 0x80000000,
		FrameBufferSize: 1024 * 768 * 4,
	})

	addr := sys.Put([]uint64{0, 0, 0, mode})
	sys.Boot.Install(0x3000, uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID, addr)

	sys.Handle(addr+16, func(args ...uint64) uint64 {
		blt = args
		return uint64(uefi.EFI_SUCCESS)
	})

	gop, err := uefi.LocateProtocol[uefi.GraphicsOutput](svc.Boot)

	if err != nil {
		t.Fatal(err)
	}

	pm, err := gop.GetMode()

	if err != nil {
		t.Fatal(err)
	}

	if pm.Mode != 1 || pm.MaxMode != 3 || pm.FrameBufferBase != 0x80000000 {
		t.Errorf("unexpected mode %+v", pm)
	}

	m, err := gop.GetInfo()

	if err != nil {
		t.Fatal(err)
	}

	if m.HorizontalResolution != 1024 || m.VerticalResolution != 768 {
		t.Errorf("unexpected resolution %dx%d", m.HorizontalResolution, m.VerticalResolution)
	}

	pixel := []byte{0xff, 0xff, 0xff, 0}
	r := &uefi.BltRect{DstX: 10, DstY: 20, Width: 1, Height: 1}

	if _, err = gop.Blt(pixel, uefi.EfiBltVideoFill, r); err != nil {
		t.Fatal(err)
	}

	if len(blt) != 10 || blt[0] != addr || blt[2] != uint64(uefi.EfiBltVideoFill) || blt[5] != 10 || blt[6] != 20 {
		t.Errorf("unexpected Blt() arguments %#x", blt)
	}

	blt = nil

	if _, err = gop.Blt(pixel, uefi.EfiGraphicsOutputBltOperationMax, r); !errors.Is(err, uefi.ErrInvalidParameter) || blt != nil {
		t.Errorf("expected EFI_INVALID_PARAMETER, got %v", err)
	}
}

func TestBootManagerPolicy(t *testing.T) {
	var class uefi.GUID
	var path uint64 = 1

	sys, svc := open(t)

	addr := sys.Put([]uint64{0x10000, 0, 0})
	sys.Boot.Install(0x3000, uefi.EFI_BOOT_MANAGER_POLICY_PROTOCOL_GUID, addr)

	sys.Handle(addr+8, func(args ...uint64) uint64 {
		path = args[1]
		return uint64(uefi.EFI_SUCCESS)
	})

	sys.Handle(addr+16, func(args ...uint64) uint64 {
		class = *efitest.Ptr[uefi.GUID](args[1])
		return uint64(uefi.EFI_NOT_FOUND)
	})

	bmp, err := uefi.LocateProtocol[uefi.BootManagerPolicy](svc.Boot)

	if err != nil {
		t.Fatal(err)
	}

	if bmp.Revision != 0x10000 {
		t.Errorf("unexpected revision %#x", bmp.Revision)
	}

	if _, err = bmp.ConnectAllControllers(); err != nil || path != 0 {
		t.Errorf("unexpected path %#x, %v", path, err)
	}

	if _, err = bmp.ConnectDeviceClass(uefi.EFI_BOOT_MANAGER_POLICY_NETWORK_GUID); !errors.Is(err, uefi.ErrNotFound) {
		t.Errorf("expected EFI_NOT_FOUND, got %v", err)
	}

	if class != uefi.EFI_BOOT_MANAGER_POLICY_NETWORK_GUID {
		t.Errorf("unexpected device class %s", class)
	}
}

func TestDevicePathToText(t *testing.T) {
	sys, svc := open(t)

	addr := sys.Put([]uint64{0, 0})
	sys.Boot.Install(0x3000, uefi.EFI_DEVICE_PATH_TO_TEXT_PROTOCOL_GUID, addr)

	sys.Handle(addr+8, func(args ...uint64) uint64 {
		var buf uint64

		text := efitest.UCS2(`\EFI\BOOT\BOOTX64.EFI`)
		sys.Boot.AllocatePool(uefi.EfiBootServicesData, uint64(len(text)), &buf)
		copy(sys.MustSlice(buf, len(text)), text)

		return buf
	})

	p, err := uefi.LocateProtocol[uefi.DevicePathToText](svc.Boot)

	if err != nil {
		t.Fatal(err)
	}

	entry, _ := uefi.FilePath(`\EFI\BOOT\BOOTX64.EFI`)
	s, err := p.PathToText(uefi.NewDevicePath(entry))

	if err != nil {
		t.Fatal(err)
	}

	if s != `\EFI\BOOT\BOOTX64.EFI` {
		t.Errorf("unexpected text %q", s)
	}

	if len(sys.Boot.Pool) != 0 {
		t.Errorf("text buffer not released")
	}

	// conversion failure
	sys.HandleStatus(addr+8, 0)

	if _, err = p.PathToText(uefi.NewDevicePath(entry)); !errors.Is(err, uefi.ErrUnsupported) {
		t.Errorf("expected EFI_UNSUPPORTED, got %v", err)
	}
}
