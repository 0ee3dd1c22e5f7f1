// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/usbarmory/go-efi/shell"
	"github.com/usbarmory/go-efi/uefi"
)

func init() {
	shell.Add(shell.Cmd{
		Name: "image",
		Help: "show loaded image information",
		Fn:   imageCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "devpath",
		Args:    1,
		Pattern: regexp.MustCompile(`^devpath (` + guidPattern + `)$`),
		Syntax:  "<protocol GUID>",
		Help:    "show device paths of handles supporting a protocol",
		Fn:      devpathCmd,
	})

	shell.Add(shell.Cmd{
		Name: "connect",
		Help: "connect all controllers",
		Fn:   connectCmd,
	})

	shell.Add(shell.Cmd{
		Name: "gop",
		Help: "show graphics output mode",
		Fn:   gopCmd,
	})

	shell.Add(shell.Cmd{
		Name: "disks",
		Help: "list block devices",
		Fn:   disksCmd,
	})
}

// pathText returns the text representation of a device path, using the
// firmware conversion protocol when available.
func pathText(boot *uefi.BootServices, path uefi.DevicePath) string {
	if t, err := uefi.LocateProtocol[uefi.DevicePathToText](boot); err == nil {
		if s, err := t.PathToText(path); err == nil {
			return s
		}
	}

	return path.String()
}

// handlePath returns the text representation of the device path installed
// on the argument handle.
func handlePath(boot *uefi.BootServices, handle uefi.Handle) string {
	p, err := uefi.HandleProtocol[uefi.DevicePathProtocol](boot, handle)

	if err != nil {
		return "-"
	}

	path, err := p.DevicePath()

	if err != nil {
		return "-"
	}

	return pathText(boot, path)
}

func imageCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	boot, err := bootServices()

	if err != nil {
		return
	}

	img, err := boot.LoadedImage()

	if err != nil {
		return
	}

	rev, err := img.Revision()

	if err != nil {
		return
	}

	base, size, _ := img.ImageBase()
	code, data, _ := img.ImageTypes()
	parent, _ := img.ParentHandle()
	device, _ := img.DeviceHandle()

	fmt.Fprintf(&buf, "Revision ......: %#x\n", rev)
	fmt.Fprintf(&buf, "Image Handle ..: %#x\n", boot.ImageHandle())
	fmt.Fprintf(&buf, "Parent Handle .: %#x\n", parent)
	fmt.Fprintf(&buf, "Device Handle .: %#x (%s)\n", device, handlePath(boot, device))
	fmt.Fprintf(&buf, "Image Base ....: %#x\n", base)
	fmt.Fprintf(&buf, "Image Size ....: %d\n", size)
	fmt.Fprintf(&buf, "Memory Types ..: %s/%s\n", code, data)

	if p, err := uefi.HandleProtocol[uefi.LoadedImageDevicePath](boot, boot.ImageHandle()); err == nil {
		if path, err := p.DevicePath(); err == nil {
			fmt.Fprintf(&buf, "File Path .....: %s\n", pathText(boot, path))
		}
	}

	if opts, err := img.LoadOptions(); err == nil && len(opts) > 0 {
		fmt.Fprintf(&buf, "Load Options ..: %s\n", opts)
	}

	return buf.String(), nil
}

func devpathCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer

	boot, err := bootServices()

	if err != nil {
		return
	}

	c, err := boot.LocateHandleBuffer(uefi.MustParseGUID(arg[0]))

	if err != nil {
		return
	}

	for _, h := range c.Value {
		fmt.Fprintf(&buf, "%#x %s\n", h, handlePath(boot, h))
	}

	return buf.String(), nil
}

func connectCmd(_ *shell.Interface, _ []string) (res string, err error) {
	boot, err := bootServices()

	if err != nil {
		return
	}

	bmp, err := uefi.LocateProtocol[uefi.BootManagerPolicy](boot)

	if err != nil {
		return
	}

	status, err := bmp.ConnectAllControllers()

	return status.String(), err
}

func gopCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	boot, err := bootServices()

	if err != nil {
		return
	}

	gop, err := uefi.LocateProtocol[uefi.GraphicsOutput](boot)

	if err != nil {
		return
	}

	mode, err := gop.GetMode()

	if err != nil {
		return
	}

	info, err := gop.GetInfo()

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "Mode ..........: %d/%d\n", mode.Mode, mode.MaxMode)
	fmt.Fprintf(&buf, "Resolution ....: %dx%d\n", info.HorizontalResolution, info.VerticalResolution)
	fmt.Fprintf(&buf, "Pixel Format ..: %d\n", info.PixelFormat)
	fmt.Fprintf(&buf, "Scan Line .....: %d\n", info.PixelsPerScanLine)
	fmt.Fprintf(&buf, "Frame Buffer ..: %#x (%d bytes)\n", mode.FrameBufferBase, mode.FrameBufferSize)

	return buf.String(), nil
}

func disksCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	boot, err := bootServices()

	if err != nil {
		return
	}

	c, err := boot.LocateHandleBuffer(uefi.EFI_BLOCK_IO_PROTOCOL_GUID)

	if err != nil {
		return
	}

	for _, h := range c.Value {
		bio, err := uefi.HandleProtocol[uefi.BlockIO](boot, h)

		if err != nil {
			return "", err
		}

		m, err := bio.Media()

		if err != nil {
			return "", err
		}

		if !m.MediaPresent {
			continue
		}

		fmt.Fprintf(&buf, "%#x media:%d block:%d size:%d ro:%v removable:%v %s\n",
			h, m.MediaID, m.BlockSize, m.Size(), m.ReadOnly, m.RemovableMedia, handlePath(boot, h))
	}

	return buf.String(), nil
}
