// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// maximum size of device paths copied from firmware memory
	maxDevicePathSize = 1 << 16

	devicePathNodeSize = 4
)

// EFI Device Path types
const (
	HARDWARE_DEVICE_PATH  = 0x01
	ACPI_DEVICE_PATH      = 0x02
	MESSAGING_DEVICE_PATH = 0x03
	MEDIA_DEVICE_PATH     = 0x04
	BBS_DEVICE_PATH       = 0x05
	END_DEVICE_PATH_TYPE  = 0x7f
)

// EFI Device Path sub-types
const (
	END_INSTANCE_DEVICE_PATH_SUBTYPE = 0x01
	END_ENTIRE_DEVICE_PATH_SUBTYPE   = 0xff

	MEDIA_HARDDRIVE_DP = 0x01
	MEDIA_CDROM_DP     = 0x02
	MEDIA_VENDOR_DP    = 0x03
	MEDIA_FILEPATH_DP  = 0x04
)

// DevicePathNode represents an EFI Generic Device Path Node header.
type DevicePathNode struct {
	Type    uint8
	SubType uint8
	Length  uint16
}

// IsEnd reports whether the node terminates the entire device path.
func (d DevicePathNode) IsEnd() bool {
	return d.Type == END_DEVICE_PATH_TYPE && d.SubType == END_ENTIRE_DEVICE_PATH_SUBTYPE
}

// IsEndInstance reports whether the node terminates a device path instance
// which is followed by another one.
func (d DevicePathNode) IsEndInstance() bool {
	return d.Type == END_DEVICE_PATH_TYPE && d.SubType == END_INSTANCE_DEVICE_PATH_SUBTYPE
}

func (d DevicePathNode) String() string {
	return fmt.Sprintf("%#02x/%#02x/%d", d.Type, d.SubType, d.Length)
}

func (d DevicePathNode) bytes() []byte {
	return []byte{d.Type, d.SubType, byte(d.Length), byte(d.Length >> 8)}
}

// Node represents a device path node within firmware memory.
//
// Traversal trusts the node length fields: it is the caller responsibility
// to ensure that the node chain lives in valid memory and is terminated by an
// end of entire device path node.
type Node struct {
	DevicePathNode

	mem  Memory
	addr uint64
}

// NodeAt returns the device path node at the argument address.
func NodeAt(mem Memory, addr uint64) (n *Node, err error) {
	n = &Node{
		mem:  mem,
		addr: addr,
	}

	if _, err = decode(mem, addr, &n.DevicePathNode); err != nil {
		return nil, err
	}

	return
}

// Address returns the node address.
func (n *Node) Address() uint64 {
	return n.addr
}

// Next returns the node located at the current node address plus its length.
//
// A node length smaller than the node header is a firmware contract violation
// resulting in a panic with a [*FirmwareFault] value.
func (n *Node) Next() (*Node, error) {
	if n.Length < devicePathNodeSize {
		fault("DevicePath", EFI_SUCCESS, "invalid node length %d at %#x", n.Length, n.addr)
	}

	return NodeAt(n.mem, n.addr+uint64(n.Length))
}

// Data returns the node payload, the returned slice aliases firmware memory.
func (n *Node) Data() ([]byte, error) {
	if n.Length < devicePathNodeSize {
		return nil, fmt.Errorf("invalid node length %d", n.Length)
	}

	return n.mem.Slice(n.addr+devicePathNodeSize, int(n.Length)-devicePathNodeSize)
}

// ReadDevicePath copies the device path at the argument address from firmware
// memory.
func ReadDevicePath(mem Memory, addr uint64) (p DevicePath, err error) {
	n, err := NodeAt(mem, addr)

	for ; err == nil; n, err = n.Next() {
		if n.Length < devicePathNodeSize {
			return nil, fmt.Errorf("invalid node length %d at %#x", n.Length, n.addr)
		}

		if len(p)+int(n.Length) > maxDevicePathSize {
			return nil, errors.New("device path size limit exceeded")
		}

		var buf []byte

		if buf, err = mem.Slice(n.addr, int(n.Length)); err != nil {
			break
		}

		p = append(p, buf...)

		if n.IsEnd() {
			return
		}
	}

	return nil, err
}

// DevicePath represents a caller owned EFI Device Path, a sequence of nodes
// terminated by an end of entire device path node.
type DevicePath []byte

// DevicePathEntry represents a parsed device path node.
type DevicePathEntry struct {
	DevicePathNode
	Data []byte
}

// Bytes converts the node to its binary format.
func (d *DevicePathEntry) Bytes() []byte {
	return append(d.DevicePathNode.bytes(), d.Data...)
}

// NewDevicePathEntry returns a device path node with the argument payload.
func NewDevicePathEntry(t uint8, subType uint8, data []byte) (*DevicePathEntry, error) {
	if len(data) > 0xffff-devicePathNodeSize {
		return nil, errors.New("invalid node size")
	}

	return &DevicePathEntry{
		DevicePathNode: DevicePathNode{
			Type:    t,
			SubType: subType,
			Length:  uint16(devicePathNodeSize + len(data)),
		},
		Data: data,
	}, nil
}

// FilePath returns a File Path Media Device Path node for the argument path
// name.
func FilePath(name string) (*DevicePathEntry, error) {
	pathName, err := toUTF16(name)

	if err != nil {
		return nil, err
	}

	return NewDevicePathEntry(MEDIA_DEVICE_PATH, MEDIA_FILEPATH_DP, pathName)
}

// NewDevicePath returns a single instance device path composed of the
// argument nodes followed by an end of entire device path node.
func NewDevicePath(nodes ...*DevicePathEntry) (p DevicePath) {
	for _, n := range nodes {
		p = append(p, n.Bytes()...)
	}

	end := DevicePathNode{
		Type:    END_DEVICE_PATH_TYPE,
		SubType: END_ENTIRE_DEVICE_PATH_SUBTYPE,
		Length:  devicePathNodeSize,
	}

	return append(p, end.bytes()...)
}

// walk parses all nodes up to, and including, the end of entire device path
// node, bounded by the device path length.
func (p DevicePath) walk(fn func(off int, n DevicePathNode) error) error {
	for off := 0; off+devicePathNodeSize <= len(p); {
		n := DevicePathNode{
			Type:    p[off],
			SubType: p[off+1],
			Length:  binary.LittleEndian.Uint16(p[off+2:]),
		}

		if n.Length < devicePathNodeSize || off+int(n.Length) > len(p) {
			return fmt.Errorf("invalid node length %d at offset %d", n.Length, off)
		}

		if err := fn(off, n); err != nil {
			return err
		}

		if n.IsEnd() {
			return nil
		}

		off += int(n.Length)
	}

	return errors.New("missing end of device path node")
}

// Size returns the device path size including the end of entire device path
// node.
func (p DevicePath) Size() (size int, err error) {
	err = p.walk(func(off int, n DevicePathNode) error {
		size = off + int(n.Length)
		return nil
	})

	return
}

// Nodes returns all device path nodes, excluding the terminating end of
// entire device path node. Node payloads alias the device path.
func (p DevicePath) Nodes() (nodes []*DevicePathEntry, err error) {
	err = p.walk(func(off int, n DevicePathNode) error {
		if !n.IsEnd() {
			nodes = append(nodes, &DevicePathEntry{
				DevicePathNode: n,
				Data:           p[off+devicePathNodeSize : off+int(n.Length)],
			})
		}

		return nil
	})

	return
}

// IsMultiInstance reports whether the device path holds more than one
// instance.
func (p DevicePath) IsMultiInstance() (multi bool, err error) {
	err = p.walk(func(_ int, n DevicePathNode) error {
		multi = multi || n.IsEndInstance()
		return nil
	})

	return
}

// Instances splits a multi-instance device path in its instances, each
// terminated by an end of entire device path node.
func (p DevicePath) Instances() (instances []DevicePath, err error) {
	start := 0

	err = p.walk(func(off int, n DevicePathNode) error {
		if !n.IsEnd() && !n.IsEndInstance() {
			return nil
		}

		inst := make(DevicePath, 0, off-start+devicePathNodeSize)
		inst = append(inst, p[start:off]...)
		instances = append(instances, NewDevicePathFrom(inst))

		start = off + int(n.Length)

		return nil
	})

	return
}

// NewDevicePathFrom terminates the argument node sequence with an end of
// entire device path node.
func NewDevicePathFrom(nodes []byte) DevicePath {
	return append(DevicePath(nodes), NewDevicePath()...)
}

// Append returns a new device path with the nodes of the argument path
// appended after the last node of the current one. All instances of a
// multi-instance path are retained, the argument nodes extend the last one.
func (p DevicePath) Append(q DevicePath) (DevicePath, error) {
	n, err := p.Size()

	if err != nil {
		return nil, err
	}

	if _, err = q.Size(); err != nil {
		return nil, err
	}

	r := make(DevicePath, 0, n-devicePathNodeSize+len(q))
	r = append(r, p[:n-devicePathNodeSize]...)

	return append(r, q...), nil
}

func (p DevicePath) String() string {
	var s []byte

	nodes, err := p.Nodes()

	if err != nil {
		return "invalid"
	}

	for i, n := range nodes {
		if i > 0 {
			s = append(s, '/')
		}

		switch {
		case n.Type == MEDIA_DEVICE_PATH && n.SubType == MEDIA_FILEPATH_DP:
			name, err := DecodeString(bytesUCS2(n.Data))

			if err != nil {
				return "invalid"
			}

			s = append(s, name...)
		default:
			s = fmt.Appendf(s, "Path(%d,%d,%x)", n.Type, n.SubType, n.Data)
		}
	}

	return string(s)
}
