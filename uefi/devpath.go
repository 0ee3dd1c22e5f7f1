// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"unsafe"
)

// EFI Device Path Protocol GUIDs
var (
	EFI_DEVICE_PATH_PROTOCOL_GUID           = MustParseGUID("09576e91-6d3f-11d2-8e39-00a0c969723b")
	EFI_DEVICE_PATH_TO_TEXT_PROTOCOL_GUID   = MustParseGUID("8b843e20-8132-4852-90cc-551a4e4a7f1c")
	EFI_DEVICE_PATH_FROM_TEXT_PROTOCOL_GUID = MustParseGUID("05c99a21-c70f-4ad2-8a5f-35df3343f51e")
	EFI_DEVICE_PATH_UTILITIES_PROTOCOL_GUID = MustParseGUID("0379be4e-d706-437d-b037-edb82fb772a4")
)

// DevicePathProtocol represents an EFI Device Path Protocol instance, the
// first node of a device path installed on a handle.
type DevicePathProtocol struct {
	*Node
}

// GUID returns the EFI Device Path Protocol GUID.
func (p *DevicePathProtocol) GUID() GUID {
	return EFI_DEVICE_PATH_PROTOCOL_GUID
}

func (p *DevicePathProtocol) bind(b *Binding) (err error) {
	p.Node, err = NodeAt(b.Mem, b.Addr)
	return
}

// DevicePath copies the device path from firmware memory.
func (p *DevicePathProtocol) DevicePath() (DevicePath, error) {
	return ReadDevicePath(p.mem, p.addr)
}

// devicePathToText represents the EFI_DEVICE_PATH_TO_TEXT_PROTOCOL layout.
type devicePathToText struct {
	ConvertDeviceNodeToText uint64
	ConvertDevicePathToText uint64
}

// DevicePathToTextTable represents the EFI_DEVICE_PATH_TO_TEXT_PROTOCOL
// function table, functions return the address of a pool allocated string or
// 0.
type DevicePathToTextTable interface {
	ConvertDeviceNodeToText(node []byte, displayOnly bool, allowShortcuts bool) uint64
	ConvertDevicePathToText(path DevicePath, displayOnly bool, allowShortcuts bool) uint64
}

type devicePathToTextAdapter struct {
	Binding
}

func (d *devicePathToTextAdapter) ConvertDeviceNodeToText(node []byte, displayOnly bool, allowShortcuts bool) uint64 {
	var t devicePathToText
	return d.Call.Call(slot(d.Addr, unsafe.Offsetof(t.ConvertDeviceNodeToText)), sliceval(node), boolval(displayOnly), boolval(allowShortcuts))
}

func (d *devicePathToTextAdapter) ConvertDevicePathToText(path DevicePath, displayOnly bool, allowShortcuts bool) uint64 {
	var t devicePathToText
	return d.Call.Call(slot(d.Addr, unsafe.Offsetof(t.ConvertDevicePathToText)), sliceval(path), boolval(displayOnly), boolval(allowShortcuts))
}

// DevicePathToText represents an EFI Device Path to Text Protocol instance.
type DevicePathToText struct {
	// DisplayOnly selects the shorter text representation of nodes.
	DisplayOnly bool
	// AllowShortcuts selects shortcut forms of text representation.
	AllowShortcuts bool

	table DevicePathToTextTable
	b     Binding
}

// GUID returns the EFI Device Path to Text Protocol GUID.
func (p *DevicePathToText) GUID() GUID {
	return EFI_DEVICE_PATH_TO_TEXT_PROTOCOL_GUID
}

func (p *DevicePathToText) bind(b *Binding) error {
	p.b = *b
	p.table = &devicePathToTextAdapter{*b}
	return nil
}

// NewDevicePathToText returns a protocol instance forwarding to the argument
// function table, returned strings are read and released through the
// argument binding.
func NewDevicePathToText(t DevicePathToTextTable, b *Binding) *DevicePathToText {
	return &DevicePathToText{
		table: t,
		b:     *b,
	}
}

// text reads and releases a pool allocated string.
func (p *DevicePathToText) text(op string, addr uint64) (string, error) {
	if addr == 0 {
		return "", ErrUnsupported
	}

	defer p.b.free(addr)

	ucs2, err := readString(p.b.Mem, addr)

	if err != nil {
		return "", err
	}

	return mustDecode(op, ucs2), nil
}

// NodeToText converts a device path node to its text representation.
func (p *DevicePathToText) NodeToText(n *DevicePathEntry) (string, error) {
	if err := p.b.Life.check(); err != nil {
		return "", err
	}

	return p.text("ConvertDeviceNodeToText", p.table.ConvertDeviceNodeToText(n.Bytes(), p.DisplayOnly, p.AllowShortcuts))
}

// PathToText converts a device path to its text representation.
func (p *DevicePathToText) PathToText(path DevicePath) (string, error) {
	if err := p.b.Life.check(); err != nil {
		return "", err
	}

	if _, err := path.Size(); err != nil {
		return "", err
	}

	return p.text("ConvertDevicePathToText", p.table.ConvertDevicePathToText(path, p.DisplayOnly, p.AllowShortcuts))
}

// devicePathFromText represents the EFI_DEVICE_PATH_FROM_TEXT_PROTOCOL
// layout.
type devicePathFromText struct {
	ConvertTextToDeviceNode uint64
	ConvertTextToDevicePath uint64
}

// DevicePathFromTextTable represents the EFI_DEVICE_PATH_FROM_TEXT_PROTOCOL
// function table, functions return the address of a pool allocated device
// path or 0.
type DevicePathFromTextTable interface {
	ConvertTextToDeviceNode(text []uint16) uint64
	ConvertTextToDevicePath(text []uint16) uint64
}

type devicePathFromTextAdapter struct {
	Binding
}

func (d *devicePathFromTextAdapter) ConvertTextToDeviceNode(text []uint16) uint64 {
	var t devicePathFromText
	return d.Call.Call(slot(d.Addr, unsafe.Offsetof(t.ConvertTextToDeviceNode)), sliceval(text))
}

func (d *devicePathFromTextAdapter) ConvertTextToDevicePath(text []uint16) uint64 {
	var t devicePathFromText
	return d.Call.Call(slot(d.Addr, unsafe.Offsetof(t.ConvertTextToDevicePath)), sliceval(text))
}

// DevicePathFromText represents an EFI Device Path from Text Protocol
// instance.
type DevicePathFromText struct {
	table DevicePathFromTextTable
	b     Binding
}

// GUID returns the EFI Device Path from Text Protocol GUID.
func (p *DevicePathFromText) GUID() GUID {
	return EFI_DEVICE_PATH_FROM_TEXT_PROTOCOL_GUID
}

func (p *DevicePathFromText) bind(b *Binding) error {
	p.b = *b
	p.table = &devicePathFromTextAdapter{*b}
	return nil
}

// NewDevicePathFromText returns a protocol instance forwarding to the
// argument function table, returned device paths are read and released
// through the argument binding.
func NewDevicePathFromText(t DevicePathFromTextTable, b *Binding) *DevicePathFromText {
	return &DevicePathFromText{
		table: t,
		b:     *b,
	}
}

func (p *DevicePathFromText) convert(text string, fn func([]uint16) uint64, read func(mem Memory, addr uint64) error) (err error) {
	if err = p.b.Life.check(); err != nil {
		return
	}

	s, err := EncodeString(text)

	if err != nil {
		return
	}

	addr := fn(s)

	if addr == 0 {
		return ErrInvalidParameter
	}

	defer p.b.free(addr)

	return read(p.b.Mem, addr)
}

// TextToNode converts the text representation of a device node to a device
// node.
func (p *DevicePathFromText) TextToNode(text string) (n *DevicePathEntry, err error) {
	err = p.convert(text, p.table.ConvertTextToDeviceNode, func(mem Memory, addr uint64) error {
		node, err := NodeAt(mem, addr)

		if err != nil {
			return err
		}

		buf, err := node.Data()

		if err != nil {
			return err
		}

		n, err = NewDevicePathEntry(node.Type, node.SubType, append([]byte(nil), buf...))

		return err
	})

	return
}

// TextToPath converts the text representation of a device path to a device
// path.
func (p *DevicePathFromText) TextToPath(text string) (path DevicePath, err error) {
	err = p.convert(text, p.table.ConvertTextToDevicePath, func(mem Memory, addr uint64) (err error) {
		path, err = ReadDevicePath(mem, addr)
		return
	})

	return
}

// devicePathUtilities represents the EFI_DEVICE_PATH_UTILITIES_PROTOCOL
// layout.
type devicePathUtilities struct {
	GetDevicePathSize         uint64
	DuplicateDevicePath       uint64
	AppendDevicePath          uint64
	AppendDeviceNode          uint64
	AppendDevicePathInstance  uint64
	GetNextDevicePathInstance uint64
	IsDevicePathMultiInstance uint64
	CreateDeviceNode          uint64
}

// DevicePathUtilitiesTable represents the EFI_DEVICE_PATH_UTILITIES_PROTOCOL
// function table, functions returning a device path return the address of a
// pool allocated one or 0.
type DevicePathUtilitiesTable interface {
	GetDevicePathSize(path DevicePath) uint64
	DuplicateDevicePath(path DevicePath) uint64
	AppendDevicePath(src1 DevicePath, src2 DevicePath) uint64
	AppendDeviceNode(path DevicePath, node []byte) uint64
	AppendDevicePathInstance(path DevicePath, instance DevicePath) uint64
	GetNextDevicePathInstance(instance *uint64, size *uint64) uint64
	IsDevicePathMultiInstance(path DevicePath) bool
	CreateDeviceNode(t uint8, subType uint8, length uint16) uint64
}

type devicePathUtilitiesAdapter struct {
	Binding
}

var dpu devicePathUtilities

func (d *devicePathUtilitiesAdapter) fn(offset uintptr, args ...uint64) uint64 {
	return d.Call.Call(slot(d.Addr, offset), args...)
}

func (d *devicePathUtilitiesAdapter) GetDevicePathSize(path DevicePath) uint64 {
	return d.fn(unsafe.Offsetof(dpu.GetDevicePathSize), sliceval(path))
}

func (d *devicePathUtilitiesAdapter) DuplicateDevicePath(path DevicePath) uint64 {
	return d.fn(unsafe.Offsetof(dpu.DuplicateDevicePath), sliceval(path))
}

func (d *devicePathUtilitiesAdapter) AppendDevicePath(src1 DevicePath, src2 DevicePath) uint64 {
	return d.fn(unsafe.Offsetof(dpu.AppendDevicePath), sliceval(src1), sliceval(src2))
}

func (d *devicePathUtilitiesAdapter) AppendDeviceNode(path DevicePath, node []byte) uint64 {
	return d.fn(unsafe.Offsetof(dpu.AppendDeviceNode), sliceval(path), sliceval(node))
}

func (d *devicePathUtilitiesAdapter) AppendDevicePathInstance(path DevicePath, instance DevicePath) uint64 {
	return d.fn(unsafe.Offsetof(dpu.AppendDevicePathInstance), sliceval(path), sliceval(instance))
}

func (d *devicePathUtilitiesAdapter) GetNextDevicePathInstance(instance *uint64, size *uint64) uint64 {
	return d.fn(unsafe.Offsetof(dpu.GetNextDevicePathInstance), ptrval(instance), ptrval(size))
}

func (d *devicePathUtilitiesAdapter) IsDevicePathMultiInstance(path DevicePath) bool {
	return uint8(d.fn(unsafe.Offsetof(dpu.IsDevicePathMultiInstance), sliceval(path))) != 0
}

func (d *devicePathUtilitiesAdapter) CreateDeviceNode(t uint8, subType uint8, length uint16) uint64 {
	return d.fn(unsafe.Offsetof(dpu.CreateDeviceNode), uint64(t), uint64(subType), uint64(length))
}

// DevicePathUtilities represents an EFI Device Path Utilities Protocol
// instance.
type DevicePathUtilities struct {
	table DevicePathUtilitiesTable
	b     Binding
}

// GUID returns the EFI Device Path Utilities Protocol GUID.
func (p *DevicePathUtilities) GUID() GUID {
	return EFI_DEVICE_PATH_UTILITIES_PROTOCOL_GUID
}

func (p *DevicePathUtilities) bind(b *Binding) error {
	p.b = *b
	p.table = &devicePathUtilitiesAdapter{*b}
	return nil
}

// NewDevicePathUtilities returns a protocol instance forwarding to the
// argument function table, returned device paths are read and released
// through the argument binding.
func NewDevicePathUtilities(t DevicePathUtilitiesTable, b *Binding) *DevicePathUtilities {
	return &DevicePathUtilities{
		table: t,
		b:     *b,
	}
}

// result copies and releases a pool allocated device path.
func (p *DevicePathUtilities) result(addr uint64) (DevicePath, error) {
	if addr == 0 {
		return nil, ErrOutOfResources
	}

	defer p.b.free(addr)

	return ReadDevicePath(p.b.Mem, addr)
}

// Size returns the size of the argument device path, in bytes, including the
// end of device path node.
func (p *DevicePathUtilities) Size(path DevicePath) (int, error) {
	if err := p.b.Life.check(); err != nil {
		return 0, err
	}

	return int(p.table.GetDevicePathSize(path)), nil
}

// Duplicate returns a copy of the argument device path.
func (p *DevicePathUtilities) Duplicate(path DevicePath) (DevicePath, error) {
	if err := p.b.Life.check(); err != nil {
		return nil, err
	}

	return p.result(p.table.DuplicateDevicePath(path))
}

// Append returns a device path with the second argument device path appended
// to the first one.
func (p *DevicePathUtilities) Append(src1 DevicePath, src2 DevicePath) (DevicePath, error) {
	if err := p.b.Life.check(); err != nil {
		return nil, err
	}

	return p.result(p.table.AppendDevicePath(src1, src2))
}

// AppendNode returns a device path with the argument node appended.
func (p *DevicePathUtilities) AppendNode(path DevicePath, n *DevicePathEntry) (DevicePath, error) {
	if err := p.b.Life.check(); err != nil {
		return nil, err
	}

	return p.result(p.table.AppendDeviceNode(path, n.Bytes()))
}

// AppendInstance returns a multi-instance device path with the argument
// instance appended.
func (p *DevicePathUtilities) AppendInstance(path DevicePath, instance DevicePath) (DevicePath, error) {
	if err := p.b.Life.check(); err != nil {
		return nil, err
	}

	return p.result(p.table.AppendDevicePathInstance(path, instance))
}

// NextInstance returns a copy of the device path instance at the argument
// firmware address, along with the address of the following instance which
// is 0 once the last instance is reached.
func (p *DevicePathUtilities) NextInstance(addr uint64) (instance DevicePath, next uint64, err error) {
	var size uint64

	if err = p.b.Life.check(); err != nil {
		return
	}

	next = addr
	dup := p.table.GetNextDevicePathInstance(&next, &size)

	if dup == 0 {
		return nil, 0, ErrNotFound
	}

	instance, err = p.result(dup)

	return
}

// IsMultiInstance reports whether the argument device path holds more than
// one instance.
func (p *DevicePathUtilities) IsMultiInstance(path DevicePath) (bool, error) {
	if err := p.b.Life.check(); err != nil {
		return false, err
	}

	return p.table.IsDevicePathMultiInstance(path), nil
}

// CreateNode returns a zero filled device node of the argument type and
// length.
func (p *DevicePathUtilities) CreateNode(t uint8, subType uint8, length uint16) (n *DevicePathEntry, err error) {
	if err = p.b.Life.check(); err != nil {
		return
	}

	if length < devicePathNodeSize {
		return nil, ErrInvalidParameter
	}

	addr := p.table.CreateDeviceNode(t, subType, length)

	if addr == 0 {
		return nil, ErrOutOfResources
	}

	defer p.b.free(addr)

	buf, err := p.b.Mem.Slice(addr, int(length))

	if err != nil {
		return
	}

	return NewDevicePathEntry(t, subType, append([]byte(nil), buf[devicePathNodeSize:]...))
}
