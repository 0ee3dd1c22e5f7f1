// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

var EFI_BLOCK_IO_PROTOCOL_GUID = MustParseGUID("964e5b21-6459-11d2-8e39-00a0c969723b")

// blockIO represents the EFI_BLOCK_IO_PROTOCOL layout.
type blockIO struct {
	Revision    uint64
	Media       uint64
	Reset       uint64
	ReadBlocks  uint64
	WriteBlocks uint64
	FlushBlocks uint64
}

// BlockIOMedia represents an EFI_BLOCK_IO_MEDIA instance.
type BlockIOMedia struct {
	MediaID          uint32
	RemovableMedia   bool
	MediaPresent     bool
	LogicalPartition bool
	ReadOnly         bool
	WriteCaching     bool
	_                [3]byte
	BlockSize        uint32
	IoAlign          uint32
	_                uint32
	LastBlock        uint64
}

// BlockIO represents an EFI Block I/O Protocol instance, only its media
// description is supported.
type BlockIO struct {
	Revision uint64

	b     Binding
	media uint64
}

// GUID returns the EFI Block I/O Protocol GUID.
func (p *BlockIO) GUID() GUID {
	return EFI_BLOCK_IO_PROTOCOL_GUID
}

func (p *BlockIO) bind(b *Binding) (err error) {
	t := &blockIO{}

	if _, err = decode(b.Mem, b.Addr, t); err != nil {
		return
	}

	p.b = *b
	p.Revision = t.Revision
	p.media = t.Media

	return
}

// Media returns the current media description.
func (p *BlockIO) Media() (m *BlockIOMedia, err error) {
	if err = p.b.Life.check(); err != nil {
		return
	}

	m = &BlockIOMedia{}

	if _, err = decode(p.b.Mem, p.media, m); err != nil {
		return nil, err
	}

	return
}

// Size returns the media size in bytes.
func (m *BlockIOMedia) Size() uint64 {
	return (m.LastBlock + 1) * uint64(m.BlockSize)
}
