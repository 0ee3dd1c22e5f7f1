// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package nvram implements a persistent UEFI variable store, suitable for
// exercising variable services on hosts without UEFI firmware.
//
// The store implements the uefi.VariableTable interface, variables are kept
// in a bbolt database with msgpack encoded values.
package nvram

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/usbarmory/go-efi/uefi"
)

// Default store limits.
const (
	DefaultMaxStorage      = 256 * 1024
	DefaultMaxVariableSize = 32 * 1024
)

var bucket = []byte("variables")

const authenticated = uefi.EFI_VARIABLE_AUTHENTICATED_WRITE_ACCESS |
	uefi.EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS |
	uefi.EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS

// Options represents the store configuration.
type Options struct {
	// MaxStorage represents the store capacity in bytes, variable sizes
	// account for their name and data.
	MaxStorage uint64
	// MaxVariableSize represents the maximum size of a single variable.
	MaxVariableSize uint64

	// NoSync disables database syncing, only suitable for testing.
	NoSync bool

	// Logger, when set, reports store failures.
	Logger *log.Logger
}

// record represents a stored variable value.
type record struct {
	Attributes uint32 `msgpack:"a"`
	Data       []byte `msgpack:"d"`
	Updated    int64  `msgpack:"t,omitempty"`
}

// Store represents a persistent UEFI variable store.
//
// Variables are enumerated in key order: vendor GUID first, then name.
type Store struct {
	db   *bbolt.DB
	opts Options
	log  *log.Logger
}

// Open opens, or creates, the variable store at the argument path.
func Open(path string, opts Options) (s *Store, err error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	bopt.NoSync = opts.NoSync

	if opts.MaxStorage == 0 {
		opts.MaxStorage = DefaultMaxStorage
	}

	if opts.MaxVariableSize == 0 {
		opts.MaxVariableSize = DefaultMaxVariableSize
	}

	s = &Store{
		opts: opts,
		log:  opts.Logger,
	}

	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}

	if s.db, err = bbolt.Open(path, 0600, bopt); err != nil {
		return nil, fmt.Errorf("nvram: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})

	if err != nil {
		s.db.Close()
		return nil, fmt.Errorf("nvram: %w", err)
	}

	return
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Services returns variable services backed by the store.
func (s *Store) Services() *uefi.VariableServices {
	return uefi.NewVariableServices(s)
}

// key returns the database key for a variable, name excludes the NUL
// terminator.
func key(name []uint16, vendor *uefi.GUID) []byte {
	k := make([]byte, 16, 16+len(name)*2)
	copy(k, vendor[:])

	for _, c := range name {
		k = binary.LittleEndian.AppendUint16(k, c)
	}

	return k
}

func parseKey(k []byte) (name []uint16, vendor uefi.GUID) {
	copy(vendor[:], k[:16])

	for i := 16; i+1 < len(k); i += 2 {
		name = append(name, binary.LittleEndian.Uint16(k[i:]))
	}

	return
}

// size returns the storage accounted to a variable.
func size(k []byte, r *record) uint64 {
	return uint64(len(k)-16) + 2 + uint64(len(r.Data))
}

func decode(v []byte) (r *record, err error) {
	r = &record{}
	err = msgpack.Unmarshal(v, r)
	return
}

func terminated(s []uint16) ([]uint16, bool) {
	for i, c := range s {
		if c == 0 {
			return s[:i], true
		}
	}

	return nil, false
}

// deviceError logs a store failure, reported to callers as
// EFI_DEVICE_ERROR.
func (s *Store) deviceError(op string, err error) uefi.Status {
	s.log.Printf("nvram: %s error, %v", op, err)
	return uefi.EFI_DEVICE_ERROR
}

func (s *Store) used(b *bbolt.Bucket) (n uint64, err error) {
	err = b.ForEach(func(k, v []byte) error {
		r, err := decode(v)

		if err != nil {
			return err
		}

		n += size(k, r)

		return nil
	})

	return
}

// GetVariable implements uefi.VariableTable.
func (s *Store) GetVariable(name []uint16, vendor *uefi.GUID, attributes *uint32, dataSize *uint64, data []byte) (status uefi.Status) {
	n, ok := terminated(name)

	if !ok || len(n) == 0 || vendor == nil || dataSize == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get(key(n, vendor))

		if v == nil {
			status = uefi.EFI_NOT_FOUND
			return nil
		}

		r, err := decode(v)

		if err != nil {
			return err
		}

		if attributes != nil {
			*attributes = r.Attributes
		}

		if *dataSize < uint64(len(r.Data)) || len(data) < len(r.Data) {
			*dataSize = uint64(len(r.Data))
			status = uefi.EFI_BUFFER_TOO_SMALL
			return nil
		}

		*dataSize = uint64(copy(data, r.Data))
		status = uefi.EFI_SUCCESS

		return nil
	})

	if err != nil {
		return s.deviceError("GetVariable", err)
	}

	return
}

// GetNextVariableName implements uefi.VariableTable.
func (s *Store) GetNextVariableName(nameSize *uint64, name []uint16, vendor *uefi.GUID) (status uefi.Status) {
	if nameSize == nil || vendor == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	name = name[:min(len(name), int(*nameSize/2))]
	prev, ok := terminated(name)

	if !ok {
		return uefi.EFI_INVALID_PARAMETER
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		var k []byte

		c := tx.Bucket(bucket).Cursor()

		if len(prev) == 0 {
			k, _ = c.First()
		} else {
			cur := key(prev, vendor)

			if k, _ = c.Seek(cur); !bytes.Equal(k, cur) {
				status = uefi.EFI_INVALID_PARAMETER
				return nil
			}

			k, _ = c.Next()
		}

		if k == nil {
			status = uefi.EFI_NOT_FOUND
			return nil
		}

		next, guid := parseKey(k)
		required := uint64(len(next)+1) * 2

		// the reported size might exceed the buffer
		if *nameSize < required || uint64(len(name))*2 < required {
			*nameSize = required
			status = uefi.EFI_BUFFER_TOO_SMALL
			return nil
		}

		copy(name, next)
		name[len(next)] = 0

		*vendor = guid
		*nameSize = required
		status = uefi.EFI_SUCCESS

		return nil
	})

	if err != nil {
		return s.deviceError("GetNextVariableName", err)
	}

	return
}

var errAbort = errors.New("aborted")

// SetVariable implements uefi.VariableTable.
//
// Authenticated variables are not supported.
func (s *Store) SetVariable(name []uint16, vendor *uefi.GUID, attributes uint32, data []byte) (status uefi.Status) {
	n, ok := terminated(name)

	if !ok || len(n) == 0 || vendor == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	attr := uefi.VariableAttributes(attributes)
	appendWrite := attr.Has(uefi.EFI_VARIABLE_APPEND_WRITE)
	attr &^= uefi.EFI_VARIABLE_APPEND_WRITE

	switch {
	case attr&authenticated != 0:
		return uefi.EFI_UNSUPPORTED
	case attr.Has(uefi.EFI_VARIABLE_RUNTIME_ACCESS) && !attr.Has(uefi.EFI_VARIABLE_BOOTSERVICE_ACCESS):
		return uefi.EFI_INVALID_PARAMETER
	}

	k := key(n, vendor)

	err := s.db.Update(func(tx *bbolt.Tx) (err error) {
		var prev *record

		b := tx.Bucket(bucket)

		if v := b.Get(k); v != nil {
			if prev, err = decode(v); err != nil {
				return
			}
		}

		// deletion
		if !appendWrite && (attr == 0 || len(data) == 0) {
			if prev == nil {
				status = uefi.EFI_NOT_FOUND
				return
			}

			status = uefi.EFI_SUCCESS

			return b.Delete(k)
		}

		r := &record{
			Attributes: uint32(attr),
			Updated:    time.Now().Unix(),
		}

		if prev != nil {
			if prev.Attributes != r.Attributes {
				status = uefi.EFI_INVALID_PARAMETER
				return
			}

			if appendWrite {
				r.Data = prev.Data
			}
		}

		status = uefi.EFI_SUCCESS

		if appendWrite && len(data) == 0 {
			return
		}

		r.Data = append(r.Data, data...)

		if size(k, r) > s.opts.MaxVariableSize {
			status = uefi.EFI_INVALID_PARAMETER
			return errAbort
		}

		used, err := s.used(b)

		if err != nil {
			return
		}

		if prev != nil {
			used -= size(k, prev)
		}

		if used+size(k, r) > s.opts.MaxStorage {
			status = uefi.EFI_OUT_OF_RESOURCES
			return errAbort
		}

		v, err := msgpack.Marshal(r)

		if err != nil {
			return
		}

		return b.Put(k, v)
	})

	switch {
	case errors.Is(err, errAbort):
		return
	case err != nil:
		return s.deviceError("SetVariable", err)
	}

	return
}

// QueryVariableInfo implements uefi.VariableTable.
func (s *Store) QueryVariableInfo(attributes uint32, maxStorage *uint64, remainingStorage *uint64, maxVariableSize *uint64) uefi.Status {
	if attributes == 0 || maxStorage == nil || remainingStorage == nil || maxVariableSize == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		used, err := s.used(tx.Bucket(bucket))

		if err != nil {
			return err
		}

		*maxStorage = s.opts.MaxStorage
		*remainingStorage = s.opts.MaxStorage - min(used, s.opts.MaxStorage)
		*maxVariableSize = s.opts.MaxVariableSize

		return nil
	})

	if err != nil {
		return s.deviceError("QueryVariableInfo", err)
	}

	return uefi.EFI_SUCCESS
}
