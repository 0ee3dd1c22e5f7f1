// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
	"time"
)

// UnspecifiedTimezone represents the EFI_UNSPECIFIED_TIMEZONE value, used
// when the time is relative to the local time zone.
const UnspecifiedTimezone = 0x07ff

// Daylight represents the EFI_TIME daylight saving time flags.
type Daylight uint8

// EFI_TIME Daylight flags
const (
	EFI_TIME_ADJUST_DAYLIGHT Daylight = 0x01
	EFI_TIME_IN_DAYLIGHT     Daylight = 0x02
)

// Time represents an EFI_TIME instance, its memory layout matches the
// firmware one (16 bytes) so that it can be passed by reference.
type Time struct {
	Year       uint16 // 1900 - 9999
	Month      uint8  // 1 - 12
	Day        uint8  // 1 - 31
	Hour       uint8  // 0 - 23
	Minute     uint8  // 0 - 59
	Second     uint8  // 0 - 59
	_          uint8
	Nanosecond uint32 // 0 - 999,999,999
	TimeZone   int16  // -1440 to 1440 or 2047
	Daylight   Daylight
	_          uint8
}

// TimeCapabilities represents an EFI_TIME_CAPABILITIES instance.
type TimeCapabilities struct {
	// Resolution in counts per second (1 for a PC-AT CMOS RTC)
	Resolution uint32
	// Accuracy in units of 1e-6 parts per million
	Accuracy uint32
	// SetsToZero reports whether a time set operation clears the time
	// below the resolution reporting level.
	SetsToZero bool
}

// NewTime returns a validated EFI_TIME instance.
func NewTime(year uint16, month, day, hour, minute, second uint8, nanosecond uint32, timeZone int16, daylight Daylight) (t *Time, err error) {
	t = &Time{
		Year:       year,
		Month:      month,
		Day:        day,
		Hour:       hour,
		Minute:     minute,
		Second:     second,
		Nanosecond: nanosecond,
		TimeZone:   timeZone,
		Daylight:   daylight,
	}

	if err = t.Validate(); err != nil {
		return nil, err
	}

	return
}

// Validate checks that all fields are within their EFI_TIME ranges.
func (t *Time) Validate() error {
	switch {
	case t.Year < 1900 || t.Year > 9999:
		return fmt.Errorf("invalid year %d", t.Year)
	case t.Month < 1 || t.Month > 12:
		return fmt.Errorf("invalid month %d", t.Month)
	case t.Day < 1 || t.Day > 31:
		return fmt.Errorf("invalid day %d", t.Day)
	case t.Hour > 23:
		return fmt.Errorf("invalid hour %d", t.Hour)
	case t.Minute > 59:
		return fmt.Errorf("invalid minute %d", t.Minute)
	case t.Second > 59:
		return fmt.Errorf("invalid second %d", t.Second)
	case t.Nanosecond > 999_999_999:
		return fmt.Errorf("invalid nanosecond %d", t.Nanosecond)
	case (t.TimeZone < -1440 || t.TimeZone > 1440) && t.TimeZone != UnspecifiedTimezone:
		return fmt.Errorf("invalid time zone %d", t.TimeZone)
	case t.Daylight&^(EFI_TIME_ADJUST_DAYLIGHT|EFI_TIME_IN_DAYLIGHT) != 0:
		return fmt.Errorf("invalid daylight flags %#x", t.Daylight)
	}

	return nil
}

// Zone returns the offset in minutes from UTC and whether it is specified.
func (t *Time) Zone() (offset int16, ok bool) {
	if t.TimeZone == UnspecifiedTimezone {
		return 0, false
	}

	return t.TimeZone, true
}

// Time converts the EFI_TIME instance to a [time.Time], an unspecified time
// zone is interpreted in the argument location.
//
// EFI_TIME expresses the offset as Localtime = UTC - TimeZone.
func (t *Time) Time(loc *time.Location) time.Time {
	if offset, ok := t.Zone(); ok {
		loc = time.FixedZone("", -int(offset)*60)
	}

	if loc == nil {
		loc = time.UTC
	}

	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day),
		int(t.Hour), int(t.Minute), int(t.Second), int(t.Nanosecond), loc)
}

// FromTime converts a [time.Time] to a validated EFI_TIME instance.
func FromTime(tm time.Time) (*Time, error) {
	if tm.IsZero() {
		return nil, errors.New("invalid zero time")
	}

	_, offset := tm.Zone()

	if year := tm.Year(); year < 1900 || year > 9999 {
		return nil, fmt.Errorf("invalid year %d", year)
	}

	if offset%60 != 0 || offset < -1440*60 || offset > 1440*60 {
		return nil, fmt.Errorf("invalid time zone offset %ds", offset)
	}

	return NewTime(uint16(tm.Year()), uint8(tm.Month()), uint8(tm.Day()),
		uint8(tm.Hour()), uint8(tm.Minute()), uint8(tm.Second()),
		uint32(tm.Nanosecond()), int16(-offset/60), 0)
}

func (t *Time) String() string {
	return t.Time(nil).Format(time.RFC3339Nano)
}
