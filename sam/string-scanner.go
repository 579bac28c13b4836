// fastq-to-ubam: adapter trimming and conversion of paired FASTQ files to unaligned BAM.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/fastq-to-ubam/blob/master/LICENSE.txt>.

package sam

import (
	"fmt"
	"strconv"
)

// A StringScanner scans tab-separated fields of a single SAM line.
//
// The first error encountered is sticky: once set, all further scan
// operations return zero values. The zero StringScanner is valid and
// empty.
type StringScanner struct {
	index int
	data  string
	err   error
}

// Err returns the first error that occurred during scanning.
func (sc *StringScanner) Err() error {
	return sc.err
}

// Reset initializes the scanner with the given line.
func (sc *StringScanner) Reset(s string) {
	sc.index = 0
	sc.data = s
	sc.err = nil
}

// Len returns the number of bytes that still need to be scanned, or
// 0 if an error occurred.
func (sc *StringScanner) Len() int {
	if sc.err != nil {
		return 0
	}
	return len(sc.data) - sc.index
}

func (sc *StringScanner) setErr(err error) {
	if sc.err == nil {
		sc.err = err
	}
}

func (sc *StringScanner) readUntil(c byte) (s string, found bool) {
	if sc.err != nil {
		return "", false
	}
	start := sc.index
	for end := start; end < len(sc.data); end++ {
		if sc.data[end] == c {
			sc.index = end + 1
			return sc.data[start:end], true
		}
	}
	sc.index = len(sc.data)
	return sc.data[start:], false
}

// readByteUntil reads a single byte that must be followed by c or by
// the end of the line.
func (sc *StringScanner) readByteUntil(c byte) (b byte, found bool) {
	if sc.err != nil {
		return 0, false
	}
	start := sc.index
	if start >= len(sc.data) {
		sc.setErr(fmt.Errorf("unexpected end of line after %q", sc.data))
		return 0, false
	}
	next := start + 1
	switch {
	case next >= len(sc.data):
		sc.index = len(sc.data)
		return sc.data[start], false
	case sc.data[next] != c:
		sc.setErr(fmt.Errorf("unexpected character %q in SAM line", sc.data[next]))
		return 0, false
	default:
		sc.index = next + 1
		return sc.data[start], true
	}
}

// field returns the next mandatory field, which must be followed by
// a tab.
func (sc *StringScanner) field(name string) string {
	if sc.err != nil {
		return ""
	}
	value, ok := sc.readUntil('\t')
	if !ok {
		sc.setErr(fmt.Errorf("missing tab after %v field in SAM alignment line", name))
		return ""
	}
	return value
}

func (sc *StringScanner) int32Field(name string) int32 {
	value := sc.field(name)
	if sc.err != nil {
		return 0
	}
	val, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		sc.setErr(fmt.Errorf("%v, while parsing %v field", err, name))
	}
	return int32(val)
}

func (sc *StringScanner) uintField(name string, bitSize int) uint64 {
	value := sc.field(name)
	if sc.err != nil {
		return 0
	}
	val, err := strconv.ParseUint(value, 10, bitSize)
	if err != nil {
		sc.setErr(fmt.Errorf("%v, while parsing %v field", err, name))
	}
	return val
}
