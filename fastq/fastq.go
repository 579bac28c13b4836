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

// Package fastq reads FASTQ files, plain or gzip-compressed, as
// batches of records for pargo pipelines.
package fastq

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrShort is returned when a FASTQ file ends in the middle of a
	// record.
	ErrShort = errors.New("short FASTQ file")

	// ErrInvalid is returned when a record has a malformed identifier
	// or separator line.
	ErrInvalid = errors.New("invalid FASTQ record")

	// ErrLengthMismatch is returned when the sequence and quality
	// lines of a record differ in length.
	ErrLengthMismatch = errors.New("sequence and quality lengths differ")
)

// A FormatError describes a malformed FASTQ record. It wraps one of
// ErrShort, ErrInvalid, or ErrLengthMismatch.
type FormatError struct {
	File string
	Line int
	Read string
	Err  error
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Read != "" {
		fmt.Fprintf(&b, " in read %v", e.Read)
	}
	if e.File != "" {
		fmt.Fprintf(&b, " in file %v", e.File)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %v", e.Line)
	}
	return b.String()
}

func (e *FormatError) Unwrap() error { return e.Err }

// Read is a single FASTQ record: the identifier line including its
// leading '@', the sequence, the separator line, and the qualities.
type Read struct {
	ID, Seq, Plus, Qual string
	// Line is the line number of the identifier line in its file, or
	// 0 if unknown.
	Line int
}

// Validate checks the shape of the record.
func (r *Read) Validate() error {
	switch {
	case !strings.HasPrefix(r.ID, "@"):
		return &FormatError{Line: r.Line, Read: r.ID, Err: fmt.Errorf("%w: identifier line does not start with @", ErrInvalid)}
	case !strings.HasPrefix(r.Plus, "+"):
		return &FormatError{Line: r.Line, Read: r.ID, Err: fmt.Errorf("%w: separator line does not start with +", ErrInvalid)}
	case strings.IndexByte(r.Seq, '\t') >= 0 || strings.IndexByte(r.Qual, '\t') >= 0:
		return &FormatError{Line: r.Line, Read: r.ID, Err: fmt.Errorf("%w: tab in sequence or quality line", ErrInvalid)}
	case len(r.Seq) != len(r.Qual):
		return &FormatError{Line: r.Line, Read: r.ID, Err: fmt.Errorf("%w: %v bases, %v qualities", ErrLengthMismatch, len(r.Seq), len(r.Qual))}
	}
	return nil
}

// Format appends the record in FASTQ text format to out.
func (r *Read) Format(out []byte) []byte {
	out = append(append(out, r.ID...), '\n')
	out = append(append(out, r.Seq...), '\n')
	out = append(append(out, r.Plus...), '\n')
	return append(append(out, r.Qual...), '\n')
}
