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

package fastq

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"

	"github.com/exascience/fastq-to-ubam/internal"
	"github.com/exascience/fastq-to-ubam/utils/bgzf"
)

const maxLineLength = 16 << 20

// Reader is a pipeline.Source that produces batches of FASTQ records
// as []Read values. Gzip-compressed input, including BGZF, is
// detected by its magic bytes and decompressed in parallel.
type Reader struct {
	name    string
	file    *os.File
	gz      *pgzip.Reader
	scanner *bufio.Scanner
	line    int
	records int
	data    []Read
	err     error
}

// Open opens a FASTQ file for reading. If the name is "/dev/stdin",
// records are read from os.Stdin.
func Open(name string) (*Reader, error) {
	file := os.Stdin
	if name != "/dev/stdin" {
		var err error
		if file, err = os.Open(name); err != nil {
			return nil, err
		}
	}
	reader := &Reader{name: name, file: file}
	buffered := bufio.NewReaderSize(file, 1<<16)
	isGzip, err := bgzf.IsGzip(buffered)
	if err != nil && err != io.EOF {
		_ = reader.Close()
		return nil, fmt.Errorf("%v, while opening FASTQ file %v", err, name)
	}
	var input io.Reader = buffered
	if isGzip {
		if reader.gz, err = pgzip.NewReader(buffered); err != nil {
			_ = reader.Close()
			return nil, fmt.Errorf("%v, while opening gzipped FASTQ file %v", err, name)
		}
		input = reader.gz
	}
	reader.scanner = bufio.NewScanner(input)
	reader.scanner.Buffer(make([]byte, 0, 1<<16), maxLineLength)
	return reader, nil
}

// Name returns the name the reader was opened with.
func (r *Reader) Name() string { return r.name }

// Records returns the number of records fetched so far.
func (r *Reader) Records() int { return r.records }

// Close closes the FASTQ file.
func (r *Reader) Close() (err error) {
	if r.gz != nil {
		err = r.gz.Close()
	}
	if !internal.IsStdStream(r.file) {
		internal.Close(r.file, &err)
	}
	return err
}

func (r *Reader) scan() (string, bool) {
	if !r.scanner.Scan() {
		return "", false
	}
	r.line++
	return strings.TrimSuffix(r.scanner.Text(), "\r"), true
}

func (r *Reader) formatError(line int, id string, err error) error {
	return &FormatError{File: r.name, Line: line, Read: id, Err: err}
}

// next reads the next record. It returns io.EOF at the end of the
// input.
func (r *Reader) next(read *Read) error {
	var id string
	for {
		line, ok := r.scan()
		if !ok {
			if err := r.scanner.Err(); err != nil {
				return fmt.Errorf("%v, while reading FASTQ file %v", err, r.name)
			}
			return io.EOF
		}
		if line != "" {
			id = line
			break
		}
	}
	read.ID, read.Line = id, r.line
	if id[0] != '@' {
		return r.formatError(read.Line, "", fmt.Errorf("%w: identifier line does not start with @", ErrInvalid))
	}
	lines := [...]*string{&read.Seq, &read.Plus, &read.Qual}
	for _, field := range lines {
		line, ok := r.scan()
		if !ok {
			if err := r.scanner.Err(); err != nil {
				return fmt.Errorf("%v, while reading FASTQ file %v", err, r.name)
			}
			return r.formatError(read.Line, id, ErrShort)
		}
		*field = line
	}
	if !strings.HasPrefix(read.Plus, "+") {
		return r.formatError(read.Line, id, fmt.Errorf("%w: separator line does not start with +", ErrInvalid))
	}
	return nil
}

// Err implements the method of the pipeline.Source interface.
func (r *Reader) Err() error {
	return r.err
}

// Prepare implements the method of the pipeline.Source interface.
func (r *Reader) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (r *Reader) Fetch(size int) (fetched int) {
	r.data = make([]Read, 0, size)
	if r.err != nil {
		return 0
	}
	for fetched < size {
		var read Read
		if err := r.next(&read); err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
			}
			break
		}
		r.data = append(r.data, read)
		fetched++
	}
	r.records += fetched
	return fetched
}

// Data implements the method of the pipeline.Source interface.
func (r *Reader) Data() interface{} {
	return r.data
}
