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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/fastq-to-ubam/internal"
	"github.com/exascience/fastq-to-ubam/utils/bgzf"
)

// AlignmentSink receives a header followed by alignments in output
// order.
type AlignmentSink interface {
	WriteHeader(hdr *Header) error
	WriteAlignment(aln *Alignment) error
	Close() error
}

type (
	// alignmentReader is a common interface for reading both SAM and
	// BAM files.
	alignmentReader interface {
		ParseHeader() (*Header, error)
		ParseAlignment([]byte) (*Alignment, error)
		pipeline.Source
		io.Closer
	}

	// InputFile represents a SAM or BAM file for input. It is a
	// pipeline.Source that produces batches of raw records; use
	// ParseAlignment, or the BytesToAlignment filter, to turn them into
	// alignments.
	InputFile struct {
		reader alignmentReader
	}
)

// Close closes the SAM/BAM input file.
func (f *InputFile) Close() error {
	return f.reader.Close()
}

// ParseHeader reads the header from a SAM or BAM file. It must be
// called before any records are fetched.
func (f *InputFile) ParseHeader() (*Header, error) {
	return f.reader.ParseHeader()
}

// ParseAlignment parses one raw record: a line for SAM files, or a
// binary record for BAM files.
func (f *InputFile) ParseAlignment(record []byte) (*Alignment, error) {
	return f.reader.ParseAlignment(record)
}

// Err implements the method of the pipeline.Source interface.
func (f *InputFile) Err() error {
	return f.reader.Err()
}

// Prepare implements the method of the pipeline.Source interface.
func (f *InputFile) Prepare(ctx context.Context) int {
	return f.reader.Prepare(ctx)
}

// Fetch implements the method of the pipeline.Source interface.
func (f *InputFile) Fetch(size int) int {
	return f.reader.Fetch(size)
}

// Data implements the method of the pipeline.Source interface. It
// returns a [][]byte batch of raw records.
func (f *InputFile) Data() interface{} {
	return f.reader.Data()
}

// BytesToAlignment returns a pargo pipeline.Filter that parses
// batches of raw records from the given file into []*Alignment
// batches.
func BytesToAlignment(reader *InputFile) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			records := data.([][]byte)
			alns := make([]*Alignment, 0, len(records))
			for _, record := range records {
				aln, err := reader.ParseAlignment(record)
				if err != nil {
					p.SetErr(fmt.Errorf("%v, while parsing alignment record", err))
					return alns
				}
				alns = append(alns, aln)
			}
			return alns
		}
		return
	}
}

// Scan parses the alignments of the file in parallel and passes them
// to emit in file order. ParseHeader must have been called before.
func (f *InputFile) Scan(emit func(*Alignment) error) error {
	var p pipeline.Pipeline
	p.Source(f)
	p.SetVariableBatchSize(512, 4096)
	p.Add(
		pipeline.LimitedPar(0, BytesToAlignment(f)),
		pipeline.StrictOrd(func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
			receiver = func(_ int, data interface{}) interface{} {
				for _, aln := range data.([]*Alignment) {
					if err := emit(aln); err != nil {
						p.SetErr(err)
						break
					}
				}
				return nil
			}
			return
		}),
	)
	p.Run()
	return p.Err()
}

// ReadSam reads a complete SAM or BAM file into memory.
func ReadSam(name string) (sam *Sam, err error) {
	input, err := Open(name)
	if err != nil {
		return nil, err
	}
	defer internal.Close(input, &err)
	sam = NewSam()
	if sam.Header, err = input.ParseHeader(); err != nil {
		return nil, fmt.Errorf("%v, while reading header of %v", err, name)
	}
	if err = input.Scan(sam.WriteAlignment); err != nil {
		return nil, fmt.Errorf("%v, while reading %v", err, name)
	}
	return sam, nil
}

// samReader is an alignmentReader for a SAM InputFile.
type samReader struct {
	rc   io.Closer
	buf  *bufio.Reader
	data [][]byte
	err  error
}

func (reader *samReader) Close() error {
	if internal.IsStdStream(reader.rc) {
		return nil
	}
	return reader.rc.Close()
}

func (reader *samReader) ParseHeader() (*Header, error) {
	hdr, _, err := ParseHeader(reader.buf)
	return hdr, err
}

func (reader *samReader) ParseAlignment(record []byte) (*Alignment, error) {
	return ParseAlignment(string(record))
}

// Err implements the method of the pipeline.Source interface.
func (reader *samReader) Err() error {
	return reader.err
}

// Prepare implements the method of the pipeline.Source interface.
func (*samReader) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (reader *samReader) Fetch(size int) (fetched int) {
	reader.data = make([][]byte, 0, size)
	for fetched < size {
		line, err := reader.buf.ReadBytes('\n')
		if n := len(line); n > 0 && line[n-1] == '\n' {
			line = line[:n-1]
		}
		if len(line) > 0 {
			reader.data = append(reader.data, line)
			fetched++
		}
		if err != nil {
			if err != io.EOF {
				reader.err = err
			}
			break
		}
	}
	return fetched
}

// Data implements the method of the pipeline.Source interface.
func (reader *samReader) Data() interface{} {
	return reader.data
}

type (
	// alignmentWriter is a common interface for writing both SAM and
	// BAM files.
	alignmentWriter interface {
		FormatHeader(hdr *Header) error
		FormatAlignment(aln *Alignment, out []byte) ([]byte, error)
		io.WriteCloser
	}

	// OutputFile represents a SAM or BAM file for output. It
	// implements AlignmentSink.
	OutputFile struct {
		writer alignmentWriter
		buf    []byte
	}
)

// Close flushes and closes a SAM or BAM output file.
func (f *OutputFile) Close() error {
	internal.ReleaseByteBuffer(f.buf)
	f.buf = nil
	return f.writer.Close()
}

// WriteHeader implements the method of AlignmentSink.
func (f *OutputFile) WriteHeader(hdr *Header) error {
	return f.writer.FormatHeader(hdr)
}

// WriteAlignment implements the method of AlignmentSink.
func (f *OutputFile) WriteAlignment(aln *Alignment) (err error) {
	if f.buf, err = f.writer.FormatAlignment(aln, f.buf[:0]); err != nil {
		return err
	}
	_, err = f.writer.Write(f.buf)
	return err
}

// samWriter is an alignmentWriter for a SAM OutputFile.
type samWriter struct {
	wc io.WriteCloser
	*bufio.Writer
}

func newSamWriter(wc io.WriteCloser) *samWriter {
	return &samWriter{wc: wc, Writer: bufio.NewWriterSize(wc, 1<<16)}
}

func (writer *samWriter) Close() (err error) {
	defer func() {
		if !internal.IsStdStream(writer.wc) {
			internal.Close(writer.wc, &err)
		}
	}()
	return writer.Flush()
}

func (writer *samWriter) FormatHeader(hdr *Header) error {
	_, err := writer.Writer.Write(hdr.Format(nil))
	return err
}

func (writer *samWriter) FormatAlignment(aln *Alignment, out []byte) ([]byte, error) {
	return aln.Format(out)
}

// SAM file extensions.
const (
	SamExt  = ".sam"
	BamExt  = ".bam"
	cramExt = ".cram"
)

// Open opens a SAM or BAM file for input.
//
// If the filename extension is not .bam, then .sam is always assumed.
// If the name is "/dev/stdin", then the input is read from os.Stdin.
func Open(name string) (*InputFile, error) {
	var file *os.File
	if name == "/dev/stdin" {
		file = os.Stdin
	} else {
		var err error
		if file, err = os.Open(name); err != nil {
			return nil, err
		}
	}
	switch filepath.Ext(name) {
	case BamExt:
		reader, err := bgzf.NewReader(bufio.NewReader(file))
		if err != nil {
			if !internal.IsStdStream(file) {
				_ = file.Close()
			}
			return nil, fmt.Errorf("%v, while opening BAM file %v", err, name)
		}
		return &InputFile{reader: &bamReader{rc: file, bgzf: reader}}, nil
	case cramExt:
		return nil, fmt.Errorf("CRAM format not supported when opening %v", name)
	default:
		return &InputFile{reader: &samReader{rc: file, buf: bufio.NewReaderSize(file, 1<<16)}}, nil
	}
}

// Create creates a SAM or BAM file for output.
//
// If the filename extension is .bam, the output is BGZF-compressed BAM,
// otherwise it is SAM text. If the name is "/dev/stdout", then the
// output is written to os.Stdout.
func Create(name string) (*OutputFile, error) {
	if filepath.Ext(name) == cramExt {
		return nil, fmt.Errorf("CRAM format not supported when creating %v", name)
	}
	var file *os.File
	if name == "/dev/stdout" {
		file = os.Stdout
	} else {
		var err error
		if file, err = os.Create(name); err != nil {
			return nil, err
		}
	}
	out := &OutputFile{buf: internal.ReserveByteBuffer()}
	if filepath.Ext(name) == BamExt {
		out.writer = &bamWriter{wc: file, bgzf: bgzf.NewWriter(file, bgzf.DefaultCompression)}
	} else {
		out.writer = newSamWriter(file)
	}
	return out, nil
}
