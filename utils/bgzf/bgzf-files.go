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

// Package bgzf implements parallel reading and writing of BGZF files,
// the blocked gzip format underlying BAM files. See
// http://samtools.github.io/hts-specs/SAMv1.pdf - Section 4.1.
package bgzf

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/exascience/pargo/pipeline"
)

// IsGzip determines if the the given byte scanner produces a gzip
// stream. It uses ReadByte and UnreadByte to check only the initial
// byte from the input.
func IsGzip(scanner io.ByteScanner) (bool, error) {
	b, err := scanner.ReadByte()
	if err != nil {
		return false, err
	}
	if err := scanner.UnreadByte(); err != nil {
		return false, err
	}
	return b == 0x1f, nil
}

const (
	// maxBlockSize is the maximum uncompressed size of a BGZF block.
	maxBlockSize = 65536

	// writeBlockSize keeps the compressed size of incompressible
	// blocks within the 16-bit BSIZE field.
	writeBlockSize = 0xff00

	// DefaultCompression selects the default deflate level.
	DefaultCompression = flate.DefaultCompression
)

var (
	blockHeader = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00,
		0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
		0x42, 0x43, 0x02, 0x00, 0x00, 0x00,
	}

	eofMarker = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00,
		0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
		0x42, 0x43, 0x02, 0x00, 0x1b, 0x00,
		0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
)

type (
	// block is one block of data in a BGZF file, either compressed
	// or uncompressed.
	block struct {
		data  []byte
		crc32 uint32
		size  uint32
	}

	// Reader reads in parallel from a BGZF file. Blocks are
	// decompressed concurrently, and delivered in order.
	Reader struct {
		err     error
		r       io.Reader
		gz      *gzip.Reader
		p       pipeline.Pipeline
		w       sync.WaitGroup
		channel chan *block
		ctx     context.Context
		cancel  func()
		data    interface{}
		index   int
		current *block
	}

	readerSource Reader
)

var blockPool = sync.Pool{New: func() interface{} {
	return &block{data: make([]byte, 0, maxBlockSize)}
}}

func (src *readerSource) readBlock() (blk *block, err error) {
	extra := src.gz.Extra
	var slen int
	for i := 0; i+4 <= len(extra); i += 4 + slen {
		slen = int(binary.LittleEndian.Uint16(extra[i+2 : i+4]))
		if extra[i] != 'B' || extra[i+1] != 'C' || slen != 2 {
			continue
		}
		bsize := int(binary.LittleEndian.Uint16(extra[i+4 : i+6]))
		blk = blockPool.Get().(*block)
		blk.data = blk.data[:bsize-len(extra)-19]
		if _, err = io.ReadFull(src.r, blk.data); err != nil {
			return
		}
		var tail [8]byte
		if _, err = io.ReadFull(src.r, tail[:]); err != nil {
			return
		}
		blk.crc32 = binary.LittleEndian.Uint32(tail[0:4])
		blk.size = binary.LittleEndian.Uint32(tail[4:8])
		err = src.gz.Reset(src.r)
		if err == io.EOF {
			if len(blk.data) != 2 || blk.data[0] != 3 || blk.data[1] != 0 || blk.crc32 != 0 || blk.size != 0 {
				err = errors.New("invalid BGZF file: does not end in proper EOF marker")
			}
		} else if err != nil {
			err = fmt.Errorf("%v, while reading a BGZF block", err)
		}
		return
	}
	return nil, errors.New("missing BC extra subfield in BGZF header")
}

// Err implements the corresponding method of pipeline.Source.
func (src *readerSource) Err() error {
	if src.err != io.EOF {
		return src.err
	}
	return nil
}

// Prepare implements the corresponding method of pipeline.Source.
func (src *readerSource) Prepare(_ context.Context) (size int) {
	return -1
}

// Fetch implements the corresponding method of pipeline.Source.
func (src *readerSource) Fetch(size int) (fetched int) {
	if src.err != nil {
		return 0
	}
	blk, err := src.readBlock()
	if err != nil {
		src.err = err
		src.data = nil
		return 0
	}
	src.data = blk
	return 1
}

// Data implements the corresponding method of pipeline.Source.
func (src *readerSource) Data() interface{} {
	return src.data
}

var flateReaderPool sync.Pool

func (bgzf *Reader) inflate(blk *block) *block {
	blockReader := bytes.NewReader(blk.data)
	var flateReader io.ReadCloser
	if pooled := flateReaderPool.Get(); pooled == nil {
		flateReader = flate.NewReader(blockReader)
	} else {
		flateReader = pooled.(io.ReadCloser)
		if err := flateReader.(flate.Resetter).Reset(blockReader, nil); err != nil {
			flateReader = flate.NewReader(blockReader)
		}
	}
	uncompressed := blockPool.Get().(*block)
	uncompressed.data = uncompressed.data[:int(blk.size)]
	if _, err := io.ReadFull(flateReader, uncompressed.data); err == io.EOF {
		bgzf.p.SetErr(io.ErrUnexpectedEOF)
	} else if err != nil {
		bgzf.p.SetErr(err)
	} else if crc32.ChecksumIEEE(uncompressed.data) != blk.crc32 {
		bgzf.p.SetErr(errors.New("invalid CRC-32 value for a data block in a BGZF file"))
	}
	if err := flateReader.Close(); err != nil {
		bgzf.p.SetErr(err)
	}
	flateReaderPool.Put(flateReader)
	blockPool.Put(blk)
	return uncompressed
}

// NewReader returns a Reader for the given flate.Reader.
func NewReader(r flate.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%v, while opening a BGZF reader", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	bgzf := &Reader{
		r:       r,
		gz:      gz,
		channel: make(chan *block, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	bgzf.p.Source((*readerSource)(bgzf))
	bgzf.p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			return bgzf.inflate(data.(*block))
		})),
		pipeline.StrictOrd(pipeline.ReceiveAndFinalize(func(_ int, data interface{}) interface{} {
			select {
			case <-bgzf.ctx.Done():
			case bgzf.channel <- data.(*block):
			}
			return nil
		}, func() {
			close(bgzf.channel)
		})),
	)
	bgzf.w.Add(1)
	go func() {
		defer bgzf.w.Done()
		bgzf.p.Run()
	}()
	return bgzf, nil
}

// Close implements the corresponding method of io.Closer.
func (bgzf *Reader) Close() error {
	bgzf.cancel()
	bgzf.w.Wait()
	if err := bgzf.gz.Close(); err != nil {
		return err
	}
	return bgzf.p.Err()
}

func (bgzf *Reader) fetchBlock() error {
	select {
	case <-bgzf.ctx.Done():
		return bgzf.ctx.Err()
	case blk, ok := <-bgzf.channel:
		if !ok {
			if err := bgzf.p.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		bgzf.index = 0
		bgzf.current = blk
		return nil
	}
}

// Read implements the corresponding method of io.Reader.
func (bgzf *Reader) Read(p []byte) (n int, err error) {
	for bgzf.current == nil || bgzf.index == len(bgzf.current.data) {
		if bgzf.current != nil {
			blockPool.Put(bgzf.current)
			bgzf.current = nil
		}
		if err = bgzf.fetchBlock(); err != nil {
			return
		}
	}
	n = copy(p, bgzf.current.data[bgzf.index:])
	bgzf.index += n
	return
}

type (
	// Writer writes in parallel to a BGZF file. Blocks are compressed
	// concurrently, and written in order.
	Writer struct {
		w       io.Writer
		level   int
		p       pipeline.Pipeline
		wait    sync.WaitGroup
		current *block
		channel chan *block
		done    chan struct{}
		data    interface{}
	}

	writerSource Writer
)

func (*writerSource) Err() error {
	return nil
}

func (src *writerSource) Prepare(_ context.Context) (size int) {
	return -1
}

func (src *writerSource) Fetch(size int) (fetched int) {
	if blk, ok := <-src.channel; ok {
		src.data = blk
		return 1
	}
	src.data = nil
	return 0
}

func (src *writerSource) Data() interface{} {
	return src.data
}

var flateWriterPools sync.Map

func flateWriterPool(level int) *sync.Pool {
	pool, _ := flateWriterPools.LoadOrStore(level, new(sync.Pool))
	return pool.(*sync.Pool)
}

func (bgzf *Writer) deflate(blk *block) *block {
	compressed := blockPool.Get().(*block)
	buf := bytes.NewBuffer(compressed.data[:0])
	buf.Write(blockHeader)

	pool := flateWriterPool(bgzf.level)
	var flateWriter *flate.Writer
	if pooled := pool.Get(); pooled != nil {
		flateWriter = pooled.(*flate.Writer)
		flateWriter.Reset(buf)
	} else {
		var err error
		if flateWriter, err = flate.NewWriter(buf, bgzf.level); err != nil {
			bgzf.p.SetErr(err)
			return compressed
		}
	}
	if _, err := flateWriter.Write(blk.data); err != nil {
		bgzf.p.SetErr(err)
	} else if err := flateWriter.Close(); err != nil {
		bgzf.p.SetErr(err)
	}
	pool.Put(flateWriter)

	var tail [8]byte
	binary.LittleEndian.PutUint32(tail[0:4], crc32.ChecksumIEEE(blk.data))
	binary.LittleEndian.PutUint32(tail[4:8], uint32(len(blk.data)))
	buf.Write(tail[:])
	compressed.data = buf.Bytes()
	binary.LittleEndian.PutUint16(compressed.data[16:18], uint16(len(compressed.data)-1))

	blk.data = blk.data[:0]
	blockPool.Put(blk)
	return compressed
}

// NewWriter returns a Writer for the given io.Writer.
//
// Following zlib, levels range from 1 (BestSpeed) to 9 (BestCompression);
// higher levels typically run slower but compress more. Level 0
// (NoCompression) does not attempt any compression; it only adds the
// necessary DEFLATE framing.
// Level -1 (DefaultCompression) uses the default compression level.
func NewWriter(w io.Writer, level int) *Writer {
	bgzf := &Writer{
		w:       w,
		level:   level,
		current: blockPool.Get().(*block),
		channel: make(chan *block, 1),
		done:    make(chan struct{}),
	}
	bgzf.current.data = bgzf.current.data[:0]
	bgzf.p.Source((*writerSource)(bgzf))
	bgzf.p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			return bgzf.deflate(data.(*block))
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			compressed := data.(*block)
			if _, err := w.Write(compressed.data); err != nil {
				bgzf.p.SetErr(err)
			}
			compressed.data = compressed.data[:0]
			blockPool.Put(compressed)
			return nil
		})),
	)
	bgzf.wait.Add(1)
	go func() {
		defer bgzf.wait.Done()
		defer close(bgzf.done)
		bgzf.p.Run()
	}()
	return bgzf
}

var errWriterTerminated = errors.New("BGZF writer terminated before all blocks were written")

func (bgzf *Writer) sendBlock() error {
	select {
	case bgzf.channel <- bgzf.current:
	case <-bgzf.done:
		if err := bgzf.p.Err(); err != nil {
			return err
		}
		return errWriterTerminated
	}
	bgzf.current = blockPool.Get().(*block)
	bgzf.current.data = bgzf.current.data[:0]
	return nil
}

// Close flushes any pending data, waits for all blocks to be
// written, and terminates the file with the BGZF end-of-file marker.
// It does not close the underlying io.Writer.
func (bgzf *Writer) Close() error {
	var err error
	if len(bgzf.current.data) > 0 {
		err = bgzf.sendBlock()
	}
	close(bgzf.channel)
	bgzf.wait.Wait()
	if err != nil {
		return err
	}
	if err := bgzf.p.Err(); err != nil {
		return err
	}
	_, err = bgzf.w.Write(eofMarker)
	return err
}

// Write implements the corresponding method of io.Writer.
func (bgzf *Writer) Write(p []byte) (n int, err error) {
	n = len(p)
	for len(p) > 0 {
		index := len(bgzf.current.data)
		k := writeBlockSize - index
		if k > len(p) {
			k = len(p)
		}
		bgzf.current.data = append(bgzf.current.data, p[:k]...)
		p = p[k:]
		if len(bgzf.current.data) == writeBlockSize {
			if err := bgzf.sendBlock(); err != nil {
				return n - len(p), err
			}
		}
	}
	return n, nil
}
