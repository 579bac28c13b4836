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
	"container/heap"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/willf/bitset"

	"github.com/exascience/fastq-to-ubam/internal"
)

// DefaultMaxRecordsInMemory is the default number of alignments a
// Sorter buffers before spilling a sorted run to disk.
const DefaultMaxRecordsInMemory = 1 << 22

// A Sorter sorts an unbounded number of alignments. Alignments are
// buffered in memory; whenever the buffer reaches its limit, it is
// sorted with a parallel stable sort and spilled to a temporary run
// file as snappy-compressed SAM lines. Sort then merges all runs with
// the remaining in-memory alignments.
//
// SAM text keeps every field byte for byte, so the merged output does
// not depend on how many runs were spilled. Fields must not contain
// tabs or newlines.
//
// Add may be called concurrently. Sort and Close must not be called
// concurrently with any other method.
type Sorter struct {
	mutex      sync.Mutex
	by         By
	dir        string
	maxRecords int
	buffer     []*Alignment
	runs       []string
	count      int
	buf        []byte
}

// NewSorter returns a Sorter ordering alignments by the given
// predicate. Run files are created in dir, or in the default
// temporary directory if dir is empty. If maxRecordsInMemory is not
// positive, DefaultMaxRecordsInMemory is used.
func NewSorter(by By, dir string, maxRecordsInMemory int) *Sorter {
	if dir == "" {
		dir = os.TempDir()
	}
	if maxRecordsInMemory <= 0 {
		maxRecordsInMemory = DefaultMaxRecordsInMemory
	}
	return &Sorter{by: by, dir: dir, maxRecords: maxRecordsInMemory}
}

// Add adds a batch of alignments to the sorter.
func (s *Sorter) Add(alns []*Alignment) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.count += len(alns)
	for len(alns) > 0 {
		k := s.maxRecords - len(s.buffer)
		if k > len(alns) {
			k = len(alns)
		}
		s.buffer = append(s.buffer, alns[:k]...)
		alns = alns[k:]
		if len(s.buffer) >= s.maxRecords {
			if err := s.spill(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Len returns the number of alignments added so far.
func (s *Sorter) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.count
}

// Runs returns the number of runs spilled to disk so far.
func (s *Sorter) Runs() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.runs)
}

func (s *Sorter) spill() (err error) {
	s.by.ParallelStableSort(s.buffer)
	name := filepath.Join(s.dir, fmt.Sprintf("fastq-to-ubam-%v.run", uuid.New()))
	file, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("%v, while creating sort run file", err)
	}
	s.runs = append(s.runs, name)
	defer internal.Close(file, &err)
	writer := snappy.NewBufferedWriter(file)
	for _, aln := range s.buffer {
		if s.buf, err = aln.Format(s.buf[:0]); err != nil {
			return fmt.Errorf("%v, while spilling read %v to sort run %v", err, aln.QNAME, name)
		}
		if _, err = writer.Write(s.buf); err != nil {
			return fmt.Errorf("%v, while writing sort run %v", err, name)
		}
	}
	if err = writer.Close(); err != nil {
		return fmt.Errorf("%v, while writing sort run %v", err, name)
	}
	for i := range s.buffer {
		s.buffer[i] = nil
	}
	s.buffer = s.buffer[:0]
	return nil
}

// A run delivers alignments in sorted order, either from a spilled
// run file or from the in-memory buffer.
type run struct {
	file    *os.File
	reader  *bufio.Reader
	alns    []*Alignment
	current *Alignment
}

func (r *run) advance() (ok bool, err error) {
	if r.reader == nil {
		if len(r.alns) == 0 {
			r.current = nil
			return false, nil
		}
		r.current, r.alns = r.alns[0], r.alns[1:]
		return true, nil
	}
	line, err := r.reader.ReadString('\n')
	if err == io.EOF && line == "" {
		r.current = nil
		return false, nil
	}
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return false, fmt.Errorf("%v, while reading sort run %v", err, r.file.Name())
	}
	if r.current, err = ParseAlignment(line[:len(line)-1]); err != nil {
		return false, fmt.Errorf("%v, in sort run %v", err, r.file.Name())
	}
	return true, nil
}

func (r *run) close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// runHeap orders run indices by their current alignments. Ties are
// broken by run index, which keeps the merge stable.
type runHeap struct {
	runs    []*run
	indices []int
	by      By
}

func (h *runHeap) Len() int { return len(h.indices) }

func (h *runHeap) Less(i, j int) bool {
	ri, rj := h.indices[i], h.indices[j]
	a, b := h.runs[ri].current, h.runs[rj].current
	if h.by(a, b) {
		return true
	}
	if h.by(b, a) {
		return false
	}
	return ri < rj
}

func (h *runHeap) Swap(i, j int) { h.indices[i], h.indices[j] = h.indices[j], h.indices[i] }

func (h *runHeap) Push(x interface{}) { h.indices = append(h.indices, x.(int)) }

func (h *runHeap) Pop() interface{} {
	n := len(h.indices) - 1
	x := h.indices[n]
	h.indices = h.indices[:n]
	return x
}

// Sort passes all alignments added to the sorter to emit, in sorted
// order. It stops at the first error returned by emit. Run files are
// removed before Sort returns.
func (s *Sorter) Sort(emit func(*Alignment) error) (err error) {
	defer func() {
		if nerr := s.removeRuns(); err == nil {
			err = nerr
		}
	}()
	s.by.ParallelStableSort(s.buffer)
	if len(s.runs) == 0 {
		for _, aln := range s.buffer {
			if err := emit(aln); err != nil {
				return err
			}
		}
		return nil
	}

	runs := make([]*run, 0, len(s.runs)+1)
	live := bitset.New(uint(len(s.runs) + 1))
	defer func() {
		for i, ok := live.NextSet(0); ok; i, ok = live.NextSet(i + 1) {
			if nerr := runs[i].close(); err == nil {
				err = nerr
			}
		}
	}()
	for _, name := range s.runs {
		file, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("%v, while opening sort run", err)
		}
		live.Set(uint(len(runs)))
		runs = append(runs, &run{file: file, reader: bufio.NewReaderSize(snappy.NewReader(file), 64*1024)})
	}
	runs = append(runs, &run{alns: s.buffer})
	live.Set(uint(len(runs) - 1))

	h := &runHeap{runs: runs, by: s.by}
	for i, r := range runs {
		ok, err := r.advance()
		if err != nil {
			return err
		}
		if ok {
			h.indices = append(h.indices, i)
		} else {
			live.Clear(uint(i))
			if err := r.close(); err != nil {
				return err
			}
		}
	}
	heap.Init(h)
	for h.Len() > 0 {
		i := h.indices[0]
		r := runs[i]
		if err := emit(r.current); err != nil {
			return err
		}
		ok, err := r.advance()
		if err != nil {
			return err
		}
		if ok {
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
			live.Clear(uint(i))
			if err := r.close(); err != nil {
				return err
			}
		}
	}
	if !live.None() {
		return fmt.Errorf("%v sort runs not fully merged", live.Count())
	}
	s.buffer = nil
	return nil
}

func (s *Sorter) removeRuns() (err error) {
	for _, name := range s.runs {
		if nerr := os.Remove(name); nerr != nil && !os.IsNotExist(nerr) && err == nil {
			err = nerr
		}
	}
	s.runs = nil
	return err
}

// Close removes any run files that have not been merged yet. It is
// safe to call Close after Sort.
func (s *Sorter) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.buffer = nil
	return s.removeRuns()
}
