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
	"sort"
	"strconv"
	"sync"
	"unicode"

	psort "github.com/exascience/pargo/sort"

	"github.com/exascience/fastq-to-ubam/utils"
)

// The SAM file format version this library implements.
const FileFormatVersion = "1.6"

// SortingOrder is the value of the SO tag in the @HD header line.
type SortingOrder string

// Valid values for SortingOrder.
const (
	Unknown    SortingOrder = "unknown"
	Unsorted   SortingOrder = "unsorted"
	Queryname  SortingOrder = "queryname"
	Coordinate SortingOrder = "coordinate"
)

// Header represents the header section of a SAM file.
type Header struct {
	HD         utils.StringMap
	SQ, RG, PG []utils.StringMap
	CO         []string
}

// NewHeader allocates and initializes an empty header.
func NewHeader() *Header { return &Header{} }

// EnsureHD returns the @HD line of the header, creating one with
// the current file format version if necessary.
func (hdr *Header) EnsureHD() utils.StringMap {
	if hdr.HD == nil {
		hdr.HD = utils.StringMap{"VN": FileFormatVersion}
	}
	return hdr.HD
}

// HDSO returns the sorting order recorded in the @HD line, or
// Unknown if none is recorded.
func (hdr *Header) HDSO() SortingOrder {
	if so, found := hdr.HD["SO"]; found {
		return SortingOrder(so)
	}
	return Unknown
}

// SetHDSO sets the sorting order in the @HD line. A grouping order
// (GO) is removed, since SO and GO are mutually exclusive.
func (hdr *Header) SetHDSO(value SortingOrder) {
	hd := hdr.EnsureHD()
	delete(hd, "GO")
	hd["SO"] = string(value)
}

// AddReadGroup appends the @RG line for the given read group.
func (hdr *Header) AddReadGroup(rg *ReadGroup) {
	hdr.RG = append(hdr.RG, rg.Record())
}

// AddProgram appends a @PG line. The PP tag is set to the ID of the
// previous @PG line, if any.
func (hdr *Header) AddProgram(id, name, version, commandLine string) {
	record := utils.StringMap{"ID": id, "PN": name, "VN": version}
	if commandLine != "" {
		record["CL"] = commandLine
	}
	if n := len(hdr.PG); n > 0 {
		record["PP"] = hdr.PG[n-1]["ID"]
	}
	hdr.PG = append(hdr.PG, record)
}

// Alignment represents one alignment line of a SAM file. Optional
// fields are stored in TAGS, keyed by interned tag names.
type Alignment struct {
	QNAME string
	FLAG  uint16
	RNAME string
	POS   int32
	MAPQ  byte
	CIGAR string
	RNEXT string
	PNEXT int32
	TLEN  int32
	SEQ   string
	QUAL  string
	TAGS  utils.SmallMap
}

// RG is the symbol for the read group tag.
var RG = utils.Intern("RG")

// NewAlignment allocates an alignment with the placeholder values
// the SAM format prescribes for unaligned reads.
func NewAlignment() *Alignment {
	return &Alignment{
		RNAME: "*",
		CIGAR: "*",
		RNEXT: "*",
		TAGS:  make(utils.SmallMap, 0, 4),
	}
}

// RG returns the read group ID of the alignment, and whether it was
// set.
func (aln *Alignment) RG() (string, bool) {
	if rg, ok := aln.TAGS.Get(RG); ok {
		id, ok := rg.(string)
		return id, ok
	}
	return "", false
}

// SetRG sets the read group ID of the alignment.
func (aln *Alignment) SetRG(rg string) {
	aln.TAGS.Set(RG, rg)
}

// Bitwise flags in the FLAG field of an alignment.
const (
	Multiple      = 0x1
	Proper        = 0x2
	Unmapped      = 0x4
	NextUnmapped  = 0x8
	Reversed      = 0x10
	NextReversed  = 0x20
	First         = 0x40
	Last          = 0x80
	Secondary     = 0x100
	QCFailed      = 0x200
	Duplicate     = 0x400
	Supplementary = 0x800
)

func (aln *Alignment) IsMultiple() bool     { return (aln.FLAG & Multiple) != 0 }
func (aln *Alignment) IsUnmapped() bool     { return (aln.FLAG & Unmapped) != 0 }
func (aln *Alignment) IsNextUnmapped() bool { return (aln.FLAG & NextUnmapped) != 0 }
func (aln *Alignment) IsFirst() bool        { return (aln.FLAG & First) != 0 }
func (aln *Alignment) IsLast() bool         { return (aln.FLAG & Last) != 0 }

// FlagEvery reports whether all bits of flag are set.
func (aln *Alignment) FlagEvery(flag uint16) bool { return (aln.FLAG & flag) == flag }

// QNAMELess compares the QNAMEs of two alignments in byte order.
func QNAMELess(aln1, aln2 *Alignment) bool {
	return aln1.QNAME < aln2.QNAME
}

func mateRank(aln *Alignment) int {
	switch {
	case aln.IsFirst() && !aln.IsLast():
		return 0
	case aln.IsLast() && !aln.IsFirst():
		return 2
	default:
		return 1
	}
}

// QuerynameLess orders alignments by QNAME in byte order. Alignments
// with equal QNAMEs are ordered first-of-pair before second-of-pair,
// so that mates always appear in the same order.
func QuerynameLess(aln1, aln2 *Alignment) bool {
	switch {
	case aln1.QNAME < aln2.QNAME:
		return true
	case aln2.QNAME < aln1.QNAME:
		return false
	default:
		return mateRank(aln1) < mateRank(aln2)
	}
}

type (
	// By is a less-than predicate for alignments.
	By func(aln1, aln2 *Alignment) bool

	// AlignmentSorter implements psort.StableSorter for slices of
	// alignments.
	AlignmentSorter struct {
		alns []*Alignment
		by   By
	}
)

// SequentialSort implements the method of psort.StableSorter.
func (s AlignmentSorter) SequentialSort(i, j int) {
	alns, by := s.alns[i:j], s.by
	sort.SliceStable(alns, func(i, j int) bool {
		return by(alns[i], alns[j])
	})
}

// NewTemp implements the method of psort.StableSorter.
func (s AlignmentSorter) NewTemp() psort.StableSorter {
	return AlignmentSorter{make([]*Alignment, len(s.alns)), s.by}
}

// Len implements the method of psort.StableSorter.
func (s AlignmentSorter) Len() int {
	return len(s.alns)
}

// Less implements the method of psort.StableSorter.
func (s AlignmentSorter) Less(i, j int) bool {
	return s.by(s.alns[i], s.alns[j])
}

// Assign implements the method of psort.StableSorter.
func (s AlignmentSorter) Assign(p psort.StableSorter) func(i, j, len int) {
	dst, src := s.alns, p.(AlignmentSorter).alns
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

// ParallelStableSort sorts the given alignments in parallel,
// preserving the relative order of alignments that compare equal.
func (by By) ParallelStableSort(alns []*Alignment) {
	psort.StableSort(AlignmentSorter{alns, by})
}

// Sam represents a complete SAM file in memory. It implements
// AlignmentSink.
type Sam struct {
	Header     *Header
	Alignments []*Alignment
}

// NewSam allocates and initializes an empty SAM value.
func NewSam() *Sam { return &Sam{Header: NewHeader()} }

// WriteHeader implements the method of AlignmentSink.
func (sam *Sam) WriteHeader(hdr *Header) error {
	sam.Header = hdr
	return nil
}

// WriteAlignment implements the method of AlignmentSink.
func (sam *Sam) WriteAlignment(aln *Alignment) error {
	sam.Alignments = append(sam.Alignments, aln)
	return nil
}

// Close implements the method of AlignmentSink.
func (sam *Sam) Close() error { return nil }

// CigarOperations lists the valid CIGAR operations, in upper and
// lower case.
const CigarOperations = "MmIiDdNnSsHhPpXx="

var cigarOperationsTable = make(map[byte]byte, len(CigarOperations))

func init() {
	for _, c := range CigarOperations {
		cigarOperationsTable[byte(c)] = byte(unicode.ToUpper(c))
	}
}

func isDigit(char byte) bool { return ('0' <= char) && (char <= '9') }

// CigarOperation is one entry in a CIGAR string.
type CigarOperation struct {
	Length    int32
	Operation byte
}

func newCigarOperation(cigar string, i int) (op CigarOperation, j int, err error) {
	for j = i; j < len(cigar); j++ {
		if char := cigar[j]; !isDigit(char) {
			length, nerr := strconv.ParseInt(cigar[i:j], 10, 32)
			if nerr != nil {
				return op, j, nerr
			}
			operation := cigarOperationsTable[char]
			if operation == 0 {
				return op, j, fmt.Errorf("invalid CIGAR operation %c", char)
			}
			return CigarOperation{int32(length), operation}, j + 1, nil
		}
	}
	return op, j, fmt.Errorf("missing CIGAR operation after length %v", cigar[i:])
}

var (
	cigarSliceCache      = map[string][]CigarOperation{"*": {}}
	cigarSliceCacheMutex = sync.RWMutex{}
)

func slowScanCigarString(cigar string) (slice []CigarOperation, err error) {
	for i := 0; i < len(cigar); {
		cigarOperation, j, err := newCigarOperation(cigar, i)
		if err != nil {
			return nil, fmt.Errorf("%v, while scanning CIGAR string %v", err, cigar)
		}
		slice = append(slice, cigarOperation)
		i = j
	}
	cigarSliceCacheMutex.Lock()
	if value, found := cigarSliceCache[cigar]; found {
		slice = value
	} else {
		cigarSliceCache[cigar] = slice
	}
	cigarSliceCacheMutex.Unlock()
	return slice, nil
}

// ScanCigarString converts a CIGAR string into a slice of
// CigarOperation values. Results are cached, so the returned slice
// must not be modified.
func ScanCigarString(cigar string) ([]CigarOperation, error) {
	cigarSliceCacheMutex.RLock()
	value, found := cigarSliceCache[cigar]
	cigarSliceCacheMutex.RUnlock()
	if found {
		return value, nil
	}
	return slowScanCigarString(cigar)
}

// FormatCigar converts CIGAR operations back into a CIGAR string.
func FormatCigar(ops []CigarOperation) string {
	if len(ops) == 0 {
		return "*"
	}
	var buf []byte
	for _, op := range ops {
		buf = append(strconv.AppendInt(buf, int64(op.Length), 10), op.Operation)
	}
	return string(buf)
}
