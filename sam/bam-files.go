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
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/exascience/fastq-to-ubam/internal"
	"github.com/exascience/fastq-to-ubam/utils"
	"github.com/exascience/fastq-to-ubam/utils/bgzf"
	"github.com/exascience/fastq-to-ubam/utils/nibbles"
)

// BAMReference is an entry in the binary sequence dictionary of a
// BAM file.
type BAMReference struct {
	Name   string
	Length int32
}

// bamMagic is the magic string for the BAM format.
const bamMagic = "BAM\x01"

var errTruncatedBam = errors.New("truncated BAM record")

func readInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func parseBamHeaderReferences(r io.Reader) (references []BAMReference, err error) {
	nRef, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < nRef; i++ {
		lName, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		if lName < 1 {
			return nil, fmt.Errorf("invalid reference name length %v in BAM header", lName)
		}
		name := make([]byte, lName)
		if _, err = io.ReadFull(r, name); err != nil {
			return nil, err
		}
		lRef, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		references = append(references, BAMReference{
			Name:   string(name[:lName-1]),
			Length: lRef,
		})
	}
	return references, nil
}

// ParseBamHeader parses the header of a BAM file, including its binary
// sequence dictionary.
func ParseBamHeader(r io.Reader) (*Header, []BAMReference, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, nil, fmt.Errorf("%v, while reading BAM magic string", err)
	}
	if string(magic) != bamMagic {
		return nil, nil, errors.New("invalid BAM file header")
	}
	lText, err := readInt32(r)
	if err != nil {
		return nil, nil, err
	}
	text := make([]byte, lText)
	if _, err = io.ReadFull(r, text); err != nil {
		return nil, nil, fmt.Errorf("%v, while reading BAM header text", err)
	}
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	hdr, _, err := ParseHeader(bufio.NewReader(bytes.NewReader(text)))
	if err != nil {
		return nil, nil, err
	}
	references, err := parseBamHeaderReferences(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%v, while reading BAM reference dictionary", err)
	}
	return hdr, references, nil
}

func enlarge(out []byte, by int) (int, []byte) {
	index := len(out)
	length := index + by
	for cap(out) < length {
		out = append(out[:cap(out)], 0)
	}
	return index, out[:length]
}

func appendUint16(out []byte, v uint16) []byte {
	index, out := enlarge(out, 2)
	binary.LittleEndian.PutUint16(out[index:], v)
	return out
}

func appendUint32(out []byte, v uint32) []byte {
	index, out := enlarge(out, 4)
	binary.LittleEndian.PutUint32(out[index:], v)
	return out
}

func appendCString(out []byte, s string) []byte {
	return append(append(out, s...), 0)
}

// FormatBam appends the header section of a BAM file to out.
func (hdr *Header) FormatBam(out []byte) []byte {
	out = append(out, bamMagic...)
	lTextIndex := len(out)
	out = append(out, 0, 0, 0, 0)
	out = hdr.Format(out)
	binary.LittleEndian.PutUint32(out[lTextIndex:], uint32(len(out)-lTextIndex-4))
	out = appendUint32(out, uint32(len(hdr.SQ)))
	for _, sq := range hdr.SQ {
		sn := sq["SN"]
		out = appendUint32(out, uint32(len(sn)+1))
		out = appendCString(out, sn)
		ln, _ := strconv.ParseInt(sq["LN"], 10, 32)
		out = appendUint32(out, uint32(ln))
	}
	return out
}

var cigarConsumesReferenceBases = map[byte]int32{'M': 1, 'D': 1, 'N': 1, '=': 1, 'X': 1}

// bin computes the BAI bin of an alignment from its leftmost position
// and the reference span of its CIGAR string. Unplaced reads end up in
// bin 4680.
func bin(aln *Alignment, cigar []CigarOperation) uint16 {
	beg := aln.POS - 1
	end := beg
	if !aln.IsUnmapped() {
		for _, op := range cigar {
			end += cigarConsumesReferenceBases[op.Operation] * op.Length
		}
		if end > beg {
			end--
		}
	}
	for _, level := range [...]struct {
		shift  uint
		offset int32
	}{{14, ((1 << 15) - 1) / 7}, {17, ((1 << 12) - 1) / 7}, {20, ((1 << 9) - 1) / 7}, {23, ((1 << 6) - 1) / 7}, {26, ((1 << 3) - 1) / 7}} {
		if beg>>level.shift == end>>level.shift {
			return uint16(level.offset + (beg >> level.shift))
		}
	}
	return 0
}

const (
	minus1   = 0xFFFFFFFF
	cigarOps = "MIDNSHP=X"
)

func appendBamInt(out []byte, val int64) ([]byte, error) {
	switch {
	case val >= 0 && val <= math.MaxUint8:
		return append(out, 'C', byte(val)), nil
	case val >= math.MinInt8 && val < 0:
		return append(out, 'c', byte(int8(val))), nil
	case val >= 0 && val <= math.MaxUint16:
		return appendUint16(append(out, 'S'), uint16(val)), nil
	case val >= math.MinInt16 && val < 0:
		return appendUint16(append(out, 's'), uint16(int16(val))), nil
	case val >= 0 && val <= math.MaxUint32:
		return appendUint32(append(out, 'I'), uint32(val)), nil
	case val >= math.MinInt32 && val < 0:
		return appendUint32(append(out, 'i'), uint32(int32(val))), nil
	}
	return nil, fmt.Errorf("integer value %v out of range for a BAM tag", val)
}

// formatBamTag appends the binary representation of an optional field
// to out.
func formatBamTag(out []byte, tag utils.Symbol, value interface{}) ([]byte, error) {
	if len(*tag) != 2 {
		return nil, fmt.Errorf("invalid tag name %q", *tag)
	}
	out = append(out, *tag...)
	switch val := value.(type) {
	case byte:
		return append(out, 'A', val), nil
	case int32:
		return appendBamInt(out, int64(val))
	case float32:
		return appendUint32(append(out, 'f'), math.Float32bits(val)), nil
	case string:
		return appendCString(append(out, 'Z'), val), nil
	case ByteArray:
		out = append(out, 'H')
		for _, b := range val {
			out = append(out, "0123456789ABCDEF"[b>>4], "0123456789ABCDEF"[b&0xF])
		}
		return append(out, 0), nil
	case []int8:
		out = appendUint32(append(out, 'B', 'c'), uint32(len(val)))
		for _, v := range val {
			out = append(out, byte(v))
		}
	case []uint8:
		out = appendUint32(append(out, 'B', 'C'), uint32(len(val)))
		out = append(out, val...)
	case []int16:
		out = appendUint32(append(out, 'B', 's'), uint32(len(val)))
		for _, v := range val {
			out = appendUint16(out, uint16(v))
		}
	case []uint16:
		out = appendUint32(append(out, 'B', 'S'), uint32(len(val)))
		for _, v := range val {
			out = appendUint16(out, v)
		}
	case []int32:
		out = appendUint32(append(out, 'B', 'i'), uint32(len(val)))
		for _, v := range val {
			out = appendUint32(out, uint32(v))
		}
	case []uint32:
		out = appendUint32(append(out, 'B', 'I'), uint32(len(val)))
		for _, v := range val {
			out = appendUint32(out, v)
		}
	case []float32:
		out = appendUint32(append(out, 'B', 'f'), uint32(len(val)))
		for _, v := range val {
			out = appendUint32(out, math.Float32bits(v))
		}
	default:
		return nil, fmt.Errorf("unknown BAM alignment tag type %T for tag %v", value, *tag)
	}
	return out, nil
}

func referenceID(dictTable map[string]uint32, name string) (uint32, error) {
	if name == "*" {
		return minus1, nil
	}
	if id, ok := dictTable[name]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("reference %v not in the sequence dictionary", name)
}

// FormatBamAlignment appends the binary BAM record of an alignment to
// out, including its leading block size. Reference names are resolved
// through dictTable; alignments without a reference ("*") need no
// dictionary.
func FormatBamAlignment(aln *Alignment, out []byte, dictTable map[string]uint32) ([]byte, error) {
	if len(aln.QNAME) == 0 || len(aln.QNAME) > 254 {
		return nil, fmt.Errorf("read name %q cannot be stored in a BAM record", aln.QNAME)
	}
	cigar, err := ScanCigarString(aln.CIGAR)
	if err != nil {
		return nil, err
	}
	if len(cigar) > math.MaxUint16 {
		return nil, fmt.Errorf("too many CIGAR operations for read %v", aln.QNAME)
	}
	seq := aln.SEQ
	if seq == "*" {
		seq = ""
	}
	if aln.QUAL != "*" && len(aln.QUAL) != len(seq) {
		return nil, fmt.Errorf("sequence and quality lengths differ for read %v", aln.QNAME)
	}
	refID, err := referenceID(dictTable, aln.RNAME)
	if err != nil {
		return nil, err
	}
	nextRefID := refID
	if aln.RNEXT != "=" {
		if nextRefID, err = referenceID(dictTable, aln.RNEXT); err != nil {
			return nil, err
		}
	}

	blockSizeIndex := len(out)
	out = appendUint32(out, 0)
	out = appendUint32(out, refID)
	out = appendUint32(out, uint32(aln.POS-1))
	out = append(out, uint8(len(aln.QNAME)+1), aln.MAPQ)
	out = appendUint16(out, bin(aln, cigar))
	out = appendUint16(out, uint16(len(cigar)))
	out = appendUint16(out, aln.FLAG)
	out = appendUint32(out, uint32(len(seq)))
	out = appendUint32(out, nextRefID)
	out = appendUint32(out, uint32(aln.PNEXT-1))
	out = appendUint32(out, uint32(aln.TLEN))
	out = appendCString(out, aln.QNAME)
	for _, op := range cigar {
		out = appendUint32(out, uint32(op.Length)<<4|uint32(strings.IndexByte(cigarOps, op.Operation)))
	}

	index, out := enlarge(out, (len(seq)+1)>>1)
	nibbles.Pack(out[index:], seq)

	index, out = enlarge(out, len(seq))
	if aln.QUAL == "*" {
		for i := index; i < len(out); i++ {
			out[i] = 0xFF
		}
	} else {
		for i := 0; i < len(seq); i++ {
			if aln.QUAL[i] < 33 {
				return nil, fmt.Errorf("invalid quality character %q for read %v", aln.QUAL[i], aln.QNAME)
			}
			out[index+i] = aln.QUAL[i] - 33
		}
	}

	for _, entry := range aln.TAGS {
		if out, err = formatBamTag(out, entry.Key, entry.Value); err != nil {
			return nil, err
		}
	}

	binary.LittleEndian.PutUint32(out[blockSizeIndex:], uint32(len(out)-blockSizeIndex-4))
	return out, nil
}

// bamRecord provides bounds-checked access to a binary BAM record.
type bamRecord struct {
	data  []byte
	index int
}

func (r *bamRecord) next(n int) ([]byte, error) {
	if n < 0 || r.index+n > len(r.data) {
		return nil, errTruncatedBam
	}
	b := r.data[r.index : r.index+n]
	r.index += n
	return b, nil
}

func (r *bamRecord) uint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *bamRecord) uint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *bamRecord) cString() (string, error) {
	end := bytes.IndexByte(r.data[r.index:], 0)
	if end < 0 {
		return "", errors.New("missing NUL byte in BAM record")
	}
	s := string(r.data[r.index : r.index+end])
	r.index += end + 1
	return s, nil
}

func (r *bamRecord) array(count int, size int, convert func([]byte)) error {
	for i := 0; i < count; i++ {
		b, err := r.next(size)
		if err != nil {
			return err
		}
		convert(b)
	}
	return nil
}

func (r *bamRecord) integer(typebyte byte) (int32, error) {
	switch typebyte {
	case 'c', 'C':
		b, err := r.next(1)
		if err != nil {
			return 0, err
		}
		if typebyte == 'c' {
			return int32(int8(b[0])), nil
		}
		return int32(b[0]), nil
	case 's', 'S':
		v, err := r.uint16()
		if typebyte == 's' {
			return int32(int16(v)), err
		}
		return int32(v), err
	default:
		v, err := r.uint32()
		if typebyte == 'I' && v > math.MaxInt32 {
			return 0, fmt.Errorf("integer tag value %v out of range", v)
		}
		return int32(v), err
	}
}

func (r *bamRecord) tagValue(typebyte byte) (interface{}, error) {
	switch typebyte {
	case 'A':
		b, err := r.next(1)
		if err != nil {
			return nil, err
		}
		return b[0], nil
	case 'c', 'C', 's', 'S', 'i', 'I':
		return r.integer(typebyte)
	case 'f':
		v, err := r.uint32()
		return math.Float32frombits(v), err
	case 'Z':
		return r.cString()
	case 'H':
		s, err := r.cString()
		if err != nil {
			return nil, err
		}
		var sc StringScanner
		sc.Reset(s)
		value := sc.parseByteArray()
		return value, sc.Err()
	case 'B':
		sub, err := r.next(1)
		if err != nil {
			return nil, err
		}
		n, err := r.uint32()
		if err != nil {
			return nil, err
		}
		count := int(n)
		if count < 0 || count > len(r.data) {
			return nil, errTruncatedBam
		}
		switch sub[0] {
		case 'c':
			result := make([]int8, 0, count)
			err := r.array(count, 1, func(b []byte) { result = append(result, int8(b[0])) })
			return result, err
		case 'C':
			b, err := r.next(count)
			return append([]uint8(nil), b...), err
		case 's':
			result := make([]int16, 0, count)
			err := r.array(count, 2, func(b []byte) { result = append(result, int16(binary.LittleEndian.Uint16(b))) })
			return result, err
		case 'S':
			result := make([]uint16, 0, count)
			err := r.array(count, 2, func(b []byte) { result = append(result, binary.LittleEndian.Uint16(b)) })
			return result, err
		case 'i':
			result := make([]int32, 0, count)
			err := r.array(count, 4, func(b []byte) { result = append(result, int32(binary.LittleEndian.Uint32(b))) })
			return result, err
		case 'I':
			result := make([]uint32, 0, count)
			err := r.array(count, 4, func(b []byte) { result = append(result, binary.LittleEndian.Uint32(b)) })
			return result, err
		case 'f':
			result := make([]float32, 0, count)
			err := r.array(count, 4, func(b []byte) { result = append(result, math.Float32frombits(binary.LittleEndian.Uint32(b))) })
			return result, err
		}
		return nil, fmt.Errorf("invalid numeric array type %q in BAM record", sub[0])
	}
	return nil, fmt.Errorf("invalid tag type %q in BAM record", typebyte)
}

func referenceName(references []BAMReference, id int32) (string, error) {
	if id < 0 {
		return "*", nil
	}
	if int(id) >= len(references) {
		return "", fmt.Errorf("reference ID %v not in the sequence dictionary", id)
	}
	return references[id].Name, nil
}

// ParseBamAlignment parses a binary BAM record, without its leading
// block size, into a freshly allocated alignment.
func ParseBamAlignment(record []byte, references []BAMReference) (*Alignment, error) {
	aln, err := parseBamAlignment(&bamRecord{data: record}, references)
	if err != nil {
		return nil, fmt.Errorf("%v, while parsing BAM record", err)
	}
	return aln, nil
}

func parseBamAlignment(r *bamRecord, references []BAMReference) (*Alignment, error) {
	fixed, err := r.next(32)
	if err != nil {
		return nil, err
	}
	aln := NewAlignment()
	if aln.RNAME, err = referenceName(references, int32(binary.LittleEndian.Uint32(fixed[0:]))); err != nil {
		return nil, err
	}
	aln.POS = int32(binary.LittleEndian.Uint32(fixed[4:])) + 1
	lReadName := int(fixed[8])
	aln.MAPQ = fixed[9]
	nCigarOp := int(binary.LittleEndian.Uint16(fixed[12:]))
	aln.FLAG = binary.LittleEndian.Uint16(fixed[14:])
	lSeq := int(int32(binary.LittleEndian.Uint32(fixed[16:])))
	nextRefID := int32(binary.LittleEndian.Uint32(fixed[20:]))
	if aln.RNEXT, err = referenceName(references, nextRefID); err != nil {
		return nil, err
	}
	if nextRefID >= 0 && aln.RNEXT == aln.RNAME {
		aln.RNEXT = "="
	}
	aln.PNEXT = int32(binary.LittleEndian.Uint32(fixed[24:])) + 1
	aln.TLEN = int32(binary.LittleEndian.Uint32(fixed[28:]))

	name, err := r.next(lReadName)
	if err != nil || lReadName < 1 {
		return nil, errTruncatedBam
	}
	aln.QNAME = string(name[:lReadName-1])

	cigar := make([]CigarOperation, 0, nCigarOp)
	for i := 0; i < nCigarOp; i++ {
		op, err := r.uint32()
		if err != nil {
			return nil, err
		}
		if int(op&0xF) >= len(cigarOps) {
			return nil, fmt.Errorf("invalid CIGAR operation code %v", op&0xF)
		}
		cigar = append(cigar, CigarOperation{Length: int32(op >> 4), Operation: cigarOps[op&0xF]})
	}
	aln.CIGAR = FormatCigar(cigar)

	if lSeq < 0 {
		return nil, fmt.Errorf("invalid sequence length %v", lSeq)
	}
	packed, err := r.next((lSeq + 1) >> 1)
	if err != nil {
		return nil, err
	}
	qual, err := r.next(lSeq)
	if err != nil {
		return nil, err
	}
	if lSeq == 0 {
		aln.SEQ, aln.QUAL = "*", "*"
	} else {
		aln.SEQ = nibbles.Unpack(packed, lSeq)
		if qual[0] == 0xFF {
			aln.QUAL = "*"
		} else {
			q := make([]byte, lSeq)
			for i, b := range qual {
				q[i] = b + 33
			}
			aln.QUAL = string(q)
		}
	}

	for r.index < len(r.data) {
		head, err := r.next(3)
		if err != nil {
			return nil, err
		}
		value, err := r.tagValue(head[2])
		if err != nil {
			return nil, err
		}
		aln.TAGS.Set(utils.Intern(string(head[:2])), value)
	}
	return aln, nil
}

// ReadBamRecord reads the next binary record, without its leading
// block size, into buf. It returns io.EOF if no more records are
// available.
func ReadBamRecord(r io.Reader, buf []byte) ([]byte, error) {
	size, err := readInt32(r)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errTruncatedBam
		}
		return nil, err
	}
	if size < 32 {
		return nil, fmt.Errorf("invalid BAM record size %v", size)
	}
	_, buf = enlarge(buf[:0], int(size))
	if _, err = io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errTruncatedBam
		}
		return nil, err
	}
	return buf, nil
}

// bamReader is an alignmentReader for a BAM InputFile.
type bamReader struct {
	rc         io.Closer
	bgzf       *bgzf.Reader
	references []BAMReference
	data       [][]byte
	err        error
}

func (reader *bamReader) Close() (err error) {
	defer func() {
		if !internal.IsStdStream(reader.rc) {
			internal.Close(reader.rc, &err)
		}
	}()
	return reader.bgzf.Close()
}

func (reader *bamReader) ParseHeader() (hdr *Header, err error) {
	hdr, reader.references, err = ParseBamHeader(reader.bgzf)
	return hdr, err
}

// Err implements the method of the pipeline.Source interface.
func (reader *bamReader) Err() error {
	return reader.err
}

// Prepare implements the method of the pipeline.Source interface.
func (*bamReader) Prepare(_ context.Context) (size int) {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (reader *bamReader) Fetch(size int) (fetched int) {
	reader.data = make([][]byte, 0, size)
	for fetched < size {
		record, err := ReadBamRecord(reader.bgzf, nil)
		if err != nil {
			if err != io.EOF {
				reader.err = err
			}
			break
		}
		reader.data = append(reader.data, record)
		fetched++
	}
	return fetched
}

// Data implements the method of the pipeline.Source interface.
func (reader *bamReader) Data() interface{} {
	return reader.data
}

func (reader *bamReader) ParseAlignment(record []byte) (*Alignment, error) {
	return ParseBamAlignment(record, reader.references)
}

// bamWriter is an alignmentWriter for a BAM OutputFile.
type bamWriter struct {
	dictTable map[string]uint32
	bgzf      *bgzf.Writer
	wc        io.Closer
}

func (writer *bamWriter) Close() (err error) {
	defer func() {
		if !internal.IsStdStream(writer.wc) {
			internal.Close(writer.wc, &err)
		}
	}()
	return writer.bgzf.Close()
}

func (writer *bamWriter) FormatHeader(hdr *Header) error {
	writer.dictTable = make(map[string]uint32, len(hdr.SQ))
	for index, entry := range hdr.SQ {
		writer.dictTable[entry["SN"]] = uint32(index)
	}
	_, err := writer.bgzf.Write(hdr.FormatBam(nil))
	return err
}

func (writer *bamWriter) FormatAlignment(aln *Alignment, out []byte) ([]byte, error) {
	return FormatBamAlignment(aln, out, writer.dictTable)
}

func (writer *bamWriter) Write(p []byte) (int, error) {
	return writer.bgzf.Write(p)
}
