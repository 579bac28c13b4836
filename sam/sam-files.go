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
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/exascience/fastq-to-ubam/internal"
	"github.com/exascience/fastq-to-ubam/utils"
)

// ByteArray is the value type of optional fields of type H.
type ByteArray []byte

// ParseHeaderField parses a TAG:VALUE field of a header line.
func (sc *StringScanner) ParseHeaderField() (tag, value string) {
	if sc.err != nil {
		return "", ""
	}
	tag, ok := sc.readUntil(':')
	if !ok || len(tag) != 2 {
		sc.setErr(fmt.Errorf("invalid field tag %q in SAM header line", tag))
		return "", ""
	}
	value, _ = sc.readUntil('\t')
	return tag, value
}

// ParseHeaderLine parses the fields of a header line after its
// record type code.
func (sc *StringScanner) ParseHeaderLine() utils.StringMap {
	record := make(utils.StringMap)
	for sc.Len() > 0 {
		tag, value := sc.ParseHeaderField()
		if sc.err != nil {
			break
		}
		if !record.SetUniqueEntry(tag, value) {
			sc.setErr(fmt.Errorf("duplicate field tag %v in SAM header line", tag))
			break
		}
	}
	return record
}

// ParseHeader parses the header section of a SAM file. It stops at
// the first line that does not start with '@', which remains unread.
func ParseHeader(reader *bufio.Reader) (hdr *Header, lines int, err error) {
	hdr = NewHeader()
	var sc StringScanner
	for {
		switch data, err := reader.Peek(1); {
		case err == io.EOF:
			return hdr, lines, nil
		case err != nil:
			return hdr, lines, err
		case data[0] != '@':
			return hdr, lines, nil
		}
		line, err := reader.ReadString('\n')
		switch {
		case err == nil:
			line = line[:len(line)-1]
		case err != io.EOF:
			return hdr, lines, err
		}
		lines++
		if len(line) < 4 || line[3] != '\t' {
			return hdr, lines, fmt.Errorf("malformed SAM header line %q", line)
		}
		sc.Reset(line[4:])
		switch code := line[:3]; code {
		case "@HD":
			if lines != 1 {
				return hdr, lines, errors.New("@HD line not in first line of SAM header")
			}
			hdr.HD = sc.ParseHeaderLine()
		case "@SQ":
			hdr.SQ = append(hdr.SQ, sc.ParseHeaderLine())
		case "@RG":
			hdr.RG = append(hdr.RG, sc.ParseHeaderLine())
		case "@PG":
			hdr.PG = append(hdr.PG, sc.ParseHeaderLine())
		case "@CO":
			hdr.CO = append(hdr.CO, line[4:])
		default:
			return hdr, lines, fmt.Errorf("unknown SAM header record type code %v", code)
		}
		if err := sc.Err(); err != nil {
			return hdr, lines, fmt.Errorf("%v, while parsing SAM header line %v", err, lines)
		}
	}
}

// ParseHeaderFromString parses a complete SAM header held in a string,
// as stored in BAM files.
func ParseHeaderFromString(text string) (*Header, error) {
	hdr, _, err := ParseHeader(bufio.NewReader(bytes.NewBufferString(text)))
	return hdr, err
}

func (sc *StringScanner) parseChar() interface{} {
	value, _ := sc.readByteUntil('\t')
	return value
}

func (sc *StringScanner) parseInteger() interface{} {
	value, _ := sc.readUntil('\t')
	val, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		sc.setErr(err)
	}
	return int32(val)
}

func (sc *StringScanner) parseFloat() interface{} {
	value, _ := sc.readUntil('\t')
	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		sc.setErr(err)
	}
	return float32(val)
}

func (sc *StringScanner) parseString() interface{} {
	value, _ := sc.readUntil('\t')
	return value
}

func (sc *StringScanner) parseByteArray() interface{} {
	value, _ := sc.readUntil('\t')
	if len(value)%2 != 0 {
		sc.setErr(fmt.Errorf("odd number of digits in hex array %v", value))
		return nil
	}
	result := make(ByteArray, 0, len(value)/2)
	for i := 0; i < len(value); i += 2 {
		val, err := strconv.ParseUint(value[i:i+2], 16, 8)
		if err != nil {
			sc.setErr(err)
			return nil
		}
		result = append(result, byte(val))
	}
	return result
}

func (sc *StringScanner) parseNumericArray() interface{} {
	ntype, ok := sc.readByteUntil(',')
	if !ok {
		sc.setErr(errors.New("missing entries in numeric array"))
		return nil
	}
	value, _ := sc.readUntil('\t')
	entries := bytes.Split([]byte(value), []byte{','})
	var err error
	parseInt := func(entry []byte, bitSize int) int64 {
		val, nerr := strconv.ParseInt(string(entry), 10, bitSize)
		if nerr != nil && err == nil {
			err = nerr
		}
		return val
	}
	parseUint := func(entry []byte, bitSize int) uint64 {
		val, nerr := strconv.ParseUint(string(entry), 10, bitSize)
		if nerr != nil && err == nil {
			err = nerr
		}
		return val
	}
	var result interface{}
	switch ntype {
	case 'c':
		r := make([]int8, len(entries))
		for i, e := range entries {
			r[i] = int8(parseInt(e, 8))
		}
		result = r
	case 'C':
		r := make([]uint8, len(entries))
		for i, e := range entries {
			r[i] = uint8(parseUint(e, 8))
		}
		result = r
	case 's':
		r := make([]int16, len(entries))
		for i, e := range entries {
			r[i] = int16(parseInt(e, 16))
		}
		result = r
	case 'S':
		r := make([]uint16, len(entries))
		for i, e := range entries {
			r[i] = uint16(parseUint(e, 16))
		}
		result = r
	case 'i':
		r := make([]int32, len(entries))
		for i, e := range entries {
			r[i] = int32(parseInt(e, 32))
		}
		result = r
	case 'I':
		r := make([]uint32, len(entries))
		for i, e := range entries {
			r[i] = uint32(parseUint(e, 32))
		}
		result = r
	case 'f':
		r := make([]float32, len(entries))
		for i, e := range entries {
			val, nerr := strconv.ParseFloat(string(e), 32)
			if nerr != nil && err == nil {
				err = nerr
			}
			r[i] = float32(val)
		}
		result = r
	default:
		sc.setErr(fmt.Errorf("invalid numeric array type %q", ntype))
		return nil
	}
	if err != nil {
		sc.setErr(err)
		return nil
	}
	return result
}

var optionalFieldParseTable = map[byte]func(*StringScanner) interface{}{
	'A': (*StringScanner).parseChar,
	'i': (*StringScanner).parseInteger,
	'f': (*StringScanner).parseFloat,
	'Z': (*StringScanner).parseString,
	'H': (*StringScanner).parseByteArray,
	'B': (*StringScanner).parseNumericArray,
}

// ParseOptionalField parses a TAG:TYPE:VALUE field of an alignment
// line.
func (sc *StringScanner) ParseOptionalField() (tag utils.Symbol, value interface{}) {
	if sc.err != nil {
		return nil, nil
	}
	tagname, ok := sc.readUntil(':')
	if !ok || len(tagname) != 2 {
		sc.setErr(fmt.Errorf("invalid field tag %q in SAM alignment line", tagname))
		return nil, nil
	}
	typebyte, ok := sc.readByteUntil(':')
	if !ok {
		sc.setErr(fmt.Errorf("missing field type for tag %v in SAM alignment line", tagname))
		return nil, nil
	}
	parse, ok := optionalFieldParseTable[typebyte]
	if !ok {
		sc.setErr(fmt.Errorf("invalid field type %q for tag %v in SAM alignment line", typebyte, tagname))
		return nil, nil
	}
	return utils.Intern(tagname), parse(sc)
}

// ParseAlignment parses the alignment line the scanner was reset
// with.
func (sc *StringScanner) ParseAlignment() (*Alignment, error) {
	aln := NewAlignment()
	aln.QNAME = sc.field("QNAME")
	aln.FLAG = uint16(sc.uintField("FLAG", 16))
	aln.RNAME = sc.field("RNAME")
	aln.POS = sc.int32Field("POS")
	aln.MAPQ = byte(sc.uintField("MAPQ", 8))
	aln.CIGAR = sc.field("CIGAR")
	aln.RNEXT = sc.field("RNEXT")
	aln.PNEXT = sc.int32Field("PNEXT")
	aln.TLEN = sc.int32Field("TLEN")
	aln.SEQ = sc.field("SEQ")
	aln.QUAL, _ = sc.readUntil('\t')
	for sc.Len() > 0 {
		tag, value := sc.ParseOptionalField()
		if sc.err != nil {
			break
		}
		aln.TAGS.Set(tag, value)
	}
	if sc.err != nil {
		return nil, sc.err
	}
	return aln, nil
}

// ParseAlignment parses a single SAM alignment line, without the
// trailing newline.
func ParseAlignment(line string) (*Alignment, error) {
	var sc StringScanner
	sc.Reset(line)
	return sc.ParseAlignment()
}

var headerTagOrder = map[string][]string{
	"@HD": {"VN", "SO", "GO", "SS"},
	"@SQ": {"SN", "LN"},
	"@RG": {"ID", "SM", "LB", "PL", "PU", "CN"},
	"@PG": {"ID", "PN", "VN", "PP", "CL"},
}

// headerTags returns the tags of a header line in a fixed order: the
// well-known tags of the record type first, then the rest sorted.
func headerTags(code string, record utils.StringMap) []string {
	tags := make([]string, 0, len(record))
	known := headerTagOrder[code]
	for _, tag := range known {
		if _, ok := record[tag]; ok {
			tags = append(tags, tag)
		}
	}
	rest := len(tags)
	for tag := range record {
		isKnown := false
		for _, k := range known {
			if k == tag {
				isKnown = true
				break
			}
		}
		if !isKnown {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags[rest:])
	return tags
}

// FormatHeaderLine appends a header line to out.
func FormatHeaderLine(out []byte, code string, record utils.StringMap) []byte {
	out = append(out, code...)
	for _, tag := range headerTags(code, record) {
		out = append(out, '\t')
		out = append(out, tag...)
		out = append(out, ':')
		out = append(out, record[tag]...)
	}
	return append(out, '\n')
}

// Format appends the header in SAM text format to out.
func (hdr *Header) Format(out []byte) []byte {
	if hdr.HD != nil {
		out = FormatHeaderLine(out, "@HD", hdr.HD)
	}
	for _, record := range hdr.SQ {
		out = FormatHeaderLine(out, "@SQ", record)
	}
	for _, record := range hdr.RG {
		out = FormatHeaderLine(out, "@RG", record)
	}
	for _, record := range hdr.PG {
		out = FormatHeaderLine(out, "@PG", record)
	}
	for _, comment := range hdr.CO {
		out = append(append(append(out, "@CO\t"...), comment...), '\n')
	}
	return out
}

func appendInts[T int8 | int16 | int32](out []byte, code string, vals []T) []byte {
	out = append(out, code...)
	for _, v := range vals {
		out = strconv.AppendInt(append(out, ','), int64(v), 10)
	}
	return out
}

func appendUints[T uint8 | uint16 | uint32](out []byte, code string, vals []T) []byte {
	out = append(out, code...)
	for _, v := range vals {
		out = strconv.AppendUint(append(out, ','), uint64(v), 10)
	}
	return out
}

// FormatTag appends an optional field to out, preceded by a tab.
func FormatTag(out []byte, tag utils.Symbol, value interface{}) ([]byte, error) {
	out = append(out, '\t')
	out = append(out, *tag...)
	switch val := value.(type) {
	case byte:
		out = append(append(out, ":A:"...), val)
	case int32:
		out = strconv.AppendInt(append(out, ":i:"...), int64(val), 10)
	case float32:
		out = strconv.AppendFloat(append(out, ":f:"...), float64(val), 'g', -1, 32)
	case string:
		out = append(append(out, ":Z:"...), val...)
	case ByteArray:
		out = append(out, ":H:"...)
		for _, b := range val {
			out = append(out, "0123456789ABCDEF"[b>>4], "0123456789ABCDEF"[b&0xF])
		}
	case []int8:
		out = appendInts(out, ":B:c", val)
	case []uint8:
		out = appendUints(out, ":B:C", val)
	case []int16:
		out = appendInts(out, ":B:s", val)
	case []uint16:
		out = appendUints(out, ":B:S", val)
	case []int32:
		out = appendInts(out, ":B:i", val)
	case []uint32:
		out = appendUints(out, ":B:I", val)
	case []float32:
		out = append(out, ":B:f"...)
		for _, v := range val {
			out = strconv.AppendFloat(append(out, ','), float64(v), 'g', -1, 32)
		}
	default:
		return nil, fmt.Errorf("unknown SAM alignment tag type %T for tag %v", value, *tag)
	}
	return out, nil
}

// Format appends the alignment in SAM text format to out, including
// the trailing newline.
func (aln *Alignment) Format(out []byte) ([]byte, error) {
	out = append(append(out, aln.QNAME...), '\t')
	out = append(strconv.AppendUint(out, uint64(aln.FLAG), 10), '\t')
	out = append(append(out, aln.RNAME...), '\t')
	out = append(strconv.AppendInt(out, int64(aln.POS), 10), '\t')
	out = append(strconv.AppendUint(out, uint64(aln.MAPQ), 10), '\t')
	out = append(append(out, aln.CIGAR...), '\t')
	out = append(append(out, aln.RNEXT...), '\t')
	out = append(strconv.AppendInt(out, int64(aln.PNEXT), 10), '\t')
	out = append(strconv.AppendInt(out, int64(aln.TLEN), 10), '\t')
	out = append(append(out, aln.SEQ...), '\t')
	out = append(out, aln.QUAL...)
	var err error
	for _, entry := range aln.TAGS {
		if out, err = FormatTag(out, entry.Key, entry.Value); err != nil {
			return nil, err
		}
	}
	return append(out, '\n'), nil
}

// Format writes a complete SAM file to out.
func (sam *Sam) Format(out io.Writer) error {
	buf := internal.ReserveByteBuffer()
	defer func() { internal.ReleaseByteBuffer(buf) }()
	buf = sam.Header.Format(buf)
	if _, err := out.Write(buf); err != nil {
		return err
	}
	for _, aln := range sam.Alignments {
		var err error
		if buf, err = aln.Format(buf[:0]); err != nil {
			return err
		}
		if _, err = out.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
