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
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/fastq-to-ubam/utils"
)

func TestBamAlignmentRoundTrip(t *testing.T) {
	aln := unaligned("READ1/2", Last)
	aln.SEQ = "ACGTNacgtn="
	aln.QUAL = "#####IIIII2"
	aln.TAGS.Set(utils.Intern("XC"), int32(300))
	aln.TAGS.Set(utils.Intern("XN"), int32(-5))
	aln.TAGS.Set(utils.Intern("XU"), []uint8{1, 2})
	aln.TAGS.Set(utils.Intern("XH"), ByteArray{0xff})

	record, err := FormatBamAlignment(aln, nil, nil)
	require.NoError(t, err)
	size := binary.LittleEndian.Uint32(record)
	assert.EqualValues(t, len(record)-4, size)
	assert.EqualValues(t, 4680, binary.LittleEndian.Uint16(record[4+10:]))

	parsed, err := ParseBamAlignment(record[4:], nil)
	require.NoError(t, err)
	aln.SEQ = "ACGTNACGTN="
	if diff := cmp.Diff(aln, parsed); diff != "" {
		t.Errorf("ParseBamAlignment mismatch (-want +got):\n%s", diff)
	}
}

func TestBamMissingQualities(t *testing.T) {
	aln := unaligned("r", First)
	aln.QUAL = "*"
	record, err := FormatBamAlignment(aln, nil, nil)
	require.NoError(t, err)
	parsed, err := ParseBamAlignment(record[4:], nil)
	require.NoError(t, err)
	assert.Equal(t, "ACGT", parsed.SEQ)
	assert.Equal(t, "*", parsed.QUAL)
}

func TestBamAlignmentErrors(t *testing.T) {
	aln := unaligned("r", First)
	aln.QUAL = "II"
	_, err := FormatBamAlignment(aln, nil, nil)
	assert.Error(t, err)

	aln = unaligned("r", First)
	aln.RNAME = "chr1"
	_, err = FormatBamAlignment(aln, nil, nil)
	assert.Error(t, err)

	aln = unaligned("r", First)
	record, err := FormatBamAlignment(aln, nil, nil)
	require.NoError(t, err)
	_, err = ParseBamAlignment(record[4:len(record)-3], nil)
	assert.Error(t, err)
}

func TestBamMappedAlignment(t *testing.T) {
	hdr := testHeader()
	hdr.SQ = append(hdr.SQ, utils.StringMap{"SN": "chr1", "LN": "1000"})
	aln := NewAlignment()
	aln.QNAME = "m"
	aln.RNAME = "chr1"
	aln.POS = 100
	aln.MAPQ = 60
	aln.CIGAR = "2M1I1M"
	aln.RNEXT = "="
	aln.PNEXT = 200
	aln.TLEN = 104
	aln.SEQ = "ACGT"
	aln.QUAL = "IIII"

	var buf bytes.Buffer
	buf.Write(hdr.FormatBam(nil))
	record, err := FormatBamAlignment(aln, nil, map[string]uint32{"chr1": 0})
	require.NoError(t, err)
	buf.Write(record)

	parsedHdr, references, err := ParseBamHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, []BAMReference{{"chr1", 1000}}, references)
	if diff := cmp.Diff(hdr, parsedHdr); diff != "" {
		t.Errorf("ParseBamHeader mismatch (-want +got):\n%s", diff)
	}

	data, err := ReadBamRecord(&buf, nil)
	require.NoError(t, err)
	parsed, err := ParseBamAlignment(data, references)
	require.NoError(t, err)
	if diff := cmp.Diff(aln, parsed); diff != "" {
		t.Errorf("ParseBamAlignment mismatch (-want +got):\n%s", diff)
	}
	_, err = ReadBamRecord(&buf, nil)
	assert.Error(t, err)
}

func TestBin(t *testing.T) {
	aln := unaligned("r", First)
	assert.EqualValues(t, 4680, bin(aln, nil))
	aln.FLAG = 0
	aln.POS = 1
	assert.EqualValues(t, 4681, bin(aln, []CigarOperation{{100, 'M'}}))
}
