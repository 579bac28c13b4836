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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/fastq-to-ubam/utils"
)

func testHeader() *Header {
	hdr := NewHeader()
	hdr.SetHDSO(Queryname)
	hdr.AddReadGroup(&ReadGroup{ID: "rg1", Sample: "S1", Library: "L1", Platform: "ILLUMINA", PlatformUnit: "PU1", Centre: "BI"})
	hdr.AddProgram("fastq-to-ubam", "fastq-to-ubam", "1.0.0", "fastq-to-ubam trim")
	hdr.CO = append(hdr.CO, "a comment")
	return hdr
}

const testHeaderText = "@HD\tVN:1.6\tSO:queryname\n" +
	"@RG\tID:rg1\tSM:S1\tLB:L1\tPL:ILLUMINA\tPU:PU1\tCN:BI\n" +
	"@PG\tID:fastq-to-ubam\tPN:fastq-to-ubam\tVN:1.0.0\tCL:fastq-to-ubam trim\n" +
	"@CO\ta comment\n"

func TestHeaderFormat(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Equal(t, testHeaderText, string(testHeader().Format(nil)))
	}
}

func TestHeaderFormatUnknownTags(t *testing.T) {
	record := utils.StringMap{"ID": "x", "ZZ": "1", "DS": "2"}
	assert.Equal(t, "@RG\tID:x\tDS:2\tZZ:1\n", string(FormatHeaderLine(nil, "@RG", record)))
}

func TestParseHeader(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader(testHeaderText + "r1\t77\t*\t0\t0\t*\t*\t0\t0\tA\tI\n"))
	hdr, lines, err := ParseHeader(reader)
	require.NoError(t, err)
	assert.Equal(t, 4, lines)
	if diff := cmp.Diff(testHeader(), hdr); diff != "" {
		t.Errorf("ParseHeader mismatch (-want +got):\n%s", diff)
	}
	rest, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rest, "r1\t"))
}

func TestParseHeaderErrors(t *testing.T) {
	for _, text := range []string{
		"@RG\tID:a\n@HD\tVN:1.6\n",
		"@XX\tID:a\n",
		"@RG\tID:a\tID:b\n",
		"@RG\tIDa\n",
		"@RG",
	} {
		_, _, err := ParseHeader(bufio.NewReader(strings.NewReader(text)))
		assert.Error(t, err, text)
	}
}

func TestAlignmentFormatParse(t *testing.T) {
	aln := unaligned("READ1/1", First)
	aln.TAGS.Set(utils.Intern("XA"), byte('z'))
	aln.TAGS.Set(utils.Intern("XI"), int32(-12))
	aln.TAGS.Set(utils.Intern("XF"), float32(1.5))
	aln.TAGS.Set(utils.Intern("XH"), ByteArray{0x1a, 0xe0})
	aln.TAGS.Set(utils.Intern("XB"), []int16{1, -2, 3})

	line, err := aln.Format(nil)
	require.NoError(t, err)
	assert.Equal(t, "READ1/1\t77\t*\t0\t0\t*\t*\t0\t0\tACGT\tIIII\tRG:Z:rg1\tXA:A:z\tXI:i:-12\tXF:f:1.5\tXH:H:1AE0\tXB:B:s,1,-2,3\n", string(line))

	parsed, err := ParseAlignment(string(line[:len(line)-1]))
	require.NoError(t, err)
	if diff := cmp.Diff(aln, parsed); diff != "" {
		t.Errorf("ParseAlignment mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAlignmentErrors(t *testing.T) {
	for _, line := range []string{
		"r1\t77\t*\t0",
		"r1\tx\t*\t0\t0\t*\t*\t0\t0\tA\tI",
		"r1\t77\t*\t0\t0\t*\t*\t0\t0\tA\tI\tRG:Q:x",
		"r1\t77\t*\t0\t0\t*\t*\t0\t0\tA\tI\tR:Z:x",
	} {
		_, err := ParseAlignment(line)
		assert.Error(t, err, line)
	}
}

func TestSamFormat(t *testing.T) {
	sam := NewSam()
	require.NoError(t, sam.WriteHeader(testHeader()))
	require.NoError(t, sam.WriteAlignment(unaligned("r", First)))
	require.NoError(t, sam.Close())
	var out bytes.Buffer
	require.NoError(t, sam.Format(&out))
	assert.Equal(t, testHeaderText+"r\t77\t*\t0\t0\t*\t*\t0\t0\tACGT\tIIII\tRG:Z:rg1\n", out.String())
}
