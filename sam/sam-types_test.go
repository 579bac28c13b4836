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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unaligned(name string, flag uint16) *Alignment {
	aln := NewAlignment()
	aln.QNAME = name
	aln.FLAG = Multiple | Unmapped | NextUnmapped | flag
	aln.SEQ = "ACGT"
	aln.QUAL = "IIII"
	aln.SetRG("rg1")
	return aln
}

func TestQuerynameLess(t *testing.T) {
	a1 := unaligned("A", First)
	a2 := unaligned("A", Last)
	b1 := unaligned("B", First)

	assert.True(t, QuerynameLess(a1, a2))
	assert.False(t, QuerynameLess(a2, a1))
	assert.True(t, QuerynameLess(a2, b1))
	assert.False(t, QuerynameLess(a1, a1))
	assert.True(t, QNAMELess(a2, b1))
	assert.False(t, QNAMELess(a1, a2))
}

func TestQuerynameByteOrder(t *testing.T) {
	assert.True(t, QuerynameLess(unaligned("READ10", First), unaligned("READ2", First)))
	assert.True(t, QuerynameLess(unaligned("Z", First), unaligned("a", First)))
}

func TestParallelStableSort(t *testing.T) {
	alns := []*Alignment{
		unaligned("c", Last), unaligned("a", Last), unaligned("b", First),
		unaligned("a", First), unaligned("c", First), unaligned("b", Last),
	}
	By(QuerynameLess).ParallelStableSort(alns)
	var got []string
	for _, aln := range alns {
		mate := "1"
		if aln.IsLast() {
			mate = "2"
		}
		got = append(got, aln.QNAME+mate)
	}
	assert.Equal(t, []string{"a1", "a2", "b1", "b2", "c1", "c2"}, got)
}

func TestFlags(t *testing.T) {
	aln := unaligned("x", First)
	assert.True(t, aln.IsMultiple())
	assert.True(t, aln.IsUnmapped())
	assert.True(t, aln.IsNextUnmapped())
	assert.True(t, aln.IsFirst())
	assert.False(t, aln.IsLast())
	assert.True(t, aln.FlagEvery(Multiple|Unmapped|NextUnmapped))
	assert.EqualValues(t, 77, aln.FLAG)
	assert.EqualValues(t, 141, unaligned("x", Last).FLAG)
}

func TestReadGroupTag(t *testing.T) {
	aln := NewAlignment()
	_, ok := aln.RG()
	assert.False(t, ok)
	aln.SetRG("a")
	aln.SetRG("b")
	rg, ok := aln.RG()
	assert.True(t, ok)
	assert.Equal(t, "b", rg)
	assert.Len(t, aln.TAGS, 1)
}

func TestHeader(t *testing.T) {
	hdr := NewHeader()
	assert.Equal(t, Unknown, hdr.HDSO())
	hdr.EnsureHD()["GO"] = "query"
	hdr.SetHDSO(Queryname)
	assert.Equal(t, Queryname, hdr.HDSO())
	assert.Equal(t, FileFormatVersion, hdr.HD["VN"])
	_, found := hdr.HD["GO"]
	assert.False(t, found)

	hdr.AddProgram("p1", "first", "1.0", "first --x")
	hdr.AddProgram("p2", "second", "2.0", "")
	require.Len(t, hdr.PG, 2)
	assert.Equal(t, "p1", hdr.PG[1]["PP"])
	_, found = hdr.PG[1]["CL"]
	assert.False(t, found)
}

func TestScanCigarString(t *testing.T) {
	ops, err := ScanCigarString("10M2I3s")
	require.NoError(t, err)
	assert.Equal(t, []CigarOperation{{10, 'M'}, {2, 'I'}, {3, 'S'}}, ops)
	assert.Equal(t, "10M2I3S", FormatCigar(ops))

	ops, err = ScanCigarString("*")
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.Equal(t, "*", FormatCigar(ops))

	_, err = ScanCigarString("10Q")
	assert.Error(t, err)
	_, err = ScanCigarString("10")
	assert.Error(t, err)
}

func TestReadGroupValidate(t *testing.T) {
	rg := &ReadGroup{ID: "id", Sample: "sm", Library: "lb", Platform: "ILLUMINA", PlatformUnit: "pu", Centre: "cn"}
	assert.NoError(t, rg.Validate())
	record := rg.Record()
	assert.Equal(t, "sm", record["SM"])
	assert.Equal(t, "cn", record["CN"])

	rg.Library = ""
	assert.Error(t, rg.Validate())
	rg.Library = "a\tb"
	assert.Error(t, rg.Validate())
}
