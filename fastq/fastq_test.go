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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/exascience/pargo/pipeline"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFastq = "@READ1/1 extra info\n" +
	"ACGTACGTACGTACGTACGTACGTACGTACGTACGTACGT\n" +
	"+\n" +
	"IIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIII\n" +
	"@READ2/1\r\n" +
	"GGGG\r\n" +
	"+READ2/1\r\n" +
	"!!!!\r\n" +
	"\n"

func writeFile(t *testing.T, name, content string, gzipped bool) string {
	path := filepath.Join(t.TempDir(), name)
	file, err := os.Create(path)
	require.NoError(t, err)
	if gzipped {
		gz := pgzip.NewWriter(file)
		_, err = gz.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, gz.Close())
	} else {
		_, err = file.WriteString(content)
		require.NoError(t, err)
	}
	require.NoError(t, file.Close())
	return path
}

func readAll(t *testing.T, name string) ([]Read, error) {
	reader, err := Open(name)
	require.NoError(t, err)
	defer func() { assert.NoError(t, reader.Close()) }()
	var reads []Read
	var p pipeline.Pipeline
	p.Source(reader)
	p.SetVariableBatchSize(1, 2)
	p.Add(pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
		reads = append(reads, data.([]Read)...)
		return nil
	})))
	p.Run()
	return reads, p.Err()
}

func TestReader(t *testing.T) {
	for _, gzipped := range []bool{false, true} {
		reads, err := readAll(t, writeFile(t, "r1.fq", testFastq, gzipped))
		require.NoError(t, err)
		require.Len(t, reads, 2)
		assert.Equal(t, "@READ1/1 extra info", reads[0].ID)
		assert.Equal(t, 1, reads[0].Line)
		assert.Len(t, reads[0].Seq, 40)
		assert.Equal(t, Read{ID: "@READ2/1", Seq: "GGGG", Plus: "+READ2/1", Qual: "!!!!", Line: 5}, reads[1])
		for _, read := range reads {
			assert.NoError(t, read.Validate())
		}
	}
}

func TestReaderEmpty(t *testing.T) {
	reads, err := readAll(t, writeFile(t, "empty.fq", "", false))
	assert.NoError(t, err)
	assert.Empty(t, reads)
}

func TestReaderErrors(t *testing.T) {
	for _, test := range []struct {
		content string
		err     error
		line    int
	}{
		{"@r1\nACGT\n+\n", ErrShort, 1},
		{"@r1\nACGT\n+\nIIII\n@r2\nAC\n", ErrShort, 5},
		{"r1\nACGT\n+\nIIII\n", ErrInvalid, 1},
		{"@r1\nACGT\n-\nIIII\n", ErrInvalid, 1},
	} {
		_, err := readAll(t, writeFile(t, "bad.fq", test.content, false))
		require.Error(t, err, test.content)
		assert.True(t, errors.Is(err, test.err), test.content)
		var formatError *FormatError
		require.True(t, errors.As(err, &formatError), test.content)
		assert.Equal(t, test.line, formatError.Line, test.content)
		assert.True(t, strings.HasSuffix(formatError.File, "bad.fq"))
	}
}

func TestValidate(t *testing.T) {
	read := Read{ID: "@r", Seq: "ACGT", Plus: "+", Qual: "III"}
	err := read.Validate()
	assert.True(t, errors.Is(err, ErrLengthMismatch))
	assert.Contains(t, err.Error(), "in read @r")

	read = Read{ID: "r", Seq: "A", Plus: "+", Qual: "I"}
	assert.True(t, errors.Is(read.Validate(), ErrInvalid))

	read = Read{ID: "@r", Seq: "AC\tG", Plus: "+", Qual: "IIII"}
	assert.True(t, errors.Is(read.Validate(), ErrInvalid))

	read = Read{ID: "@r", Seq: "acgt.N", Plus: "+", Qual: " !#III"}
	assert.NoError(t, read.Validate())
}

func TestFormat(t *testing.T) {
	read := Read{ID: "@r", Seq: "ACGT", Plus: "+", Qual: "IIII"}
	assert.Equal(t, "@r\nACGT\n+\nIIII\n", string(read.Format(nil)))
}
