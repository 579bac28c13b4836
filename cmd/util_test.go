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

package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/fastq-to-ubam/convert"
	"github.com/exascience/fastq-to-ubam/sam"
)

func TestCheckAdapter(t *testing.T) {
	assert.True(t, checkAdapter("--adapter1", "AGATCGGAAGAGC"))
	assert.True(t, checkAdapter("--adapter1", "agatcnn"))
	assert.True(t, checkAdapter("--adapter1", "AGATCGGAAGAGCRYKM"))
	assert.False(t, checkAdapter("--adapter1", ""))
	assert.False(t, checkAdapter("--adapter1", "AGAT-CGG"))
}

func TestCheckOutputExtension(t *testing.T) {
	assert.True(t, checkOutputExtension("--output", "out.bam"))
	assert.True(t, checkOutputExtension("--output", "out.sam"))
	assert.True(t, checkOutputExtension("--output", "/dev/stdout"))
	assert.False(t, checkOutputExtension("--output", "out.cram"))
	assert.False(t, checkOutputExtension("--output", "out"))
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "r1.fq")
	require.NoError(t, os.WriteFile(existing, []byte("@r\nA\n+\nI\n"), 0666))

	assert.True(t, checkExist("--read1", existing))
	assert.True(t, checkExist("--read1", "/dev/stdin"))
	assert.False(t, checkExist("--read1", filepath.Join(dir, "missing.fq")))
	assert.False(t, checkExist("--read1", "--read2"))
	assert.False(t, checkExist("--read1", ""))

	output := filepath.Join(dir, "sub", "out.bam")
	assert.True(t, checkCreate("--output", output))
	_, err := os.Stat(output)
	assert.True(t, os.IsNotExist(err), "checkCreate must not leave the file behind")
	assert.True(t, checkCreate("--output", existing))
	assert.False(t, checkCreate("--output", "-x"))

	assert.True(t, checkDirectory("--tmp-dir", dir))
	assert.False(t, checkDirectory("--tmp-dir", existing))
}

func TestCreateLogFilename(t *testing.T) {
	name := createLogFilename()
	assert.True(t, strings.HasPrefix(name, "logs/fastq-to-ubam/fastq-to-ubam-"))
	assert.True(t, strings.HasSuffix(name, ".log"))
}

func TestRunTrim(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0666))
		return path
	}
	cfg := &convert.Config{
		Read1:    write("r1.fq", "@b 1:N\nACGTACGT\n+\nIIIIIIII\n@a 1:N\nCCCCGGGG\n+\nIIIIIIII\n"),
		Read2:    write("r2.fq", "@a 2:N\nGGGGCCCC\n+\nIIIIIIII\n@b 2:N\nTTTTAAAA\n+\nIIIIIIII\n"),
		Adapter1: "AGATCGGAAGAGC",
		Adapter2: "AGATCGGAAGAGC",
		ReadGroup: sam.ReadGroup{
			ID: "rg1", Sample: "s1", Library: "lib1",
			Platform: "ILLUMINA", PlatformUnit: "unit1", Centre: "centre1",
		},
	}

	output := filepath.Join(dir, "out", "reads.sam")
	stats, err := runTrim(cfg, output)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Written)

	result, err := convert.Verify(output, true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Alignments)

	cfg.Read2 = write("bad.fq", "@a 2:N\nGGGG\n+\nIII\n")
	failed := filepath.Join(dir, "failed.sam")
	_, err = runTrim(cfg, failed)
	require.Error(t, err)
	_, err = os.Stat(failed)
	assert.True(t, os.IsNotExist(err), "a failed run must not leave its output behind")
}
