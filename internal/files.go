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

package internal

import (
	"io"
	"os"
	"path/filepath"
)

// FullPathname returns an absolute version of the given filename.
func FullPathname(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	wd, err := os.Getwd()
	return filepath.Join(wd, filename), err
}

// Close closes c and stores its error in *err, unless *err already
// holds an earlier error. Use it in deferred calls.
func Close(c io.Closer, err *error) {
	if nerr := c.Close(); *err == nil {
		*err = nerr
	}
}

// IsStdStream reports whether the given file is os.Stdin or os.Stdout,
// which must never be closed by a reader or writer.
func IsStdStream(f io.Closer) bool {
	return f == os.Stdin || f == os.Stdout
}
