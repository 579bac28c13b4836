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

package convert

import (
	"fmt"
)

// A ConfigError reports an invalid configuration value. It is
// returned before any input is read.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %v %v", e.Field, e.Reason)
}

// A SinkError reports that the output sink failed to accept the
// header or an alignment.
type SinkError struct {
	Op  string
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%v, while writing %v to output", e.Err, e.Op)
}

func (e *SinkError) Unwrap() error { return e.Err }

// A PairingError reports a read name that does not occur exactly once
// as first of pair and exactly once as second of pair.
type PairingError struct {
	Name   string
	Reason string
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("incomplete pair for read %v: %v", e.Name, e.Reason)
}
