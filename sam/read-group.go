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
	"strings"

	"github.com/exascience/fastq-to-ubam/utils"
)

// ReadGroup holds the metadata of the read group all converted reads
// belong to. It is built once from the configuration and shared
// read-only between all workers.
type ReadGroup struct {
	ID           string
	Sample       string
	Library      string
	Platform     string
	PlatformUnit string
	Centre       string
}

// Validate checks that every field of the read group is set and can
// be represented in a SAM header line.
func (rg *ReadGroup) Validate() error {
	fields := []struct{ name, value string }{
		{"ID", rg.ID},
		{"sample", rg.Sample},
		{"library", rg.Library},
		{"platform", rg.Platform},
		{"platform unit", rg.PlatformUnit},
		{"sequencing centre", rg.Centre},
	}
	for _, field := range fields {
		if field.value == "" {
			return fmt.Errorf("read group %v is empty", field.name)
		}
		if strings.ContainsAny(field.value, "\t\n\r") {
			return fmt.Errorf("read group %v %q contains tab or newline characters", field.name, field.value)
		}
	}
	return nil
}

// Record returns the read group as an @RG header line.
func (rg *ReadGroup) Record() utils.StringMap {
	return utils.StringMap{
		"ID": rg.ID,
		"SM": rg.Sample,
		"LB": rg.Library,
		"PL": rg.Platform,
		"PU": rg.PlatformUnit,
		"CN": rg.Centre,
	}
}
