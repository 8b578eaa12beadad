/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package version exposes the application version for logs, the CLI and
// crash reports. Version and Commit are intended to be overridden at build
// time via -ldflags.
package version

import "strings"

var (
	// Version is the semantic version of the build.
	Version = "0.3.0-dev"
	// Commit is the short VCS revision, if known.
	Commit = ""
)

// String returns the printable version, including the commit when present.
func String() string {
	if strings.TrimSpace(Commit) == "" {
		return Version
	}
	return Version + "+" + Commit
}
