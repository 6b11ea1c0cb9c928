/*
 * Copyright 2014-2015 Jason Woods.
 *
 * This file is a modification of code from Logstash Forwarder.
 * Copyright 2012-2013 Jordan Sissel and contributors.
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

package main

import (
	stdlog "log"
	"os"
	"runtime"
	"time"

	"gopkg.in/op/go-logging.v1"
)

func main() {
	os.Exit(newCLF().Run())
}

// clf is the root structure for the clf binary, mirroring the teacher's own
// logCourier root structure: command-line state plumbed through a handful
// of phases (startUp, loadConfig, configureLogging, run, cleanShutdown)
// rather than a single sprawling main().
type clf struct {
	configFile     string
	snapshotFile   string
	logFile        string
	logLevel       string
	maxLogsizeMB   int
	deleteSnapshot bool
	noCallback     bool
	overwriteLog   bool
	showOptions    bool
	showRendered   bool
	syntaxCheck    bool
	contextJSON    string
	vars           stringSliceFlag
	updateGeoIP    bool
	auditDBPath    string

	config      *clfConfig
	startTime   time.Time
	logBackend  *defaultLogBackend
}

func newCLF() *clf {
	return &clf{startTime: time.Now()}
}

// Run executes one full invocation and returns the process exit code
// (0/1/2/3 per nagios.Severity.ExitCode, or 3 for a setup failure before any
// logfile could be evaluated).
func (c *clf) Run() int {
	c.startUp()
	defer c.cleanShutdown()

	if c.showRendered {
		if err := c.printRenderedConfig(); err != nil {
			stdlog.Printf("Cannot read configuration: %s", err)
			return 3
		}
		return 0
	}

	if c.syntaxCheck {
		if err := c.loadConfig(); err != nil {
			stdlog.Printf("Configuration error: %s", err)
			return 3
		}
		stdlog.Printf("Configuration OK")
		return 0
	}

	if err := c.loadConfig(); err != nil {
		stdlog.Printf("Configuration error: %s", err)
		return 3
	}

	if err := c.configureLogging(); err != nil {
		stdlog.Printf("Failed to initialise logging: %s", err)
		return 3
	}

	if c.updateGeoIP {
		if err := runGeoIPUpdate(); err != nil {
			log.Error("GeoIP update failed: %s", err)
			return 3
		}
		return 0
	}

	if c.showOptions {
		c.printOptions()
		return 0
	}

	runtime.GOMAXPROCS(runtime.NumCPU())

	return c.execute()
}

var log = logging.MustGetLogger("main")

type stringSliceFlag []string

func (s *stringSliceFlag) String() string { return "" }
func (s *stringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}
