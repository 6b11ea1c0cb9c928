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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"clf/clf-lib/callback"
	"clf/clf-lib/compression"
	"clf/clf-lib/config"
	"clf/clf-lib/nagios"
	"clf/clf-lib/pattern"
	"clf/clf-lib/rundata"
	"clf/clf-lib/scanner"
)

// clfConfig is the resolved, built runtime form of the loaded YAML: every
// search's logfile definition (expanded to concrete paths later, at run
// time, via LogfileDef.Resolve), each with its ready-to-run scanner.TagSpec
// list. Building this once up front (rather than compiling
// patterns/dispatchers per logfile per run) keeps the hot scan loop free of
// anything that can fail.
type clfConfig struct {
	raw      *config.Config
	searches []builtSearch
}

type builtSearch struct {
	logfile         config.LogfileDef
	exclude         *regexp.Regexp
	missingSeverity nagios.Severity
	tags            []scanner.TagSpec
}

func (c *clf) loadConfig() error {
	raw, err := config.Load(c.configFile)
	if err != nil {
		return err
	}

	if c.snapshotFile != "" {
		raw.Global.SnapshotFile = c.snapshotFile
	}

	// --audit-db overrides the configured audit_db; absent either, auditing
	// is skipped entirely.
	if c.auditDBPath == "" {
		c.auditDBPath = raw.Global.AuditDB
	}

	built := &clfConfig{raw: raw}

	var geo *callback.GeoEnricher
	if raw.Global.GeoIPDatabase != "" {
		geo, err = callback.OpenGeoEnricher(raw.Global.GeoIPDatabase)
		if err != nil {
			return fmt.Errorf("geoip database %s: %w", raw.Global.GeoIPDatabase, err)
		}
	}

	var uaEnricher *callback.UserAgentEnricher
	if raw.Global.UserAgentRules != "" {
		uaEnricher, err = callback.NewUserAgentEnricher(raw.Global.UserAgentRules)
		if err != nil {
			return fmt.Errorf("useragent rules %s: %w", raw.Global.UserAgentRules, err)
		}
	}

	global := map[string]string{
		"CLF_CONFIG_FILE": c.configFile,
	}

	for _, search := range raw.Searches {
		bs := builtSearch{logfile: search.Logfile}

		if search.Logfile.Exclude != "" {
			bs.exclude, err = regexp.Compile(search.Logfile.Exclude)
			if err != nil {
				return fmt.Errorf("search %s: exclude: %w", search.Logfile.Path, err)
			}
		}

		bs.missingSeverity, err = search.Logfile.MissingSeverity()
		if err != nil {
			return fmt.Errorf("search %s: logfilemissing: %w", search.Logfile.Path, err)
		}

		for _, tagCfg := range search.Tags {
			if !tagCfg.ShouldProcess() {
				continue
			}

			spec, err := buildTagSpec(tagCfg, raw.Global, global, c.noCallback, geo, uaEnricher)
			if err != nil {
				return fmt.Errorf("search %s tag %s: %w", search.Logfile.Path, tagCfg.Name, err)
			}
			spec.ConfigFile = c.configFile
			bs.tags = append(bs.tags, spec)
		}

		built.searches = append(built.searches, bs)
	}

	c.config = built
	return nil
}

func buildTagSpec(tagCfg config.Tag, global config.Global, globalVars map[string]string, noCallback bool, geo *callback.GeoEnricher, ua *callback.UserAgentEnricher) (scanner.TagSpec, error) {
	patterns, err := buildPatternSet(tagCfg)
	if err != nil {
		return scanner.TagSpec{}, err
	}

	opts, err := buildOptions(tagCfg.Options)
	if err != nil {
		return scanner.TagSpec{}, err
	}

	var gate *pattern.Gate
	if tagCfg.Options.Gate != nil {
		gate, err = pattern.CompileGate(*tagCfg.Options.Gate)
		if err != nil {
			return scanner.TagSpec{}, fmt.Errorf("gate: %w", err)
		}
	}

	var dispatcher callback.Dispatcher
	if !noCallback && tagCfg.Callback != nil {
		target, err := buildCallbackTarget(*tagCfg.Callback, global)
		if err != nil {
			return scanner.TagSpec{}, err
		}
		dispatcher, err = callback.NewDispatcher(target, globalVars)
		if err != nil {
			return scanner.TagSpec{}, err
		}
	}

	spec := scanner.TagSpec{
		Name:       tagCfg.Name,
		Patterns:   patterns,
		Options:    opts,
		Gate:       gate,
		Dispatcher: dispatcher,
	}

	if tagCfg.Options.GeoIPCapture != nil {
		spec.GeoEnricher = geo
		spec.GeoIPCapture = *tagCfg.Options.GeoIPCapture
	}
	if tagCfg.Options.UserAgentCapture != nil {
		spec.UserAgentEnricher = ua
		spec.UserAgentCapture = *tagCfg.Options.UserAgentCapture
	}

	return spec, nil
}

func buildPatternSet(tagCfg config.Tag) (*pattern.Set, error) {
	set := &pattern.Set{}

	groups := []struct {
		src *config.PatternGroup
		dst **pattern.Group
	}{
		{tagCfg.Critical, &set.Critical},
		{tagCfg.Warning, &set.Warning},
		{tagCfg.Ok, &set.Ok},
	}

	for _, g := range groups {
		if g.src == nil {
			continue
		}
		compiled, err := pattern.CompileGroup(g.src.Regexes, g.src.Exceptions)
		if err != nil {
			return nil, err
		}
		*g.dst = compiled
	}

	return set, nil
}

func buildOptions(raw config.RawOptions) (rundata.Options, error) {
	opts := rundata.DefaultOptions()

	if raw.RunCallback != nil {
		opts.RunCallback = *raw.RunCallback
	}
	if raw.KeepOutput != nil {
		opts.KeepOutput = *raw.KeepOutput
	}
	if raw.Rewind != nil {
		opts.Rewind = *raw.Rewind
	}
	if raw.FastForward != nil {
		opts.FastForward = *raw.FastForward
	}
	if raw.RunIfOk != nil {
		opts.RunIfOk = *raw.RunIfOk
	}
	if raw.SaveThresholds != nil {
		opts.SaveThresholds = *raw.SaveThresholds
	}
	if raw.Protocol != nil {
		opts.Protocol = *raw.Protocol
	}
	if raw.CriticalThreshold != nil {
		opts.CriticalThreshold = *raw.CriticalThreshold
	}
	if raw.WarningThreshold != nil {
		opts.WarningThreshold = *raw.WarningThreshold
	}
	if raw.RunLimit != nil {
		opts.RunLimit = *raw.RunLimit
	}
	if raw.Truncate != nil {
		opts.Truncate = *raw.Truncate
	}
	if raw.StopAt != nil {
		opts.StopAt = *raw.StopAt
	}

	opts.Normalize()
	return opts, nil
}

func buildCallbackTarget(cb config.CallbackDef, global config.Global) (callback.Target, error) {
	proto, err := callback.ParseProtocol(cb.Protocol)
	if err != nil {
		return callback.Target{}, err
	}

	target := callback.Target{
		Protocol: proto,
		Path:     cb.Path,
		Args:     cb.Args,
		Address:  cb.Address,
		EnvPath:  global.Path,
		PoolSize: 32,
	}

	if proto == callback.ProtocolProcess && !filepath.IsAbs(target.Path) && global.ScriptPath != "" {
		target.Path = filepath.Join(global.ScriptPath, target.Path)
	}

	return target, nil
}

func compressionKindFor(path string) compression.Kind {
	return compression.FromExtension(path)
}

// printRenderedConfig prints the configuration file's raw text for
// --show-rendered. Jinja-style {{ var }} templating from --context/--var
// remains an external collaborator per the design notes - clf itself never
// substitutes placeholders, so "rendered" here means only "as read from
// disk", the same text a templating pre-pass would have received as input.
func (c *clf) printRenderedConfig() error {
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	return nil
}
