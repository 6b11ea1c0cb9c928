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
	"strconv"

	"github.com/maxmind/geoipupdate/v4/pkg/geoipupdate"
	"github.com/maxmind/geoipupdate/v4/pkg/geoipupdate/database"
)

// runGeoIPUpdate drives github.com/maxmind/geoipupdate to download the
// GeoLite2-City and GeoLite2-Country databases into os.TempDir() for
// --update-geoip; the configured geoip_database path is not used or
// written. It reads the same
// account/license credentials geoipupdate's own CLI expects from
// GEOIPUPDATE_ACCOUNT_ID / GEOIPUPDATE_LICENSE_KEY so operators reuse one
// credential source across clf and MaxMind's own tooling.
func runGeoIPUpdate() error {
	accountID, err := strconv.Atoi(os.Getenv("GEOIPUPDATE_ACCOUNT_ID"))
	if err != nil {
		return fmt.Errorf("geoipupdate config: invalid GEOIPUPDATE_ACCOUNT_ID: %w", err)
	}

	databaseDirectory := os.TempDir()
	config := &geoipupdate.Config{
		AccountID:         accountID,
		LicenseKey:        os.Getenv("GEOIPUPDATE_LICENSE_KEY"),
		DatabaseDirectory: databaseDirectory,
		LockFile:          filepath.Join(databaseDirectory, ".geoipupdate.lock"),
		URL:               "https://updates.maxmind.com",
		EditionIDs:        []string{"GeoLite2-City", "GeoLite2-Country"},
	}

	client := geoipupdate.NewClient(config)
	dbReader := database.NewHTTPDatabaseReader(client, config)

	for _, editionID := range config.EditionIDs {
		filename, err := geoipupdate.GetFilename(config, editionID, client)
		if err != nil {
			return fmt.Errorf("geoipupdate filename for %s: %w", editionID, err)
		}
		filePath := filepath.Join(config.DatabaseDirectory, filename)
		dbWriter, err := database.NewLocalFileDatabaseWriter(filePath, config.LockFile, config.Verbose)
		if err != nil {
			return fmt.Errorf("geoipupdate writer for %s: %w", editionID, err)
		}
		if err := dbReader.Get(dbWriter, editionID); err != nil {
			return fmt.Errorf("geoipupdate run for %s: %w", editionID, err)
		}
	}

	log.Notice("GeoIP database(s) refreshed to %s", config.DatabaseDirectory)
	return nil
}
