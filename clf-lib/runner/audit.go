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

package runner

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// AuditTrail persists every run's per-tag outcome to a local SQLite
// database via github.com/mattn/go-sqlite3, for the optional --audit-db
// flag - a durable history of dispatches/severities across invocations that
// the snapshot file itself, being overwritten each run, can't provide.
// Grounded on the HelloAnner-job-classifier repo's database/sql + sqlite3
// service pattern (open, ping, prepared exec).
type AuditTrail struct {
	db *sql.DB
}

const createAuditTableSQL = `
CREATE TABLE IF NOT EXISTS run_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_time DATETIME NOT NULL,
	config_file TEXT NOT NULL,
	logfile TEXT NOT NULL,
	tag TEXT NOT NULL,
	severity TEXT NOT NULL,
	lines_scanned INTEGER NOT NULL,
	matched_lines INTEGER NOT NULL,
	dispatch_count INTEGER NOT NULL,
	error TEXT
)`

// OpenAuditTrail opens (creating if needed) the SQLite database at path
func OpenAuditTrail(ctx context.Context, path string) (*AuditTrail, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("runner: open audit db %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("runner: ping audit db %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, createAuditTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("runner: create audit table: %w", err)
	}
	return &AuditTrail{db: db}, nil
}

// RecordRun inserts one row per tag result across every logfile in r, plus
// one row (with an empty tag) per missing logfile
func (a *AuditTrail) RecordRun(ctx context.Context, configFile string, runTimeUnix int64, r Report) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("runner: begin audit tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_audit
		(run_time, config_file, logfile, tag, severity, lines_scanned, matched_lines, dispatch_count, error)
		VALUES (datetime(?, 'unixepoch'), ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("runner: prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, lf := range r.Logfiles {
		if lf.Missing {
			errText := ""
			if lf.Err != nil {
				errText = lf.Err.Error()
			}
			if _, err := stmt.ExecContext(ctx, runTimeUnix, configFile, lf.DeclaredPath, "",
				lf.Severity.String(), 0, 0, 0, errText); err != nil {
				tx.Rollback()
				return fmt.Errorf("runner: insert audit row: %w", err)
			}
			continue
		}

		for _, tag := range lf.Tags {
			errText := ""
			if tag.Err != nil {
				errText = tag.Err.Error()
			}
			if _, err := stmt.ExecContext(ctx, runTimeUnix, configFile, lf.DeclaredPath, tag.Name,
				tag.Severity.String(), tag.LinesScanned, tag.MatchedLines, tag.DispatchCount, errText); err != nil {
				tx.Rollback()
				return fmt.Errorf("runner: insert audit row: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Close releases the underlying database connection
func (a *AuditTrail) Close() error {
	return a.db.Close()
}
