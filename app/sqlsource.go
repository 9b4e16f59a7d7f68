// ASSOC: Association Discovery over Clinical Encounters
// Copyright (c) 2022 imec vzw.

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
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"assoc/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// OpenDB opens a database with one of the supported drivers: sqlite3, postgres or mysql.
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", driver)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "connect to %s database", driver)
	}
	if driver == "sqlite3" {
		// a single connection keeps in-memory databases alive and avoids lock contention
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// SQLSource reads events from a database. Every query selects an encounter column and an item column; the item
// codes are prefixed with the prefix of their query, so codes from different tables (observations, conditions,
// treatments) do not collide. The union of all queries is read in windows of BinSize rows, ordered by encounter.
type SQLSource struct {
	DB      *sql.DB
	Queries []config.QueryConfig
	BinSize int
}

// statement builds the windowed union query. Prefixes are validated by the configuration.
func (s *SQLSource) statement(limit, offset int) string {
	parts := make([]string, len(s.Queries))
	for i, q := range s.Queries {
		parts[i] = fmt.Sprintf("SELECT q%d.*, '%s' AS category FROM (%s) AS q%d", i, q.Prefix,
			strings.TrimRight(strings.TrimSpace(q.SQL), ";"), i)
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS events ORDER BY 1, 3, 2 LIMIT %d OFFSET %d",
		strings.Join(parts, " UNION ALL "), limit, offset)
}

// Scan implements EventSource.
func (s *SQLSource) Scan(ctx context.Context, fn func(encounter, item string) error) error {
	if len(s.Queries) == 0 {
		return errors.New("no event queries")
	}
	if s.BinSize <= 0 {
		return errors.Errorf("invalid bin size %d", s.BinSize)
	}
	for offset := 0; ; offset += s.BinSize {
		n, err := s.scanWindow(ctx, offset, fn)
		if err != nil {
			return err
		}
		if n < s.BinSize {
			return nil
		}
	}
}

func (s *SQLSource) scanWindow(ctx context.Context, offset int, fn func(encounter, item string) error) (int, error) {
	rows, err := s.DB.QueryContext(ctx, s.statement(s.BinSize, offset))
	if err != nil {
		return 0, errors.Wrapf(err, "query events at offset %d", offset)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var encounter, item, prefix sql.NullString
		if err := rows.Scan(&encounter, &item, &prefix); err != nil {
			return n, errors.Wrap(err, "scan event")
		}
		n++
		if !encounter.Valid {
			continue
		}
		code := ""
		if item.Valid && item.String != "" {
			code = prefix.String + item.String
		}
		if err := fn(encounter.String, code); err != nil {
			return n, err
		}
	}
	return n, errors.Wrap(rows.Err(), "read events")
}
