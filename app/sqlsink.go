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
	"math"
	"strings"

	"assoc/association"
	"assoc/fpgrowth"

	"github.com/pkg/errors"
)

// Table names of the output database.
const (
	ItemsTable        = "items"
	AssociationsTable = "associations"
)

// MaxRowsPerStatement is the maximum number of rows inserted by a single INSERT statement.
const MaxRowsPerStatement = 500

var ruleColumns = []string{"antecedent", "consequent", "support", "confidence", "lift", "leverage", "conviction", "rpf"}

// placeholders renders the VALUES list of a multi-row insert for the driver.
func placeholders(driver string, rows, columns int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < columns; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			if driver == "postgres" {
				fmt.Fprintf(&b, "$%d", n)
			} else {
				b.WriteByte('?')
			}
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// insertRows inserts rows in statements of at most MaxRowsPerStatement rows.
func insertRows(ctx context.Context, tx *sql.Tx, driver, table string, columns []string, rows [][]interface{}) error {
	for start := 0; start < len(rows); start += MaxRowsPerStatement {
		end := start + MaxRowsPerStatement
		if end > len(rows) {
			end = len(rows)
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(columns, ", "),
			placeholders(driver, end-start, len(columns)))
		args := make([]interface{}, 0, (end-start)*len(columns))
		for _, row := range rows[start:end] {
			args = append(args, row...)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return errors.Wrapf(err, "insert into %s", table)
		}
	}
	return nil
}

// createTable creates a table. With force, an existing table is dropped first.
func createTable(ctx context.Context, db *sql.DB, table, columns string, force bool) error {
	if force {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return errors.Wrapf(err, "drop table %s", table)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, columns)); err != nil {
		return errors.Wrapf(err, "create table %s (use force to replace an existing table)", table)
	}
	return nil
}

// indexColumn renders an indexed text column; MySQL needs a prefix length on TEXT.
func indexColumn(driver, column string) string {
	if driver == "mysql" {
		return column + "(255)"
	}
	return column
}

// SQLRuleSink inserts rules into the associations table. All rules are inserted in one transaction, so the table
// is either complete or, after Abort, removed.
type SQLRuleSink struct {
	ctx    context.Context
	db     *sql.DB
	tx     *sql.Tx
	driver string
	table  string
	index  bool
}

// NewSQLRuleSink creates the associations table and starts the transaction that fills it.
func NewSQLRuleSink(ctx context.Context, db *sql.DB, driver string, force, index bool) (*SQLRuleSink, error) {
	columns := "antecedent TEXT NOT NULL, consequent TEXT NOT NULL, support DOUBLE PRECISION, " +
		"confidence DOUBLE PRECISION, lift DOUBLE PRECISION, leverage DOUBLE PRECISION, " +
		"conviction DOUBLE PRECISION NULL, rpf DOUBLE PRECISION"
	if err := createTable(ctx, db, AssociationsTable, columns, force); err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	return &SQLRuleSink{ctx: ctx, db: db, tx: tx, driver: driver, table: AssociationsTable, index: index}, nil
}

// Write implements association.Sink.
func (s *SQLRuleSink) Write(rules []association.Rule) error {
	rows := make([][]interface{}, len(rules))
	for i := range rules {
		r := &rules[i]
		var conviction interface{}
		if !math.IsInf(r.Conviction, 0) {
			conviction = r.Conviction
		}
		rows[i] = []interface{}{strings.Join(r.Antecedent, ","), strings.Join(r.Consequent, ","), r.Support,
			r.Confidence, r.Lift, r.Leverage, conviction, r.RPF}
	}
	return insertRows(s.ctx, s.tx, s.driver, s.table, ruleColumns, rows)
}

// Commit implements association.Sink. Indexes are created after the rows are in place.
func (s *SQLRuleSink) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return errors.Wrap(err, "commit rules")
	}
	if !s.index {
		return nil
	}
	for _, column := range []string{"antecedent", "consequent"} {
		stmt := fmt.Sprintf("CREATE INDEX %s_%s_idx ON %s (%s)", s.table, column, s.table,
			indexColumn(s.driver, column))
		if _, err := s.db.ExecContext(s.ctx, stmt); err != nil {
			return errors.Wrapf(err, "index %s.%s", s.table, column)
		}
	}
	return nil
}

// Abort implements association.Sink. The rules are rolled back and the table is dropped.
func (s *SQLRuleSink) Abort() error {
	if err := s.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return errors.Wrap(err, "roll back rules")
	}
	// the run may have been cancelled, so the drop does not use its context
	_, err := s.db.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+s.table)
	return errors.Wrapf(err, "drop table %s", s.table)
}

// WriteItemsSQL stores the support ratio of the given items in the items table.
func WriteItemsSQL(ctx context.Context, db *sql.DB, driver string, table *fpgrowth.SupportTable, items []string,
	force bool) error {
	if err := createTable(ctx, db, ItemsTable, "item TEXT NOT NULL, support DOUBLE PRECISION", force); err != nil {
		return err
	}
	rows := make([][]interface{}, len(items))
	for i, item := range items {
		rows[i] = []interface{}{item, table.Ratio(item)}
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := insertRows(ctx, tx, driver, ItemsTable, []string{"item", "support"}, rows); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit items")
}
