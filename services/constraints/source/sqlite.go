// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// DefaultTable is the legacy constraints table name.
const DefaultTable = "constraints"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// OpenSQLite opens a legacy SQLite database read-only.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}

// LoadSQLiteTable reads every row of a legacy constraints table and maps it
// with the database format.
//
// Description:
//
//	Columns are read in table order. INTEGER and REAL become numbers, TEXT
//	and BLOB become strings, NULL stays null. The table name is stored under
//	"_table" and ends up in record metadata with the other bookkeeping
//	columns.
//
// Inputs:
//   - ctx: Context for the query.
//   - db: An open database handle. Not closed.
//   - table: Table name. Must be a plain identifier.
//
// Outputs:
//   - []*Record: One record per row, in rowid order.
//   - error: Non-nil for invalid table names or query failures.
func LoadSQLiteTable(ctx context.Context, db *sql.DB, table string) ([]*Record, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("load table: invalid table name %q", table)
	}

	ctx, span := startParseSpan(ctx, string(FormatDatabase), "sqlite:"+table, 0)
	defer span.End()
	start := time.Now()

	rows, err := db.QueryContext(ctx, `SELECT * FROM "`+table+`" ORDER BY rowid`)
	if err != nil {
		recordParseMetrics(ctx, string(FormatDatabase), time.Since(start), 0, false)
		return nil, fmt.Errorf("load table %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("load table %s: columns: %w", table, err)
	}

	var records []*Record
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("load table %s: scan: %w", table, err)
		}

		row := value.NewObject()
		for i, col := range columns {
			row.Set(col, sqlValue(raw[i]))
		}
		row.Set("_table", value.String(table))
		records = append(records, databaseRecord(row))
	}
	if err := rows.Err(); err != nil {
		recordParseMetrics(ctx, string(FormatDatabase), time.Since(start), len(records), false)
		return nil, fmt.Errorf("load table %s: %w", table, err)
	}

	setParseSpanResult(span, len(records), 0)
	recordParseMetrics(ctx, string(FormatDatabase), time.Since(start), len(records), true)
	return records, nil
}

func sqlValue(x any) value.Value {
	switch v := x.(type) {
	case nil:
		return value.Null()
	case int64:
		return value.Number(float64(v))
	case float64:
		return value.Number(v)
	case bool:
		return value.Bool(v)
	case string:
		return value.String(v)
	case []byte:
		return value.String(string(v))
	case time.Time:
		return value.String(v.UTC().Format(time.RFC3339))
	default:
		return value.String(fmt.Sprint(v))
	}
}
