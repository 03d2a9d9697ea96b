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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLegacyDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE constraints (
		constraint_id TEXT,
		constraint_name TEXT,
		constraint_parameters TEXT,
		constraint_weight REAL,
		is_hard INTEGER,
		created_at TEXT
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO constraints VALUES
		('rest_1', 'Rest Days', '{"minDays": 2}', 1.0, 1, '2022-01-01'),
		('tv_1', 'Broadcast Window', NULL, 0.5, 0, NULL)`)
	require.NoError(t, err)
	return path
}

func TestLoadSQLiteTable(t *testing.T) {
	path := seedLegacyDB(t)
	db, err := OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	recs, err := LoadSQLiteTable(context.Background(), db, DefaultTable)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	rest := recs[0]
	assert.Equal(t, FormatDatabase, rest.SourceType())
	assert.Equal(t, "Rest Days", rest.Name())
	assert.Equal(t, "rest_1", rest.Fields.Lookup("id").Text())
	minDays, ok := rest.Fields.Lookup("parameters").Get("minDays").AsInt()
	assert.True(t, ok)
	assert.Equal(t, 2, minDays)
	hard, _ := rest.Fields.Lookup("isHard").AsBool()
	assert.True(t, hard)
	assert.Equal(t, "constraints", rest.Metadata.Lookup("_table").Text())
	assert.Equal(t, "2022-01-01", rest.Metadata.Lookup("created_at").Text())

	tv := recs[1]
	assert.True(t, tv.Fields.Lookup("parameters").IsNull())
	hard, _ = tv.Fields.Lookup("isHard").AsBool()
	assert.False(t, hard)
}

func TestLoadSQLiteTable_InvalidName(t *testing.T) {
	path := seedLegacyDB(t)
	db, err := OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = LoadSQLiteTable(context.Background(), db, `constraints"; DROP TABLE x; --`)
	assert.Error(t, err)

	_, err = LoadSQLiteTable(context.Background(), db, "missing_table")
	assert.Error(t, err)
}
