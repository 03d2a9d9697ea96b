// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/config"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/source"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

func TestMigrateOne(t *testing.T) {
	m := testMigrator(t)
	ctx := context.Background()

	res, err := m.MigrateOne(ctx, []byte(`{"id":"rest","name":"Minimum Rest Days","isHard":true,"category":"rest","parameters":{"minDays":2}}`), source.FormatObject)
	require.NoError(t, err)
	assert.True(t, res.Success, res.Errors)
	assert.Equal(t, "rest", res.ConstraintID)
	require.NotNil(t, res.Constraint)
	require.NotNil(t, res.Validation)
	assert.True(t, res.Validation.IsValid)
	assert.Equal(t, "object", res.Format)

	entries := m.Report().Entries
	require.Len(t, entries, 1)
	assert.Equal(t, "rest", entries[0].ConstraintID)
	assert.True(t, entries[0].Success)
	require.NotNil(t, entries[0].QualityScore)
	assert.Equal(t, fixedNow, entries[0].Timestamp)
}

func TestMigrateOne_ParseErrorIsFailedResult(t *testing.T) {
	m := testMigrator(t)
	res, err := m.MigrateOne(context.Background(), []byte(`{name: launch()}`), source.FormatObject)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotEmpty(t, res.Errors)
	assert.Nil(t, res.Constraint)

	require.Len(t, m.Report().Entries, 1)
	assert.False(t, m.Report().Entries[0].Success)
}

func TestMigrateOne_EmptyInputIsFailedResult(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty array", `[]`},
		{"empty envelope", `{"constraints":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMigrator(t)
			res, err := m.MigrateOne(context.Background(), []byte(tt.input), source.FormatObject)
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.False(t, res.Success)
			assert.Nil(t, res.Constraint)
			require.Len(t, res.Errors, 1)
			assert.Contains(t, res.Errors[0], "no constraint definitions found")

			require.Len(t, m.Report().Entries, 1)
			assert.False(t, m.Report().Entries[0].Success)
		})
	}
}

func TestMigrateValue_EmptyArrayIsFailedResult(t *testing.T) {
	m := testMigrator(t)
	res, err := m.MigrateValue(context.Background(), value.Array(), source.FormatDatabase)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "database", res.Format)
	require.Len(t, m.Report().Entries, 1)
}

func TestMigrateOne_UnknownFormat(t *testing.T) {
	m := testMigrator(t)
	_, err := m.MigrateOne(context.Background(), []byte(`{}`), source.Format("xml"))
	require.Error(t, err)
	assert.True(t, ucdl.IsConfigurationError(err))
	assert.Empty(t, m.Report().Entries)
}

func TestMigrateOne_MultipleRecordsWarns(t *testing.T) {
	m := testMigrator(t)
	res, err := m.MigrateOne(context.Background(), []byte(`[{"name":"A"},{"name":"B"}]`), source.FormatObject)
	require.NoError(t, err)
	assert.Equal(t, "A", res.Name)
	assert.Contains(t, res.Warnings, "Input contained 2 constraints; only the first was migrated")
}

func TestMigrateValue_Database(t *testing.T) {
	m := testMigrator(t)
	row := value.FromObject(value.NewObject().
		Set("constraint_id", value.String("db_1")).
		Set("constraint_name", value.String("Max travel")).
		Set("constraint_weight", value.Number(0.6)).
		Set("constraint_parameters", value.String(`{"maxMiles":500}`)))

	res, err := m.MigrateValue(context.Background(), row, source.FormatDatabase)
	require.NoError(t, err)
	assert.True(t, res.Success, res.Errors)
	assert.Equal(t, "db_1", res.ConstraintID)
	assert.Equal(t, "database", res.Format)
	assert.Equal(t, ucdl.TypeSoft, res.Constraint.Type)
	assert.Equal(t, ucdl.CategoryTravel, res.Constraint.Category)
	assert.Equal(t, ucdl.ParamInteger, res.Constraint.Parameters["maxMiles"].Type)
}

func records(t *testing.T, raw string) []*source.Record {
	t.Helper()
	recs, err := source.NewParser().Parse(context.Background(), []byte(raw), source.FormatObject)
	require.NoError(t, err)
	return recs
}

func TestMigrateRecords_OrderAcrossBatches(t *testing.T) {
	cfg := config.Default()
	cfg.BatchSize = 4
	cfg.Concurrency = 3
	m := New(cfg, WithClock(fixedClock))

	var items []string
	for i := 0; i < 25; i++ {
		items = append(items, fmt.Sprintf(`{"id":"c%02d","name":"Constraint %d","weight":0.5}`, i, i))
	}
	results, err := m.MigrateRecords(context.Background(), records(t, "["+strings.Join(items, ",")+"]"))
	require.NoError(t, err)
	require.Len(t, results, 25)

	entries := m.Report().Entries
	require.Len(t, entries, 25)
	for i, r := range results {
		want := fmt.Sprintf("c%02d", i)
		assert.Equal(t, want, r.ConstraintID)
		assert.True(t, r.Success, r.Errors)
		assert.Equal(t, want, entries[i].ConstraintID)
	}
}

func TestMigrateRecords_IsolatesFailures(t *testing.T) {
	m := testMigrator(t)
	recs := records(t, `[{"id":"ok1","name":"A"},{"id":"bad","name":"B","parameters":{"startDate":"someday"}},{"id":"ok2","name":"C"}]`)
	recs = append(recs[:1], append([]*source.Record{nil}, recs[1:]...)...)

	results, err := m.MigrateRecords(context.Background(), recs)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Errors, ErrNilRecord.Error())
	assert.False(t, results[2].Success, "DATE parameter with a non-date value")
	assert.Equal(t, "bad", results[2].ConstraintID)
	assert.True(t, results[3].Success)

	stats := m.Report().Statistics()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Failed)
}

func TestMigrateRecords_BatchChecksBecomeWarnings(t *testing.T) {
	m := testMigrator(t)
	recs := records(t, `[
		{"id":"a","name":"A","dependsOn":["b"]},
		{"id":"b","name":"B","dependsOn":["a"]},
		{"id":"c","name":"C","dependsOn":["ghost"]}
	]`)

	results, err := m.MigrateRecords(context.Background(), recs)
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.Success, r.ConstraintID)
	}
	assert.Contains(t, strings.Join(results[0].Warnings, "\n"), "ircular")
	assert.Contains(t, strings.Join(results[1].Warnings, "\n"), "ircular")
	assert.Contains(t, results[2].Warnings, "Dependency 'ghost' not found")
}

func TestMigrateRecords_WithoutValidation(t *testing.T) {
	cfg := config.Default()
	cfg.ValidateOutput = false
	m := New(cfg, WithClock(fixedClock))

	results, err := m.MigrateRecords(context.Background(), records(t, `[{"id":"x","name":"X","parameters":{"startDate":"someday"}}]`))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Nil(t, results[0].Validation)
}

func TestMigrateRecords_Cancelled(t *testing.T) {
	m := testMigrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := m.MigrateRecords(ctx, records(t, `[{"name":"A"}]`))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

const twoConstraints = `{"constraints":[
	{"id":"rest","name":"Minimum Rest Days","isHard":true,"category":"rest","parameters":{"minDays":2}},
	{"id":"travel","name":"Travel cap","weight":0.7,"category":"travel"}
]}`

func memFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	}
	return fs
}

func TestMigrateFile(t *testing.T) {
	fs := memFs(t, map[string]string{"/legacy/rules.json": twoConstraints})
	m := testMigrator(t, WithFs(fs))

	fr, err := m.MigrateFile(context.Background(), "/legacy/rules.json")
	require.NoError(t, err)
	assert.Equal(t, 2, fr.Successful())
	assert.Equal(t, "/legacy/rules.ucdl.json", fr.OutputPath)
	assert.Equal(t, "/legacy/rules.json.backup.1740830400000", fr.BackupPath)

	backup, err := afero.ReadFile(fs, fr.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, twoConstraints, string(backup))

	out, err := afero.ReadFile(fs, fr.OutputPath)
	require.NoError(t, err)
	docs, err := ucdl.DecodeDocument(out)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "rest", docs[0].Get("id").Text())
	assert.Equal(t, "/legacy/rules.json", docs[0].Get("metadata").Get("migrationInfo").Get("sourcePath").Text())
	assert.Equal(t, "json", docs[0].Get("metadata").Get("migrationInfo").Get("sourceFormat").Text())

	for _, e := range m.Report().Entries {
		assert.Equal(t, "/legacy/rules.json", e.SourcePath)
	}
}

func TestMigrateFile_OnlySuccessesWritten(t *testing.T) {
	fs := memFs(t, map[string]string{"/legacy/mixed.json": `[{"id":"good","name":"G"},{"id":"bad","name":"B","parameters":{"startDate":"someday"}}]`})
	m := testMigrator(t, WithFs(fs))

	fr, err := m.MigrateFile(context.Background(), "/legacy/mixed.json")
	require.NoError(t, err)
	assert.Equal(t, 1, fr.Successful())
	assert.Equal(t, 1, fr.Failed())

	out, err := afero.ReadFile(fs, "/legacy/mixed.ucdl.json")
	require.NoError(t, err)
	docs, err := ucdl.DecodeDocument(out)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "good", docs[0].Get("id").Text())
}

func TestMigrateFile_DryRun(t *testing.T) {
	fs := memFs(t, map[string]string{"/legacy/rules.json": twoConstraints})
	cfg := config.Default()
	cfg.DryRun = true
	m := New(cfg, WithFs(fs), WithClock(fixedClock))

	fr, err := m.MigrateFile(context.Background(), "/legacy/rules.json")
	require.NoError(t, err)
	assert.Equal(t, 2, fr.Successful())
	assert.Empty(t, fr.OutputPath)
	assert.Empty(t, fr.BackupPath)

	entries, err := afero.ReadDir(fs, "/legacy")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMigrateFile_ParseErrorIsFailedResult(t *testing.T) {
	fs := memFs(t, map[string]string{"/legacy/broken.json": `{"name": "unterminated`})
	m := testMigrator(t, WithFs(fs))

	fr, err := m.MigrateFile(context.Background(), "/legacy/broken.json")
	require.NoError(t, err)
	require.Len(t, fr.Results, 1)
	assert.False(t, fr.Results[0].Success)
	assert.Equal(t, "/legacy/broken.json", fr.Results[0].SourcePath)
	assert.Empty(t, fr.OutputPath)

	exists, err := afero.Exists(fs, "/legacy/broken.ucdl.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMigrateFile_EmptyFileIsFailedResult(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/legacy/none.json":     `[]`,
		"/legacy/envelope.json": `{"constraints":[]}`,
	})
	m := testMigrator(t, WithFs(fs))

	for _, path := range []string{"/legacy/none.json", "/legacy/envelope.json"} {
		fr, err := m.MigrateFile(context.Background(), path)
		require.NoError(t, err, path)
		require.Len(t, fr.Results, 1, path)
		assert.False(t, fr.Results[0].Success, path)
		assert.Contains(t, fr.Results[0].Errors[0], "no constraint definitions found")
		assert.Empty(t, fr.OutputPath, path)
	}
	assert.Len(t, m.Report().Entries, 2)
}

func TestMigrateFile_Missing(t *testing.T) {
	m := testMigrator(t, WithFs(afero.NewMemMapFs()))
	_, err := m.MigrateFile(context.Background(), "/nope.json")
	assert.Error(t, err)
}

func TestMigrateDirectory_IsolatesBadFile(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/legacy/1-rest.json":            `{"id":"rest","name":"Rest","isHard":true}`,
		"/legacy/2-broken.json":          `{ this is not json`,
		"/legacy/sub/3-travel.json":      `{"id":"travel","name":"Travel","weight":0.4}`,
		"/legacy/old.ucdl.json":          `[]`,
		"/legacy/1-rest.json.backup.123": `{}`,
		"/legacy/notes.txt":              `ignore me`,
		"/legacy/node_modules/dep.json":  `{"name":"dependency"}`,
	})
	m := testMigrator(t, WithFs(fs))

	dr, err := m.MigrateDirectory(context.Background(), "/legacy", "")
	require.NoError(t, err)
	require.Len(t, dr.Files, 3)

	assert.Equal(t, "/legacy/1-rest.json", dr.Files[0].Path)
	assert.Equal(t, 1, dr.Files[0].Successful())
	assert.Equal(t, "/legacy/2-broken.json", dr.Files[1].Path)
	assert.Equal(t, 1, dr.Files[1].Failed())
	assert.Equal(t, filepath.Join("/legacy", "sub", "3-travel.json"), dr.Files[2].Path)
	assert.Equal(t, 1, dr.Files[2].Successful())

	total, ok, failed := dr.Totals()
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)

	stats := m.Report().Statistics()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Failed)

	exists, _ := afero.Exists(fs, "/legacy/sub/3-travel.ucdl.json")
	assert.True(t, exists)
}

func TestMigrateDirectory_Pattern(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/legacy/a.json": `{"name":"A"}`,
		"/legacy/b.yaml": "name: B\nweight: 0.5\n",
	})
	m := testMigrator(t, WithFs(fs))

	dr, err := m.MigrateDirectory(context.Background(), "/legacy", `\.ya?ml$`)
	require.NoError(t, err)
	require.Len(t, dr.Files, 1)
	assert.Equal(t, "/legacy/b.yaml", dr.Files[0].Path)
	assert.Equal(t, "B", dr.Files[0].Results[0].Name)
}

func TestMigrateDirectory_Errors(t *testing.T) {
	m := testMigrator(t, WithFs(afero.NewMemMapFs()))

	_, err := m.MigrateDirectory(context.Background(), "/missing", "")
	assert.ErrorIs(t, err, ErrDirectoryNotFound)

	_, err = m.MigrateDirectory(context.Background(), "/", "([")
	require.Error(t, err)
	assert.True(t, ucdl.IsConfigurationError(err))
}

func TestIsGenerated(t *testing.T) {
	assert.True(t, IsGenerated("/x/rules.ucdl.json"))
	assert.True(t, IsGenerated("rules.json.backup.1700000000000"))
	assert.False(t, IsGenerated("rules.json"))
	assert.Equal(t, "/x/rules.ucdl.json", OutputPath("/x/rules.ts"))
}

func TestWatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file watcher test in short mode")
	}
	dir := t.TempDir()
	cfg := config.Default()
	cfg.GenerateBackup = false
	m := New(cfg, WithDebounce(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *FileResult, 4)
	done := make(chan error, 1)
	go func() {
		done <- m.Watch(ctx, dir, "", func(fr *FileResult, err error) {
			if err != nil {
				return
			}
			select {
			case got <- fr:
			default:
			}
		})
	}()

	path := filepath.Join(dir, "rules.json")
	deadline := time.After(5 * time.Second)
	var fr *FileResult
	// The watcher registers asynchronously; rewrite until it reports.
	for fr == nil {
		require.NoError(t, os.WriteFile(path, []byte(`{"id":"w","name":"Watched"}`), 0644))
		select {
		case fr = <-got:
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatal("watcher did not report a migration")
		}
	}

	assert.Equal(t, path, fr.Path)
	assert.Equal(t, 1, fr.Successful())
	_, err := os.Stat(filepath.Join(dir, "rules.ucdl.json"))
	assert.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	m := testMigrator(t)
	err := m.Watch(context.Background(), filepath.Join(t.TempDir(), "missing"), "", nil)
	assert.ErrorIs(t, err, ErrDirectoryNotFound)
}
