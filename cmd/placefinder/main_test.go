package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/placefinder"
	"github.com/poiesic/placefinder/core"
)

const samplePlaces = `{"osm_type":"R","osm_id":62422,"class":"place","type":"city","names":{"name":"Berlin"},"country_code":"de","rank_search":16,"rank_address":16,"importance":0.8,"lon":13.4,"lat":52.5}
{"osm_type":"W","osm_id":100,"class":"highway","type":"residential","names":{"name":"Hauptstraße"},"country_code":"de","rank_search":26,"rank_address":26,"lon":13.41,"lat":52.51,"address":["Berlin"]}

{"osm_type":"N","osm_id":200,"class":"place","type":"house","housenumber":"12","parent":"W100","country_code":"de","rank_search":30,"rank_address":30,"lon":13.411,"lat":52.511,"address":["Hauptstraße","Berlin"],"bbox":[13.41,52.51,13.42,52.52]}
`

// runApp runs the CLI and returns what it wrote to stdout and stderr.
func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"placefinder"}, args...))
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func importSample(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "db")
	_, stderr, err := runApp(t, "import", "--db", dbPath, "--file", writeFile(t, "places.jsonl", samplePlaces))
	require.NoError(t, err)
	assert.Contains(t, stderr, "Imported 3 places")
	return dbPath
}

func TestCommandFlags(t *testing.T) {
	t.Run("db is required", func(t *testing.T) {
		for _, cmd := range []string{"import", "search", "analyze", "batch", "refresh-stats"} {
			_, _, err := runApp(t, cmd)
			require.Error(t, err, cmd)
			assert.Contains(t, err.Error(), "db", cmd)
		}
	})

	t.Run("import needs a file", func(t *testing.T) {
		_, _, err := runApp(t, "import", "--db", t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file")
	})

	t.Run("search needs a query", func(t *testing.T) {
		_, _, err := runApp(t, "search", "--db", t.TempDir())
		assert.ErrorContains(t, err, "query is required")
	})

	t.Run("refresh validates numbers", func(t *testing.T) {
		_, _, err := runApp(t, "refresh-stats", "--db", t.TempDir(), "--batch-size", "0")
		assert.ErrorContains(t, err, "batch-size must be greater than 0")
	})

	t.Run("search validates countries", func(t *testing.T) {
		_, _, err := runApp(t, "search", "--db", t.TempDir(), "--countries", "DEU", "berlin")
		assert.ErrorIs(t, err, core.ErrInvalidSearchDetails)
	})
}

func TestImportAndSearch(t *testing.T) {
	dbPath := importSample(t)

	t.Run("search", func(t *testing.T) {
		stdout, _, err := runApp(t, "search", "--db", dbPath, "Berlin")
		require.NoError(t, err)
		assert.Contains(t, stdout, "0: 'Berlin'")
	})

	t.Run("search with explain", func(t *testing.T) {
		_, stderr, err := runApp(t, "search", "--db", dbPath, "--explain", "Hauptstraße", "12,", "Berlin")
		require.NoError(t, err)
		assert.Contains(t, stderr, "query graph")
		assert.Contains(t, stderr, "results after ranking")
	})

	t.Run("analyze", func(t *testing.T) {
		stdout, _, err := runApp(t, "analyze", "--db", dbPath, "Berlin")
		require.NoError(t, err)
		assert.Contains(t, stdout, "searches")
	})

	t.Run("refresh", func(t *testing.T) {
		_, stderr, err := runApp(t, "refresh-stats", "--db", dbPath)
		require.NoError(t, err)
		assert.Contains(t, stderr, "Refresh complete")
	})

	t.Run("batch keeps input order", func(t *testing.T) {
		queries := writeFile(t, "queries.txt", "Berlin\n# comment\n\nNowhere\nHauptstraße, Berlin\n")
		stdout, _, err := runApp(t, "batch", "--db", dbPath, "--file", queries, "--workers", "3", "--rate", "100")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "Berlin\t"))
		assert.Equal(t, "Nowhere\t-", lines[1])
		assert.True(t, strings.HasPrefix(lines[2], "Hauptstraße, Berlin\t"))
	})
}

func TestImport_Locked(t *testing.T) {
	dbPath := t.TempDir()
	lock := flock.New(filepath.Join(dbPath, lockFile))
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer lock.Unlock()

	_, _, err = runApp(t, "import", "--db", dbPath, "--file", writeFile(t, "places.jsonl", samplePlaces))
	assert.ErrorContains(t, err, "another import is running")
}

func TestImport_MalformedLine(t *testing.T) {
	input := writeFile(t, "places.jsonl", samplePlaces+"{not json\n")
	_, _, err := runApp(t, "import", "--db", t.TempDir(), "--file", input, "--no-refresh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 5")
}

func TestReadPlaces(t *testing.T) {
	var readErr error
	var places []*core.Place
	for p := range readPlaces(strings.NewReader(samplePlaces), &readErr) {
		places = append(places, p)
	}
	require.NoError(t, readErr)
	require.Len(t, places, 3)
	assert.Equal(t, core.IDFromContent("W100"), places[2].ParentID)
	assert.Equal(t, core.BBox{MinLon: 13.41, MinLat: 52.51, MaxLon: 13.42, MaxLat: 52.52}, places[2].BBox)

	t.Run("bad bbox", func(t *testing.T) {
		var readErr error
		for range readPlaces(strings.NewReader(`{"osm_type":"N","osm_id":1,"bbox":[1,2]}`), &readErr) {
		}
		assert.ErrorContains(t, readErr, "bbox")
	})
}

func TestRunBatch_Cancelled(t *testing.T) {
	db, err := placefinder.Open("", placefinder.InMemory())
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = runBatch(ctx, db, []string{"a", "b"}, 2, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetupLogger(t *testing.T) {
	newLoggerApp := func(action cli.ActionFunc) *cli.App {
		return &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "log-level",
					Aliases: []string{"l"},
					Value:   "info",
				},
			},
			Before: setupLogger,
			Action: action,
		}
	}
	noop := func(*cli.Context) error { return nil }

	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				require.NoError(t, newLoggerApp(noop).Run([]string{"test", "--log-level", level}))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		err := newLoggerApp(noop).Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		err := newLoggerApp(func(c *cli.Context) error {
			assert.Equal(t, "debug", c.String("log-level"))
			return nil
		}).Run([]string{"test", "-l", "debug"})
		require.NoError(t, err)
	})
}

func TestMain(m *testing.M) {
	// Run tests
	code := m.Run()
	os.Exit(code)
}
