package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/ingestion"
	"github.com/poiesic/placefinder/refresh"
)

// lockFile is created inside the database directory while an import runs.
const lockFile = ".import.lock"

// placeRecord is one line of an import file.
type placeRecord struct {
	OSMType     string            `json:"osm_type"`
	OSMID       int64             `json:"osm_id"`
	Class       string            `json:"class"`
	Type        string            `json:"type"`
	Names       map[string]string `json:"names"`
	Housenumber string            `json:"housenumber"`
	Postcode    string            `json:"postcode"`
	CountryCode string            `json:"country_code"`
	RankSearch  int               `json:"rank_search"`
	RankAddress int               `json:"rank_address"`
	Importance  float64           `json:"importance"`
	Parent      string            `json:"parent"` // reference like "W1234"
	Lon         float64           `json:"lon"`
	Lat         float64           `json:"lat"`
	BBox        []float64         `json:"bbox"` // min lon, min lat, max lon, max lat
	Address     []string          `json:"address"`
}

func (r *placeRecord) toPlace() (*core.Place, error) {
	p := &core.Place{
		OSMType:     r.OSMType,
		OSMID:       r.OSMID,
		Class:       r.Class,
		Type:        r.Type,
		Names:       r.Names,
		Housenumber: r.Housenumber,
		Postcode:    r.Postcode,
		CountryCode: r.CountryCode,
		RankSearch:  r.RankSearch,
		RankAddress: r.RankAddress,
		Importance:  r.Importance,
		Centroid:    core.Point{Lon: r.Lon, Lat: r.Lat},
		Address:     r.Address,
	}
	if r.Parent != "" {
		p.ParentID = core.IDFromContent(r.Parent)
	}
	switch len(r.BBox) {
	case 0:
	case 4:
		p.BBox = core.BBox{MinLon: r.BBox[0], MinLat: r.BBox[1], MaxLon: r.BBox[2], MaxLat: r.BBox[3]}
	default:
		return nil, fmt.Errorf("bbox needs 4 coordinates, got %d", len(r.BBox))
	}
	return p, nil
}

// readPlaces returns an iterator over the places of a JSON lines stream.
// Decoding stops at the first malformed line.
func readPlaces(r io.Reader, errp *error) iter.Seq[*core.Place] {
	return func(yield func(*core.Place) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			data := scanner.Bytes()
			if len(bytes.TrimSpace(data)) == 0 {
				continue
			}
			var rec placeRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				*errp = fmt.Errorf("line %d: %w", line, err)
				return
			}
			p, err := rec.toPlace()
			if err != nil {
				*errp = fmt.Errorf("line %d: %w", line, err)
				return
			}
			if !yield(p) {
				return
			}
		}
		*errp = scanner.Err()
	}
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(name)
}

// ingestBatched reads places from a source iterator and ingests them in batches.
func ingestBatched(ctx context.Context, pipeline *ingestion.Pipeline, source iter.Seq[*core.Place], batchSize int) (*ingestion.Stats, error) {
	total := &ingestion.Stats{}
	batch := make([]*core.Place, 0, batchSize)
	flush := func() error {
		stats, err := pipeline.Ingest(ctx, batch...)
		if stats != nil {
			total.Places += stats.Places
			total.Postcodes += stats.Postcodes
			total.Skipped += stats.Skipped
		}
		batch = batch[:0]
		return err
	}

	for p := range source {
		batch = append(batch, p)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}

	// Process any remaining places
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func importCommand(c *cli.Context) error {
	ctx := c.Context
	dbPath := c.String("db")
	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return err
	}
	lock := flock.New(filepath.Join(dbPath, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock database: %w", err)
	}
	if !locked {
		return errors.New("another import is running on this database")
	}
	defer lock.Unlock()

	input, err := openInput(c.String("file"))
	if err != nil {
		return err
	}
	defer input.Close()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline(
		ingestion.WithPoolSize(c.Int("workers")),
		ingestion.WithBatchSize(batchSize),
	)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	if !c.Bool("no-phrases") {
		if _, err := pipeline.IngestCountries(ctx, db.Config().Countries); err != nil {
			return err
		}
		if _, err := pipeline.IngestSpecialPhrases(ctx, db.Config().SpecialPhrases); err != nil {
			return err
		}
	}

	var readErr error
	stats, err := ingestBatched(ctx, pipeline, readPlaces(input, &readErr), batchSize)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	if readErr != nil {
		return fmt.Errorf("import stopped after %d places: %w", stats.Places, readErr)
	}
	fmt.Fprintf(c.App.ErrWriter, "Imported %d places and %d postcodes, skipped %d\n",
		stats.Places, stats.Postcodes, stats.Skipped)

	if c.Bool("no-refresh") {
		return nil
	}
	refresher, err := db.NewRefresher(refresh.DefaultConfig(), c.App.ErrWriter)
	if err != nil {
		return err
	}
	if _, err := refresher.Run(ctx); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	return nil
}
