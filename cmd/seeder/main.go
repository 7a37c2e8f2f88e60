package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/poiesic/placefinder"
	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/ingestion"
	"github.com/poiesic/placefinder/refresh"
)

// Seed lines have the form
//
//	ref|class|type|name|country|rank|lon|lat|housenumber|postcode|address
//
// where address is a comma separated list of the enclosing place names,
// innermost first.
var places = []string{
	"R51477|boundary|administrative|Deutschland|de|4|10.45|51.16|||",
	"R2202162|boundary|administrative|France|fr|4|2.21|46.23|||",
	"R62422|place|city|Berlin|de|16|13.3889|52.5170|||Deutschland",
	"R7444|place|city|Paris|fr|16|2.3483|48.8535|||France",
	"R62428|place|city|München|de|16|11.5755|48.1372|||Deutschland",
	"R16566|place|suburb|Mitte|de|20|13.3653|52.5310|||Berlin, Deutschland",
	"R1138|place|suburb|Le Marais|fr|20|2.3600|48.8590|||Paris, France",
	"W4611682|highway|primary|Unter den Linden|de|26|13.3880|52.5169||10117|Mitte, Berlin, Deutschland",
	"W26404620|highway|residential|Hauptstraße|de|26|13.3522|52.4878||10827|Berlin, Deutschland",
	"W4598230|highway|residential|Rue de Rivoli|fr|26|2.3522|48.8566||75001|Paris, France",
	"W1034|highway|residential|Leopoldstraße|de|26|11.5856|48.1596||80802|München, Deutschland",
	"N2105|place|house||de|30|13.3525|52.4880|12|10827|Hauptstraße, Berlin, Deutschland",
	"N2106|place|house||de|30|13.3527|52.4881|14a|10827|Hauptstraße, Berlin, Deutschland",
	"N3001|place|house||fr|30|2.3520|48.8565|10|75001|Rue de Rivoli, Paris, France",
	"N240109189|amenity|restaurant|Zur letzten Instanz|de|30|13.4145|52.5170|||Mitte, Berlin, Deutschland",
	"N3346|amenity|bar|Bar Centrale|de|30|13.3865|52.5240|||Mitte, Berlin, Deutschland",
	"N5221|amenity|pharmacy|Pharmacie des Halles|fr|30|2.3460|48.8610|||Paris, France",
	"W22|tourism|museum|Pergamonmuseum|de|30|13.3967|52.5211|||Mitte, Berlin, Deutschland",
	"W23|tourism|museum|Musée du Louvre|fr|30|2.3376|48.8606|||Paris, France",
	"R300|place|postcode|10117|de|25|13.3900|52.5160||10117|Berlin, Deutschland",
}

var (
	dbPath        = flag.String("db", "./gazetteer_db", "database directory")
	seedFileName  = flag.String("src", "", "file of seed data")
	seedBatchSize = flag.Int("batch", 5, "places per batch")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// linesFromSlice returns an iterator over a slice of strings.
func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

func parsePlace(line string) (*core.Place, error) {
	f := strings.Split(line, "|")
	if len(f) != 11 {
		return nil, fmt.Errorf("expected 11 fields, got %d", len(f))
	}
	if len(f[0]) < 2 {
		return nil, fmt.Errorf("bad reference %q", f[0])
	}
	osmID, err := strconv.ParseInt(f[0][1:], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad reference %q: %w", f[0], err)
	}
	rank, err := strconv.Atoi(f[5])
	if err != nil {
		return nil, fmt.Errorf("bad rank %q: %w", f[5], err)
	}
	lon, err := strconv.ParseFloat(f[6], 64)
	if err != nil {
		return nil, err
	}
	lat, err := strconv.ParseFloat(f[7], 64)
	if err != nil {
		return nil, err
	}

	p := &core.Place{
		OSMType:     f[0][:1],
		OSMID:       osmID,
		Class:       f[1],
		Type:        f[2],
		CountryCode: f[4],
		RankSearch:  rank,
		RankAddress: rank,
		Housenumber: f[8],
		Postcode:    f[9],
		Centroid:    core.Point{Lon: lon, Lat: lat},
		// coarse importance so that larger places win ties
		Importance: float64(30-rank) / 30,
	}
	if f[3] != "" {
		p.Names = map[string]string{"name": f[3]}
	}
	for part := range strings.SplitSeq(f[10], ",") {
		if part = strings.TrimSpace(part); part != "" {
			p.Address = append(p.Address, part)
		}
	}
	return p, nil
}

// ingestBatched reads from a source iterator and ingests places in batches.
func ingestBatched(ctx context.Context, pipeline *ingestion.Pipeline, source iter.Seq[string], batchSize int) error {
	batch := make([]*core.Place, 0, batchSize)

	for line := range source {
		if strings.TrimSpace(line) == "" {
			continue
		}
		p, err := parsePlace(line)
		if err != nil {
			return fmt.Errorf("%q: %w", line, err)
		}
		batch = append(batch, p)
		if len(batch) == batchSize {
			if _, err := pipeline.Ingest(ctx, batch...); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	// Process any remaining places
	if len(batch) > 0 {
		if _, err := pipeline.Ingest(ctx, batch...); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	db, err := placefinder.Open(*dbPath)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ingester, err := db.NewIngestionPipeline()
	if err != nil {
		panic(err)
	}
	defer ingester.Release()

	ctx := context.Background()

	if _, err := ingester.IngestCountries(ctx, db.Config().Countries); err != nil {
		panic(err)
	}
	if _, err := ingester.IngestSpecialPhrases(ctx, db.Config().SpecialPhrases); err != nil {
		panic(err)
	}

	// Determine source of seed data
	var source iter.Seq[string]
	if *seedFileName != "" {
		source, err = linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = linesFromSlice(places)
	}

	if err := ingestBatched(ctx, ingester, source, max(*seedBatchSize, 1)); err != nil {
		panic(err)
	}

	refresher, err := db.NewRefresher(refresh.DefaultConfig(), os.Stdout)
	if err != nil {
		panic(err)
	}
	if _, err := refresher.Run(ctx); err != nil {
		panic(err)
	}
}
