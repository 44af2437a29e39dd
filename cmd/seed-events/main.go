package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"voice-geo-go/internal/dataset"
	"voice-geo-go/internal/events"
	"voice-geo-go/internal/logger"
)

// seed-events creates the events table and fills it from a workbook, or with
// two sample rows when none is given.
func main() {
	_ = godotenv.Load()
	log := logger.New().Component("seed-events")

	dbPath := flag.String("db", envOr("EVENTS_DB_PATH", "static/pdscanner.db"), "sqlite database to seed")
	workbook := flag.String("xlsx", envOr("EVENTS_WORKBOOK", ""), "xlsx workbook with historical events")
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		log.WithError(err).Fatal("create db directory")
	}
	store, err := events.Open(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("open events db")
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.WithError(err).Fatal("init schema")
	}

	evs, skipped := events.SampleEvents(), 0
	if *workbook != "" {
		log.WithField("workbook", *workbook).Info("loading workbook")
		evs, skipped, err = dataset.Load(*workbook)
		if err != nil {
			log.WithError(err).Fatal("load workbook")
		}
	}
	n, err := store.Insert(ctx, evs)
	if err != nil {
		log.WithError(err).Fatal("insert events")
	}

	sum := dataset.Summarize(evs, skipped)
	log.WithField("db", *dbPath).
		WithField("inserted", n).
		WithField("skipped", sum.Skipped).
		WithField("first_date", sum.FirstDate).
		WithField("last_date", sum.LastDate).
		WithField("top_titles", sum.TopTitles).
		Info("events seeded")
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
