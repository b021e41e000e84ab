// Command bootstrap loads a static GTFS feed into the service
// database, deriving segments and schedule baselines. Run it once
// before starting the server, and again whenever the feed changes:
//
//	bootstrap -gtfs ./feed.zip
package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/crowdeta/transit-eta-go/internal/config"
	"github.com/crowdeta/transit-eta-go/internal/database"
	"github.com/crowdeta/transit-eta-go/internal/gtfs"
)

func main() {
	zipPath := flag.String("gtfs", "", "path to the GTFS zip file")
	flag.Parse()

	if *zipPath == "" {
		log.Fatal("missing required -gtfs flag")
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	if err := database.Init(database.Config{Path: cfg.DBPath}); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	importer := gtfs.NewImporter(database.GetDB())
	version, err := importer.Import(*zipPath)
	if err != nil {
		log.Fatalf("GTFS import failed: %v", err)
	}

	log.Printf("GTFS import complete (feed version %s)", version)
}
