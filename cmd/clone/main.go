// Command clone performs a one-shot dashboard clone onto a target
// database, following cross-dashboard links when asked to.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rpattn/dashclone/internal/cloner"
	"github.com/rpattn/dashclone/internal/config"
	"github.com/rpattn/dashclone/internal/metabase"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	sourceID := flag.Int("source", 0, "source dashboard id (required)")
	newName := flag.String("name", "", "name for the cloned dashboard (required)")
	targetDB := flag.Int("target-db", 0, "target database id")
	targetDBName := flag.String("target-db-name", "", "target database name (alternative to -target-db)")
	collectionID := flag.Int("collection", 0, "collection id for the clone (0 keeps it in the root)")
	withLinked := flag.Bool("linked", false, "also clone dashboards linked from the source")
	flag.Parse()

	if *sourceID == 0 || *newName == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *targetDB == 0 && *targetDBName == "" {
		fmt.Fprintln(os.Stderr, "one of -target-db or -target-db-name is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := metabase.NewClient(cfg.Metabase)

	databaseID := *targetDB
	if databaseID == 0 {
		database, err := client.FindDatabaseByName(ctx, *targetDBName)
		if err != nil {
			log.Fatalf("Failed to find database %q: %v", *targetDBName, err)
		}
		databaseID = database.ID
	}

	req := cloner.Request{
		SourceDashboardID: *sourceID,
		NewName:           *newName,
		TargetDatabaseID:  databaseID,
	}
	if *collectionID != 0 {
		req.DashboardCollectionID = collectionID
		req.QuestionsCollectionID = collectionID
	}

	orchestrator := cloner.New(client)
	var result *cloner.Result
	if *withLinked {
		result, err = orchestrator.CloneWithAllLinked(ctx, req)
	} else {
		result, err = orchestrator.CloneDashboard(ctx, req)
	}
	if err != nil {
		log.Fatalf("Clone failed: %v", err)
	}

	fmt.Printf("Cloned dashboard %d -> %d (%s)\n", *sourceID, result.Dashboard.ID, result.Dashboard.Name)
	fmt.Printf("  questions cloned:  %d\n", len(result.State.Questions))
	fmt.Printf("  dashboards cloned: %d\n", len(result.State.Dashboards))
	if failures := result.State.Failures; len(failures) > 0 {
		fmt.Printf("  failures:          %d\n", len(failures))
		for _, failure := range failures {
			fmt.Printf("    - %s %d (%s): %v\n", failure.Kind, failure.SourceID, failure.Name, failure.Err)
		}
	}
}
