package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/hisyeo/kennings/internal/config"
	"github.com/hisyeo/kennings/internal/database"
	"github.com/hisyeo/kennings/internal/repository"
	"github.com/joho/godotenv"
)

func main() {
	workers := flag.Int("workers", 10, "Number of parallel workers")
	fix := flag.Bool("fix", false, "Write a new version for kennings whose tokens now resolve")
	outputFile := flag.String("output", "audit_results.json", "Output file for results")
	flag.Parse()

	godotenv.Load()
	cfg := config.Load()
	cfg.DBLogLevel = "silent"

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	fmt.Printf("Auditing unresolved kenning words with %d workers...\n", *workers)

	report, err := audit(context.Background(), repository.NewStore(db), *workers, *fix)
	if err != nil {
		log.Fatalf("Audit failed: %v", err)
	}

	fmt.Printf("\n=== Audit Complete ===\n")
	fmt.Printf("Run: %s\n", report.RunID)
	fmt.Printf("Kennings with unresolved words: %d\n", report.Kennings)
	fmt.Printf("Issues found: %d\n", len(report.Issues))
	fmt.Printf("Kennings fixed: %d\n", len(report.Fixed))
	fmt.Printf("Time elapsed: %s\n", report.Elapsed)

	byType := make(map[string]int)
	for _, issue := range report.Issues {
		byType[issue.Type]++
	}
	types := make([]string, 0, len(byType))
	for typ := range byType {
		types = append(types, typ)
	}
	sort.Strings(types)

	fmt.Printf("\n=== Issues by Type ===\n")
	for _, typ := range types {
		fmt.Printf("%s: %d\n", typ, byType[typ])
	}

	jsonData, _ := json.MarshalIndent(report, "", "  ")
	if err := os.WriteFile(*outputFile, jsonData, 0644); err != nil {
		log.Printf("Failed to write output file: %v", err)
	} else {
		fmt.Printf("\nResults saved to %s\n", *outputFile)
	}
}
