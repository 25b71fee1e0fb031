// Command seed_catalog loads process definitions and closing periods from a
// JSON file into the database. Existing rows with the same key are replaced.
//
// Usage:
//
//	go run ./cmd/tools/seed_catalog -file catalog.json
//
// Requires DATABASE_URL environment variable to be set.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonathan/closing-engine/internal/closing"
	"github.com/jonathan/closing-engine/internal/db"
)

// seedFile is the on-disk layout of a seed document.
type seedFile struct {
	Processes []closing.ProcessDefinition `json:"processes"`
	Periods   []seedPeriod                `json:"periods"`
}

type seedPeriod struct {
	Month      int    `json:"month"`
	Year       int    `json:"year"`
	CutoffDate string `json:"cutoff_date"`
}

func main() {
	_ = godotenv.Load()

	path := flag.String("file", "", "seed JSON file")
	flag.Parse()
	if *path == "" {
		fmt.Fprintln(os.Stderr, "ERROR: -file is required")
		os.Exit(2)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "ERROR: DATABASE_URL environment variable not set")
		os.Exit(1)
	}

	seed, err := loadSeed(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, dsn, db.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	fmt.Println("=== Catalog Seed ===")
	fmt.Println()

	for _, p := range seed.Processes {
		if err := database.UpsertProcess(ctx, p); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: process %s: %v\n", p.Code, err)
			os.Exit(1)
		}
		fmt.Printf("  ✓ process %-10s %s/%s +%dd\n", p.Code, p.Category, p.DataType, p.GracePeriodDays)
	}

	for _, p := range seed.Periods {
		cutoff, _ := time.Parse(time.DateOnly, p.CutoffDate)
		if err := database.UpsertClosingPeriod(ctx, p.Month, p.Year, cutoff); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: period %02d/%d: %v\n", p.Month, p.Year, err)
			os.Exit(1)
		}
		fmt.Printf("  ✓ period  %02d/%d cutoff %s\n", p.Month, p.Year, p.CutoffDate)
	}

	fmt.Println()
	fmt.Printf("Seeded %d process(es) and %d period(s).\n", len(seed.Processes), len(seed.Periods))
}

// loadSeed reads and checks a seed document.
func loadSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(seed.Processes))
	for i, p := range seed.Processes {
		switch {
		case p.Code == "" || p.Category == "" || p.DataType == "":
			return nil, fmt.Errorf("process #%d: code, category and data_type are required", i+1)
		case seen[p.Code]:
			return nil, fmt.Errorf("process %s is listed twice", p.Code)
		case p.GracePeriodDays < 0:
			return nil, fmt.Errorf("process %s: grace_period_days must be non-negative", p.Code)
		}
		seen[p.Code] = true
	}
	for _, p := range seed.Periods {
		if p.Month < 1 || p.Month > 12 || p.Year < 2000 {
			return nil, fmt.Errorf("period %02d/%d is out of range", p.Month, p.Year)
		}
		if _, err := time.Parse(time.DateOnly, p.CutoffDate); err != nil {
			return nil, fmt.Errorf("period %02d/%d: cutoff_date must be YYYY-MM-DD: %w", p.Month, p.Year, err)
		}
	}
	return &seed, nil
}
