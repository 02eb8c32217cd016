package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasjlepore/sporting/fitcodec"
	"github.com/lucasjlepore/sporting/plan"
	"github.com/lucasjlepore/sporting/store/sqlstore"
)

func main() {
	var (
		out    = flag.String("out", "", "Output .fit path (default: <plan>.fit next to the input)")
		userID = flag.Int64("user", 0, "Persist plan metadata for this user (requires -dsn)")
		driver = flag.String("driver", "sqlite", "Database driver: sqlite or postgres")
		dsn    = flag.String("dsn", "", "Database DSN; empty skips persistence")
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path-to-plan.json>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	inputPath := flag.Arg(0)
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read failed: %v\n", err)
		os.Exit(1)
	}
	var p fitcodec.PlannedWorkout
	if err := json.Unmarshal(raw, &p); err != nil {
		fmt.Fprintf(os.Stderr, "invalid plan json: %v\n", err)
		os.Exit(1)
	}

	if strings.TrimSpace(*out) == "" {
		*out = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".fit"
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var repo plan.Repository
	if *dsn != "" {
		if *userID <= 0 {
			fmt.Fprintln(os.Stderr, "-user is required with -dsn")
			os.Exit(2)
		}
		dialect, err := sqlstore.ParseDialect(*driver)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		st, err := sqlstore.Open(dialect, *dsn, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()
		if err := st.Bootstrap(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
			os.Exit(1)
		}
		repo = st
	}

	// Without a store the metadata is still built; any positive id will do.
	owner := *userID
	if owner <= 0 {
		owner = 1
	}
	published, err := plan.NewService(repo).Publish(ctx, owner, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, published.Data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}

	rec := published.Record
	fmt.Printf("Plan encoded\n")
	fmt.Printf("Plan id:    %s\n", rec.PlanID)
	fmt.Printf("Workout:    %s (%s, %d steps)\n", rec.Name, rec.Sport, len(rec.Steps))
	fmt.Printf("Goals:      %.0f s, %.0f m\n", rec.DurationGoalS, rec.DistanceGoalM)
	fmt.Printf("Output:     %s (%d bytes)\n", *out, len(published.Data))
	if repo != nil {
		fmt.Printf("Stored for: user %d\n", rec.UserID)
	}
}
