package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/export"
	"github.com/lucasjlepore/sporting/fitcodec"
	"github.com/lucasjlepore/sporting/ingest"
	"github.com/lucasjlepore/sporting/observability"
	"github.com/lucasjlepore/sporting/store/sqlstore"
	"github.com/lucasjlepore/sporting/threshold"
)

func main() {
	var (
		userID    = flag.Int64("user", 0, "User id the activity belongs to (required unless -inspect)")
		driver    = flag.String("driver", "sqlite", "Database driver: sqlite or postgres")
		dsn       = flag.String("dsn", "file:sporting.db?_pragma=busy_timeout(5000)", "Database DSN")
		policy    = flag.String("collision", "reject", "Duplicate activity policy: reject or overwrite")
		pointsOut = flag.String("points-out", "", "Optional path for the normalized points (.parquet or .csv)")
		inspect   = flag.Bool("inspect", false, "Only print the structural inventory of the file")
		logLevel  = flag.String("log-level", "warn", "Log level")
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path-to-fit-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read failed: %v\n", err)
		os.Exit(1)
	}

	if *inspect {
		inv, err := fitcodec.Scan(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(inv.String())
		return
	}

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}
	collision, err := activity.ParseCollisionPolicy(*policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	dialect, err := sqlstore.ParseDialect(*driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	log, err := observability.NewLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := sqlstore.Open(dialect, *dsn, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Bootstrap(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}

	svc := ingest.NewService(st, threshold.NewTracker(st, threshold.WithLogger(log)),
		ingest.WithCollisionPolicy(collision), ingest.WithLogger(log))
	receipt, err := svc.Ingest(ctx, *userID, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest failed (%s): %v\n", ingest.ErrorKind(err), err)
		os.Exit(1)
	}

	laps, err := st.Laps(ctx, receipt.Sport, *userID, receipt.ActivityID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read laps: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Run %s: %d points, %d laps (%d unknown messages skipped)\n\n",
		receipt.RunID, receipt.Points, receipt.Laps, receipt.Skipped)
	if err := export.WriteNotes(os.Stdout, receipt.Workout, laps); err != nil {
		fmt.Fprintf(os.Stderr, "notes: %v\n", err)
		os.Exit(1)
	}

	if *pointsOut == "" {
		return
	}
	points, err := st.Points(ctx, receipt.Sport, *userID, receipt.ActivityID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read points: %v\n", err)
		os.Exit(1)
	}
	if err := writePoints(*pointsOut, points); err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nPoints written to %s\n", *pointsOut)
}

func writePoints(path string, points []activity.Point) error {
	if strings.EqualFold(strings.TrimPrefix(filepath.Ext(path), "."), string(export.Parquet)) {
		return export.WritePointsParquet(path, points)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WritePointsCSV(f, points); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
