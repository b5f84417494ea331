// Command seeder loads NOAA storm event exports into the storm data store.
//
// Usage:
//
//	seeder hail --csv wisconsin_hail_2024_2025.csv
//	seeder storms --csv noaa_hail_storms_2024.csv
//	seeder verify --table storm_events --column state --value WISCONSIN
//	seeder validate --entity hail --csv wisconsin_hail_2024_2025.csv
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	root, a := newRootCmd()
	err := root.ExecuteContext(ctx)
	stop()

	a.pushMetrics()
	if err != nil {
		os.Exit(1)
	}
}
