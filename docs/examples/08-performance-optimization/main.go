package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

func main() {
	src, err := ogrtranslate.OpenSource("buildings.geojson")
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	opts := ogrtranslate.DefaultOptions()

	// One transaction per layer instead of one per 100000 records
	opts.GroupTransactions = ogrtranslate.Unlimited
	layerTx := true
	opts.LayerTransaction = &layerTx

	// Skip reading columns that are not written
	opts.SelectFields = []string{"height", "levels"}

	// Progress, reported every 5000 records on streamed sources
	opts.ProgressSampleEvery = 5000
	last := -1
	opts.Progress = func(frac float64, _ string) bool {
		if pct := int(frac * 100); pct/10 != last/10 {
			fmt.Printf("%d%% ", pct)
			last = pct
		}
		return true
	}

	// Give up after a minute; committed groups stay in the output
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	dst, res, err := ogrtranslate.TranslatePath(ctx, "buildings.sqlite", src, opts)
	fmt.Println()
	if err != nil {
		log.Fatal(err)
	}
	defer dst.Close()

	elapsed := time.Since(start)
	fmt.Fprintf(os.Stdout, "%d records in %v (%.0f/s)\n",
		res.Written, elapsed.Round(time.Millisecond), float64(res.Written)/elapsed.Seconds())
}
