package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

// apply copies src into the existing database at dstPath.
func apply(srcPath, dstPath string, mode ogrtranslate.AccessMode, upsert bool) {
	src, err := ogrtranslate.OpenSource(srcPath)
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	opts := ogrtranslate.DefaultOptions()
	opts.AccessMode = mode
	opts.Upsert = upsert
	opts.PreserveFID = upsert

	// Append by column name; source columns missing from the
	// destination are added
	opts.AddMissingFields = true

	dst, res, err := ogrtranslate.TranslatePath(context.Background(), dstPath, src, opts)
	if err != nil {
		log.Fatal(err)
	}
	defer dst.Close()

	fmt.Printf("%s: %d records applied\n", srcPath, res.Written)
}

func main() {
	// Base data
	apply("buoys.geojson", "buoys.sqlite", ogrtranslate.Overwrite, false)

	// Monthly additions
	apply("buoys-new.geojson", "buoys.sqlite", ogrtranslate.Append, false)

	// Corrections replace the records with the same FID
	apply("buoys-fixes.geojson", "buoys.sqlite", ogrtranslate.Update, true)
}
