package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

func main() {
	// Open source dataset
	src, err := ogrtranslate.OpenSource("parcels.geojson")
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	// Translate into a new SQLite database
	opts := ogrtranslate.DefaultOptions()
	dst, res, err := ogrtranslate.TranslatePath(context.Background(), "parcels.sqlite", src, opts)
	if err != nil {
		log.Fatal(err)
	}
	if err := dst.Close(); err != nil {
		log.Fatal(err)
	}

	// Print summary
	for _, l := range res.Layers {
		fmt.Printf("%s: %d of %d records written\n", l.Destination, l.Written, l.Read)
	}
}
