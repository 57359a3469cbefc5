package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

func main() {
	src, err := ogrtranslate.OpenSource("wrecks.sqlite")
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	opts := ogrtranslate.DefaultOptions()

	// Only the wrecks layer, renamed on output
	opts.Layers = []string{"wrecks"}
	opts.NewLayerName = "dangerous_wrecks"

	// Attribute filter
	opts.Where = "depth < 10 AND category IN ('dangerous', 'unknown')"

	// Keep three columns, in this order
	opts.SelectFields = []string{"name", "depth", "category"}

	// First 100 matches per layer
	opts.Limit = 100

	dst, res, err := ogrtranslate.TranslatePath(context.Background(), "dangerous.geojson", src, opts)
	if err != nil {
		log.Fatal(err)
	}
	defer dst.Close()

	fmt.Printf("Kept %d of %d wrecks\n", res.Written, res.Read)
}
