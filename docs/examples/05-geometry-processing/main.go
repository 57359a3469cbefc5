package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

func main() {
	src, err := ogrtranslate.OpenSource("coastline.geojson")
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	opts := ogrtranslate.DefaultOptions()

	// Clip to a box in the source CRS; records outside are dropped
	opts.ClipSrc = &ogrtranslate.ClipSpec{WKT: "POLYGON((-72 41,-69 41,-69 43,-72 43,-72 41))"}

	// One record per part of a multi geometry
	opts.ExplodeCollections = true

	// No vertex further than 0.01 degrees from the next
	opts.Segmentize = 0.01

	// Force 2D output
	opts.CoordDim = ogrtranslate.CoordDimXY

	dst, res, err := ogrtranslate.TranslatePath(context.Background(), "coastline-clipped.geojson", src, opts)
	if err != nil {
		log.Fatal(err)
	}
	defer dst.Close()

	fmt.Printf("%d records read, %d parts written, %d outside the clip area\n",
		res.Read, res.Written, res.Dropped)
}
