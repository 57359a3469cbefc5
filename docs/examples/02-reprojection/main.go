package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

func main() {
	src, err := ogrtranslate.OpenSource("harbours.geojson")
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	opts := ogrtranslate.DefaultOptions()

	// Reproject from WGS 84 into Web Mercator
	opts.OutputSRS, err = ogrtranslate.ParseCRS("EPSG:3857")
	if err != nil {
		log.Fatal(err)
	}
	opts.Reproject = true

	// The spatial filter is given in lon/lat and reprojected into the
	// source CRS before it is applied
	opts.SpatialFilter, err = ogrtranslate.ParseWKT("POLYGON((-71.5 42,-71 42,-71 42.5,-71.5 42.5,-71.5 42))")
	if err != nil {
		log.Fatal(err)
	}
	opts.SpatSRS, _ = ogrtranslate.ParseCRS("EPSG:4326")

	// Split features crossing the antimeridian once in the output CRS
	opts.WrapDateline = true

	dst, res, err := ogrtranslate.TranslatePath(context.Background(), "harbours-3857.geojson", src, opts)
	if err != nil {
		log.Fatal(err)
	}
	defer dst.Close()

	fmt.Printf("Reprojected %d features\n", res.Written)
}
