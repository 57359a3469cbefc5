package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

func main() {
	src, err := ogrtranslate.OpenSource("stations.geojson")
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	opts := ogrtranslate.DefaultOptions()

	// Integer64 columns become Real, everything else keeps its type
	opts.MapFieldType = map[string]string{"Integer64": "Real"}

	// Drop width, precision and NOT NULL constraints
	opts.UnsetFieldWidth = true
	opts.ForceNullable = true

	// Empty strings become nulls, times are converted to UTC
	opts.EmptyStrAsNull = true
	opts.DateTimeTZ = "UTC"

	// List columns such as readings[] become readings1, readings2, ...
	opts.SplitListFields = true
	opts.MaxSplitListSubfields = 5

	// Carry the source FID into a column
	opts.LayerCreationOptions = map[string]string{"FID": "station_id"}
	opts.PreserveFID = true

	dst, res, err := ogrtranslate.TranslatePath(context.Background(), "stations.sqlite", src, opts)
	if err != nil {
		log.Fatal(err)
	}
	defer dst.Close()

	l := dst.Layer(0)
	fmt.Printf("%s: %d records\n", l.Name(), res.Written)
	for _, f := range l.Schema().Fields {
		fmt.Printf("  %-20s %s\n", f.Name, f.Type)
	}
}
