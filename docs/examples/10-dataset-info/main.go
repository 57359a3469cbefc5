package main

import (
	"fmt"
	"log"
	"os"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: dataset-info <datasource>")
		os.Exit(1)
	}

	ds, err := ogrtranslate.OpenSource(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer ds.Close()

	fmt.Printf("Dataset: %s\n", ds.Name())
	for k, v := range ds.Metadata() {
		fmt.Printf("  %s=%s\n", k, v)
	}

	for i := 0; i < ds.LayerCount(); i++ {
		l := ds.Layer(i)
		fmt.Printf("\nLayer %d: %s\n", i+1, l.Name())
		if n := l.FeatureCount(false); n >= 0 {
			fmt.Printf("  Features: %d\n", n)
		}
		if fid := l.FIDColumn(); fid != "" {
			fmt.Printf("  FID column: %s\n", fid)
		}

		s := l.Schema()
		for _, g := range s.GeomFields {
			crs := "unknown"
			if g.CRS != nil {
				crs = g.CRS.String()
			}
			fmt.Printf("  Geometry %q: %s, CRS %s\n", g.Name, g.Type, crs)
		}
		for _, f := range s.Fields {
			fmt.Printf("  %-24s %s\n", f.Name, f.Type)
		}
	}
}
