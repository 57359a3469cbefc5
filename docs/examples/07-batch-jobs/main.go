package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

func main() {
	// jobs.yaml:
	//
	//	jobs:
	//	  - source: roads.geojson
	//	    destination: out/roads.sqlite
	//	    options: {t_srs: "EPSG:3857", nlt: PROMOTE_TO_MULTI}
	//	  - source: rivers.geojson
	//	    destination: out/rivers.sqlite
	//	    options: {where: "length > 1000"}
	jf, err := ogrtranslate.LoadJobFile("jobs.yaml")
	if err != nil {
		log.Fatal(err)
	}

	results, errs := ogrtranslate.RunJobs(context.Background(), jf.Jobs, ogrtranslate.BatchOptions{
		Parallel:   true,
		Workers:    4,
		SkipErrors: true,
		Progress: func(done, total int) {
			fmt.Printf("\rRunning: %d/%d (%.0f%%)", done, total, float64(done)/float64(total)*100)
		},
		ErrorLog: os.Stderr,
	})
	fmt.Println()

	for i, res := range results {
		if res != nil {
			fmt.Printf("%-12s %d written, %d skipped\n", jf.Jobs[i].Name, res.Written, res.Skipped)
		}
	}
	if len(errs) > 0 {
		fmt.Printf("%d jobs failed\n", len(errs))
		os.Exit(1)
	}
}
