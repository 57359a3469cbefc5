package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

func safeTranslate(srcPath, dstPath string, opts ogrtranslate.Options) (*ogrtranslate.Result, error) {
	src, err := ogrtranslate.OpenSource(srcPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("source not found: %s", srcPath)
		}
		return nil, err
	}
	defer src.Close()

	dst, res, err := ogrtranslate.TranslatePath(context.Background(), dstPath, src, opts)
	if err != nil {
		return res, err
	}
	return res, dst.Close()
}

func main() {
	// Options that cannot work together fail before anything is opened
	opts := ogrtranslate.DefaultOptions()
	opts.Reproject = true
	if _, err := safeTranslate("soundings.geojson", "out.sqlite", opts); ogrtranslate.IsUsageError(err) {
		log.Printf("Usage error: %v", err)
	}

	// Skip records the destination refuses, logging each one
	opts = ogrtranslate.DefaultOptions()
	opts.SkipFailures = true
	opts.ErrorLog = os.Stderr
	res, err := safeTranslate("soundings.geojson", "out.sqlite", opts)

	var setup *ogrtranslate.SetupError
	var record *ogrtranslate.RecordError
	switch {
	case errors.As(err, &setup):
		log.Printf("Layer %s could not be prepared (%s): %v", setup.Layer, setup.Kind, err)
	case errors.As(err, &record):
		log.Printf("Record %d of %s failed: %v", record.FID, record.Layer, err)
	case errors.Is(err, ogrtranslate.ErrInterrupted):
		log.Printf("Interrupted")
	case err != nil:
		log.Printf("Error: %v", err)
	default:
		fmt.Printf("Written: %d, skipped: %d\n", res.Written, res.Skipped)
	}
}
