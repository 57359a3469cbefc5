// Package ogrtranslate converts vector datasets between formats.
//
// It copies the layers of a source dataset into a destination dataset,
// creating or reusing destination layers, and on the way it can select and
// retype attribute columns, filter records by attribute or location,
// reproject and clip geometries, and split list columns into scalar ones.
//
// # Basic Usage
//
//	src, err := ogrtranslate.OpenSource("parcels.geojson")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//
//	opts := ogrtranslate.DefaultOptions()
//	dst, res, err := ogrtranslate.TranslatePath(ctx, "parcels.sqlite", src, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dst.Close()
//
//	fmt.Printf("%d records written\n", res.Written)
//
// The destination driver is picked from the path extension unless
// Options.Format names one. Drivers lists what is available: GeoJSON,
// GeoJSONSeq, SQLite, PostgreSQL, MySQL and an in-memory Memory driver.
//
// # Reprojection
//
//	opts := ogrtranslate.DefaultOptions()
//	opts.OutputSRS, _ = ogrtranslate.ParseCRS("EPSG:3857")
//	opts.Reproject = true
//
// Without Reproject, OutputSRS only tags the output geometries. SourceSRS
// overrides the CRS the source declares. When a layer declares no CRS the
// transformation is set up from the CRS of its first geometry, and a layer
// whose geometries carry different CRSs is reprojected record by record.
//
// # Filtering and Clipping
//
//	opts.Where = "population > 1000"
//	opts.SpatialFilter, _ = ogrtranslate.ParseWKT("POLYGON((0 40,10 40,10 50,0 50,0 40))")
//	opts.ClipSrc = &ogrtranslate.ClipSpec{SpatExtent: true}
//
// ClipSrc clips in the source CRS before reprojection, ClipDst in the
// destination CRS after it. Records whose geometry falls outside the clip
// area are dropped and counted in Result.Dropped.
//
// # Failures and Transactions
//
// By default records are written in transactions of 100000 and the first
// failure stops the run, rolling back the open transaction. With
// SkipFailures each record is its own transaction and failing records are
// logged to ErrorLog and counted in Result.Skipped.
//
// Errors are typed: *UsageError for options that cannot work together,
// reported before any I/O; *SetupError for layers that cannot be prepared;
// *RecordError for records that cannot be translated. ErrInterrupted is
// returned when the context is cancelled or the progress callback asks to
// stop.
//
// # Job Files
//
// A YAML job file describes one or more translations:
//
//	version: "1"
//	jobs:
//	  - name: parcels
//	    source: parcels.geojson
//	    destination: parcels.sqlite
//	    options:
//	      t_srs: EPSG:3857
//	      where: "area > 100"
//	      skip_failures: true
//
// LoadJobFile reads it and RunJobs runs the jobs, in parallel when asked.
package ogrtranslate
