package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

func fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}

// Action carries the state of one command invocation.
type Action struct {
	cmd   *cobra.Command
	start time.Time
	quiet bool
}

func newAction(cmd *cobra.Command) *Action {
	result := &Action{cmd: cmd, start: time.Now()}
	result.quiet = result.getBool("quiet")
	return result
}

func (a *Action) Context() context.Context {
	if ctx := a.cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (a *Action) changed(name string) bool {
	return a.cmd.Flags().Changed(name)
}

func (a *Action) getBool(name string) bool {
	result, _ := a.cmd.Flags().GetBool(name)
	return result
}

func (a *Action) getInt(name string) int {
	result, _ := a.cmd.Flags().GetInt(name)
	return result
}

func (a *Action) getInt64(name string) int64 {
	result, _ := a.cmd.Flags().GetInt64(name)
	return result
}

func (a *Action) getFloat64(name string) float64 {
	result, _ := a.cmd.Flags().GetFloat64(name)
	return result
}

func (a *Action) getString(name string) string {
	result, _ := a.cmd.Flags().GetString(name)
	return result
}

// Unset list and map flags read as nil so they keep their "not given"
// meaning in the options.

func (a *Action) getStringArray(name string) []string {
	result, _ := a.cmd.Flags().GetStringArray(name)
	if len(result) == 0 {
		return nil
	}
	return result
}

func (a *Action) getStringSlice(name string) []string {
	result, _ := a.cmd.Flags().GetStringSlice(name)
	if len(result) == 0 {
		return nil
	}
	return result
}

func (a *Action) getFloat64Slice(name string) []float64 {
	result, _ := a.cmd.Flags().GetFloat64Slice(name)
	if len(result) == 0 {
		return nil
	}
	return result
}

func (a *Action) getStringMap(name string) map[string]string {
	result, _ := a.cmd.Flags().GetStringToString(name)
	if len(result) == 0 {
		return nil
	}
	return result
}

// Printf writes status output unless the command is quiet.
func (a *Action) Printf(format string, args ...interface{}) {
	if !a.quiet {
		fmt.Fprintf(a.cmd.OutOrStdout(), format, args...)
	}
}

// Exit reports the outcome and terminates on failure.
func (a *Action) Exit(err error) {
	delta := time.Since(a.start).Seconds()
	if err != nil {
		fatal("%v", err)
	}
	a.Printf("Ok (%.1fs)\n", delta)
}

func (a *Action) summary(res *ogrtranslate.Result) {
	if res == nil {
		return
	}
	for _, l := range res.Layers {
		a.Printf("%s -> %s: %d read, %d written", l.Source, l.Destination, l.Read, l.Written)
		if l.Skipped > 0 {
			a.Printf(", %d skipped", l.Skipped)
		}
		if l.Dropped > 0 {
			a.Printf(", %d outside clip", l.Dropped)
		}
		a.Printf("\n")
	}
}

func translateDatasets(cmd *cobra.Command, args []string) {
	a := newAction(cmd)
	res, err := a.translate(args[0], args[1])
	a.summary(res)
	a.Exit(err)
}

func (a *Action) translate(dstPath, srcPath string) (*ogrtranslate.Result, error) {
	jo, err := jobOptions(a.cmd)
	if err != nil {
		return nil, err
	}
	opts, err := jo.Build()
	if err != nil {
		return nil, err
	}
	opts.ErrorLog = os.Stderr
	if !a.quiet {
		opts.Progress = newTermProgress(os.Stderr).update
	}

	src, err := ogrtranslate.OpenSourceFormat(srcPath, a.getString("src-format"))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open datasource %s", srcPath)
	}
	defer src.Close()

	dst, res, err := ogrtranslate.TranslatePath(a.Context(), dstPath, src, opts)
	if err != nil {
		return res, errors.Wrapf(err, "%s -> %s", srcPath, dstPath)
	}
	if err := dst.Close(); err != nil {
		return res, errors.Wrapf(err, "closing %s", dstPath)
	}
	return res, nil
}

func runJobs(cmd *cobra.Command, args []string) {
	a := newAction(cmd)
	jf, err := ogrtranslate.LoadJobFile(args[0])
	if err != nil {
		fatal("%v", err)
	}

	opts := ogrtranslate.DefaultBatchOptions()
	opts.Parallel = !a.getBool("serial")
	if n := a.getInt("workers"); n > 0 {
		opts.Workers = n
	}
	opts.SkipErrors = a.getBool("keep-going")
	opts.ErrorLog = os.Stderr
	if !a.quiet {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(os.Stderr, "\rjobs: %d/%d", done, total)
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	results, errs := ogrtranslate.RunJobs(a.Context(), jf.Jobs, opts)
	for i, res := range results {
		if res != nil {
			a.Printf("[%s]\n", jf.Jobs[i].Name)
			a.summary(res)
		}
	}
	if len(errs) > 0 {
		a.Exit(errors.Errorf("%d of %d jobs failed", len(errs), len(jf.Jobs)))
	}
	a.Exit(nil)
}

func listFormats(cmd *cobra.Command, args []string) {
	names := ogrtranslate.Drivers()
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
}

// parseGCP reads "pixel line x y [z]".
func parseGCP(s string) (ogrtranslate.GCP, error) {
	var gcp ogrtranslate.GCP
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) != 4 && len(fields) != 5 {
		return gcp, errors.Errorf("invalid GCP %q, expected 'pixel line x y [z]'", s)
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return gcp, errors.Wrapf(err, "invalid GCP %q", s)
		}
		vals[i] = v
	}
	gcp.Pixel, gcp.Line, gcp.X, gcp.Y = vals[0], vals[1], vals[2], vals[3]
	if len(vals) == 5 {
		gcp.Z = vals[4]
	}
	return gcp, nil
}

var wktPrefixes = []string{"POLYGON", "MULTIPOLYGON", "CURVEPOLYGON", "MULTISURFACE", "GEOMETRYCOLLECTION"}

// parseClip reads a clip argument: a box, WKT, spat_extent or a
// datasource path.
func parseClip(s, layer, where string) (*ogrtranslate.ClipConfig, error) {
	if s == "" {
		if layer != "" || where != "" {
			return nil, errors.New("layer and where need a clip datasource")
		}
		return nil, nil
	}
	c := &ogrtranslate.ClipConfig{}
	upper := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case upper == "SPAT_EXTENT":
		c.SpatExtent = true
	case hasAnyPrefix(upper, wktPrefixes):
		c.WKT = s
	default:
		if box, ok := parseBox(s); ok {
			c.Bounds = box
		} else {
			c.File = s
		}
	}
	if (layer != "" || where != "") && c.File == "" {
		return nil, errors.New("layer and where need a clip datasource")
	}
	c.Layer, c.Where = layer, where
	return c, nil
}

func parseBox(s string) ([]float64, bool) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) != 4 {
		return nil, false
	}
	box := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		box[i] = v
	}
	return box, true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// termProgress prints 0...10...20 ... 100 - done.
type termProgress struct {
	w    io.Writer
	last int
}

func newTermProgress(w io.Writer) *termProgress {
	return &termProgress{w: w, last: -1}
}

func (p *termProgress) update(frac float64, _ string) bool {
	step := int(frac * 40)
	for p.last < step && p.last < 40 {
		p.last++
		switch {
		case p.last%4 == 0:
			fmt.Fprintf(p.w, "%d", p.last/4*10)
		default:
			fmt.Fprint(p.w, ".")
		}
	}
	if p.last == 40 && step >= 40 {
		fmt.Fprintln(p.w, " - done.")
		p.last++
	}
	return true
}
