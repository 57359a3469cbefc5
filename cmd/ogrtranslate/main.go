// Command ogrtranslate converts vector datasets between formats.
//
//	ogrtranslate [flags] dst_datasource src_datasource
//	ogrtranslate run jobs.yaml
//	ogrtranslate formats
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func addCommands(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "run jobfile",
		Short: "Run the translations listed in a YAML job file",
		Args:  cobra.ExactArgs(1),
		Run:   runJobs}
	cmd.Flags().IntP("workers", "j", 0, "parallel jobs (default: number of CPUs)")
	cmd.Flags().Bool("serial", false, "run jobs one after the other")
	cmd.Flags().Bool("keep-going", false, "keep running jobs after a failure")
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "formats",
		Short: "List the supported formats",
		Args:  cobra.NoArgs,
		Run:   listFormats}
	root.AddCommand(cmd)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ogrtranslate [flags] dst_datasource src_datasource",
		Short: "Convert vector data between formats",
		Long: "Copy the layers of src_datasource into dst_datasource, optionally\n" +
			"reprojecting, filtering, clipping and reshaping them on the way.",
		Args: cobra.ExactArgs(2),
		Run:  translateDatasets}
	root.PersistentFlags().BoolP("quiet", "q", false, "silence progress and summary output")
	root.PersistentFlags().Bool("debug", false, "log debug messages")
	addTranslateFlags(root)
	addCommands(root)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
