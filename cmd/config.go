package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/geofetch/geofetch/pkg/dataset"
)

// configCmd represents the config command group
//
//nolint:gochecknoglobals // Cobra commands are typically global
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and copy dataset configurations",
	Long:  `Commands for reading and re-identifying persisted dataset configuration documents.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Keep output clean unless explicitly asked for logs
		if !cmd.Flags().Changed("log-level") && !verbose {
			logger.SetLevel(logrus.ErrorLevel)
		}
		return nil
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var configShowCmd = &cobra.Command{
	Use:   "show <dataset-config.json>",
	Short: "Summarize a dataset configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigShow,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var configCopyCmd = &cobra.Command{
	Use:   "copy <dataset-config.json> <new-identifier> [base-path]",
	Short: "Copy a dataset under a new identifier",
	Long: `Copy every file in the dataset's inventory into the layout of a new
identifier, optionally under a different base path, and save the new
configuration.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runConfigCopy,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configCopyCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	doc, err := dataset.ReadDocument(args[0])
	if err != nil {
		return err
	}

	writeDocument(cmd.OutOrStdout(), doc)

	return nil
}

func writeDocument(out io.Writer, doc *dataset.Document) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	data := doc.Data

	fmt.Fprintf(w, "Identifier:\t%s\n", data.Identifier)
	fmt.Fprintf(w, "Implementation:\t%s\n", doc.Implementation)
	fmt.Fprintf(w, "Base path:\t%s\n", data.BasePath)
	fmt.Fprintf(w, "Region:\t%s\n", data.Location)
	fmt.Fprintf(w, "Frequency:\t%s\n", data.Frequency.Name())
	fmt.Fprintf(w, "Output group by:\t%s\n", data.OutputGroupBy.Name())

	fmt.Fprintln(w)
	fmt.Fprintln(w, "VARIABLE\tLEVELS\tFILES")

	for i, name := range data.VarNames {
		var set dataset.LevelSet
		if i < len(data.Levels) {
			set = data.Levels[i]
		}

		levels := "-"
		files := len(data.Files[name])

		if len(set) > 0 {
			parts := make([]string, len(set))
			files = 0

			for j, l := range set {
				parts[j] = strconv.Itoa(l)
				files += len(data.Files[dataset.CompositeName(name, &l)])
			}
			levels = strings.Join(parts, "|")
		}

		fmt.Fprintf(w, "%s\t%s\t%d\n", name, levels, files)
	}

	if len(doc.History) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "HISTORY")

		for _, h := range doc.History {
			fmt.Fprintln(w, h)
		}
	}
}

func runConfigCopy(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	catalog, err := dataset.Open(logger, args[0])
	if err != nil {
		return err
	}

	basePath := ""
	if len(args) == 3 {
		basePath = args[2]
	}

	copied, err := catalog.CopyTo(args[1], basePath)
	if err != nil {
		return err
	}

	path, err := copied.Persist()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Copied %s to %s\n", catalog.Identifier(), path)

	return nil
}
