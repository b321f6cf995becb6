package main

import (
	"fmt"
	"os"
	"time"

	"github.com/chazu/asmdoc/pkg/config"
	"github.com/chazu/asmdoc/pkg/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Output format for listing commands
	jsonOutput bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "asmdoc",
	Short: "asmdoc - build, inspect and exchange assembly documents",
	Long: `asmdoc builds hierarchical assembly documents from structure definitions
(JSON, YAML or structure scripts) and STEP files, inspects their part and
assembly hierarchy, and writes STEP or binary glTF.

Input files are recognized by extension:
  .json           structure definition
  .yaml, .yml     structure definition
  .lisp, .asm     structure script
  .stp, .step     STEP file (optionally gzip compressed)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// buildCmd compiles an input and optionally writes it out
var buildCmd = &cobra.Command{
	Use:   "build [input]",
	Short: "Build a document and print a summary",
	Long: `Builds a document from the input and prints its parts.
With --output the document is also written; the format follows the
output extension (.glb, .stp, .step, .stp.gz).

Example:
  asmdoc build design.lisp -o design.glb`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

// inspectCmd prints the assembly hierarchy
var inspectCmd = &cobra.Command{
	Use:   "inspect [input] [label]",
	Short: "Print the assembly hierarchy, or one label in detail",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runInspect,
}

// partsCmd lists parts and assemblies
var partsCmd = &cobra.Command{
	Use:   "parts [input]",
	Short: "List parts and assemblies with instance counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runParts,
}

var exportGLBCmd = &cobra.Command{
	Use:   "export-glb [input] [output]",
	Short: "Write the document as binary glTF",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport(formatGLB),
}

var exportSTEPCmd = &cobra.Command{
	Use:   "export-step [input] [output]",
	Short: "Write the document as STEP",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport(formatSTEP),
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "asmdoc.yaml", "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	buildCmd.Flags().StringP("output", "o", "", "Write the document to this file")
	inspectCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	partsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	exportSTEPCmd.Flags().Bool("compress", false, "Gzip the STEP text")
	exportGLBCmd.Flags().Bool("merge-faces", false, "Weld coincident vertices")
	exportGLBCmd.Flags().Bool("uv", false, "Emit texture coordinates")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(partsCmd)
	rootCmd.AddCommand(exportGLBCmd)
	rootCmd.AddCommand(exportSTEPCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
