package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	domainerrors "cprqa/internal/core/errors"
)

const versionString = "1.0.0"
const defaultConfigPath = "./data/config/cprqa.toml"

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type globalOptions struct {
	configPath string
	verbose    bool
	format     string
	tenant     string
	logFormat  string
}

// usageError marks bad invocations so Run can exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func Run(args []string) int {
	root := newRootCmd(os.Stdout)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		printError(os.Stderr, err)
		var ue usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "cprqa",
		Short: "CPR quality review: bundle import, JcLS scoring and CanROC data entry",
		Long: `cprqa imports CPR-feedback device bundles, scores real calls with the
JcLS rubric and walks reviewers through the CanROC master and PCO templates
before exporting the rows into the registry workbooks.

Examples:
  cprqa import case.zip --date 2025-03-14 --shocks 2
  cprqa reports list --status failed
  cprqa wizard show <report-id> pco
  cprqa serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case formatText, formatJSON, formatYAML:
			default:
				return usageError{fmt.Errorf("--format must be text, json or yaml, got %q", opts.format)}
			}
			switch opts.logFormat {
			case "text", "json":
			default:
				return usageError{fmt.Errorf("--log-format must be text or json, got %q", opts.logFormat)}
			}
			configureLogging(opts.verbose, opts.logFormat)
			return nil
		},
	}
	root.SetOut(out)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	flags.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	flags.StringVar(&opts.format, "format", formatText, "Output format: text, json or yaml")
	flags.StringVar(&opts.tenant, "tenant", "", "Tenant to activate (defaults to tenants.active)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(
		newImportCmd(opts),
		newRetryCmd(opts),
		newScoreCmd(opts),
		newReportsCmd(opts),
		newWizardCmd(opts),
		newSchemaCmd(opts),
		newServeCmd(opts),
		newHealthCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cprqa v%s\n", versionString)
		},
	}
}

// printError writes the message plus any validation details, one per line.
func printError(w io.Writer, err error) {
	msg := domainerrors.Message(err)
	var de *domainerrors.DomainError
	if errors.As(err, &de) && de.Err != nil {
		msg += ": " + de.Err.Error()
	}
	fmt.Fprintf(w, "error: %s\n", msg)
	for _, detail := range domainerrors.Details(err) {
		fmt.Fprintf(w, "  - %s\n", strings.TrimSpace(detail))
	}
}
