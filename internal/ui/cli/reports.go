package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cprqa/internal/core/ports"
	"cprqa/internal/data/reports"
)

func newImportCmd(opts *globalOptions) *cobra.Command {
	var (
		date      string
		kind      string
		shocks    int
		simulated bool
	)
	cmd := &cobra.Command{
		Use:   "import <zip|file>",
		Short: "Import a device bundle and score it",
		Long: `Import a CPR-feedback device bundle. Real calls are scored immediately and
both wizard templates are prefilled from the parsed metrics. A bundle whose
content was already imported for the tenant is reported as a duplicate.

With --simulated the argument is a CSV or text export of manikin sessions
("-" reads stdin). Each row becomes one unscored simulated report; --date
is used for rows without a date.

Examples:
  cprqa import case.zip --date 2025-03-14
  cprqa import drill.zip --kind simulated
  cprqa import sessions.csv --simulated --date 2025-03-10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if simulated {
				if cmd.Flags().Changed("kind") || cmd.Flags().Changed("shocks") {
					return usageError{fmt.Errorf("--simulated cannot be combined with --kind or --shocks")}
				}
				return runSimulatedImport(cmd, opts, args[0], date)
			}

			req := ports.ImportRequest{Path: args[0], EventDate: date, Kind: reports.Kind(kind)}
			if cmd.Flags().Changed("shocks") {
				req.ShocksDelivered = &shocks
			}

			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.svc.ImportBundle(cmd.Context(), req)
			if err != nil {
				if res.Report != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "report %s stored as failed; fix the bundle and run: cprqa retry %s\n", res.Report.ID, res.Report.ID)
				}
				return err
			}
			return emit(s.out, s.format, res, func(w io.Writer) {
				if res.Duplicate {
					fmt.Fprintln(w, mutedStyle.Render("bundle already imported"))
				}
				renderReport(w, res.Report)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Event date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&kind, "kind", string(reports.KindRealCall), "Report kind: real_call or simulated")
	cmd.Flags().IntVar(&shocks, "shocks", 0, "Number of shocks delivered, when known")
	cmd.Flags().BoolVar(&simulated, "simulated", false, "Read manikin session rows from a CSV or text file")
	return cmd
}

func runSimulatedImport(cmd *cobra.Command, opts *globalOptions, path, date string) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read simulated sessions: %w", err)
	}

	s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer s.Close()

	created, err := s.svc.ImportSimulated(cmd.Context(), ports.SimulatedImportRequest{
		Content:   string(data),
		EventDate: date,
		Source:    path,
	})
	if err != nil {
		return err
	}
	return emit(s.out, s.format, created, func(w io.Writer) { renderReportList(w, created) })
}

func newRetryCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <report-id>",
		Short: "Re-run parsing for a failed import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.svc.RetryImport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(s.out, s.format, r, func(w io.Writer) { renderReport(w, r) })
		},
	}
}

func newScoreCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "score <report-id>",
		Short: "Recompute the JcLS score of a real call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.svc.Rescore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(s.out, s.format, res, func(w io.Writer) { renderScore(w, res) })
		},
	}
}

func newReportsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect stored reports",
	}
	cmd.AddCommand(newReportsListCmd(opts), newReportsShowCmd(opts), newReportsBackfillCmd(opts))
	return cmd
}

func newReportsListCmd(opts *globalOptions) *cobra.Command {
	var filter struct {
		kind   string
		status string
		limit  int
	}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the active tenant's reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			list, err := s.svc.ListReports(cmd.Context(), reports.Filter{
				Kind:   reports.Kind(filter.kind),
				Status: reports.Status(filter.status),
				Limit:  filter.limit,
			})
			if err != nil {
				return err
			}
			if list == nil {
				list = []*reports.Report{}
			}
			return emit(s.out, s.format, list, func(w io.Writer) { renderReportList(w, list) })
		},
	}
	cmd.Flags().StringVar(&filter.kind, "kind", "", "Only reports of this kind")
	cmd.Flags().StringVar(&filter.status, "status", "", "Only reports with this status")
	cmd.Flags().IntVar(&filter.limit, "limit", 0, "Maximum number of reports")
	return cmd
}

func newReportsShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id>",
		Short: "Show one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.svc.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(s.out, s.format, r, func(w io.Writer) {
				renderReport(w, r)
				if r.Score != nil {
					renderScore(w, r.Score)
				}
			})
		},
	}
}

func newReportsBackfillCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Score completed real calls that have no score yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			count, err := s.svc.Backfill(cmd.Context())
			if err != nil {
				return err
			}
			return emit(s.out, s.format, map[string]int{"backfilled": count}, func(w io.Writer) {
				fmt.Fprintf(w, "%d report(s) scored\n", count)
			})
		},
	}
}
