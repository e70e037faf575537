package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"cprqa/internal/engine/wizard"
	"cprqa/internal/shared/util"
)

func newWizardCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Fill in the CanROC master and PCO templates for a report",
		Long: `Walk a report through a CanROC template. Templates are "master" and
"pco" unless configured otherwise. Page saves keep every valid field even
when other fields on the page have problems.

Examples:
  cprqa wizard show <report-id> pco
  cprqa wizard save <report-id> master --page 2 --set cr_sex=1 --clear cr_age
  cprqa wizard cno <report-id> master cr_age --reason "not charted"
  cprqa wizard complete <report-id> master
  cprqa wizard export <report-id> master`,
	}
	cmd.AddCommand(
		newWizardShowCmd(opts),
		newWizardSaveCmd(opts),
		newWizardSetCmd(opts),
		newWizardCNOCmd(opts),
		newWizardClearCNOCmd(opts),
		newWizardCompleteCmd(opts),
		newWizardPayloadCmd(opts),
		newWizardExportCmd(opts),
	)
	return cmd
}

func newWizardShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id> <template>",
		Short: "Show wizard progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			summary, err := s.svc.WizardSummary(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return emit(s.out, s.format, summary, func(w io.Writer) { renderSummary(w, summary) })
		},
	}
}

func newWizardSaveCmd(opts *globalOptions) *cobra.Command {
	var (
		page   int
		sets   []string
		clears []string
	)
	cmd := &cobra.Command{
		Use:   "save <report-id> <template>",
		Short: "Save one page of field values",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseInputs(sets, clears)
			if err != nil {
				return usageError{err}
			}

			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			problems, err := s.svc.SavePage(cmd.Context(), args[0], args[1], page, inputs)
			if err != nil {
				return err
			}
			if problems == nil {
				problems = []string{}
			}
			return emit(s.out, s.format, map[string]any{"page": page, "problems": problems}, func(w io.Writer) {
				renderProblems(w, problems)
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Field value as field_id=value (repeatable)")
	cmd.Flags().StringArrayVar(&clears, "clear", nil, "Field id to clear (repeatable)")
	return cmd
}

func newWizardSetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <report-id> <template> <field> <value>",
		Short: "Store a single field value",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFieldCommand(cmd, opts, func(s *session) (wizard.FieldValue, error) {
				return s.svc.UpsertField(cmd.Context(), args[0], args[1], args[2], args[3])
			})
		},
	}
}

func newWizardCNOCmd(opts *globalOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cno <report-id> <template> <field>",
		Short: "Mark a field as cannot obtain",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFieldCommand(cmd, opts, func(s *session) (wizard.FieldValue, error) {
				return s.svc.MarkCNO(cmd.Context(), args[0], args[1], args[2], reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the value cannot be obtained")
	return cmd
}

func newWizardClearCNOCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cno <report-id> <template> <field>",
		Short: "Undo a cannot-obtain mark",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFieldCommand(cmd, opts, func(s *session) (wizard.FieldValue, error) {
				return s.svc.ClearCNO(cmd.Context(), args[0], args[1], args[2])
			})
		},
	}
}

func runFieldCommand(cmd *cobra.Command, opts *globalOptions, fn func(*session) (wizard.FieldValue, error)) error {
	s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer s.Close()

	fv, err := fn(s)
	if err != nil {
		return err
	}
	return emit(s.out, s.format, fv, func(w io.Writer) { renderField(w, fv) })
}

func newWizardCompleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <report-id> <template>",
		Short: "Finish the template once every required field is filled",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.svc.CompleteWizard(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			summary, err := s.svc.WizardSummary(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return emit(s.out, s.format, summary, func(w io.Writer) { renderSummary(w, summary) })
		},
	}
}

func newWizardPayloadCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "payload <report-id> <template>",
		Short: "Print the values that an export would write",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			payload, err := s.svc.ExportPayload(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return emit(s.out, s.format, payload, func(w io.Writer) {
				for _, id := range util.SortedStringKeys(payload) {
					fmt.Fprintf(w, "%s=%s\n", id, payload[id])
				}
			})
		},
	}
}

func newWizardExportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <report-id> <template>",
		Short: "Append the wizard values to a copy of the template workbook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			path, err := s.svc.ExportWorkbook(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return emit(s.out, s.format, map[string]string{"path": path}, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", greenStyle.Render("exported"), path)
			})
		},
	}
}

// parseInputs turns --set field=value and --clear field flags into page
// inputs. A field named by both is an error.
func parseInputs(sets, clears []string) (map[string]wizard.Input, error) {
	inputs := make(map[string]wizard.Input, len(sets)+len(clears))
	for _, raw := range sets {
		id, value, ok := strings.Cut(raw, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("--set expects field_id=value, got %q", raw)
		}
		inputs[id] = wizard.Set(value)
	}
	for _, raw := range clears {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, fmt.Errorf("--clear expects a field id")
		}
		if _, dup := inputs[id]; dup {
			return nil, fmt.Errorf("field %q is both set and cleared", id)
		}
		inputs[id] = wizard.Clear()
	}
	return inputs, nil
}
