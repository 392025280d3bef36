package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/bulkimport/internal/client"
	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/prompt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// maxSummaryReasons caps the failure reasons printed after a run.
const maxSummaryReasons = 10

const allowColumnsFlag = "allow-columns"

func newValidateCmd(a *app) *cobra.Command {
	var (
		docType string
		allowed []string
	)

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a document without sending anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, data, err := a.readDocument(docType, args[0])
			if err != nil {
				return userError(err)
			}

			report, err := core.ValidateDocument(def, data, a.documentOptions(cmd, allowed))
			if err != nil {
				return userError(err)
			}

			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&docType, "type", "t", "", "Document type key (required)")
	addAllowFlag(cmd, &allowed)
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func addAllowFlag(cmd *cobra.Command, allowed *[]string) {
	cmd.Flags().StringSliceVar(allowed, allowColumnsFlag, nil,
		"Extra columns to allow; any other undeclared column fails validation (default: all)")
}

// documentOptions applies --allow-columns when it was given, even empty.
func (a *app) documentOptions(cmd *cobra.Command, allowed []string) core.DocumentOptions {
	opts := a.cfg.Import.DocumentOptions()
	if cmd.Flags().Changed(allowColumnsFlag) {
		opts.Validate.AllowedColumns = append([]string{}, allowed...)
	}
	return opts
}

// runOptions holds the flags of the run command.
type runOptions struct {
	docType    string
	onConflict string
	jsonOutput bool
	allowed    []string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Validate a document and submit its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImport(cmd.Context(), cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.docType, "type", "t", "", "Document type key (required)")
	cmd.Flags().StringVar(&opts.onConflict, "on-conflict", "prompt", "Conflict handling: prompt, skip, override, cancel")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the result as JSON")
	addAllowFlag(cmd, &opts.allowed)
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func (a *app) runImport(ctx context.Context, cmd *cobra.Command, opts runOptions, path string) error {
	provider, err := decisionProvider(opts.onConflict, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	def, data, err := a.readDocument(opts.docType, path)
	if err != nil {
		return userError(err)
	}

	backend := client.New(a.cfg.Client.ServerURL, a.cfg.Client.Timeout)
	coordinator := core.NewCoordinator(backend, a.cfg.Import.CoordinatorOptions(nil))

	job := core.NewImportJob(uuid.NewString(), def)
	logger := a.logger.With("job_id", job.ID, "doc_type", def.Info.Key)

	report, err := coordinator.Validate(job, data, a.documentOptions(cmd, opts.allowed))
	if err != nil {
		return userError(err)
	}
	printReport(cmd.ErrOrStderr(), report)

	job.OnProgress = func(processed, total int) {
		logger.Debug("progress", "processed", processed, "total", total)
	}
	job.OnState = func(s core.JobState) {
		logger.Debug("state changed", "state", string(s))
	}

	// Ctrl-C cancels cooperatively; the in-flight request completes first.
	stop := context.AfterFunc(ctx, job.Cancel)
	defer stop()

	logger.Info("import started", "file", filepath.Base(path), "records", len(job.Records), "server", a.cfg.Client.ServerURL)
	result := coordinator.Run(context.WithoutCancel(ctx), job, provider)
	logger.Info("import finished", "state", string(result.State), "imported", result.Success, "failed", len(result.Failed))

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, result.Summary(maxSummaryReasons))
	}

	if result.State != core.StateCompleted {
		return fmt.Errorf("import %s", result.State)
	}
	return nil
}

// decisionProvider maps the --on-conflict flag to a provider. Prompting
// needs a terminal on stdin.
func decisionProvider(mode string, in io.Reader, out io.Writer) (core.ConflictDecisionProvider, error) {
	switch strings.ToLower(mode) {
	case "prompt":
		if f, ok := in.(*os.File); ok && !prompt.IsInteractive(f) {
			return nil, errors.New("stdin is not a terminal; use --on-conflict skip, override or cancel")
		}
		return prompt.NewTerminal(in, out), nil
	case "skip":
		return core.FixedDecision(core.DecisionSkipAll), nil
	case "override":
		return core.FixedDecision(core.DecisionOverrideAll), nil
	case "cancel":
		return core.FixedDecision(core.DecisionCancelJob), nil
	default:
		return nil, fmt.Errorf("invalid --on-conflict %q (must be prompt, skip, override or cancel)", mode)
	}
}

func newFetchCmd(a *app) *cobra.Command {
	var docType string

	cmd := &cobra.Command{
		Use:   "fetch KEY",
		Short: "Show the stored record for a natural key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := core.Lookup(docType); err != nil {
				return userError(err)
			}

			backend := client.New(a.cfg.Client.ServerURL, a.cfg.Client.Timeout)
			fields, found, err := backend.FetchExisting(cmd.Context(), docType, args[0])
			if err != nil {
				return userError(err)
			}
			if !found {
				return fmt.Errorf("no %s record with key %q", docType, args[0])
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(fields)
		},
	}

	cmd.Flags().StringVarP(&docType, "type", "t", "", "Document type key (required)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newTypesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the supported document types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, def := range core.All() {
				fmt.Fprintf(out, "%-22s %s\n", def.Info.Key, def.Info.Label)
				fmt.Fprintf(out, "%-22s required: %s\n", "", strings.Join(def.RequiredColumns(), ", "))
			}
			return nil
		},
	}
}

// readDocument resolves the document type and reads the file within the size limit.
func (a *app) readDocument(docType, path string) (core.DocumentType, []byte, error) {
	def, err := core.Lookup(docType)
	if err != nil {
		return core.DocumentType{}, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return core.DocumentType{}, nil, err
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil {
		if err := core.CheckFileSize(info.Size(), a.cfg.Import.MaxFileSize); err != nil {
			return core.DocumentType{}, nil, err
		}
	}

	data, err := core.ReadDocument(f, a.cfg.Import.MaxFileSize)
	if err != nil {
		return core.DocumentType{}, nil, err
	}
	return def, data, nil
}

// printReport writes a validation report in human-readable form. Warnings
// already list every rejected row, so the sampled Rejected slice is not repeated.
func printReport(w io.Writer, r *core.ValidationReport) {
	fmt.Fprintf(w, "%s: %d rows, %d valid, %d rejected\n",
		r.DocType, r.Stats.Total, r.Stats.Valid, r.Stats.Invalid)
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "  %s\n", warning)
	}
}

// userError adds the actionable guidance of known errors.
func userError(err error) error {
	if !core.IsUserFacing(err) {
		return err
	}
	msg := core.MapError(err)
	return fmt.Errorf("%w\n  %s (%s)", err, msg.Action, msg.Code)
}
