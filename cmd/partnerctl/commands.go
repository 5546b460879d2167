package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"maps"
	"net/http"
	"os"
	"partner-registry/internal/adapters/patchfile"
	"partner-registry/internal/adapters/repositories"
	"partner-registry/internal/api"
	"partner-registry/internal/ingest"
	"partner-registry/internal/registry"
	"partner-registry/internal/services"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newIngestCmd(root *rootOptions) *cobra.Command {
	var (
		merge      bool
		candidates []string
	)

	cmd := &cobra.Command{
		Use:   "ingest [table...]",
		Short: "Normalize raw partner tables into the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(candidates) == 0 {
				return errors.New("ingest: no sources given")
			}

			a, err := wire(cmd.Context(), root.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			sources := make([]registry.Table, 0, len(args)+len(candidates))
			for _, path := range args {
				t, err := readTable(path)
				if err != nil {
					return err
				}
				sources = append(sources, t)
			}
			for _, path := range candidates {
				names, err := readLines(path)
				if err != nil {
					return err
				}
				sources = append(sources, ingest.CandidateRows(names))
			}

			reg, err := a.pipeline.Ingest(cmd.Context(), sources, merge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registry: %d records, %d projects -> %s\n", reg.Len(), len(reg.Projects), root.cfg.RegistryPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&merge, "merge", false, "merge into the existing registry instead of replacing it")
	cmd.Flags().StringSliceVar(&candidates, "candidates", nil, "file with one extracted institution name per line")
	return cmd
}

func newEnrichCmd(root *rootOptions) *cobra.Command {
	var opts services.EnrichOptions

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fill missing coordinates through the geocode cache and service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wire(cmd.Context(), root.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			_, report, err := a.pipeline.Enrich(cmd.Context(), opts)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "filled=%d cache_hits=%d lookups=%d skipped=%d failures=%d\n",
				len(report.Filled), report.CacheHits, report.Lookups, len(report.Skipped), len(report.Failures))
			for _, f := range report.Failures {
				fmt.Fprintln(out, "  "+f.Error())
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "ignore cached resolutions")
	cmd.Flags().BoolVar(&opts.RetryFailed, "retry-failed", false, "re-resolve cached failures")
	return cmd
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	var (
		asJSON bool
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report anomalies in the registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wire(cmd.Context(), root.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			findings, err := a.pipeline.Validate(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(findings); err != nil {
					return err
				}
			} else {
				for _, f := range findings {
					fmt.Fprintln(out, f.String())
				}
				summary := services.Summarize(findings)
				for _, code := range slices.Sorted(maps.Keys(summary)) {
					fmt.Fprintf(out, "%s=%d\n", code, summary[code])
				}
			}

			if strict && len(findings) > 0 {
				return fmt.Errorf("validate: %d findings", len(findings))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print findings as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when there are findings")
	return cmd
}

func newPatchCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch <file.yaml>...",
		Short: "Apply curated patch files, each as one all-or-nothing sequence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wire(cmd.Context(), root.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				pf, err := patchfile.Load(path)
				if err != nil {
					return err
				}
				note := pf.Note
				if note == "" {
					note = path
				}

				_, report, err := a.pipeline.Patch(cmd.Context(), pf.Patches, note)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d ops, %d changed\n", path, len(report.Results), report.Changed())
			}
			return nil
		},
	}
	return cmd
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		runID   string
		restore int64
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List registry snapshots, show a run's patch log, or restore a version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := wire(ctx, root.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			switch {
			case restore > 0:
				snap, err := a.snaps.Get(ctx, restore)
				if err != nil {
					return fmt.Errorf("history: version %d: %w", restore, err)
				}
				reg, err := repositories.Restore(snap, a.pipeline.Catalog)
				if err != nil {
					return err
				}
				if err := a.pipeline.Store.Save(ctx, reg); err != nil {
					return err
				}
				fmt.Fprintf(w, "restored version %d (%s)\n", snap.Version, snap.Note)

			case runID != "":
				entries, err := a.snaps.PatchLog(ctx, runID)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "SEQ\tOP\tCHANGED\tAPPLIED\tPAYLOAD")
				for _, e := range entries {
					fmt.Fprintf(w, "%d\t%s\t%t\t%s\t%s\n", e.Seq, e.Op, e.Changed, e.AppliedAt.Format(time.RFC3339), e.Payload)
				}

			default:
				snaps, err := a.snaps.List(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "VERSION\tRUN\tCREATED\tNOTE")
				for _, s := range snaps {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", strconv.FormatInt(s.Version, 10), s.RunID, s.CreatedAt.Format(time.RFC3339), s.Note)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show the patch log of this run id")
	cmd.Flags().Int64Var(&restore, "restore", 0, "write this snapshot version back to the registry file")
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP view of the registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wire(cmd.Context(), root.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			router := api.NewRouter(api.Deps{
				Store:     a.pipeline.Store,
				Catalog:   a.pipeline.Catalog,
				Validator: a.pipeline.Validator,
				Patches:   a.pipeline.Patches,
				Gatherer:  a.promReg,
			})

			srv := &http.Server{
				Addr:              root.cfg.Addr,
				Handler:           router,
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			go func() {
				<-cmd.Context().Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Printf("Server listening addr=%s", root.cfg.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func readTable(path string) (registry.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return registry.Table{}, fmt.Errorf("read table: %w", err)
	}
	defer f.Close()

	t, err := registry.ReadTable(f)
	if err != nil {
		return registry.Table{}, fmt.Errorf("read table %q: %w", path, err)
	}
	return t, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read candidates %q: %w", path, err)
	}
	return out, nil
}
