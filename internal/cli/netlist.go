package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/voltlab/netir/internal/cache"
	"github.com/voltlab/netir/internal/compiler"
	"github.com/voltlab/netir/internal/ir"
	"github.com/voltlab/netir/internal/netlist"
	"github.com/voltlab/netir/internal/store"
)

// dialects is the registry of supported output dialects.
var dialects = map[string]netlist.Dialect{
	"spectre": netlist.Spectre{},
	"spice":   netlist.Spice{},
}

// DialectNames returns the registered dialect names in stable order.
func DialectNames() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewNetlistCommand creates the netlist command.
func NewNetlistCommand(opts *RootOptions) *cobra.Command {
	var (
		optsFile string
		cfg      = DefaultExportConfig()
	)

	cmd := &cobra.Command{
		Use:   "netlist <library-dir>",
		Short: "Export a circuit library as a simulator netlist",
		Long: `Load a circuit library from CUE files, validate it, and export it in
the selected netlist dialect. With --cache, the generated netlist is
stored in a content-addressed artifact database and identical inputs
reuse the stored bytes instead of re-exporting.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    opts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   opts.Verbose,
			}
			if optsFile != "" {
				fileCfg, err := LoadExportConfig(optsFile)
				if err != nil {
					formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
					return WrapExitError(ExitCommandError, "loading options file", err)
				}
				// Flags set explicitly on the command line win over
				// the options file.
				merged := fileCfg
				if cmd.Flags().Changed("dialect") {
					merged.Dialect = cfg.Dialect
				}
				if cmd.Flags().Changed("flatten") {
					merged.Flatten = cfg.Flatten
				}
				if cmd.Flags().Changed("inline-top") {
					merged.InlineTop = cfg.InlineTop
				}
				if cmd.Flags().Changed("output") {
					merged.Output = cfg.Output
				}
				if cmd.Flags().Changed("cache") {
					merged.CachePath = cfg.CachePath
				}
				cfg = merged
			}
			return runNetlist(cmd.Context(), args[0], cfg, formatter)
		},
	}

	cmd.Flags().StringVarP(&cfg.Dialect, "dialect", "d", cfg.Dialect,
		fmt.Sprintf("output dialect %v", DialectNames()))
	cmd.Flags().BoolVar(&cfg.Flatten, "flatten", cfg.Flatten, "inline all hierarchy before export")
	cmd.Flags().BoolVar(&cfg.InlineTop, "inline-top", cfg.InlineTop, "emit the top cell body at file scope")
	cmd.Flags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "output file (default stdout)")
	cmd.Flags().StringVar(&cfg.CachePath, "cache", cfg.CachePath, "artifact database path (enables caching)")
	cmd.Flags().StringVar(&optsFile, "opts", "", "YAML options file")

	return cmd
}

func runNetlist(ctx context.Context, dir string, cfg ExportConfig, formatter *OutputFormatter) error {
	dialect, ok := dialects[cfg.Dialect]
	if !ok {
		msg := fmt.Sprintf("unknown dialect %q: must be one of %v", cfg.Dialect, DialectNames())
		formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	lib, err := loadForCommand(dir, formatter)
	if err != nil {
		return err
	}

	issues := compiler.Validate(lib)
	if !issues.OK() {
		formatter.Error(ErrCodeGeneric,
			fmt.Sprintf("library %q failed validation: %d error(s)", lib.Name(), issues.NumErrors()),
			issues.Diagnostics)
		if formatter.Format == "text" {
			fmt.Fprint(formatter.Writer, issues.String())
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	fp, err := exportFingerprint(lib, cfg)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "fingerprinting library", err)
	}
	formatter.VerboseLog("export fingerprint %s", fp)

	compute := func(ctx context.Context) (*cache.Artifact, error) {
		data, err := exportBytes(lib, dialect, cfg)
		if err != nil {
			return nil, err
		}
		return &cache.Artifact{
			Fingerprint: fp,
			Kind:        "netlist/" + cfg.Dialect,
			Data:        data,
		}, nil
	}

	var data []byte
	if cfg.CachePath != "" {
		st, err := store.Open(cfg.CachePath)
		if err != nil {
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "opening artifact database", err)
		}
		c := cache.New(st)
		defer c.Close()

		art, err := c.GetOrCompute(ctx, fp, compute)
		if err != nil {
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitFailure, "exporting netlist", err)
		}
		data = art.Data
	} else {
		art, err := compute(ctx)
		if err != nil {
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitFailure, "exporting netlist", err)
		}
		data = art.Data
	}

	if cfg.Output == "" {
		if _, err := formatter.Writer.Write(data); err != nil {
			return WrapExitError(ExitCommandError, "writing netlist", err)
		}
		return nil
	}
	if err := os.WriteFile(cfg.Output, data, 0o644); err != nil {
		formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "writing netlist", err)
	}
	formatter.VerboseLog("wrote %d byte(s) to %s", len(data), cfg.Output)
	return nil
}

// exportFingerprint computes the cache key for an export: the library
// fingerprint bound to every option that changes the emitted bytes. The
// key is computed on the source library, so a cache hit skips the
// flatten/uniquify/resolve passes entirely.
func exportFingerprint(lib *ir.Library, cfg ExportConfig) (string, error) {
	return ir.Fingerprint(lib, map[string]any{
		"dialect":    cfg.Dialect,
		"flatten":    cfg.Flatten,
		"inline_top": cfg.InlineTop,
	})
}

// exportBytes runs the export pipeline over lib: optional flattening, then
// identifier legalization for the dialect, blackbox resolution, and
// emission.
func exportBytes(lib *ir.Library, dialect netlist.Dialect, cfg ExportConfig) ([]byte, error) {
	if cfg.Flatten || !dialect.SupportsHierarchy() {
		if _, err := compiler.Flatten(lib, compiler.InlineAll); err != nil {
			return nil, fmt.Errorf("flattening: %w", err)
		}
	}
	rules := dialect.IdentRules()
	if _, err := compiler.Uniquify(lib, &rules); err != nil {
		return nil, fmt.Errorf("legalizing identifiers: %w", err)
	}
	if err := compiler.ResolveBlackBoxes(lib, dialect.Name(), dialect.FormatBit); err != nil {
		return nil, fmt.Errorf("resolving blackboxes: %w", err)
	}

	var buf bytes.Buffer
	if err := netlist.Export(&buf, lib, dialect, netlist.Options{InlineTop: cfg.InlineTop}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
