package cli

import (
	"github.com/spf13/cobra"
)

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(opts *RootOptions) *cobra.Command {
	cfg := DefaultExportConfig()

	cmd := &cobra.Command{
		Use:   "fingerprint <library-dir>",
		Short: "Print the content fingerprint of a circuit library",
		Long: `Compute the canonical fingerprint of a circuit library under a given
set of export options. The fingerprint is the cache key used by
"netlist --cache": two libraries describing the same circuit produce
the same fingerprint regardless of construction order.`,
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

			lib, err := loadForCommand(args[0], formatter)
			if err != nil {
				return err
			}
			fp, err := exportFingerprint(lib, cfg)
			if err != nil {
				formatter.Error(ErrCodeGeneric, err.Error(), nil)
				return WrapExitError(ExitFailure, "fingerprinting library", err)
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]string{
					"library":     lib.Name(),
					"dialect":     cfg.Dialect,
					"fingerprint": fp,
				})
			}
			return formatter.Success(fp)
		},
	}

	cmd.Flags().StringVarP(&cfg.Dialect, "dialect", "d", cfg.Dialect, "output dialect the key is bound to")
	cmd.Flags().BoolVar(&cfg.Flatten, "flatten", cfg.Flatten, "bind the key to a flattened export")
	cmd.Flags().BoolVar(&cfg.InlineTop, "inline-top", cfg.InlineTop, "bind the key to an inline-top export")

	return cmd
}
