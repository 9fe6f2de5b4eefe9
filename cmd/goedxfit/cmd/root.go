package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kacperjurak/goedxcore/pkg/config"
)

var (
	cfgFile      string
	logLevel     string
	maxCycles    int
	minChiChange float64
	parallel     bool
)

var rootCmd = &cobra.Command{
	Use:   "goedxfit",
	Short: "Peak and background refinement for EDX spectra",
	Long: `goedxfit refines pseudo-Voigt, Gaussian and Lorentzian peaks together with
Chebyshev or interpolated backgrounds against energy-dispersive spectra.

Commands:
  refine  - refine one spectrum from an XY file and a YAML model
  serve   - HTTP service with single and batch refinement`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&maxCycles, "max-cycles", 0, "maximum refinement cycles")
	rootCmd.PersistentFlags().Float64Var(&minChiChange, "min-chi-change", 0, "stop once chi2 improves by less than this")
	rootCmd.PersistentFlags().BoolVar(&parallel, "parallel", false, "refine independent intervals concurrently")
}

// loadConfig reads the config file, if any, and applies the flags the user set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cfgFile != "" {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("max-cycles") {
		cfg.Refinement.MaxCycles = maxCycles
	}
	if flags.Changed("min-chi-change") {
		cfg.Refinement.MinChiChange = minChiChange
	}
	if flags.Changed("parallel") {
		cfg.Refinement.Parallel = parallel
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := cfg.Log.Logger()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return log, nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
