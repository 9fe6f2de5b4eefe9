package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kacperjurak/goedxcore/internal/processing"
	"github.com/kacperjurak/goedxcore/pkg/models"
)

var (
	outputPath   string
	outputFormat string
)

var refineCmd = &cobra.Command{
	Use:   "refine <spectrum.xy> <model.yaml>",
	Short: "Refine one spectrum",
	Long: `Reads a two-column XY spectrum and a YAML model holding the starting peaks and
backgrounds, refines them to precision and writes the refined model.

The model file uses the same fields as the HTTP request body:

  peaks:
    - kind: PseudoVoigt
      params: {center: {value: 6.4}, sigma: {value: 0.06}, amplitude: {value: 900}}
      vary: {center: true, sigma: true, amplitude: true}
  backgrounds:
    - kind: Chebyshev
      degree: 2
      params: {xmin: {value: 1}, xmax: {value: 20}}`,
	Args: cobra.ExactArgs(2),
	RunE: runRefine,
}

func init() {
	refineCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: stdout)")
	refineCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "output format: yaml or json (default: from the output extension, else yaml)")
	rootCmd.AddCommand(refineCmd)
}

func runRefine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		printError("config", err)
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		printError("logger", err)
		return err
	}
	defer func() { _ = log.Sync() }()

	req, err := readModel(args[1])
	if err != nil {
		printError("model", err)
		return err
	}
	if req.X, req.Y, err = processing.LoadXY(args[0]); err != nil {
		printError("spectrum", err)
		return err
	}
	if req.ID == "" {
		req.ID = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}

	resp, err := processing.NewProcessor(cfg.Refinement, log).Process(req)
	if err != nil {
		printError("refinement", err)
		return err
	}

	if outputPath == "" {
		return writeResponse(cmd.OutOrStdout(), resp, format(outputFormat, outputPath))
	}
	if err := writeFile(outputPath, resp, format(outputFormat, outputPath)); err != nil {
		printError("output", err)
		return err
	}
	return nil
}

// writeFile writes the response to path; a failed close is reported like a failed write
func writeFile(path string, resp models.RefineResponse, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeResponse(f, resp, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// readModel decodes a YAML model file into a request without data points
func readModel(path string) (models.RefineRequest, error) {
	var req models.RefineRequest
	f, err := os.Open(path)
	if err != nil {
		return req, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil && err != io.EOF {
		return req, fmt.Errorf("decoding %s: %w", path, err)
	}
	return req, nil
}

func format(explicit, path string) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "yaml"
}

func writeResponse(w io.Writer, resp models.RefineResponse, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(resp); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}
