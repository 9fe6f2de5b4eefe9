package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kacperjurak/goedxcore"
	"github.com/kacperjurak/goedxcore/pkg/models"
)

const model = `peaks:
  - kind: PseudoVoigt
    params: {center: {value: 6.4}, sigma: {value: 0.06}, amplitude: {value: 900}}
    vary: {center: true, sigma: true, amplitude: true}
backgrounds:
  - kind: Chebyshev
    degree: 2
    params: {xmin: {value: 1}, xmax: {value: 20}}
refinement:
  max_cycles: 3
  min_chi_change: 0.05
`

func TestReadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(model), 0o644))

	req, err := readModel(path)
	require.NoError(t, err)
	require.Len(t, req.Peaks, 1)
	require.Len(t, req.Backgrounds, 1)
	require.NotNil(t, req.Refinement)
	assert.Equal(t, 3, req.Refinement.MaxCycles)

	p, err := goedxcore.PeakFromRecord(req.Peaks[0])
	require.NoError(t, err)
	assert.Equal(t, 6.4, p.Center())
	assert.True(t, p.Varies(goedxcore.Sigma))
	assert.False(t, p.Varies(goedxcore.Fraction))

	b, err := goedxcore.BackgroundFromRecord(req.Backgrounds[0])
	require.NoError(t, err)
	assert.Equal(t, 2, b.Degree())
	assert.True(t, b.CoefVaries(2))
}

func TestReadModel_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("peakz: []\n"), 0o644))
	_, err := readModel(path)
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "json", format("JSON", "out.yaml"))
	assert.Equal(t, "json", format("", "out.json"))
	assert.Equal(t, "yaml", format("", "out.txt"))
	assert.Equal(t, "yaml", format("", ""))
}

func TestWriteResponse(t *testing.T) {
	resp := models.RefineResponse{ID: "s1", Result: goedxcore.Result{Chi2: 0.5, Cycles: 2}}

	var buf bytes.Buffer
	require.NoError(t, writeResponse(&buf, resp, "json"))
	var decoded models.RefineResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 2, decoded.Result.Cycles)

	buf.Reset()
	require.NoError(t, writeResponse(&buf, resp, "yaml"))
	var generic map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &generic))
	assert.Equal(t, "s1", generic["id"])
	assert.Equal(t, 0.5, generic["result"].(map[string]interface{})["chi2"])

	assert.Error(t, writeResponse(&buf, resp, "csv"))
}

func TestWriteFile(t *testing.T) {
	resp := models.RefineResponse{ID: "s1", Result: goedxcore.Result{Chi2: 0.5, Cycles: 2}}
	dir := t.TempDir()

	path := filepath.Join(dir, "out.json")
	require.NoError(t, writeFile(path, resp, "json"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded models.RefineResponse
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "s1", decoded.ID)

	assert.Error(t, writeFile(filepath.Join(dir, "missing", "out.json"), resp, "json"))
	assert.Error(t, writeFile(filepath.Join(dir, "out.csv"), resp, "csv"))
}
