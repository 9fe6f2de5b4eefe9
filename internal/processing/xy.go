package processing

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kacperjurak/goedxcore"
)

// ReadXY reads a two-column spectrum: energy and counts per line, separated by
// whitespace, commas or semicolons. Blank lines and lines starting with # are skipped;
// extra columns are ignored.
func ReadXY(r io.Reader) (x, y []float64, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t'
		})
		if len(fields) < 2 {
			return nil, nil, fmt.Errorf("%w: line %d: expected 2 columns, got %d", goedxcore.ErrInvalidInput, line, len(fields))
		}
		xv, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: line %d: %v", goedxcore.ErrInvalidInput, line, err)
		}
		yv, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: line %d: %v", goedxcore.ErrInvalidInput, line, err)
		}
		x = append(x, xv)
		y = append(y, yv)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// LoadXY reads a two-column spectrum file
func LoadXY(path string) (x, y []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadXY(f)
}
