package main

import (
	"os"

	"github.com/kacperjurak/goedxcore/cmd/goedxfit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
