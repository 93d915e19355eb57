// Command gscasm is a thin driver over the arc and gsc assembler
// packages: it reads a JSON-encoded Assembly from disk and writes the
// resulting binary streams back out. It does no lexing or parsing of
// script source itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func main() {
	root := &cobra.Command{
		Use:   "gscasm",
		Short: "Assemble ARC/GSC bytecode from a JSON assembly IR",
	}
	root.AddCommand(assembleCmd())
	root.AddCommand(batchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
