// Command benchflow-eval runs LLM model variants against a set of
// code-generation tasks and reports pass rates, cost, and rankings.
package main

import (
	"errors"
	"os"

	"github.com/jpequegn/benchflow-eval/internal/cmd"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}

	var exitErr *cmd.ExitCodeError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(1)
}
