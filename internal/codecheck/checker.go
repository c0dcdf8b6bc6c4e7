// Package codecheck evaluates generated code against a task's textual
// pattern constraints and extracts structured errors from raw compiler
// output, adapted from benchflow's internal/parser line-scanning/regexp
// idiom (grounded on parser/rust.go and parser/go.go) and repurposed from
// cross-language benchmark output parsing to ERP code-generation checks.
package codecheck

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/jpequegn/benchflow-eval/internal/model"
)

// PatternResult reports which of a task's required/forbidden patterns were
// violated by a piece of generated code.
type PatternResult struct {
	MissingRequired []string // required patterns absent from the code
	FoundForbidden  []string // forbidden patterns present in the code
}

// Clean reports whether code satisfies every pattern constraint.
func (r PatternResult) Clean() bool {
	return len(r.MissingRequired) == 0 && len(r.FoundForbidden) == 0
}

// PatternChecker evaluates a TaskManifest's RequiredPatterns/
// ForbiddenPatterns against generated code. Patterns are plain substrings,
// matched literally: task manifests in this domain embed exact procedure
// names and keywords, not regular expressions.
type PatternChecker struct{}

// NewPatternChecker creates a PatternChecker.
func NewPatternChecker() *PatternChecker { return &PatternChecker{} }

// Check evaluates code against task's pattern constraints.
func (c *PatternChecker) Check(task model.TaskManifest, code string) PatternResult {
	var result PatternResult
	for _, p := range task.RequiredPatterns {
		if !strings.Contains(code, p) {
			result.MissingRequired = append(result.MissingRequired, p)
		}
	}
	for _, p := range task.ForbiddenPatterns {
		if strings.Contains(code, p) {
			result.FoundForbidden = append(result.FoundForbidden, p)
		}
	}
	return result
}

// FailureReasons translates a PatternResult into the closed failure-reason
// vocabulary.
func (r PatternResult) FailureReasons() []model.FailureReason {
	var reasons []model.FailureReason
	if len(r.MissingRequired) > 0 {
		reasons = append(reasons, model.ReasonMissingRequiredPattern)
	}
	if len(r.FoundForbidden) > 0 {
		reasons = append(reasons, model.ReasonForbiddenPattern)
	}
	return reasons
}

// CompileOutputParser extracts a structured error/warning list from a
// container's raw compile output, for providers whose Compile
// implementation returns unstructured text alongside (or instead of) a
// pre-split Errors/Warnings slice.
type CompileOutputParser struct{}

// NewCompileOutputParser creates a CompileOutputParser.
func NewCompileOutputParser() *CompileOutputParser { return &CompileOutputParser{} }

// Parse scans raw compiler output line by line, classifying lines that
// carry "error" or "warning" markers. A line containing "error" anywhere
// (case-insensitively) is an error, otherwise one containing "warning" is a
// warning, mirroring benchflow's rust/go parsers' per-line classification.
func (p *CompileOutputParser) Parse(output []byte) (errs, warnings []string) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "error"):
			errs = append(errs, line)
		case strings.Contains(lower, "warning"):
			warnings = append(warnings, line)
		}
	}
	return errs, warnings
}

// Summarize renders a one-line human-readable count, used in progress logs.
func Summarize(errs, warnings []string) string {
	return fmt.Sprintf("%d error(s), %d warning(s)", len(errs), len(warnings))
}
