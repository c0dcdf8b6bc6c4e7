package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrendCmd_RegisteredUnderRoot(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Name() == "trend" {
			found = true
		}
	}
	assert.True(t, found, "trend command should be registered under root")
}

func TestCompareCmd_RegisteredUnderRoot(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Name() == "compare" {
			found = true
		}
	}
	assert.True(t, found, "compare command should be registered under root")
}

func TestRunCmd_RegisteredUnderRoot(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Name() == "run" {
			found = true
		}
	}
	assert.True(t, found, "run command should be registered under root")
}
