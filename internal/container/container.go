// Package container defines the contract the compile queue uses to talk to
// the shared build container. The core never manages container
// lifecycle beyond borrowing it for one compile/test invocation at a time;
// setup/teardown and health management are external collaborators.
package container

import "context"

// CompileResult is the outcome of compiling a project directory.
type CompileResult struct {
	Success      bool
	Errors       []string
	Warnings     []string
	ArtifactPath string
	Output       string
}

// TestResult is the outcome of running a compiled artifact's tests.
type TestResult struct {
	TotalTests  int
	PassedTests int
	Results     []string
	Output      string
}

// Config carries whatever the provider needs to bring a named container up.
type Config struct {
	Name  string
	Image string
	Env   map[string]string
}

// Provider is the interface the compile queue's single consumer calls. Only
// the compile queue's consumer goroutine may call Compile/RunTests; no other
// component is permitted to reach into the container directly.
type Provider interface {
	Setup(ctx context.Context, config Config) error
	IsHealthy(ctx context.Context, name string) bool
	Compile(ctx context.Context, name, projectDir string) (*CompileResult, error)
	RunTests(ctx context.Context, name, artifactPath string) (*TestResult, error)
	Stop(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
}
