package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

// binaryPath holds the path to the compiled binary (set once in TestMain)
var binaryPath string

// testContext holds state for a single scenario
type testContext struct {
	tmpDir   string
	exitCode int
	output   string
}

// buildBinary compiles the spinesuv binary once
func buildBinary() (string, error) {
	tmpFile, err := os.CreateTemp("", "spinesuv-test-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpFile.Close()

	cmd := exec.Command("go", "build", "-o", tmpFile.Name(), ".")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("build failed: %w\n%s", err, stderr.String())
	}
	return tmpFile.Name(), nil
}

// TestMain compiles the binary once before running all tests
func TestMain(m *testing.M) {
	var err error
	binaryPath, err = buildBinary()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build binary: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Remove(binaryPath)
	os.Exit(code)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func InitializeScenario(sc *godog.ScenarioContext) {
	tc := &testContext{}

	sc.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tmpDir, err := os.MkdirTemp("", "spinesuv-e2e-*")
		if err != nil {
			return ctx, err
		}
		tc.tmpDir = tmpDir
		return ctx, nil
	})

	sc.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if tc.tmpDir != "" {
			os.RemoveAll(tc.tmpDir)
		}
		return ctx, nil
	})

	sc.Step(`^spinesuv is built$`, tc.spinesuvIsBuilt)
	sc.Step(`^I run spinesuv with "([^"]*)"$`, tc.iRunSpinesuvWith)
	sc.Step(`^the exit code should be (\d+)$`, tc.theExitCodeShouldBe)
	sc.Step(`^the output should contain "([^"]*)"$`, tc.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, tc.theOutputShouldNotContain)
	sc.Step(`^"([^"]*)" should contain (\d+) DICOM files$`, tc.shouldContainDICOMFiles)
	sc.Step(`^"([^"]*)" should contain (\d+) patient directories$`, tc.shouldContainPatientDirs)
	sc.Step(`^"([^"]*)" should exist$`, tc.shouldExist)
}

func (tc *testContext) spinesuvIsBuilt() error {
	if binaryPath == "" {
		return fmt.Errorf("binary not built")
	}
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		return fmt.Errorf("binary does not exist at %s", binaryPath)
	}
	return nil
}

func (tc *testContext) iRunSpinesuvWith(args string) error {
	args = strings.ReplaceAll(args, "{tmpdir}", tc.tmpDir)

	cmd := exec.Command(binaryPath, splitArgs(args)...)
	// Keep the developer's environment from redirecting checkpoints or results.
	cmd.Env = filterEnv(os.Environ(), "SPINESUV_")
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	tc.output = output.String()

	if exitErr, ok := err.(*exec.ExitError); ok {
		tc.exitCode = exitErr.ExitCode()
	} else if err != nil {
		return fmt.Errorf("failed to run command: %w", err)
	} else {
		tc.exitCode = 0
	}
	return nil
}

func (tc *testContext) theExitCodeShouldBe(expected int) error {
	if tc.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nOutput:\n%s", expected, tc.exitCode, tc.output)
	}
	return nil
}

func (tc *testContext) theOutputShouldContain(expected string) error {
	if !strings.Contains(tc.output, expected) {
		return fmt.Errorf("output does not contain %q\nOutput:\n%s", expected, tc.output)
	}
	return nil
}

func (tc *testContext) theOutputShouldNotContain(unexpected string) error {
	if strings.Contains(tc.output, unexpected) {
		return fmt.Errorf("output contains %q\nOutput:\n%s", unexpected, tc.output)
	}
	return nil
}

func (tc *testContext) shouldContainDICOMFiles(path string, count int) error {
	path = strings.ReplaceAll(path, "{tmpdir}", tc.tmpDir)

	var n int
	err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".dcm") {
			n++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", path, err)
	}
	if n != count {
		return fmt.Errorf("expected %d DICOM files, found %d", count, n)
	}
	return nil
}

func (tc *testContext) shouldContainPatientDirs(path string, count int) error {
	path = strings.ReplaceAll(path, "{tmpdir}", tc.tmpDir)

	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	var n int
	for _, e := range entries {
		if e.IsDir() {
			n++
		}
	}
	if n != count {
		return fmt.Errorf("expected %d patient directories, found %d", count, n)
	}
	return nil
}

func (tc *testContext) shouldExist(path string) error {
	path = strings.ReplaceAll(path, "{tmpdir}", tc.tmpDir)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("path does not exist: %s", path)
	}
	return nil
}

func filterEnv(env []string, prefix string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return out
}

// splitArgs splits a command line string into arguments
func splitArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false

	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}
