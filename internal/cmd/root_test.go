package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	if cmd == nil {
		t.Fatal("Root command should not be nil")
	}

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Logf("Help command returned error (this is ok): %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "taskpilot") {
		t.Errorf("Help text should contain 'taskpilot', got: %s", output)
	}
	if !strings.Contains(output, "execution trace") {
		t.Errorf("Help text should describe the execution trace, got: %s", output)
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	if cmd.Use != "taskpilot" {
		t.Errorf("Expected Use to be 'taskpilot', got '%s'", cmd.Use)
	}

	found := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		found[sub.Name()] = true
	}
	for _, name := range []string{"run", "validate", "capabilities", "inspect"} {
		if !found[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestVersionFlag(t *testing.T) {
	cmd := NewRootCommand()

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("--version returned error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "version") || !strings.Contains(output, Version) {
		t.Errorf("Version output should contain 'version %s', got: %s", Version, output)
	}
}
