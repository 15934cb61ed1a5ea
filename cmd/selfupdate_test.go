package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestSelfUpdateRefusesDevelopmentBuilds(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()

	for _, version := range []string{"", "dev"} {
		t.Run("version="+version, func(t *testing.T) {
			rootCmd.Version = version
			err := runSelfUpdate(nil, nil)
			if err == nil || !strings.Contains(err.Error(), "development version") {
				t.Fatalf("runSelfUpdate() with version %q = %v, want development version error", version, err)
			}
		})
	}
}

func TestSelfUpdateCommand(t *testing.T) {
	c := newSelfUpdateCmd()
	if c.Use != "self-update" || c.RunE == nil {
		t.Fatalf("unexpected self-update command: Use=%q RunE set=%v", c.Use, c.RunE != nil)
	}
	if err := c.Args(c, []string{"extra"}); err == nil {
		t.Error("self-update should reject positional arguments")
	}

	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetErr(&buf)
	c.SetArgs([]string{"--help"})
	if err := c.Execute(); err != nil {
		t.Fatalf("self-update --help: %v", err)
	}
	if !strings.Contains(buf.String(), "latest release of testctl on GitHub") {
		t.Errorf("help output missing description: %q", buf.String())
	}
}
