package main

import (
	"strings"
	"testing"
)

func TestBenchCmd_RequiresImage(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })
	activeCfg = testConfig()

	cmd := newBenchCmd()

	err := cmd.RunE(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "--image") {
		t.Errorf("expected missing --image error, got: %v", err)
	}
}

func TestBenchCmd_RejectsInvalidRuns(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })
	activeCfg = testConfig()

	cmd := newBenchCmd()
	if err := cmd.Flags().Set("image", "testdata/gradient_64.png"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("runs", "0"); err != nil {
		t.Fatal(err)
	}

	err := cmd.RunE(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "--runs") {
		t.Errorf("expected runs validation error, got: %v", err)
	}
}

func TestBenchCmd_RejectsUnknownFormat(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })
	activeCfg = testConfig()

	cmd := newBenchCmd()
	if err := cmd.Flags().Set("image", "testdata/gradient_64.png"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("format", "csv"); err != nil {
		t.Fatal(err)
	}

	err := cmd.RunE(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "--format") {
		t.Errorf("expected format validation error, got: %v", err)
	}
}
