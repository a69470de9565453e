package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"tariffmaster/internal/config"
	"tariffmaster/internal/db/mock"
	"tariffmaster/internal/loader"
	"tariffmaster/internal/pipeline"
	"tariffmaster/internal/pricing"
	"tariffmaster/internal/source/sourcetest"

	"gorm.io/gorm"
)

func testApp(t *testing.T) *app {
	t.Helper()

	database, err := mock.Open(context.Background())
	if err != nil {
		t.Fatalf("mock.Open() error = %v", err)
	}
	return &app{open: func(config.DatabaseConfig) (*gorm.DB, error) { return database, nil }}
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(a)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRunCommandResolvesRelease(t *testing.T) {
	a := testApp(t)
	dir := filepath.Dir(sourcetest.WriteRelease(t)[0].Path)

	out, err := execute(t, a, "run", "--dir", dir, "--log-level", "error")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	var report pipeline.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode run output: %v\n%s", err, out)
	}
	if report.Index.Rows != 12 || report.Prices.Initial != 4 || report.Prices.Defaulted != 1 {
		t.Fatalf("run report = %+v", report)
	}

	out, err = execute(t, a, "price", "--recalculate", "--log-level", "error")
	if err != nil {
		t.Fatalf("price error = %v", err)
	}
	var prices pricing.PriceReport
	if err := json.Unmarshal([]byte(out), &prices); err != nil {
		t.Fatalf("decode price output: %v\n%s", err, out)
	}
	if prices.Mode != pricing.ModeRecalculateAll || prices.Reset != 4 {
		t.Fatalf("price report = %+v, want 4 estimates reset", prices)
	}

	out, err = execute(t, a, "report", "--runs", "2", "--log-level", "error")
	if err != nil {
		t.Fatalf("report error = %v", err)
	}
	for _, want := range []string{"Branded packs", "hospital_only", "same_pack", "similar_product", "£1.20"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report output missing %q:\n%s", want, out)
		}
	}
}

func TestLoadCommandReportsPhase(t *testing.T) {
	a := testApp(t)

	_, err := execute(t, a, "load", "--dir", filepath.Join(t.TempDir(), "missing"), "--log-level", "error")
	if err == nil || !strings.Contains(err.Error(), "load phase") {
		t.Fatalf("load error = %v, want load phase error", err)
	}
}

func TestRootRejectsUnknownLogLevel(t *testing.T) {
	a := testApp(t)

	if _, err := execute(t, a, "classify", "--log-level", "loud"); err == nil {
		t.Fatal("classify error = nil, want invalid log level")
	}
}

func TestPriceMode(t *testing.T) {
	t.Parallel()

	if got := priceMode(false); got != pricing.ModeFillMissing {
		t.Fatalf("priceMode(false) = %q, want %q", got, pricing.ModeFillMissing)
	}
	if got := priceMode(true); got != pricing.ModeRecalculateAll {
		t.Fatalf("priceMode(true) = %q, want %q", got, pricing.ModeRecalculateAll)
	}
}

func TestLoadModeFlags(t *testing.T) {
	dir := filepath.Dir(sourcetest.WriteRelease(t)[0].Path)

	tests := []struct {
		args []string
		want loader.Mode
	}{
		{nil, loader.ModeFullRebuild},
		{[]string{"--rebuild"}, loader.ModeFullRebuild},
		{[]string{"--incremental"}, loader.ModeIncremental},
	}
	for _, tt := range tests {
		a := testApp(t)
		args := append([]string{"load", "--dir", dir, "--log-level", "error"}, tt.args...)
		out, err := execute(t, a, args...)
		if err != nil {
			t.Fatalf("load %v error = %v", tt.args, err)
		}
		var report loader.Report
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("decode load output: %v\n%s", err, out)
		}
		if report.Mode != tt.want {
			t.Fatalf("load %v mode = %q, want %q", tt.args, report.Mode, tt.want)
		}
	}

	a := testApp(t)
	if _, err := execute(t, a, "load", "--dir", dir, "--rebuild", "--incremental", "--log-level", "error"); err == nil {
		t.Fatal("load --rebuild --incremental error = nil, want conflict")
	}
}

func TestAveragePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		minor float64
		want  string
	}{
		{0, "£0.00"},
		{120, "£1.20"},
		{166.6667, "£1.67"},
		{123456, "£1234.56"},
	}
	for _, tt := range tests {
		if got := averagePrice(tt.minor); got != tt.want {
			t.Fatalf("averagePrice(%v) = %q, want %q", tt.minor, got, tt.want)
		}
	}
}
