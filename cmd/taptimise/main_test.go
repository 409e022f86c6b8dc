package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"taptimise/internal/opt"
)

func writeHouses(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("x,y,demand\n")
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&b, "%d,%d,1\n", i%3, i/3)
		fmt.Fprintf(&b, "%d,%d,1\n", 100+i%3, i/3)
	}
	p := filepath.Join(t.TempDir(), "houses.csv")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o644))
	return p
}

func TestRunWritesOutputs(t *testing.T) {
	in := writeHouses(t)
	out := filepath.Join(t.TempDir(), "out")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-s", "5", "-seed", "7", "-debug", "-out", out, in, "6"}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())
	require.Contains(t, stdout.String(), "taps=2")
	require.Contains(t, stdout.String(), "seed=7")

	for _, name := range []string{"houses.csv", "taps.csv", "result.geojson", "report.html", "trace.json"} {
		fi, err := os.Stat(filepath.Join(out, name))
		require.NoError(t, err, name)
		require.Positive(t, fi.Size(), name)
	}
	var fc map[string]any
	b, err := os.ReadFile(filepath.Join(out, "result.geojson"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &fc))
	require.Equal(t, "FeatureCollection", fc["type"])
}

func TestRunBatches(t *testing.T) {
	in := writeHouses(t)
	out := t.TempDir()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-s", "5", "-batches", "2", "-parallel", "2", "-out", out, in, "6"}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())
	require.Contains(t, stdout.String(), "taps=2")
	_, err = os.Stat(filepath.Join(out, "trace.json"))
	require.True(t, os.IsNotExist(err))
}

func TestRunVersion(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-v"}, &stdout, &bytes.Buffer{}))
	require.NotEmpty(t, strings.TrimSpace(stdout.String()))
}

func TestRunUsageErrors(t *testing.T) {
	var stderr bytes.Buffer
	err := run(context.Background(), []string{"only-one"}, &bytes.Buffer{}, &stderr)
	require.ErrorIs(t, err, errUsage)
	require.Contains(t, stderr.String(), "usage: taptimise")

	in := writeHouses(t)
	err = run(context.Background(), []string{in, "zero"}, &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorContains(t, err, "max load")
}

func TestApplyFlagsOnlyOverridesSetFlags(t *testing.T) {
	o := opt.Options{Steps: 100, MaxDistance: 50, DisableRetry: true}
	f := &cliFlags{steps: 10, maxDistance: 0, noRelax: true}
	applyFlags(&o, f, map[string]bool{"s": true})
	require.Equal(t, 10, o.Steps)
	require.Equal(t, 50.0, o.MaxDistance)
	require.True(t, o.DisableRetry)
	require.True(t, o.DisableRelaxation)
}

func TestSourceByExtension(t *testing.T) {
	require.Equal(t, "json", source("a.GeoJSON", false).Name())
	require.Equal(t, "json", source("a.json", false).Name())
	require.Equal(t, "csv", source("a.txt", true).Name())
}
