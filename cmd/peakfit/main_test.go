package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFitJob(t *testing.T) {
	out, err := execute(t, "fit", "--verify-area", "testdata/two_peaks.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "== two-peaks")
	assert.Contains(t, out, "chi2/ndf")
	assert.Contains(t, out, "weights model")
	assert.Contains(t, out, "rel. diff")
}

func TestFitFlagOverride(t *testing.T) {
	out, err := execute(t, "fit", "--start", "120", "--end", "200", "--peaks", "151", "--weight", "none", "testdata/two_peaks.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "[120, 200]")
	assert.Contains(t, out, "weights none")
}

func TestFitErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"fit", filepath.Join(dir, "none.yaml")}, "no such file"},
		{"no jobs", []string{"fit", write("empty.yaml", "jobs: []\n")}, "no jobs"},
		{"bad type", []string{"fit", "--type", "lorentz", "testdata/two_peaks.yaml"}, "unknown fit type"},
		{"bad weight", []string{"fit", "--weight", "poisson", "testdata/two_peaks.yaml"}, "unknown weight mode"},
		{"no spectrum", []string{"fit", write("bare.yaml", "jobs:\n  - fit: {start: 1, end: 10}\n")}, "positive length"},
		{"bad range", []string{"fit", "--start", "300", "--end", "300", "testdata/two_peaks.yaml"}, "two-peaks"},
		{"bad log level", []string{"--log-level", "loud", "fit", "testdata/two_peaks.yaml"}, "loud"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSearchJob(t *testing.T) {
	out, err := execute(t, "search", "testdata/two_peaks.yaml")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "== two-peaks", lines[0])
	for i, want := range []float64{150, 300} {
		pos, err := strconv.ParseFloat(strings.Fields(lines[i+2])[0], 64)
		require.NoError(t, err)
		assert.InDelta(t, want, pos, 0.5)
	}
}

func TestModel(t *testing.T) {
	out, err := execute(t, "model", "--peak", "1000,200,5", "--background", "10", "--from", "200", "--to", "210", "--step", "5")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"200.000", "1010", "10"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"210.000", "145.335", "10"}, strings.Fields(lines[3]))
}

func TestModelErrors(t *testing.T) {
	for _, args := range [][]string{
		{"model", "--peak", "1,2"},
		{"model", "--peak", "1,2,x"},
		{"model", "--peak", "1,2,0"},
		{"model", "--step", "0"},
		{"model", "--from", "5", "--to", "1"},
	} {
		_, err := execute(t, args...)
		assert.Error(t, err, args)
	}
}

func TestSyntheticNoiseIsReproducible(t *testing.T) {
	s := spectrumSpec{Length: 64, Peaks: []peakSpec{{Amplitude: 200, Centroid: 30, Width: 3}}, NoiseSeed: 7}
	a, err := s.counts()
	require.NoError(t, err)
	b, err := s.counts()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	s.NoiseSeed = 0
	mean, err := s.counts()
	require.NoError(t, err)
	assert.NotEqual(t, mean, a)
	for _, v := range a {
		assert.Equal(t, v, float64(int(v)))
	}
}
