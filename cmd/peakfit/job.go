package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-peakfit/fit"
	"github.com/cwbudde/algo-peakfit/internal/testutil"
	"github.com/cwbudde/algo-peakfit/model"
	"github.com/cwbudde/algo-peakfit/spectrum"
)

type jobFile struct {
	Jobs []job `yaml:"jobs"`
}

type job struct {
	Name     string       `yaml:"name"`
	Spectrum spectrumSpec `yaml:"spectrum"`
	Fit      fitSpec      `yaml:"fit"`
}

type spectrumSpec struct {
	Counts      []float64 `yaml:"counts"`
	Length      int       `yaml:"length"`
	Contraction int       `yaml:"contraction"`
	Scale       float64   `yaml:"scale"`
	Background  []float64 `yaml:"background"`
	Skew        struct {
		R    float64 `yaml:"r"`
		Beta float64 `yaml:"beta"`
	} `yaml:"skew"`
	Peaks     []peakSpec `yaml:"peaks"`
	NoiseSeed int64      `yaml:"noise_seed"`
}

type peakSpec struct {
	Amplitude float64 `yaml:"amplitude"`
	Centroid  float64 `yaml:"centroid"`
	Width     float64 `yaml:"width"`
}

type fitSpec struct {
	Start        int             `yaml:"start"`
	End          int             `yaml:"end"`
	Peaks        []float64       `yaml:"peaks"`
	Widths       []float64       `yaml:"widths"`
	Type         string          `yaml:"type"`
	Weight       string          `yaml:"weight"`
	LinkedWidths bool            `yaml:"linked_widths"`
	AutoPeaks    bool            `yaml:"auto_peaks"`
	Fixed        map[int]float64 `yaml:"fixed"`
}

func loadJobs(path string) ([]job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f jobFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(f.Jobs) == 0 {
		return nil, fmt.Errorf("%s: no jobs", path)
	}
	for i := range f.Jobs {
		if f.Jobs[i].Name == "" {
			f.Jobs[i].Name = fmt.Sprintf("%s#%d", path, i+1)
		}
	}
	return f.Jobs, nil
}

// counts returns the explicit counts or synthesises them.
func (s spectrumSpec) counts() ([]float64, error) {
	if len(s.Counts) > 0 {
		return s.Counts, nil
	}
	if s.Length <= 0 {
		return nil, fmt.Errorf("spectrum needs counts or a positive length")
	}

	params := make([]float64, model.NumParams(len(s.Peaks)))
	copy(params[:model.IndexR], s.Background)
	params[model.IndexR] = s.Skew.R
	params[model.IndexBeta] = s.Skew.Beta
	for i, p := range s.Peaks {
		params[model.AmplitudeIndex(i)] = p.Amplitude
		params[model.CentroidIndex(i)] = p.Centroid
		params[model.WidthIndex(i)] = p.Width
	}
	shape := model.Shape{Params: params, Skew: s.Skew.Beta > 0}

	out := make([]float64, s.Length)
	for i := range out {
		out[i] = shape.Eval(float64(i))
	}
	if s.NoiseSeed != 0 {
		out = testutil.PoissonNoise(s.NoiseSeed, out)
	}
	return out, nil
}

func (s spectrumSpec) histogram() (*spectrum.Histogram, error) {
	counts, err := s.counts()
	if err != nil {
		return nil, err
	}
	var opts []spectrum.HistogramOption
	if s.Contraction > 0 {
		opts = append(opts, spectrum.WithContraction(s.Contraction))
	}
	if s.Scale != 0 {
		opts = append(opts, spectrum.WithScale(s.Scale))
	}
	return spectrum.NewHistogram(counts, opts...)
}

func (f fitSpec) request() (fit.Request, error) {
	req := fit.Request{
		Start:             f.Start,
		End:               f.End,
		Peaks:             f.Peaks,
		Widths:            f.Widths,
		FixRelativeWidths: f.LinkedWidths,
		AutoPeaks:         f.AutoPeaks,
		Fixed:             f.Fixed,
	}

	switch strings.ToLower(f.Type) {
	case "", "symmetric":
		req.Type = model.Symmetric
	case "skewed":
		req.Type = model.Skewed
	default:
		return req, fmt.Errorf("unknown fit type %q", f.Type)
	}

	switch strings.ToLower(f.Weight) {
	case "", "data":
		req.Weight = fit.DataVariance
	case "model":
		req.Weight = fit.ModelVariance
	case "none":
		req.Weight = fit.Unweighted
	default:
		return req, fmt.Errorf("unknown weight mode %q", f.Weight)
	}
	return req, nil
}
