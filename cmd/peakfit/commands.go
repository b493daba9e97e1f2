package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-peakfit/fit"
	"github.com/cwbudde/algo-peakfit/model"
	"github.com/cwbudde/algo-peakfit/search"
)

type fitFlags struct {
	start, end   int
	peaks        []float64
	fitType      string
	weight       string
	linked       bool
	autoPeaks    bool
	maxPeaks     int
	verifyArea   bool
	convergeFrac float64
}

func newFitCmd() *cobra.Command {
	var ff fitFlags
	cmd := &cobra.Command{
		Use:   "fit job.yaml ...",
		Short: "Run the fits described by job files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				jobs, err := loadJobs(path)
				if err != nil {
					return err
				}
				for _, j := range jobs {
					if err := runFitJob(cmd.Context(), cmd, j, ff); err != nil {
						return fmt.Errorf("%s: %w", j.Name, err)
					}
				}
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&ff.start, "start", 0, "first channel of the fit region")
	fl.IntVar(&ff.end, "end", 0, "last channel of the fit region")
	fl.Float64SliceVar(&ff.peaks, "peaks", nil, "initial peak positions")
	fl.StringVar(&ff.fitType, "type", "", "fit type (symmetric, skewed)")
	fl.StringVar(&ff.weight, "weight", "", "weight mode (data, model, none)")
	fl.BoolVar(&ff.linked, "linked-widths", false, "link peak widths to the resolution model")
	fl.BoolVar(&ff.autoPeaks, "auto-peaks", false, "locate peaks automatically")
	fl.IntVar(&ff.maxPeaks, "max-peaks", 0, "maximum number of peaks")
	fl.BoolVar(&ff.verifyArea, "verify-area", false, "cross check areas by numeric integration")
	fl.Float64Var(&ff.convergeFrac, "converge", 0, "relative convergence threshold")
	return cmd
}

// override applies the flags the user set on top of the job's fit spec.
func (ff fitFlags) override(cmd *cobra.Command, spec fitSpec) fitSpec {
	fl := cmd.Flags()
	if fl.Changed("start") {
		spec.Start = ff.start
	}
	if fl.Changed("end") {
		spec.End = ff.end
	}
	if fl.Changed("peaks") {
		spec.Peaks = ff.peaks
		spec.Widths = nil
	}
	if fl.Changed("type") {
		spec.Type = ff.fitType
	}
	if fl.Changed("weight") {
		spec.Weight = ff.weight
	}
	if fl.Changed("linked-widths") {
		spec.LinkedWidths = ff.linked
	}
	if fl.Changed("auto-peaks") {
		spec.AutoPeaks = ff.autoPeaks
	}
	return spec
}

func runFitJob(ctx context.Context, cmd *cobra.Command, j job, ff fitFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	h, err := j.Spectrum.histogram()
	if err != nil {
		return err
	}
	spec := ff.override(cmd, j.Fit)
	req, err := spec.request()
	if err != nil {
		return err
	}

	opts := []fit.Option{fit.WithLogger(log.WithField("job", j.Name))}
	if ff.maxPeaks > 0 {
		opts = append(opts, fit.WithMaxPeaks(ff.maxPeaks))
	}
	if ff.convergeFrac > 0 {
		opts = append(opts, fit.WithConvergenceFrac(ff.convergeFrac))
	}
	fitter, err := fit.NewFitter(h, opts...)
	if err != nil {
		return err
	}

	out, err := fitter.Run(ctx, req)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if err := writef(w, "== %s\n", j.Name); err != nil {
		return err
	}
	if err := out.Session.Summary(w); err != nil {
		return err
	}
	if ff.verifyArea {
		return printAreaCheck(w, out.Session)
	}
	return nil
}

func printAreaCheck(w io.Writer, s *fit.Session) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "peak\tclosed\tnumeric\trel. diff\n"); err != nil {
		return err
	}
	for i := 0; i < s.NumPeaks(); i++ {
		res, err := s.Peak(i)
		if err != nil {
			return err
		}
		span := 20 * res.Width
		if s.Type() == model.Skewed {
			span += 20 * s.Params()[model.IndexBeta]
		}
		numeric, err := s.NumericArea(i, res.Centroid-span, res.Centroid+span, 20001)
		if err != nil {
			return err
		}
		rel := 0.0
		if res.Area != 0 {
			rel = (numeric - res.Area) / res.Area
		}
		if err := writef(tw, "%d\t%.6g\t%.6g\t%.2e\n", i, res.Area, numeric, rel); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func newSearchCmd() *cobra.Command {
	var (
		sigma     float64
		threshold float64
		maxPeaks  int
	)
	cmd := &cobra.Command{
		Use:   "search job.yaml ...",
		Short: "List peak candidates in the fit region of each job",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []search.Option{search.WithSigma(sigma), search.WithThreshold(threshold)}
			if maxPeaks > 0 {
				opts = append(opts, search.WithMaxPeaks(maxPeaks))
			}
			w := cmd.OutOrStdout()
			for _, path := range args {
				jobs, err := loadJobs(path)
				if err != nil {
					return err
				}
				for _, j := range jobs {
					h, err := j.Spectrum.histogram()
					if err != nil {
						return fmt.Errorf("%s: %w", j.Name, err)
					}
					lo, hi := j.Fit.Start, j.Fit.End
					if lo == 0 && hi == 0 {
						hi = h.Len() - 1
					}
					cands, err := search.Scan(h, lo, hi, opts...)
					if err != nil {
						return fmt.Errorf("%s: %w", j.Name, err)
					}
					if err := printCandidates(w, j.Name, cands); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.Float64Var(&sigma, "sigma", 3, "expected peak sigma in channels")
	fl.Float64Var(&threshold, "threshold", 5, "minimum significance")
	fl.IntVar(&maxPeaks, "max-peaks", 0, "maximum number of candidates")
	return cmd
}

func printCandidates(w io.Writer, name string, cands []search.Candidate) error {
	if err := writef(w, "== %s\n", name); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "position\tsignificance\n"); err != nil {
		return err
	}
	for _, c := range cands {
		if err := writef(tw, "%.2f\t%.1f\n", c.Position, c.Significance); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func newModelCmd() *cobra.Command {
	var (
		peaks      []string
		background []float64
		skewR      float64
		skewBeta   float64
		from, to   float64
		step       float64
	)
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Tabulate the fit function for given parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if step <= 0 || to < from {
				return fmt.Errorf("invalid range [%g, %g] step %g", from, to, step)
			}
			specs := make([]peakSpec, 0, len(peaks))
			for _, p := range peaks {
				ps, err := parsePeak(p)
				if err != nil {
					return err
				}
				specs = append(specs, ps)
			}
			params := make([]float64, model.NumParams(len(specs)))
			copy(params[:model.IndexR], background)
			params[model.IndexR] = skewR
			params[model.IndexBeta] = skewBeta
			for i, p := range specs {
				params[model.AmplitudeIndex(i)] = p.Amplitude
				params[model.CentroidIndex(i)] = p.Centroid
				params[model.WidthIndex(i)] = p.Width
			}
			shape := model.Shape{Params: params, Skew: skewBeta > 0}
			return printModel(cmd.OutOrStdout(), &shape, from, to, step)
		},
	}
	fl := cmd.Flags()
	fl.StringArrayVar(&peaks, "peak", nil, "peak as amplitude,centroid,sigma (repeatable)")
	fl.Float64SliceVar(&background, "background", nil, "background coefficients A,B,C")
	fl.Float64Var(&skewR, "r", 0, "skew ratio R")
	fl.Float64Var(&skewBeta, "beta", 0, "skew slope β")
	fl.Float64Var(&from, "from", 0, "first position")
	fl.Float64Var(&to, "to", 100, "last position")
	fl.Float64Var(&step, "step", 1, "position step")
	return cmd
}

func parsePeak(s string) (peakSpec, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return peakSpec{}, fmt.Errorf("peak %q: want amplitude,centroid,sigma", s)
	}
	var v [3]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return peakSpec{}, fmt.Errorf("peak %q: %w", s, err)
		}
		v[i] = x
	}
	if v[2] <= 0 {
		return peakSpec{}, fmt.Errorf("peak %q: sigma must be positive", s)
	}
	return peakSpec{Amplitude: v[0], Centroid: v[1], Width: v[2]}, nil
}

func printModel(w io.Writer, shape *model.Shape, from, to, step float64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	if err := writef(tw, "x\ttotal\tbackground\t\n"); err != nil {
		return err
	}
	n := int((to-from)/step + 1e-9)
	for i := 0; i <= n; i++ {
		x := from + float64(i)*step
		if err := writef(tw, "%.3f\t%.6g\t%.6g\t\n", x, shape.Eval(x), shape.Background(x)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
