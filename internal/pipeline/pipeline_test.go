package pipeline

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/mrsinham/spinesuv/internal/checkpoint"
	"github.com/mrsinham/spinesuv/internal/config"
	"github.com/mrsinham/spinesuv/internal/dicom/edgecases"
	"github.com/mrsinham/spinesuv/internal/phantom"
	"github.com/mrsinham/spinesuv/internal/results"
	"github.com/mrsinham/spinesuv/internal/segmentation"
)

// fixture is a generated cohort and a configuration pointing at it.
type fixture struct {
	cfg    *config.Config
	cohort *phantom.Cohort
}

func newFixture(t *testing.T, patients int, ec edgecases.Config) fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataFolder = filepath.Join(dir, "data")
	cfg.WorkDir = filepath.Join(dir, "work")
	cfg.Segmentation.Engine = config.EnginePrecomputed

	cohort, err := phantom.Generate(phantom.Options{
		OutputDir:   cfg.DataFolder,
		MaskDir:     cfg.WorkDir,
		MaskPrefix:  cfg.Segmentation.OutputPrefix,
		NumPatients: patients,
		Seed:        1,
		EdgeCases:   ec,
		Workers:     2,
		Quiet:       true,
	})
	if err != nil {
		t.Fatalf("generate cohort: %v", err)
	}
	return fixture{cfg: cfg, cohort: cohort}
}

func (f fixture) ids() []string {
	out := make([]string, len(f.cohort.Patients))
	for i, p := range f.cohort.Patients {
		out[i] = p.ID
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type memorySink struct {
	runs []results.Run
	err  error
}

func (s *memorySink) WriteRun(ctx context.Context, run results.Run) error {
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *memorySink) Close() error { return nil }

// countingEngine fails every call and counts them.
type countingEngine struct{ calls atomic.Int32 }

func (e *countingEngine) Run(ctx context.Context, inputDir, outputPrefix string) error {
	e.calls.Add(1)
	return &segmentation.UnavailableError{Path: outputPrefix, Reason: "engine disabled in test"}
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Abs(b))
}

func TestRunMatchesPhantom(t *testing.T) {
	f := newFixture(t, 2, edgecases.Config{})
	f.cfg.Density.Enabled = true
	f.cfg.Density.FlipSet = f.ids()
	sink := &memorySink{}

	p := New(f.cfg, segmentation.PrecomputedEngine{}, checkpoint.Options{}, sink, quietLogger())
	res, run, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("results for %d patients, want 2", len(res))
	}

	for _, pt := range f.cohort.Patients {
		r, ok := res[pt.ID]
		if !ok {
			t.Fatalf("%s missing from results", pt.ID)
		}
		if len(r.MeanSUV) != len(segmentation.Labels) {
			t.Fatalf("%s: SUV means for %d labels, want %d", pt.ID, len(r.MeanSUV), len(segmentation.Labels))
		}
		for l, want := range pt.ExpectedSUV {
			if got := r.MeanSUV[l]; !closeTo(got, want) {
				t.Errorf("%s %s: SUV = %.6f, want %.6f", pt.ID, segmentation.LabelName(l), got, want)
			}
		}
		for l, want := range pt.ExpectedHU {
			if got := r.MeanHU[l]; !closeTo(got, want) {
				t.Errorf("%s %s: HU = %.3f, want %.3f", pt.ID, segmentation.LabelName(l), got, want)
			}
		}
		if r.SUV.Shape != r.Mask.Shape || r.MaskedPET.Shape != r.Mask.Shape {
			t.Errorf("%s: SUV %v, masked PET %v and mask %v differ", pt.ID, r.SUV.Shape, r.MaskedPET.Shape, r.Mask.Shape)
		}
	}

	if len(sink.runs) != 1 || sink.runs[0].ID != run.ID {
		t.Fatalf("sink received %d runs", len(sink.runs))
	}
	if len(run.Means) != 2 || len(run.Density) != 2 {
		t.Errorf("run has %d SUV and %d density entries", len(run.Means), len(run.Density))
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Error("run finished before it started")
	}
	t.Logf("✓ %d patients match the phantom, T12 SUV %.4f", len(res), res[f.ids()[0]].MeanSUV[1])
}

func TestDensityWithoutFlipMeasuresMirroredSlices(t *testing.T) {
	f := newFixture(t, 1, edgecases.Config{})
	f.cfg.Density.Enabled = true

	p := New(f.cfg, segmentation.PrecomputedEngine{}, checkpoint.Options{}, nil, quietLogger())
	res, _, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	pt := f.cohort.Patients[0]
	hu := res[pt.ID].MeanHU
	// T12 sits at the top of the phantom; unflipped, its mask lands on S1.
	if closeTo(hu[1], pt.ExpectedHU[1]) {
		t.Errorf("unflipped T12 HU = %g, should not match %g", hu[1], pt.ExpectedHU[1])
	}
	if !closeTo(hu[1], pt.ExpectedHU[7]) {
		t.Errorf("unflipped T12 HU = %g, want S1 value %g", hu[1], pt.ExpectedHU[7])
	}
}

func TestRunResumeSkipsProcessedPatients(t *testing.T) {
	f := newFixture(t, 2, edgecases.Config{})
	first, _, err := New(f.cfg, segmentation.PrecomputedEngine{}, checkpoint.Options{}, nil, quietLogger()).
		Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	engine := &countingEngine{}
	second, _, err := New(f.cfg, engine, checkpoint.Options{}, nil, quietLogger()).
		Run(context.Background(), Options{Resume: true})
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if n := engine.calls.Load(); n != 0 {
		t.Errorf("engine called %d times on resume", n)
	}
	for id, r := range first {
		if !reflect.DeepEqual(second[id].MeanSUV, r.MeanSUV) {
			t.Errorf("%s: resumed means %v, want %v", id, second[id].MeanSUV, r.MeanSUV)
		}
	}

	// Without resume every patient is recomputed.
	if _, _, err := New(f.cfg, engine, checkpoint.Options{}, nil, quietLogger()).
		Run(context.Background(), Options{Stages: []string{StageSegmentation}}); err != nil {
		t.Fatalf("segmentation run: %v", err)
	}
	if n := engine.calls.Load(); n != 2 {
		t.Errorf("engine called %d times, want 2", n)
	}
	t.Logf("✓ Resume reused %d checkpointed patients", len(second))
}

func TestRunSelectedStagesReadCheckpoints(t *testing.T) {
	f := newFixture(t, 1, edgecases.Config{})
	if _, _, err := New(f.cfg, segmentation.PrecomputedEngine{}, checkpoint.Options{}, nil, quietLogger()).
		Run(context.Background(), Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	engine := &countingEngine{}
	res, _, err := New(f.cfg, engine, checkpoint.Options{}, nil, quietLogger()).
		Run(context.Background(), Options{Stages: []string{StageSUV}})
	if err != nil {
		t.Fatalf("SUV-only run: %v", err)
	}
	if engine.calls.Load() != 0 {
		t.Error("segmentation ran although not selected")
	}
	id := f.ids()[0]
	if len(res[id].MeanSUV) != len(segmentation.Labels) {
		t.Errorf("SUV-only run has means %v", res[id].MeanSUV)
	}
}

func TestRunDropsFailingPatients(t *testing.T) {
	t.Run("engine fails", func(t *testing.T) {
		f := newFixture(t, 2, edgecases.Config{})
		engine := &countingEngine{}
		res, _, err := New(f.cfg, engine, checkpoint.Options{}, nil, quietLogger()).
			Run(context.Background(), Options{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(res) != 0 {
			t.Errorf("results for %d patients, want none", len(res))
		}
		if engine.calls.Load() != 2 {
			t.Errorf("engine called %d times, want 2", engine.calls.Load())
		}
	})

	t.Run("unsupported units", func(t *testing.T) {
		f := newFixture(t, 1, edgecases.Config{Percentage: 100, Types: []edgecases.EdgeCaseType{edgecases.NonBQML}})
		res, _, err := New(f.cfg, segmentation.PrecomputedEngine{}, checkpoint.Options{}, nil, quietLogger()).
			Run(context.Background(), Options{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(res) != 0 {
			t.Errorf("non-BQML patient reached the SUV stage")
		}
	})
}

func TestRunIntakeFallbacks(t *testing.T) {
	kinds := []edgecases.EdgeCaseType{
		edgecases.IMARSeries,
		edgecases.FallbackSeries,
		edgecases.E2TSeries,
		edgecases.MidnightCrossing,
		edgecases.TruncatedTimes,
	}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t, 1, edgecases.Config{Percentage: 100, Types: []edgecases.EdgeCaseType{kind}})
			res, _, err := New(f.cfg, segmentation.PrecomputedEngine{}, checkpoint.Options{}, nil, quietLogger()).
				Run(context.Background(), Options{})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			pt := f.cohort.Patients[0]
			r, ok := res[pt.ID]
			if !ok {
				t.Fatalf("%s patient missing from results", kind)
			}
			for l, want := range pt.ExpectedSUV {
				if !closeTo(r.MeanSUV[l], want) {
					t.Errorf("SUV[%d] = %.6f, want %.6f", l, r.MeanSUV[l], want)
				}
			}
		})
	}
}

func TestRunExclusionsAndLimit(t *testing.T) {
	f := newFixture(t, 3, edgecases.Config{})
	ids := f.ids()

	tests := []struct {
		name   string
		modify func(*config.Config)
		opts   Options
		want   []string
	}{
		{"all", func(*config.Config) {}, Options{}, ids},
		{"limit", func(*config.Config) {}, Options{Limit: 2}, ids[:2]},
		{"excluded id", func(c *config.Config) { c.Exclude.IDs = []string{ids[1]} }, Options{}, []string{ids[0], ids[2]}},
		{"SUV index", func(c *config.Config) { c.Exclude.SUV = []int{0} }, Options{}, ids[1:]},
		{"registration index", func(c *config.Config) { c.Exclude.Registration = []int{2} }, Options{}, ids[:2]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *f.cfg
			cfg.Checkpoint.Dir = filepath.Join(t.TempDir(), "checkpoints")
			tt.modify(&cfg)
			res, _, err := New(&cfg, segmentation.PrecomputedEngine{}, checkpoint.Options{}, nil, quietLogger()).
				Run(context.Background(), tt.opts)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			got := sortedKeys(res)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("patients = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunSinkAndCancellation(t *testing.T) {
	f := newFixture(t, 1, edgecases.Config{})

	sink := &memorySink{err: errors.New("database is down")}
	_, _, err := New(f.cfg, segmentation.PrecomputedEngine{}, checkpoint.Options{}, sink, quietLogger()).
		Run(context.Background(), Options{})
	if err == nil || !strings.Contains(err.Error(), "store run") {
		t.Errorf("sink failure = %v, want store run error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = New(f.cfg, segmentation.PrecomputedEngine{}, checkpoint.Options{}, nil, quietLogger()).
		Run(ctx, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled run = %v, want context.Canceled", err)
	}
}

func TestParseStages(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"all", nil, false},
		{"suv", []string{StageSUV}, false},
		{"merge, suv", []string{StageMerge, StageSUV}, false},
		{"segmentation,bogus", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseStages(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStages(%q) error = %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseStages(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOptionsSelection(t *testing.T) {
	all := Options{}
	if !all.selected(StageMerge) || all.explicit(StageDensity) {
		t.Error("empty stage list selects everything implicitly")
	}
	only := Options{Stages: []string{StageDensity}}
	if only.selected(StageMerge) || !only.explicit(StageDensity) {
		t.Error("explicit stage list")
	}
}
