// Package pipeline runs the batch: segmentation, PET registration, merge,
// SUV metadata, SUV computation and the optional CT density report, patient
// by patient with checkpoints between stages.
//
// A patient that fails a stage is logged and left out of that stage's
// mapping; later stages skip it. Only infrastructure failures (listing the
// data folder, checkpoint I/O, the results sink, cancellation) stop a run.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mrsinham/spinesuv/internal/checkpoint"
	"github.com/mrsinham/spinesuv/internal/config"
	"github.com/mrsinham/spinesuv/internal/results"
	"github.com/mrsinham/spinesuv/internal/segmentation"
	"github.com/mrsinham/spinesuv/internal/suv"
)

// Options controls one run.
type Options struct {
	// Stages to compute; the others are read from their checkpoints. Empty
	// means every stage.
	Stages []string
	// Resume skips patients already present in a stage checkpoint.
	Resume bool
	// Limit keeps the first Limit patients of the listing; 0 keeps all.
	Limit int
}

func (o Options) selected(stage string) bool {
	if len(o.Stages) == 0 {
		return true
	}
	for _, s := range o.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

func (o Options) explicit(stage string) bool {
	return len(o.Stages) > 0 && o.selected(stage)
}

// ParseStages parses a comma-separated stage list. "all" and "" select every
// stage.
func ParseStages(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return nil, nil
	}
	valid := make(map[string]bool, len(Stages))
	for _, st := range Stages {
		valid[st] = true
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if !valid[part] {
			return nil, fmt.Errorf("unknown stage %q (valid: %s)", part, strings.Join(Stages, ", "))
		}
		out = append(out, part)
	}
	return out, nil
}

// Pipeline runs batches against one configuration.
type Pipeline struct {
	cfg         *config.Config
	engine      segmentation.Engine
	checkpoints checkpoint.Options
	sink        results.Sink
	logger      *logrus.Logger
}

// New returns a pipeline. sink may be nil.
func New(cfg *config.Config, engine segmentation.Engine, checkpoints checkpoint.Options, sink results.Sink, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if checkpoints.Dir == "" && checkpoints.Redis == nil {
		checkpoints.Dir = cfg.CheckpointDir()
	}
	return &Pipeline{
		cfg:         cfg,
		engine:      engine,
		checkpoints: checkpoints,
		sink:        sink,
		logger:      logger,
	}
}

// NewEngine builds the segmentation engine named in the configuration.
func NewEngine(cfg config.SegmentationConfig, logger *logrus.Logger) segmentation.Engine {
	if cfg.Engine == config.EnginePrecomputed {
		return segmentation.PrecomputedEngine{}
	}
	return segmentation.NewCommandEngine(cfg.Command, cfg.Args, cfg.Timeout, logger)
}

// Run processes the data folder and returns the patients that reached the
// SUV stage together with the run summary.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Results, results.Run, error) {
	run := results.Run{ID: uuid.NewString(), StartedAt: time.Now()}
	log := p.logger.WithField("run_id", run.ID)

	patients, err := ListPatients(p.cfg.DataFolder)
	if err != nil {
		return nil, run, err
	}
	patients = Limit(patients, opts.Limit)
	log.WithFields(logrus.Fields{
		"patients": len(patients),
		"data":     p.cfg.DataFolder,
		"resume":   opts.Resume,
	}).Info("Starting run")

	ex := p.cfg.Exclude
	seg, err := runStage(ctx, p, log, opts, StageSegmentation,
		p.eligible(log, patients, Exclusion{Indexes: ex.Segmentation, IDs: ex.IDs}),
		p.segment)
	if err != nil {
		return nil, run, err
	}

	reg, err := runStage(ctx, p, log, opts, StageRegistration,
		p.eligible(log, patients, Exclusion{Indexes: ex.Registration, IDs: ex.IDs}),
		func(ctx context.Context, id string) (RegistrationRecord, error) {
			series := p.cfg.CT.SeriesNumber
			if s, ok := seg[id]; ok && s.SeriesNumber != 0 {
				series = s.SeriesNumber
			}
			return p.register(ctx, id, series)
		})
	if err != nil {
		return nil, run, err
	}

	merged, err := runStage(ctx, p, log, opts, StageMerge, Intersect(seg, reg),
		func(ctx context.Context, id string) (MergeRecord, error) {
			return p.merge(seg[id], reg[id])
		})
	if err != nil {
		return nil, run, err
	}

	meta, err := runStage(ctx, p, log, opts, StageMetadata,
		p.eligible(log, patients, Exclusion{Indexes: ex.Metadata, IDs: ex.IDs}),
		p.metadata)
	if err != nil {
		return nil, run, err
	}

	suvIDs := p.suvCandidates(log, patients, meta, merged)
	suvs, err := runStage(ctx, p, log, opts, StageSUV, suvIDs,
		func(ctx context.Context, id string) (SUVRecord, error) {
			return computeSUV(merged[id], meta[id])
		})
	if err != nil {
		return nil, run, err
	}

	var density map[string]DensityRecord
	if p.cfg.Density.Enabled || opts.explicit(StageDensity) {
		density, err = runStage(ctx, p, log, opts, StageDensity, sortedKeys(seg),
			func(ctx context.Context, id string) (DensityRecord, error) {
				return p.density(id, seg[id])
			})
		if err != nil {
			return nil, run, err
		}
	}

	out := make(Results, len(suvs))
	run.Means = make(map[string]map[int32]float64, len(suvs))
	for id, s := range suvs {
		r := PatientResult{SUV: s.SUV, MeanSUV: s.Means, Metadata: meta[id]}
		if m, ok := merged[id]; ok {
			r.CT, r.Mask, r.MaskedPET = m.CT, m.Mask, m.MaskedPET
		}
		if rg, ok := reg[id]; ok {
			r.PET = rg.PET
		}
		if d, ok := density[id]; ok {
			r.MeanHU = d.Means
		}
		out[id] = r
		run.Means[id] = s.Means
	}
	if len(density) > 0 {
		run.Density = make(map[string]map[int32]float64, len(density))
		for id, d := range density {
			run.Density[id] = d.Means
		}
	}
	run.FinishedAt = time.Now()

	if p.sink != nil {
		if err := p.sink.WriteRun(ctx, run); err != nil {
			return out, run, fmt.Errorf("store run: %w", err)
		}
	}

	log.WithFields(logrus.Fields{
		"patients": len(out),
		"elapsed":  run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
	}).Info("Run complete")
	return out, run, nil
}

// eligible returns the ids of the patients not excluded for a stage.
func (p *Pipeline) eligible(log *logrus.Entry, patients []Patient, ex Exclusion) []string {
	var ids []string
	for _, pt := range patients {
		if ex.Excluded(pt) {
			log.WithFields(logrus.Fields{"patient": pt.ID, "index": pt.Index}).Debug("Patient excluded")
			continue
		}
		ids = append(ids, pt.ID)
	}
	return ids
}

// suvCandidates keeps the patients with metadata and a merged PET that are
// not excluded from the SUV stage.
func (p *Pipeline) suvCandidates(log *logrus.Entry, patients []Patient, meta map[string]suv.Metadata, merged map[string]MergeRecord) []string {
	ex := Exclusion{Indexes: p.cfg.Exclude.SUV, IDs: p.cfg.Exclude.IDs}
	byID := make(map[string]Patient, len(patients))
	for _, pt := range patients {
		byID[pt.ID] = pt
	}
	var ids []string
	for _, id := range sortedKeys(meta) {
		if pt, ok := byID[id]; ok && ex.Excluded(pt) {
			continue
		}
		if _, ok := merged[id]; !ok {
			log.WithFields(logrus.Fields{"stage": StageSUV, "patient": id}).Info("No masked PET for patient")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// runStage applies fn to every id not yet in the stage mapping, saving the
// mapping after each success. A stage left out of opts is only read back.
func runStage[T any](ctx context.Context, p *Pipeline, log *logrus.Entry, opts Options, stage string, ids []string, fn func(context.Context, string) (T, error)) (map[string]T, error) {
	log = log.WithField("stage", stage)
	store := checkpoint.Open[T](p.checkpoints, stage)
	selected := opts.selected(stage)

	records := map[string]T{}
	if opts.Resume || !selected {
		loaded, err := store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s checkpoint: %w", stage, err)
		}
		records = loaded
	}
	if !selected {
		log.WithField("records", len(records)).Info("Using checkpoint")
		return records, nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plog := log.WithField("patient", id)
		if _, ok := records[id]; ok {
			plog.Info("Skipping already processed patient")
			continue
		}

		plog.Info("Processing patient")
		start := time.Now()
		rec, err := fn(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			plog.WithError(err).Error("Error processing patient")
			continue
		}
		records[id] = rec
		if err := store.Save(ctx, records); err != nil {
			return nil, fmt.Errorf("save %s checkpoint: %w", stage, err)
		}
		plog.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("Processing complete")
	}

	if err := store.Save(ctx, records); err != nil {
		return nil, fmt.Errorf("save %s checkpoint: %w", stage, err)
	}
	return records, nil
}

func (p *Pipeline) patientDir(id string) string {
	return filepath.Join(p.cfg.DataFolder, id)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
