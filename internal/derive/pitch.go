package derive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/pkg/ffmpeg"
)

// PitchShift publishes a pitch-shifted copy of an asset as a new asset named
// <base>_pitch<+/-n><ext>.
func (p *Pipeline) PitchShift(ctx context.Context, req PitchRequest) (res *PitchResult, err error) {
	if err := p.check(req); err != nil {
		return nil, err
	}
	if err := checkName(req.Name); err != nil {
		return nil, err
	}
	if p.deps.Transcoder == nil {
		return nil, errors.New("derive: no transcoder configured")
	}

	run := p.begin("pitch", req.Name)
	defer run.finish(&err)

	src, err := p.getRecord(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	h, err := run.stage(p.deps.Staging)
	if err != nil {
		return nil, err
	}
	input, err := p.fetchPrimary(ctx, h, req.Name)
	if err != nil {
		return nil, err
	}

	run.transition(StateInvoking)
	scale := ffmpeg.PitchScale(req.Semitones)
	output := h.Output(req.Name)
	// Only the first audio stream is shifted; cover art and extra tracks are
	// dropped so validation sees a single stream.
	opts := []ffmpeg.Option{ffmpeg.LogLevel("error"), ffmpeg.MapStream("0:a:0"), ffmpeg.Rubberband(scale)}
	if src.Title != "" {
		opts = append(opts, ffmpeg.Metadata("title", src.Title))
	}
	cmd := ffmpeg.NewCommand(input, output, ffmpeg.Flatten(opts, ffmpeg.AudioPresetForExt(req.Name))...)
	if _, err := p.deps.Transcoder.Run(ctx, cmd); err != nil {
		return nil, fmt.Errorf("derive: pitch shift: %w", err)
	}

	run.transition(StateValidating)
	if err := p.validateSingleAudio(ctx, h.OutputDir, output); err != nil {
		return nil, err
	}

	base, ext := asset.BaseName(req.Name), path.Ext(req.Name)
	name, err := p.reserve(ctx, run, base+"_pitch"+FormatSemitones(req.Semitones), ext)
	if err != nil {
		return nil, err
	}

	run.transition(StatePublishing)
	published, err := p.publish(ctx, run, []upload{{key: asset.AudioKey(name), path: output}})
	if err != nil {
		return nil, err
	}

	run.transition(StateRecordingMetadata)
	now := p.opts.Now()
	semitones := req.Semitones
	rec := &asset.Record{
		Name:           name,
		Path:           asset.AudioKey(name),
		ImageURL:       src.ImageURL,
		Stems:          []string{},
		SourceURL:      src.SourceURL,
		Title:          src.Title,
		DerivedFrom:    src.Name,
		PitchSemitones: &semitones,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.createRecord(ctx, rec); err != nil {
		p.discard(ctx, run, published...)
		return nil, err
	}

	run.log().Info("derive: pitch variant published", "semitones", req.Semitones, "scale", scale, "variant", name)
	return &PitchResult{Record: rec, Scale: scale}, nil
}

// FormatSemitones renders a semitone offset with an explicit sign for
// non-negative values: 2 → "+2", -1.5 → "-1.5".
func FormatSemitones(s float64) string {
	if s == 0 {
		return "+0"
	}
	v := strconv.FormatFloat(s, 'f', -1, 64)
	if s >= 0 {
		return "+" + v
	}
	return v
}

// validateSingleAudio checks that dir holds exactly the expected output and
// that it contains one audio stream.
func (p *Pipeline) validateSingleAudio(ctx context.Context, dir, output string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return faults.Wrap(faults.ErrOutputMissing, "derive", "validate", dir, err)
	}
	if len(entries) != 1 {
		return faults.Wrap(faults.ErrOutputMalformed, "derive", "validate",
			fmt.Sprintf("expected a single output, found %d files", len(entries)), nil)
	}
	if err := requireNonEmpty(output); err != nil {
		return err
	}

	probe, err := p.deps.Transcoder.Probe(ctx, output)
	if err != nil {
		return fmt.Errorf("derive: probe output: %w", err)
	}
	if probe.AudioStreams != 1 {
		return faults.Wrap(faults.ErrOutputMalformed, "derive", "validate",
			fmt.Sprintf("expected one audio stream, found %d", probe.AudioStreams), nil)
	}
	return nil
}
