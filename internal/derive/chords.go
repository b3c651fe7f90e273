package derive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/internal/objectstore"
	"thirdcoast.systems/sonicstream/pkg/chords"
)

// ExtractChords analyses an asset and stores the chord document at
// chords/<base>_chords.json. The record is not changed.
func (p *Pipeline) ExtractChords(ctx context.Context, req ChordsRequest) (res *ChordsResult, err error) {
	if err := p.check(req); err != nil {
		return nil, err
	}
	if err := checkName(req.Name); err != nil {
		return nil, err
	}
	if p.deps.Chords == nil {
		return nil, errors.New("derive: no chord extractor configured")
	}

	run := p.begin("chords", req.Name)
	defer run.finish(&err)

	if err := p.lock(ctx, run, req.Name); err != nil {
		return nil, err
	}
	if _, err := p.getRecord(ctx, req.Name); err != nil {
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
	doc, err := p.deps.Chords.Extract(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("derive: extract chords: %w", err)
	}

	run.transition(StateValidating)
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, faults.Wrap(faults.ErrOutputMalformed, "derive", "encode", req.Name, err)
	}

	run.transition(StatePublishing)
	key := asset.ChordsKey(req.Name)
	err = p.retry(ctx, "object.put", func(ctx context.Context) error {
		return p.deps.Objects.PutBytes(ctx, key, data, "application/json")
	})
	if err != nil {
		p.discard(ctx, run, key)
		return nil, faults.Wrap(faults.ErrPublishFailed, "derive", "publish", key, err)
	}

	run.log().Info("derive: chords published", "segments", len(doc), "distinct", len(doc.Distinct()))
	return &ChordsResult{Name: req.Name, Key: key, Document: doc}, nil
}

// Chords returns the stored chord document for name, or nil when none has
// been extracted.
func (p *Pipeline) Chords(ctx context.Context, name string) (chords.Document, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := retryValue(ctx, p, "object.get", func(ctx context.Context) ([]byte, error) {
		return p.deps.Objects.GetBytes(ctx, asset.ChordsKey(name))
	})
	if errors.Is(err, objectstore.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return chords.Parse(data)
}
