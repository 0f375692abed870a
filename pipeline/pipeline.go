package pipeline

import (
	"errors"
	"fmt"
	"sync/atomic"

	"houseprice/ml"
)

var (
	ErrAlreadyTrained = errors.New("pipeline already trained")
	ErrSchemaMismatch = errors.New("model schema does not match pipeline definition")
)

// state is the frozen triple a trained pipeline serves from.
type state struct {
	schema    ml.Schema
	encoders  ml.EncoderSet
	assembler *ml.Assembler
	model     ml.Regressor
}

// Pipeline 特征管道. It moves once from untrained to trained and is
// read-only afterwards.
type Pipeline struct {
	def   Definition
	state atomic.Pointer[state]
}

func New(def Definition) *Pipeline {
	return &Pipeline{def: def}
}

func (p *Pipeline) ID() string {
	return p.def.ID
}

func (p *Pipeline) Definition() Definition {
	return p.def
}

// Train derives schema and encoders from table and fits model on it.
func (p *Pipeline) Train(table ml.Table, model ml.Regressor) (ml.TrainingSet, error) {
	if p.Trained() {
		return ml.TrainingSet{}, ErrAlreadyTrained
	}
	schema, encoders := p.derive(table)
	set, err := ml.BuildTrainingSet(table, schema, encoders, p.def.Target)
	if err != nil {
		return set, fmt.Errorf("%s: %w", p.def.ID, err)
	}
	if err := model.Fit(set.Features, set.Targets); err != nil {
		return set, fmt.Errorf("%s: fit: %w", p.def.ID, err)
	}
	return set, p.freeze(schema, encoders, model)
}

// Bind attaches a previously fitted artifact. Its schema and encoder domains
// are served as saved so codes match the ones the model was fitted with.
func (p *Pipeline) Bind(a ml.Artifact) error {
	if p.Trained() {
		return ErrAlreadyTrained
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%s: %w", p.def.ID, err)
	}
	known := make(map[string]bool)
	for _, col := range p.def.Table.NumericalColumns() {
		known[col] = true
	}
	for _, col := range p.def.Table.CategoricalColumns() {
		known[ml.EncodedName(col)] = true
	}
	for _, col := range a.Schema {
		if !known[col] {
			return fmt.Errorf("%s: column %q: %w", p.def.ID, col, ErrSchemaMismatch)
		}
	}
	return p.freeze(a.Schema, a.Encoders, a.Model)
}

// Artifact exports the frozen state so it can be saved and bound later.
func (p *Pipeline) Artifact(modelType string) (ml.Artifact, error) {
	s := p.state.Load()
	if s == nil {
		return ml.Artifact{}, ml.ErrNotTrained
	}
	return ml.Artifact{Type: modelType, Model: s.model, Schema: s.schema, Encoders: s.encoders}, nil
}

func (p *Pipeline) derive(table ml.Table) (ml.Schema, ml.EncoderSet) {
	schema := ml.BuildSchema(table.Columns(), p.def.Table.NumericalColumns(), p.def.Table.CategoricalColumns())
	encoders := ml.FitEncoders(table, p.def.Table.CategoricalColumns())
	return schema, encoders
}

func (p *Pipeline) freeze(schema ml.Schema, encoders ml.EncoderSet, model ml.Regressor) error {
	s := &state{
		schema:    schema,
		encoders:  encoders,
		assembler: ml.NewAssembler(schema, p.def.Table, encoders),
		model:     model,
	}
	if !p.state.CompareAndSwap(nil, s) {
		return ErrAlreadyTrained
	}
	return nil
}

func (p *Pipeline) Trained() bool {
	return p.state.Load() != nil
}

// Schema returns nil until trained.
func (p *Pipeline) Schema() ml.Schema {
	if s := p.state.Load(); s != nil {
		return s.schema
	}
	return nil
}

func (p *Pipeline) Model() ml.Regressor {
	if s := p.state.Load(); s != nil {
		return s.model
	}
	return nil
}

// Assemble builds the feature vector for raw without predicting.
func (p *Pipeline) Assemble(raw map[string]string) ([]float64, error) {
	s := p.state.Load()
	if s == nil {
		return nil, ml.ErrNotTrained
	}
	return s.assembler.Assemble(raw)
}

// Predict returns the unrounded model estimate for raw.
func (p *Pipeline) Predict(raw map[string]string) (float64, error) {
	s := p.state.Load()
	if s == nil {
		return 0, ml.ErrNotTrained
	}
	vector, err := s.assembler.Assemble(raw)
	if err != nil {
		return 0, err
	}
	return s.model.Predict(vector)
}

// Options maps each categorical input field to the values its encoder knows.
func (p *Pipeline) Options() map[string][]string {
	s := p.state.Load()
	if s == nil {
		return nil
	}
	out := make(map[string][]string, len(s.encoders))
	for _, spec := range p.def.Table.Categorical {
		if enc, ok := s.encoders[spec.Column]; ok {
			out[spec.Field] = enc.Classes()
		}
	}
	return out
}
