// Package training implements T2: the DiLoCo per-worker trainer state
// machine, gradient accumulation/clipping and round packaging. Grounded on
// original_source/prime-rust/crates/prime-core/src/training.rs's
// DiLoCoTrainer, generalized from tch-backed tensors to an injected Model
// capability (forward/backward pass is out of scope per spec.md §1 — the
// trait-level capability the cores consume, same treatment as crypto).
package training

import (
	"math"
	"sort"

	"github.com/ruvnet/daa-sub007/config"
	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/gradient"
	"github.com/ruvnet/daa-sub007/ids"
)

// Phase is the per-worker state machine: Initializing -> DataLoading ->
// Training <-> Validating | Checkpointing -> Completed | Failed(reason).
type Phase uint8

const (
	Initializing Phase = iota
	DataLoading
	Training
	Validating
	Checkpointing
	Completed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case DataLoading:
		return "data_loading"
	case Training:
		return "training"
	case Validating:
		return "validating"
	case Checkpointing:
		return "checkpointing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "invalid"
	}
}

// Batch is one opaque unit of local training data; its contents are a
// Model concern, not this package's.
type Batch struct {
	Data any
}

// Model is the trait-level compute capability this package orchestrates
// around: forward/backward pass, loss and gradient access. A concrete
// binding (e.g. gorgonia, or an FFI to a tensor runtime) plugs in here;
// none is bundled, matching spec.md's stance on out-of-scope primitives.
type Model interface {
	Forward(batch Batch) (loss float32, err error)
	Backward() error
	ZeroGrad()
	Gradients() map[string][]float32
	SetGradients(map[string][]float32)
	ApplyOptimizerStep(learningRate float32) error
	MemoryUsageFraction() float32
}

// Config tunes one DiLoCo round per spec.md §4.7.
type Config struct {
	LocalSteps              uint32
	GradientAccumulationStep uint32
	MaxGradNorm              float32
	LearningRate             float32
	ValidationInterval       uint32
	CheckpointInterval       uint32
}

// StepMetrics reports one local step's outcome.
type StepMetrics struct {
	Loss         float32
	LearningRate float32
	GradNorm     float32
}

// Trainer drives one worker's DiLoCo state machine.
type Trainer struct {
	ctx    *config.CoreContext
	cfg    Config
	model  Model
	workerID ids.PeerId

	phase        Phase
	failReason   string
	globalStep   uint64
	localStep    uint64
	dilocoRound  uint64
	accumulated  map[string][]float32
	accumCount   uint32
}

// NewTrainer constructs a Trainer in the Initializing phase.
func NewTrainer(ctx *config.CoreContext, model Model, cfg Config, workerID ids.PeerId) *Trainer {
	return &Trainer{
		ctx:         ctx,
		cfg:         cfg,
		model:       model,
		workerID:    workerID,
		phase:       Initializing,
		accumulated: make(map[string][]float32),
	}
}

// Phase reports the current state.
func (t *Trainer) Phase() Phase { return t.phase }

// FailReason reports why the trainer entered Failed, if it did.
func (t *Trainer) FailReason() string { return t.failReason }

// Begin transitions Initializing -> DataLoading -> Training, the startup
// path before the first local step.
func (t *Trainer) Begin() {
	t.phase = DataLoading
	t.phase = Training
}

// LocalStep runs one local training step: forward, backward, optional
// accumulation/clipping/optimizer step, per spec.md §4.7's five-step loop.
func (t *Trainer) LocalStep(batch Batch) (StepMetrics, error) {
	if t.phase != Training {
		return StepMetrics{}, errkind.New(errkind.Protocol, "training: local step outside Training phase")
	}

	loss, err := t.model.Forward(batch)
	if err != nil {
		return StepMetrics{}, errkind.Wrap(errkind.Fatal, err, "training: forward pass")
	}

	t.model.ZeroGrad()
	if err := t.model.Backward(); err != nil {
		return StepMetrics{}, errkind.Wrap(errkind.Fatal, err, "training: backward pass")
	}

	if t.cfg.GradientAccumulationStep > 1 {
		t.accumulateGradients()
	}

	gradNorm := t.gradientNorm()

	if (t.localStep+1)%uint64(maxU32(t.cfg.GradientAccumulationStep, 1)) == 0 {
		t.applyAccumulated()
		gradNorm = t.clipGradients(gradNorm)
		if err := t.model.ApplyOptimizerStep(t.cfg.LearningRate); err != nil {
			return StepMetrics{}, errkind.Wrap(errkind.Fatal, err, "training: optimizer step")
		}
	}

	t.localStep++
	t.globalStep++

	if health := t.checkHealth(loss); health != "" {
		t.phase = Failed
		t.failReason = health
		return StepMetrics{}, errkind.New(errkind.Fatal, "training: "+health)
	}

	if t.cfg.ValidationInterval > 0 && t.localStep%uint64(t.cfg.ValidationInterval) == 0 {
		t.phase = Validating
		t.phase = Training
	}
	if t.cfg.CheckpointInterval > 0 && t.localStep%uint64(t.cfg.CheckpointInterval) == 0 {
		t.phase = Checkpointing
		t.phase = Training
	}

	return StepMetrics{Loss: loss, LearningRate: t.cfg.LearningRate, GradNorm: gradNorm}, nil
}

// checkHealth implements §4.7: loss.is_nan() || loss.is_infinite() =>
// Failed("nan"); memory_usage > 0.9 => Failed("oom").
func (t *Trainer) checkHealth(loss float32) string {
	if math.IsNaN(float64(loss)) || math.IsInf(float64(loss), 0) {
		return "nan"
	}
	if t.model.MemoryUsageFraction() > 0.9 {
		return "oom"
	}
	return ""
}

// AttemptRecovery is the Failed -> Training transition. The number of
// recovery attempts is not limited.
func (t *Trainer) AttemptRecovery() error {
	if t.phase != Failed {
		return errkind.New(errkind.Protocol, "training: recovery attempted outside Failed phase")
	}
	t.phase = Training
	t.failReason = ""
	return nil
}

func (t *Trainer) accumulateGradients() {
	for name, grad := range t.model.Gradients() {
		acc, ok := t.accumulated[name]
		if !ok {
			acc = make([]float32, len(grad))
			t.accumulated[name] = acc
		}
		for i, v := range grad {
			acc[i] += v
		}
	}
	t.accumCount++
}

func (t *Trainer) applyAccumulated() {
	if len(t.accumulated) == 0 {
		return
	}
	scaled := make(map[string][]float32, len(t.accumulated))
	n := float32(maxU32(t.accumCount, 1))
	for name, acc := range t.accumulated {
		out := make([]float32, len(acc))
		for i, v := range acc {
			out[i] = v / n
		}
		scaled[name] = out
	}
	t.model.SetGradients(scaled)
	t.accumulated = make(map[string][]float32)
	t.accumCount = 0
}

func (t *Trainer) gradientNorm() float32 {
	var total float64
	for _, grad := range t.model.Gradients() {
		for _, v := range grad {
			total += float64(v) * float64(v)
		}
	}
	return float32(math.Sqrt(total))
}

// clipGradients scales all gradients by max_grad_norm/norm when norm
// exceeds the configured ceiling, per §4.7 step 3.
func (t *Trainer) clipGradients(norm float32) float32 {
	if t.cfg.MaxGradNorm <= 0 || norm <= t.cfg.MaxGradNorm {
		return norm
	}
	scale := t.cfg.MaxGradNorm / norm
	grads := t.model.Gradients()
	scaled := make(map[string][]float32, len(grads))
	for name, g := range grads {
		out := make([]float32, len(g))
		for i, v := range g {
			out[i] = v * scale
		}
		scaled[name] = out
	}
	t.model.SetGradients(scaled)
	return t.cfg.MaxGradNorm
}

// GradientBatch is the signed, per-round package of compressed parameter
// deltas submitted to the Round Coordinator (§4.7, §4.8).
type GradientBatch struct {
	ID       string
	Round    uint64
	WorkerID ids.PeerId
	Layers   map[string][]byte
}

// CompleteRound packages the trainer's current gradients through the
// gradient codec into a GradientBatch and resets local step counters,
// completing one DiLoCo round.
func (t *Trainer) CompleteRound(idFn func() (string, error)) (GradientBatch, error) {
	id, err := idFn()
	if err != nil {
		return GradientBatch{}, err
	}

	layers := make(map[string][]byte)
	names := make([]string, 0, len(t.model.Gradients()))
	for name := range t.model.Gradients() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		layers[name] = gradient.Quantize(t.model.Gradients()[name])
	}

	t.localStep = 0
	t.dilocoRound++

	return GradientBatch{ID: id, Round: t.dilocoRound, WorkerID: t.workerID, Layers: layers}, nil
}

// ApplyGradientUpdates averages decompressed per-worker gradients and
// installs them as the model's gradient before an optimizer step, per
// §4.7's "Applying updates".
func (t *Trainer) ApplyGradientUpdates(updates []GradientBatch) error {
	if len(updates) == 0 {
		return errkind.New(errkind.Validation, "training: no gradient updates to apply")
	}

	sums := make(map[string][]float32)
	for _, batch := range updates {
		for name, compressed := range batch.Layers {
			g, err := gradient.Dequantize(compressed)
			if err != nil {
				return errkind.Wrap(errkind.Validation, err, "training: decompress update")
			}
			acc, ok := sums[name]
			if !ok {
				acc = make([]float32, len(g))
				sums[name] = acc
			}
			for i, v := range g {
				acc[i] += v
			}
		}
	}

	n := float32(len(updates))
	for name, acc := range sums {
		for i := range acc {
			acc[i] /= n
		}
		sums[name] = acc
	}

	t.model.SetGradients(sums)
	return t.model.ApplyOptimizerStep(t.cfg.LearningRate)
}

func maxU32(v, floor uint32) uint32 {
	if v < floor {
		return floor
	}
	return v
}
