package boot

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/riftgate/forge/pkg/booterr"
	"github.com/riftgate/forge/pkg/config"
	"github.com/riftgate/forge/pkg/extension"
	"github.com/riftgate/forge/pkg/lifecycle"
	"github.com/riftgate/forge/pkg/mask"
	"github.com/riftgate/forge/pkg/phase"
	"github.com/riftgate/forge/pkg/resolve"
	"github.com/riftgate/forge/pkg/sandbox"
	"github.com/riftgate/forge/pkg/validate"
)

// Params configure a pipeline. Config and Provider are required; the rest
// default sensibly (mask dir from config, no-op script runtime, default
// logger, globally registered tracer).
type Params struct {
	Config   *config.Config
	Provider DescriptorProvider
	Masks    mask.Source
	Runtime  sandbox.ScriptRuntime
	Logger   *slog.Logger
	Tracer   trace.Tracer
}

// Pipeline runs one boot end to end. It holds only immutable collaborators;
// all mutable state lives in the Context passed to Boot, so one Pipeline
// can serve many isolated boots.
type Pipeline struct {
	cfg       *config.Config
	provider  DescriptorProvider
	masks     mask.Source
	runtime   sandbox.ScriptRuntime
	validator *validate.Validator
	baseLog   *slog.Logger
	log       *slog.Logger
	tracer    trace.Tracer
}

// NewPipeline builds a pipeline from params.
func NewPipeline(p Params) (*Pipeline, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("pipeline requires a config")
	}
	if p.Provider == nil {
		return nil, fmt.Errorf("pipeline requires a descriptor provider")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	masks := p.Masks
	if masks == nil {
		masks = mask.NewDirSource(p.Config.MaskDir, logger)
	}
	runtime := p.Runtime
	if runtime == nil {
		runtime = sandbox.NopRuntime{}
	}
	tracer := p.Tracer
	if tracer == nil {
		tracer = otel.Tracer("forge/boot")
	}
	validator, err := validate.New(p.Config.HostVersion, logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:       p.Config,
		provider:  p.Provider,
		masks:     masks,
		runtime:   runtime,
		validator: validator,
		baseLog:   logger,
		log:       logger.With("component", "boot"),
		tracer:    tracer,
	}, nil
}

// Report is the deterministic summary of one boot, returned to the host and
// logged stage by stage.
type Report struct {
	RunID             string
	Enabled           []extension.Validated
	Rejected          []extension.Rejected
	Warnings          []extension.Message
	RegistrationOrder []string
	// RegistrationFailures maps extension id to the contract violation that
	// aborted its registration. Other extensions' entries stand.
	RegistrationFailures map[string]error
	Lifecycle            map[string]lifecycle.State
}

// Boot runs the pipeline against the given boot context. It returns an
// error when the boot as a whole aborts: a discovery failure, a failFast
// policy trip, an invariant violation, or a script runtime handover
// failure. Per-extension failures land in the report instead.
func (p *Pipeline) Boot(ctx context.Context, bc *Context) (*Report, error) {
	ctx, span := p.tracer.Start(ctx, "forge.boot",
		trace.WithAttributes(attribute.String("forge.run_id", bc.RunID)))
	defer span.End()

	report := &Report{
		RunID:                bc.RunID,
		RegistrationFailures: make(map[string]error),
	}

	// Discovery.
	candidates, err := p.discover(ctx, bc)
	if err != nil {
		return nil, err
	}
	registrars := make(map[string]Registrar, len(candidates))
	discovered := make([]extension.Discovered, 0, len(candidates))
	for _, c := range candidates {
		discovered = append(discovered, extension.Discovered{
			Provider:   c.Provider,
			Source:     c.Source,
			Descriptor: c.Descriptor,
		})
		if c.Descriptor.ID != "" {
			registrars[c.Descriptor.ID] = c.Registrar
			// Duplicate claimants share one tracker slot; validation
			// rejects them all and fails that slot.
			_ = bc.Tracker.Track(c.Descriptor.ID, nil)
		}
	}

	// Validation.
	if err := bc.Phases.AdvanceTo(phase.Validation); err != nil {
		return nil, err
	}
	part := p.runValidation(ctx, discovered)
	report.Warnings = append(report.Warnings, part.Warnings...)
	report.Rejected = append(report.Rejected, part.Rejected...)
	p.failExtensions(bc, part.Rejected)
	if err := p.checkPolicy(part.Rejected); err != nil {
		return nil, err
	}
	for _, v := range part.Enabled {
		_ = bc.Tracker.Advance(v.Descriptor.ID, lifecycle.StateValidated)
	}

	// Resolution.
	res, err := p.runResolution(ctx, part.Enabled)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	report.Warnings = append(report.Warnings, res.Warnings...)
	report.Rejected = append(report.Rejected, res.Rejected...)
	p.failExtensions(bc, res.Rejected)
	if err := p.checkPolicy(res.Rejected); err != nil {
		return nil, err
	}
	byID := make(map[string]*extension.Validated, len(res.Enabled))
	for i := range res.Enabled {
		v := &res.Enabled[i]
		byID[v.Descriptor.ID] = v
		_ = bc.Tracker.SetDependencies(v.Descriptor.ID, v.Dependencies)
		_ = bc.Tracker.Advance(v.Descriptor.ID, lifecycle.StateTypeInitialized)
	}
	report.Enabled = res.Enabled

	// Registration, in topological order with ascending-id tie breaks.
	if err := bc.Phases.AdvanceTo(phase.Registration); err != nil {
		return nil, err
	}
	order, ok := res.Graph.TopoOrder()
	if !ok {
		return nil, booterr.New(booterr.KindInvariantViolation, "", "",
			"accepted dependency graph is cyclic after cycle rejection")
	}
	report.RegistrationOrder = order
	if err := p.runRegistration(ctx, bc, order, byID, registrars, report); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := bc.Usage.VerifyWithinDeclared(res.Enabled); err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Freeze and handover.
	if err := bc.Phases.AdvanceTo(phase.Freeze); err != nil {
		return nil, err
	}
	if err := p.runFreeze(ctx, bc, order); err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Script phases: load extensions dependency-first, then walk the
	// remaining phase milestones. Script-side registration and activation
	// belong to the runtime collaborator; the core only advances state.
	if err := bc.Phases.AdvanceTo(phase.ScriptLoad); err != nil {
		return nil, err
	}
	for _, id := range order {
		if state, _ := bc.Tracker.State(id); state != lifecycle.StateFrozen {
			continue
		}
		if err := bc.Tracker.Advance(id, lifecycle.StateLoading); err != nil {
			// Redirected to FAILED; the tracker recorded the reason.
			continue
		}
		_ = bc.Tracker.Advance(id, lifecycle.StateReady)
	}
	for _, ph := range []phase.Phase{
		phase.ScriptRegister, phase.ScriptActivate, phase.ScriptReady,
		phase.PresentationReady, phase.Runtime,
	} {
		if err := bc.Phases.AdvanceTo(ph); err != nil {
			return nil, err
		}
	}

	report.Lifecycle = bc.Tracker.Snapshot()
	p.log.Info("boot complete",
		"run_id", bc.RunID,
		"enabled", len(report.Enabled),
		"rejected", len(report.Rejected),
		"warnings", len(report.Warnings),
		"registration_failures", len(report.RegistrationFailures))
	return report, nil
}

func (p *Pipeline) discover(ctx context.Context, bc *Context) ([]Candidate, error) {
	ctx, span := p.tracer.Start(ctx, "forge.discover")
	defer span.End()
	if err := bc.Phases.AdvanceTo(phase.Discovery); err != nil {
		return nil, err
	}
	candidates, err := p.provider.Discover(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	span.SetAttributes(attribute.Int("forge.candidates", len(candidates)))
	p.log.Info("discovery complete", "candidates", len(candidates))
	return candidates, nil
}

func (p *Pipeline) runValidation(ctx context.Context, discovered []extension.Discovered) validate.Partition {
	_, span := p.tracer.Start(ctx, "forge.validate")
	defer span.End()
	part := p.validator.Run(discovered)
	span.SetAttributes(
		attribute.Int("forge.enabled", len(part.Enabled)),
		attribute.Int("forge.rejected", len(part.Rejected)))
	p.log.Info("validation complete", "enabled", len(part.Enabled), "rejected", len(part.Rejected))
	return part
}

func (p *Pipeline) runResolution(ctx context.Context, enabled []extension.Validated) (resolve.Result, error) {
	_, span := p.tracer.Start(ctx, "forge.resolve")
	defer span.End()
	resolver := resolve.New(p.masks, resolve.Options{
		WarnOnOptionalMissing: p.cfg.Policy.WarnOnOptionalMissing,
	}, p.baseLog)
	res, err := resolver.Run(enabled)
	if err != nil {
		span.RecordError(err)
		return resolve.Result{}, err
	}
	span.SetAttributes(
		attribute.Int("forge.enabled", len(res.Enabled)),
		attribute.Int("forge.rejected", len(res.Rejected)))
	p.log.Info("resolution complete", "enabled", len(res.Enabled), "rejected", len(res.Rejected))
	return res, nil
}

func (p *Pipeline) runRegistration(ctx context.Context, bc *Context, order []string,
	byID map[string]*extension.Validated, registrars map[string]Registrar, report *Report) error {
	_, span := p.tracer.Start(ctx, "forge.register")
	defer span.End()

	for _, id := range order {
		ext := byID[id]
		reg := registrars[id]
		if ext == nil || reg == nil {
			continue
		}
		rc := &RegistrationContext{ext: ext, bc: bc}
		if err := reg.RegisterCapabilities(rc); err != nil {
			if booterr.Unrecoverable(err) {
				return err
			}
			// Failure isolation: this extension is done, entries already
			// registered by others stand.
			report.RegistrationFailures[id] = err
			bc.Tracker.Fail(id, err.Error())
			p.log.Warn("registration aborted for extension", "extension", id, "err", err)
			if p.cfg.Policy.FailFast {
				return fmt.Errorf("boot aborted by failFast policy: registration of %q failed: %w", id, err)
			}
		}
	}
	p.log.Info("registration complete", "order", len(order), "failures", len(report.RegistrationFailures))
	return nil
}

func (p *Pipeline) runFreeze(ctx context.Context, bc *Context, order []string) error {
	freezeCtx, span := p.tracer.Start(ctx, "forge.freeze")
	defer span.End()

	bc.API.Freeze()
	bc.Hooks.Freeze()
	bc.Services.Freeze()
	for _, id := range order {
		if state, _ := bc.Tracker.State(id); state == lifecycle.StateTypeInitialized {
			_ = bc.Tracker.Advance(id, lifecycle.StateFrozen)
		}
	}

	snapshot, err := bc.Snapshot()
	if err != nil {
		return err
	}
	if err := p.runtime.LoadTree(freezeCtx, snapshot); err != nil {
		span.RecordError(err)
		return fmt.Errorf("script runtime handover failed: %w", err)
	}
	p.log.Info("registries frozen",
		"api", snapshot.API.Len(), "hooks", snapshot.Hook.Len(), "services", snapshot.Service.Len())
	return nil
}

// failExtensions marks rejected extensions FAILED with their first recorded
// error.
func (p *Pipeline) failExtensions(bc *Context, rejected []extension.Rejected) {
	for _, r := range rejected {
		if r.Descriptor.ID == "" {
			continue
		}
		reason := "rejected"
		if len(r.Errors) > 0 {
			reason = r.Errors[0].String()
		}
		bc.Tracker.Fail(r.Descriptor.ID, reason)
	}
}

// checkPolicy applies the validation policy to a rejection wave. FailFast
// aborts on the first rejection; with DisableInvalid unset a rejection is
// fatal too, surfacing after the whole wave has been reported so the boot
// report still names every offender.
func (p *Pipeline) checkPolicy(rejected []extension.Rejected) error {
	if len(rejected) == 0 {
		return nil
	}
	first := rejected[0]
	detail := "rejected"
	if len(first.Errors) > 0 {
		detail = first.Errors[0].String()
	}
	if p.cfg.Policy.FailFast {
		return fmt.Errorf("boot aborted by failFast policy: %s", detail)
	}
	if !p.cfg.Policy.DisableInvalid {
		return fmt.Errorf("boot aborted: %d extension(s) rejected with disableInvalid off (first: %s)",
			len(rejected), detail)
	}
	return nil
}
