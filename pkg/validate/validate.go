// Package validate implements per-descriptor structural validation and the
// duplicate-id policy, partitioning discovery output into enabled and
// rejected extensions. The partition is computed once and never revisited;
// later rejections are the resolver's business.
package validate

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/riftgate/forge/pkg/extension"
	"github.com/riftgate/forge/pkg/version"
)

// Partition is the validator's output. Every discovered id lands in exactly
// one of Enabled or Rejected.
type Partition struct {
	Enabled  []extension.Validated
	Rejected []extension.Rejected
	Warnings []extension.Message
}

// Validator runs the fixed rule groups against discovered descriptors.
type Validator struct {
	hostVersion *semver.Version
	log         *slog.Logger
}

// New builds a validator for the given running host version.
func New(hostVersion string, logger *slog.Logger) (*Validator, error) {
	hv, err := version.Parse(hostVersion)
	if err != nil {
		return nil, fmt.Errorf("host version: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		hostVersion: hv,
		log:         logger.With("component", "validate"),
	}, nil
}

// Run validates every discovered descriptor and returns the partition.
// Input order never influences the result: descriptors are sorted by
// (id, source) before any rule runs, and capability rules process
// capabilities in name order.
func (v *Validator) Run(discovered []extension.Discovered) Partition {
	sorted := make([]extension.Discovered, len(discovered))
	copy(sorted, discovered)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Descriptor.ID != sorted[j].Descriptor.ID {
			return sorted[i].Descriptor.ID < sorted[j].Descriptor.ID
		}
		return sorted[i].Source < sorted[j].Source
	})

	claimants := make(map[string]int, len(sorted))
	for _, d := range sorted {
		claimants[d.Descriptor.ID]++
	}

	var out Partition
	for _, d := range sorted {
		msgs := v.checkDescriptor(d.Descriptor)

		// Duplicate id policy: with multiple unverified claimants there is
		// no principled way to prefer one, so every claimant is rejected.
		if d.Descriptor.ID != "" && claimants[d.Descriptor.ID] > 1 {
			msgs = append(msgs, extension.Errorf(extension.CodeDuplicateID, d.Descriptor.ID,
				"extension id %q is claimed by %d providers", d.Descriptor.ID, claimants[d.Descriptor.ID]))
		}

		var errs []extension.Message
		for _, m := range msgs {
			if m.Severity == extension.SeverityError {
				errs = append(errs, m)
			} else {
				out.Warnings = append(out.Warnings, m)
			}
		}

		if len(errs) > 0 {
			v.log.Debug("descriptor rejected",
				"extension", d.Descriptor.ID, "source", d.Source, "errors", len(errs))
			out.Rejected = append(out.Rejected, extension.Rejected{
				Descriptor: d.Descriptor,
				Source:     d.Source,
				Errors:     errs,
			})
			continue
		}

		caps := make([]extension.CapabilityDecl, len(d.Descriptor.Capabilities))
		copy(caps, d.Descriptor.Capabilities)
		out.Enabled = append(out.Enabled, extension.Validated{
			Descriptor:   d.Descriptor,
			Source:       d.Source,
			Capabilities: caps,
		})
	}
	return out
}

// checkDescriptor runs the rule groups in fixed order: shape, version,
// capability well-formedness.
func (v *Validator) checkDescriptor(d extension.Descriptor) []extension.Message {
	var msgs []extension.Message

	// (a) shape
	switch {
	case d.ID == "":
		msgs = append(msgs, extension.Errorf(extension.CodeMissingID, "",
			"descriptor has no id (source display name %q)", d.DisplayName))
	case !extension.IDPattern.MatchString(d.ID):
		msgs = append(msgs, extension.Errorf(extension.CodeInvalidID, d.ID,
			"extension id %q does not match %s", d.ID, extension.IDPattern.String()))
	}
	if len(d.Capabilities) == 0 {
		msgs = append(msgs, extension.Errorf(extension.CodeNoCapabilities, d.ID,
			"extension declares no capabilities"))
	}

	// (b) version
	if _, err := version.Parse(d.Version); err != nil {
		msgs = append(msgs, extension.Errorf(extension.CodeInvalidVersion, d.ID,
			"extension version %q does not parse: %v", d.Version, err))
	}
	if err := version.CheckHostCompatibility(v.hostVersion, d.MinHostVersion); err != nil {
		code := extension.CodeHostVersionTooLow
		if _, perr := version.Parse(d.MinHostVersion); d.MinHostVersion != "" && perr != nil {
			code = extension.CodeInvalidVersion
		}
		msgs = append(msgs, extension.Errorf(code, d.ID, "%v", err))
	}

	// (c) capability well-formedness, in name-sorted order so error
	// emission does not depend on declaration order.
	caps := make([]extension.CapabilityDecl, len(d.Capabilities))
	copy(caps, d.Capabilities)
	sort.Slice(caps, func(i, j int) bool { return caps[i].Name < caps[j].Name })
	for _, c := range caps {
		if !extension.CapabilityNamePattern.MatchString(c.Name) {
			msgs = append(msgs, extension.Errorf(extension.CodeInvalidCapabilityName, d.ID,
				"capability name %q does not match %s", c.Name, extension.CapabilityNamePattern.String()))
		}
		if !c.Kind.Valid() {
			msgs = append(msgs, extension.Errorf(extension.CodeInvalidCapabilityKind, d.ID,
				"capability %q has unknown kind %q", c.Name, string(c.Kind)))
		}
		if c.Metadata != nil {
			if err := extension.CheckJSONSafe(map[string]any(c.Metadata)); err != nil {
				msgs = append(msgs, extension.Errorf(extension.CodeNonSerializableMetadata, d.ID,
					"capability %q metadata is not JSON-safe: %v", c.Name, err))
			}
		}
	}
	return msgs
}
