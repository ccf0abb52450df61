// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aicage-cli/internal/buildrecord"
	"aicage-cli/internal/container"
	"aicage-cli/internal/digest"
)

// Compile-time interface check
var _ Provisioner = (*LocalImageProvisioner)(nil)

// ErrInvalidRequest is returned for a Request missing agent, base or definition.
var ErrInvalidRequest = errors.New("invalid provisioning request")

type (
	// LocalImageProvisioner keeps locally built (agent, base) images current.
	//
	// The read-decide-build-write sequence for one key runs under the store's
	// per-key lock, so concurrent invocations for the same image serialize and
	// the second one finds the first one's record.
	LocalImageProvisioner struct {
		engine   container.Engine
		versions VersionResolver
		digests  *digest.Resolver
		store    *buildrecord.Store
		cfg      *Config
		builder  *BuildExecutor
		base     *BaseRefresher
		rt       Runtime
	}

	// Status is a read-only view of an image's freshness.
	Status struct {
		ImageRef    container.ImageRef
		ImageExists bool
		Record      *buildrecord.BuildRecord
		// BaseDigest is the local base digest; the registry is not consulted.
		BaseDigest digest.Digest
		Decision   Decision
	}
)

// NewLocalImageProvisioner creates a LocalImageProvisioner.
func NewLocalImageProvisioner(
	engine container.Engine,
	versions VersionResolver,
	digests *digest.Resolver,
	store *buildrecord.Store,
	cfg *Config,
	rt Runtime,
) *LocalImageProvisioner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	rt = rt.withDefaults()
	return &LocalImageProvisioner{
		engine:   engine,
		versions: versions,
		digests:  digests,
		store:    store,
		cfg:      cfg,
		builder:  NewBuildExecutor(engine, cfg, rt.Logger),
		base:     NewBaseRefresher(engine, digests, rt.Logger),
		rt:       rt,
	}
}

// Config returns the provisioner's configuration.
func (p *LocalImageProvisioner) Config() *Config {
	return p.cfg
}

// EnsureLocalImage resolves the agent version, refreshes the base image and
// rebuilds the local image when the stored fingerprint no longer matches.
func (p *LocalImageProvisioner) EnsureLocalImage(ctx context.Context, req Request) (*Result, error) {
	if req.Agent == "" || req.Base == "" || req.DefinitionDir == "" {
		return nil, fmt.Errorf("%w: agent, base and definition directory are required", ErrInvalidRequest)
	}

	version, err := p.versions.Resolve(ctx, req.Agent, req.DefinitionDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve version of %s: %w", req.Agent, err)
	}

	baseRef := p.cfg.BaseImageRef(req.Base)
	baseDigest, err := p.base.RefreshBase(ctx, baseRef, p.cfg.BaseRepositoryName())
	if err != nil {
		return nil, err
	}

	lock, err := p.store.Lock(ctx, req.Agent, req.Base)
	if err != nil {
		return nil, fmt.Errorf("failed to lock build record: %w", err)
	}
	defer lock.Release()

	record := p.loadRecord(req.Agent, req.Base)
	imageRef := p.cfg.LocalImageRef(req.Agent, req.Base)
	exists := p.imageExists(ctx, imageRef)

	decision := Decide(exists, record, version, baseDigest)
	if req.ForceRebuild {
		decision = Decision{Build: true, Reason: ReasonForced}
	}
	p.rt.Metrics.Decision(decision.Reason.String())
	p.rt.Logger.Debug("freshness decision", "image", imageRef, "reason", decision.Reason, "version", version, "base_digest", baseDigest)

	result := &Result{ImageRef: imageRef, Decision: decision, AgentVersion: version, BaseDigest: baseDigest}
	if !decision.Build {
		if record != nil {
			result.BaseDigest = record.BaseDigest
		}
		return result, nil
	}

	logPath := p.cfg.BuildLogPath(req.Agent, req.Base)
	start := p.rt.Now()
	err = p.builder.Build(ctx, req.Agent, baseRef, imageRef, logPath)
	p.rt.Metrics.Build(p.rt.Now().Sub(start), err)
	if err != nil {
		return nil, err
	}

	// The build may have pulled the base itself; record what it actually used.
	builtFrom := p.digests.Local(ctx, string(baseRef), p.cfg.BaseRepositoryName())
	next := &buildrecord.BuildRecord{
		Agent:        req.Agent,
		Base:         req.Base,
		AgentVersion: version,
		BaseImage:    string(baseRef),
		BaseDigest:   builtFrom,
		ImageRef:     string(imageRef),
		BuiltAt:      nextBuiltAt(p.rt.Now(), record),
	}
	if _, err := p.store.Save(next); err != nil {
		return nil, fmt.Errorf("image %s was built but its record could not be saved: %w", imageRef, err)
	}

	result.Rebuilt = true
	result.BaseDigest = builtFrom
	return result, nil
}

// Status reports the freshness of (agent, base) against currentVersion using
// only local state: no version script runs, no pull happens, nothing is built.
func (p *LocalImageProvisioner) Status(ctx context.Context, agent, base, currentVersion string) (*Status, error) {
	record, err := p.store.Load(agent, base)
	if err != nil {
		return nil, err
	}

	imageRef := p.cfg.LocalImageRef(agent, base)
	exists := p.imageExists(ctx, imageRef)
	baseDigest := p.digests.Local(ctx, string(p.cfg.BaseImageRef(base)), p.cfg.BaseRepositoryName())

	return &Status{
		ImageRef:    imageRef,
		ImageExists: exists,
		Record:      record,
		BaseDigest:  baseDigest,
		Decision:    Decide(exists, record, currentVersion, baseDigest),
	}, nil
}

func (p *LocalImageProvisioner) loadRecord(agent, base string) *buildrecord.BuildRecord {
	record, err := p.store.Load(agent, base)
	if err != nil {
		p.rt.Logger.Warn("ignoring unreadable build record", "agent", agent, "base", base, "error", err)
		return nil
	}
	return record
}

func (p *LocalImageProvisioner) imageExists(ctx context.Context, ref container.ImageRef) bool {
	exists, err := p.engine.ImageExists(ctx, ref)
	if err != nil {
		p.rt.Logger.Debug("image existence check failed", "image", ref, "error", err)
		return false
	}
	return exists
}

// nextBuiltAt returns now in UTC, moved past the previous record's timestamp
// when the clock went backwards: built_at never regresses for a key.
func nextBuiltAt(now time.Time, previous *buildrecord.BuildRecord) time.Time {
	now = now.UTC()
	if previous != nil && !now.After(previous.BuiltAt) {
		return previous.BuiltAt.UTC().Add(time.Nanosecond)
	}
	return now
}
