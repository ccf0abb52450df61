// SPDX-License-Identifier: MPL-2.0

// Package provision keeps per-(agent, base) images fresh.
//
// Locally built images are fingerprinted by the agent version and the base image
// digest they were built from. LocalImageProvisioner resolves both, compares
// them with the stored BuildRecord and rebuilds only when something moved or
// cannot be confirmed:
//
//	p := provision.NewLocalImageProvisioner(engine, versions, digests, store, cfg)
//	result, err := p.EnsureLocalImage(ctx, provision.Request{Agent: "claude", Base: "ubuntu", DefinitionDir: dir})
//	// result.ImageRef is ready to run; result.Rebuilt reports whether a build ran
//
// Registry-distributed images go through PullReconciler instead, which pulls
// only when the local digest is not among the digests the remote manifest
// references, and falls back to a stale local copy when the pull fails.
package provision
