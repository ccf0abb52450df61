// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"aicage-cli/internal/buildrecord"
	"aicage-cli/internal/digest"
)

// Reasons for a freshness decision, in evaluation order. Only ReasonFresh means
// the local image is reused.
const (
	ReasonImageMissing   Reason = "image-missing"
	ReasonNoRecord       Reason = "no-record"
	ReasonVersionChanged Reason = "version-changed"
	ReasonDigestUnknown  Reason = "digest-unknown"
	ReasonBaseMoved      Reason = "base-moved"
	ReasonFresh          Reason = "fresh"
	// ReasonForced is used when the caller asked for a rebuild regardless.
	ReasonForced Reason = "forced"
)

type (
	// Reason names why an image is, or is not, rebuilt.
	Reason string

	// Decision is the outcome of comparing a build record with the present state.
	Decision struct {
		Build  bool
		Reason Reason
	}
)

// String returns the reason label.
func (r Reason) String() string { return string(r) }

// Decide compares the stored record for an image with the current agent version
// and base digest. The first matching rule wins:
//
//  1. the image is not present locally
//  2. there is no record
//  3. the recorded agent version differs
//  4. the recorded base digest is unknown
//  5. the current base digest is known and differs from the recorded one
//
// An unknown current digest never triggers rule 5: the base is assumed not to
// have moved when nothing could be observed.
func Decide(imageExistsLocally bool, record *buildrecord.BuildRecord, currentVersion string, currentBaseDigest digest.Digest) Decision {
	switch {
	case !imageExistsLocally:
		return Decision{Build: true, Reason: ReasonImageMissing}
	case record == nil:
		return Decision{Build: true, Reason: ReasonNoRecord}
	case record.AgentVersion != currentVersion:
		return Decision{Build: true, Reason: ReasonVersionChanged}
	case record.BaseDigest == digest.Unknown:
		return Decision{Build: true, Reason: ReasonDigestUnknown}
	case currentBaseDigest != digest.Unknown && currentBaseDigest != record.BaseDigest:
		return Decision{Build: true, Reason: ReasonBaseMoved}
	default:
		return Decision{Build: false, Reason: ReasonFresh}
	}
}

// ShouldBuild reports whether the image must be rebuilt. See Decide.
func ShouldBuild(imageExistsLocally bool, record *buildrecord.BuildRecord, currentVersion string, currentBaseDigest digest.Digest) bool {
	return Decide(imageExistsLocally, record, currentVersion, currentBaseDigest).Build
}
