// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"testing"

	"aicage-cli/internal/buildrecord"
	"aicage-cli/internal/digest"
)

func scenarioRecord() *buildrecord.BuildRecord {
	return &buildrecord.BuildRecord{
		Agent:        "claude",
		Base:         "ubuntu",
		AgentVersion: "1.2.3",
		BaseDigest:   "sha256:aaa",
	}
}

func TestDecide(t *testing.T) {
	t.Parallel()

	unknownDigest := scenarioRecord()
	unknownDigest.BaseDigest = digest.Unknown

	tests := []struct {
		name    string
		exists  bool
		record  *buildrecord.BuildRecord
		version string
		current digest.Digest
		want    Decision
	}{
		{
			name: "scenario A: unchanged", exists: true, record: scenarioRecord(),
			version: "1.2.3", current: "sha256:aaa",
			want: Decision{Build: false, Reason: ReasonFresh},
		},
		{
			name: "scenario B: base moved", exists: true, record: scenarioRecord(),
			version: "1.2.3", current: "sha256:bbb",
			want: Decision{Build: true, Reason: ReasonBaseMoved},
		},
		{
			name: "scenario C: no record", exists: true, record: nil,
			version: "1.2.3", current: "sha256:aaa",
			want: Decision{Build: true, Reason: ReasonNoRecord},
		},
		{
			name: "image missing dominates", exists: false, record: scenarioRecord(),
			version: "1.2.3", current: "sha256:aaa",
			want: Decision{Build: true, Reason: ReasonImageMissing},
		},
		{
			name: "version changed with matching digest", exists: true, record: scenarioRecord(),
			version: "1.2.4", current: "sha256:aaa",
			want: Decision{Build: true, Reason: ReasonVersionChanged},
		},
		{
			name: "recorded digest unknown", exists: true, record: unknownDigest,
			version: "1.2.3", current: "sha256:aaa",
			want: Decision{Build: true, Reason: ReasonDigestUnknown},
		},
		{
			name: "current digest unknown is not a move", exists: true, record: scenarioRecord(),
			version: "1.2.3", current: digest.Unknown,
			want: Decision{Build: false, Reason: ReasonFresh},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Decide(tt.exists, tt.record, tt.version, tt.current)
			if got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
			if ShouldBuild(tt.exists, tt.record, tt.version, tt.current) != tt.want.Build {
				t.Error("ShouldBuild() disagrees with Decide()")
			}
		})
	}
}

// TestShouldBuild_Properties checks the decision rules over a grid of inputs.
func TestShouldBuild_Properties(t *testing.T) {
	t.Parallel()

	versions := []string{"1.2.3", "1.2.4", ""}
	digests := []digest.Digest{digest.Unknown, "sha256:aaa", "sha256:bbb"}
	records := []*buildrecord.BuildRecord{nil}
	for _, v := range versions {
		for _, d := range digests {
			records = append(records, &buildrecord.BuildRecord{Agent: "claude", Base: "ubuntu", AgentVersion: v, BaseDigest: d})
		}
	}

	for _, rec := range records {
		for _, version := range versions {
			for _, current := range digests {
				if !ShouldBuild(false, rec, version, current) {
					t.Errorf("missing image must always build (record %+v)", rec)
				}
				if rec == nil {
					continue
				}

				got := ShouldBuild(true, rec, version, current)
				if rec.BaseDigest == digest.Unknown && !got {
					t.Errorf("unknown recorded digest must build (record %+v, current %q)", rec, current)
				}
				if rec.AgentVersion != version && !got {
					t.Errorf("version change must build (record %+v, version %q)", rec, version)
				}
				if rec.AgentVersion == version && rec.BaseDigest != digest.Unknown &&
					(current == digest.Unknown || current == rec.BaseDigest) {
					// Idempotent: an unchanged environment never rebuilds, however often asked.
					for range 3 {
						if ShouldBuild(true, rec, version, current) {
							t.Fatalf("unchanged state must not build (record %+v, current %q)", rec, current)
						}
					}
				}
			}
		}
	}
}
