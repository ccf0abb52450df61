// SPDX-License-Identifier: MPL-2.0

package buildrecord

import (
	"fmt"
	"strings"
	"time"

	"aicage-cli/internal/digest"
)

type (
	// BuildRecord fingerprints one local image build.
	BuildRecord struct {
		Agent        string
		Base         string
		AgentVersion string
		BaseImage    string
		// BaseDigest is Unknown only when no digest of the base was ever observed.
		BaseDigest digest.Digest
		ImageRef   string
		// BuiltAt is stored in UTC; Save normalizes the record it writes.
		BuiltAt time.Time
	}

	// document is the on-disk shape. base_digest is a pointer so that an unknown
	// digest is written as YAML null.
	document struct {
		Agent        string  `yaml:"agent"`
		Base         string  `yaml:"base"`
		AgentVersion string  `yaml:"agent_version"`
		BaseImage    string  `yaml:"base_image"`
		BaseDigest   *string `yaml:"base_digest"`
		ImageRef     string  `yaml:"image_ref"`
		BuiltAt      string  `yaml:"built_at"`
	}
)

// Sanitize makes an agent name safe for use in a file name.
func Sanitize(agent string) string {
	return strings.ReplaceAll(agent, "/", "_")
}

// Key is the storage key for an (agent, base) pair.
func Key(agent, base string) string {
	return fmt.Sprintf("%s-%s", Sanitize(agent), base)
}

func (r *BuildRecord) toDocument() document {
	doc := document{
		Agent:        r.Agent,
		Base:         r.Base,
		AgentVersion: r.AgentVersion,
		BaseImage:    r.BaseImage,
		ImageRef:     r.ImageRef,
		BuiltAt:      r.BuiltAt.UTC().Format(time.RFC3339Nano),
	}
	if r.BaseDigest != digest.Unknown {
		d := r.BaseDigest.String()
		doc.BaseDigest = &d
	}
	return doc
}

func (d *document) toRecord() *BuildRecord {
	rec := &BuildRecord{
		Agent:        d.Agent,
		Base:         d.Base,
		AgentVersion: d.AgentVersion,
		BaseImage:    d.BaseImage,
		ImageRef:     d.ImageRef,
	}
	if d.BaseDigest != nil {
		rec.BaseDigest = digest.Digest(*d.BaseDigest)
	}
	// An unparsable timestamp reads as the zero time, which every new build
	// timestamp follows.
	if t, err := time.Parse(time.RFC3339Nano, d.BuiltAt); err == nil {
		rec.BuiltAt = t
	}
	return rec
}
