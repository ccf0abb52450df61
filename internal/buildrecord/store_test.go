// SPDX-License-Identifier: MPL-2.0

package buildrecord

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"aicage-cli/internal/digest"
	"aicage-cli/internal/testutil"
)

func sampleRecord() *BuildRecord {
	return &BuildRecord{
		Agent:        "claude",
		Base:         "ubuntu",
		AgentVersion: "1.2.3",
		BaseImage:    "ghcr.io/aicage/aicage-image-base:ubuntu",
		BaseDigest:   "sha256:aaa",
		ImageRef:     "aicage:claude-ubuntu",
		BuiltAt:      time.Date(2025, 3, 4, 5, 6, 7, 890, time.UTC),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	want := sampleRecord()
	if _, err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load("claude", "ubuntu")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil {
		t.Fatal("Load() = nil")
	}
	if !got.BuiltAt.Equal(want.BuiltAt) {
		t.Errorf("BuiltAt = %v, want %v", got.BuiltAt, want.BuiltAt)
	}
	got.BuiltAt = want.BuiltAt
	if *got != *want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestStore_RoundTripNormalizesToUTC(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	rec := sampleRecord()
	rec.BuiltAt = time.Date(2025, 3, 4, 7, 6, 7, 890, time.FixedZone("CEST", 2*3600))
	if _, err := store.Save(rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if rec.BuiltAt.Location() != time.UTC {
		t.Errorf("Save() left BuiltAt in %v", rec.BuiltAt.Location())
	}

	got, err := store.Load("claude", "ubuntu")
	if err != nil || got == nil {
		t.Fatalf("Load() = %v, %v", got, err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("Load() = %+v, want %+v", got, rec)
	}
	if !got.BuiltAt.Equal(sampleRecord().BuiltAt) {
		t.Errorf("BuiltAt = %v, want the same instant as %v", got.BuiltAt, sampleRecord().BuiltAt)
	}
}

func TestStore_UnknownDigestIsNull(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	rec := sampleRecord()
	rec.BaseDigest = digest.Unknown
	path, err := store.Save(rec)
	if err != nil {
		t.Fatal(err)
	}

	data := testutil.MustReadFile(t, path)
	if !strings.Contains(data, "base_digest: null") {
		t.Errorf("unknown digest should be written as null:\n%s", data)
	}

	got, err := store.Load("claude", "ubuntu")
	if err != nil || got == nil {
		t.Fatalf("Load() = %v, %v", got, err)
	}
	if got.BaseDigest != digest.Unknown {
		t.Errorf("BaseDigest = %q, want unknown", got.BaseDigest)
	}
}

func TestStore_SanitizedPath(t *testing.T) {
	t.Parallel()

	store := NewStore("/state")
	if got, want := store.Path("org/agent", "debian"), filepath.Join("/state", "local-build", "org_agent-debian.yaml"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
	if got, want := store.LockPath("org/agent", "debian"), filepath.Join("/state", "local-build", "org_agent-debian.lock"); got != want {
		t.Errorf("LockPath() = %q, want %q", got, want)
	}
}

func TestStore_LoadAbsentOrMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "empty file", content: ""},
		{name: "scalar document", content: "just a string\n"},
		{name: "list document", content: "- a\n- b\n"},
		{name: "key mismatch", content: "agent: codex\nbase: ubuntu\nagent_version: 1.0\n"},
		{name: "wrong field types", content: "agent: [claude]\nbase: ubuntu\n"},
		{name: "syntax error", content: "agent: \"unterminated\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := NewStore(t.TempDir())
			testutil.MustWriteFile(t, store.Path("claude", "ubuntu"), []byte(tt.content), 0o644)

			rec, err := store.Load("claude", "ubuntu")
			if rec != nil {
				t.Errorf("Load() = %+v, want nil", rec)
			}
			var recErr *RecordError
			if tt.wantErr != errors.As(err, &recErr) {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		rec, err := NewStore(t.TempDir()).Load("claude", "ubuntu")
		if rec != nil || err != nil {
			t.Errorf("Load() = %v, %v, want nil, nil", rec, err)
		}
	})
}

func TestStore_LoadUnreadable(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	store := NewStore(t.TempDir())
	testutil.MustWriteFile(t, store.Path("claude", "ubuntu"), []byte("agent: claude\n"), 0o000)

	_, err := store.Load("claude", "ubuntu")
	var recErr *RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *RecordError, got %v", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("expected the permission error to be wrapped, got %v", err)
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	first := sampleRecord()
	if _, err := store.Save(first); err != nil {
		t.Fatal(err)
	}
	second := sampleRecord()
	second.AgentVersion = "2.0.0"
	second.BaseDigest = "sha256:bbb"
	if _, err := store.Save(second); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load("claude", "ubuntu")
	if err != nil || got == nil {
		t.Fatalf("Load() = %v, %v", got, err)
	}
	if got.AgentVersion != "2.0.0" || got.BaseDigest != "sha256:bbb" {
		t.Errorf("Load() = %+v, want the second record", got)
	}

	entries, err := os.ReadDir(store.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the record file, found %d entries", len(entries))
	}
}
