package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseArtifactPathDecomposesPublisherIdentifierVersion(t *testing.T) {
	ref, err := parseArtifactPath("acme@text-summarizer:2.1.0", "wasm")
	require.NoError(t, err)
	assert.Equal(t, "acme", ref.Bucket)
	assert.Equal(t, "text-summarizer:2.1.0.wasm", ref.Key)
}

func TestParseArtifactPathRejectsMissingSeparators(t *testing.T) {
	_, err := parseArtifactPath("acme-text-summarizer-2.1.0", "wasm")
	assert.Error(t, err)

	_, err = parseArtifactPath("acme@text-summarizer", "wasm")
	assert.Error(t, err)
}

func TestParseArtifactPathRejectsEmptyComponent(t *testing.T) {
	_, err := parseArtifactPath("@identifier:1", "wasm")
	assert.Error(t, err)

	_, err = parseArtifactPath("publisher@:1", "wasm")
	assert.Error(t, err)

	_, err = parseArtifactPath("publisher@identifier:", "wasm")
	assert.Error(t, err)
}

// TestPropertyArtifactRoundTrip checks spec.md §8 Property 6: for any
// publisher, identifier, version and container_type, the artifact path
// "{publisher}@{identifier}:{version}" resolves to object
// "{identifier}:{version}.{container_type}" in bucket "{publisher}".
func TestPropertyArtifactRoundTrip(t *testing.T) {
	component := rapid.StringMatching(`[a-zA-Z0-9_-]{1,20}`)
	rapid.Check(t, func(rt *rapid.T) {
		publisher := component.Draw(rt, "publisher")
		identifier := component.Draw(rt, "identifier")
		version := component.Draw(rt, "version")
		containerType := rapid.SampledFrom([]string{"wasm", "docker"}).Draw(rt, "containerType")

		path := publisher + "@" + identifier + ":" + version
		ref, err := parseArtifactPath(path, containerType)
		if err != nil {
			rt.Fatalf("parseArtifactPath(%q): %v", path, err)
		}
		if ref.Bucket != publisher {
			rt.Fatalf("bucket: want %q, got %q", publisher, ref.Bucket)
		}
		wantKey := identifier + ":" + version + "." + containerType
		if ref.Key != wantKey {
			rt.Fatalf("key: want %q, got %q", wantKey, ref.Key)
		}
	})
}
