package worker

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// artifactRef is the decomposed form of a NodeExecMsg.Path, per spec.md §6:
// "{publisher}@{identifier}:{version}" resolves to object
// "{identifier}:{version}.{container_type}" in bucket "{publisher}".
type artifactRef struct {
	Bucket string
	Key    string
}

// parseArtifactPath decomposes an artifact path into its S3 bucket/key,
// grounded on spec.md §6's Artifact path format, translating the worker's
// original Rust `.bucket("builtins").key("builtins.wasm")` literal fetch
// (original_source/worker/src/main.rs) into the generic form spec.md
// describes.
func parseArtifactPath(path, containerType string) (artifactRef, error) {
	publisher, rest, ok := strings.Cut(path, "@")
	if !ok {
		return artifactRef{}, fmt.Errorf("artifact path %q missing '@' separator", path)
	}
	identifier, version, ok := strings.Cut(rest, ":")
	if !ok {
		return artifactRef{}, fmt.Errorf("artifact path %q missing ':' separator", path)
	}
	if publisher == "" || identifier == "" || version == "" {
		return artifactRef{}, fmt.Errorf("artifact path %q has an empty component", path)
	}
	return artifactRef{
		Bucket: publisher,
		Key:    fmt.Sprintf("%s:%s.%s", identifier, version, containerType),
	}, nil
}

// fetchArtifact downloads the module bytes for ref from object storage.
func fetchArtifact(ctx context.Context, client *s3.Client, ref artifactRef) ([]byte, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &ref.Bucket,
		Key:    &ref.Key,
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	return data, nil
}
