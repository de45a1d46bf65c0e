package store

import (
	"testing"

	"reelforge/internal/model"
)

func TestHashAPIKeyIsStableAndHex(t *testing.T) {
	a := hashAPIKey("rf_test_key")
	b := hashAPIKey("rf_test_key")

	if a != b {
		t.Fatalf("hash must be deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex digest, got %d chars", len(a))
	}
	if a == hashAPIKey("rf_other_key") {
		t.Fatalf("distinct keys must not collide")
	}
}

func TestEncodeJobDefaultsEmptyCollections(t *testing.T) {
	job := model.Job{Workers: model.Stages()}

	options, content, audioURLs, imageURLs, workers, completed, err := encodeJob(&job)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(options) != "{}" {
		t.Fatalf("expected empty options object, got %s", options)
	}
	if content != nil {
		t.Fatalf("nil content must stay nil, got %s", content)
	}
	if string(audioURLs) != "[]" {
		t.Fatalf("nil audio urls must encode as [], got %s", audioURLs)
	}
	if string(imageURLs) != "[]" {
		t.Fatalf("nil image urls must encode as [], got %s", imageURLs)
	}
	if string(completed) != "[]" {
		t.Fatalf("nil completed workers must encode as [], got %s", completed)
	}
	if string(workers) != `["content","audio","image","video"]` {
		t.Fatalf("unexpected workers encoding %s", workers)
	}
}
