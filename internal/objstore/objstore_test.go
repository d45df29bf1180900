package objstore

import (
	"context"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseURL(t *testing.T) {
	bucket, key, err := ParseURL("s3://phm-raw/M001/2025/11/26/20251126_165513_M001_anomaly_normal_000001.jsonl")
	if err != nil {
		t.Fatalf("ParseURL failed: %v", err)
	}
	if bucket != "phm-raw" {
		t.Errorf("bucket = %q, want phm-raw", bucket)
	}
	want := "M001/2025/11/26/20251126_165513_M001_anomaly_normal_000001.jsonl"
	if key != want {
		t.Errorf("key = %q, want %q", key, want)
	}
}

func TestParseURLRejectsOtherSchemes(t *testing.T) {
	for _, raw := range []string{
		"http://phm-raw/some/key.jsonl",
		"file:///tmp/key.jsonl",
		"/local/path.jsonl",
	} {
		if _, _, err := ParseURL(raw); err == nil {
			t.Errorf("ParseURL(%q) succeeded, want error", raw)
		}
	}
}

func TestSessionPrefix(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{
			name: "chunked key strips sequence suffix",
			key:  "M001/2025/11/26/20251126_165513_M001_anomaly_normal_000001.jsonl",
			want: "M001/2025/11/26/20251126_165513_M001_anomaly_normal_",
		},
		{
			name: "non-chunked key falls back to parent dir",
			key:  "M001/2025/11/26/dump.jsonl",
			want: "M001/2025/11/26/",
		},
		{
			name: "five digit suffix is not a chunk sequence",
			key:  "M001/2025/11/26/dump_12345.jsonl",
			want: "M001/2025/11/26/",
		},
		{
			name: "bare key falls back to bucket root",
			key:  "dump.jsonl",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SessionPrefix(tt.key); got != tt.want {
				t.Errorf("SessionPrefix(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestMemoryStoreListAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Inserted out of order: List must sort for deterministic processing.
	store.Put("phm-raw", "M001/a_000002.jsonl", []byte("two"))
	store.Put("phm-raw", "M001/a_000001.jsonl", []byte("one"))
	store.Put("phm-raw", "M001/b_000001.jsonl", []byte("other session"))
	store.Put("other-bucket", "M001/a_000003.jsonl", []byte("wrong bucket"))

	keys, err := store.List(ctx, "phm-raw", "M001/a_")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"M001/a_000001.jsonl", "M001/a_000002.jsonl"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	rc, err := store.Get(ctx, "phm-raw", "M001/a_000001.jsonl")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "one" {
		t.Errorf("Get contents = %q, want one", data)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "phm-raw", "missing.jsonl"); err == nil {
		t.Fatal("expected error for missing object")
	}
}
