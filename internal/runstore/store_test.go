package runstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/petrijr/grafo/pkg/api"
)

func sampleRecord(instance, fingerprint string) Record {
	return Record{
		GraphName:    "pipeline",
		InstanceName: instance,
		Fingerprint:  fingerprint,
		StepID:       "align@v1",
		Outputs: api.Values{
			"text": "hello",
			"n":    7,
			"tags": []string{"a", "b"},
			"meta": map[string]any{"k": "v"},
		},
		RunID:     "run-1",
		CreatedAt: time.Now(),
	}
}

// exerciseStore runs the behavior every Store backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Lookup(ctx, "pipeline", "prep.align", "fp1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("lookup on empty store = %v, want ErrRecordNotFound", err)
	}

	rec := sampleRecord("prep.align", "fp1")
	if err := store.Persist(ctx, rec); err != nil {
		t.Fatalf("persist: %v", err)
	}

	got, err := store.Lookup(ctx, "pipeline", "prep.align", "fp1")
	if err != nil {
		t.Fatalf("lookup after persist: %v", err)
	}
	if got.Fingerprint != "fp1" || got.StepID != "align@v1" || got.RunID != "run-1" {
		t.Fatalf("record metadata = %+v", got)
	}
	if !reflect.DeepEqual(got.Outputs, rec.Outputs) {
		t.Fatalf("outputs = %#v, want %#v", got.Outputs, rec.Outputs)
	}

	// A different fingerprint is a miss even though a record exists.
	if _, err := store.Lookup(ctx, "pipeline", "prep.align", "fp2"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("mismatched fingerprint = %v, want ErrRecordNotFound", err)
	}

	// Persisting again replaces the record.
	updated := sampleRecord("prep.align", "fp2")
	updated.Outputs = api.Values{"text": "replaced"}
	if err := store.Persist(ctx, updated); err != nil {
		t.Fatalf("persist replacement: %v", err)
	}
	if _, err := store.Lookup(ctx, "pipeline", "prep.align", "fp1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("old fingerprint still hits after replacement: %v", err)
	}
	got, err = store.Lookup(ctx, "pipeline", "prep.align", "fp2")
	if err != nil {
		t.Fatalf("lookup replacement: %v", err)
	}
	if got.Outputs["text"] != "replaced" {
		t.Fatalf("replacement outputs = %#v", got.Outputs)
	}

	if err := store.Persist(ctx, sampleRecord("collect", "fp3")); err != nil {
		t.Fatalf("persist second instance: %v", err)
	}
	records, err := store.List(ctx, "pipeline")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].InstanceName != "collect" || records[1].InstanceName != "prep.align" {
		t.Fatalf("list = %+v", records)
	}
	if other, err := store.List(ctx, "unknown-graph"); err != nil || len(other) != 0 {
		t.Fatalf("list of unknown graph = %v, %v", other, err)
	}

	// Working directories are private, per (graph, instance), and stable.
	dir, err := store.WorkDir("pipeline", "prep.align")
	if err != nil {
		t.Fatalf("workdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "artifact.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write into workdir: %v", err)
	}
	again, err := store.WorkDir("pipeline", "prep.align")
	if err != nil || again != dir {
		t.Fatalf("workdir not stable: %q vs %q (%v)", dir, again, err)
	}
	other, err := store.WorkDir("pipeline", "collect")
	if err != nil || other == dir {
		t.Fatalf("workdir not private per instance: %q (%v)", other, err)
	}

	if err := store.Persist(ctx, Record{GraphName: "pipeline", InstanceName: "x"}); err == nil {
		t.Fatal("record without fingerprint accepted")
	}
}
