package taskqueue

import (
	"reflect"
	"testing"
	"time"
)

func TestTaskCodecRoundTrip(t *testing.T) {
	original := Task{
		ID:           "task-1",
		Type:         TaskTypeRunNode,
		RunID:        "run-7",
		GraphName:    "pipeline",
		InstanceName: "prep.align",
		Fingerprint:  "abc123",
		StepName:     "aligner",
		StepVersion:  "v2",
		Inputs: map[string]any{
			"text":  "hello",
			"count": 3,
			"tags":  []string{"a", "b"},
		},
		NodeTimeout: 5 * time.Second,
		EnqueuedAt:  time.Now().Round(0),
	}

	data, err := EncodeTask(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeTask(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if !reflect.DeepEqual(original, *decoded) {
		t.Fatalf("round-trip mismatch:\n  original: %+v\n  decoded:  %+v", original, *decoded)
	}
}

func TestTaskCodecPreservesResultFields(t *testing.T) {
	original := Task{
		ID:           "result-1",
		Type:         TaskTypeNodeResult,
		RunID:        "run-7",
		InstanceName: "prep.align",
		Fingerprint:  "abc123",
		Outputs:      map[string]any{"aligned": "HELLO"},
		Error:        "step blew up",
		ErrorKind:    ErrorKindTimeout,
	}

	data, err := EncodeTask(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeTask(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.Error != "step blew up" || decoded.ErrorKind != ErrorKindTimeout {
		t.Fatalf("error fields lost: %+v", decoded)
	}
	if decoded.Outputs["aligned"] != "HELLO" {
		t.Fatalf("outputs lost: %+v", decoded.Outputs)
	}
}

func TestDecodeTaskRejectsGarbage(t *testing.T) {
	if _, err := DecodeTask([]byte("not a gob stream")); err == nil {
		t.Fatal("expected decode error for garbage input")
	}
}
