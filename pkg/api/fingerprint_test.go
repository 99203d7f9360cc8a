package api

import (
	"testing"
)

func TestComputeFingerprintDeterministic(t *testing.T) {
	literals := Values{"fwhm": 4.0, "subject": "s01", "mask": true}
	upstream := map[string]UpstreamRef{
		"in":   {Source: "realign", Field: "out", Fingerprint: "aaa"},
		"ref":  {Source: "template", Field: "path", Fingerprint: "bbb"},
		"more": {Source: "template", Field: "meta", Fingerprint: "bbb"},
	}

	fp1, err := ComputeFingerprint("smooth", "v1", literals, upstream)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	for i := 0; i < 20; i++ {
		fp2, err := ComputeFingerprint("smooth", "v1", literals, upstream)
		if err != nil {
			t.Fatalf("fingerprint: %v", err)
		}
		if fp1 != fp2 {
			t.Fatalf("fingerprint unstable across runs: %s vs %s", fp1, fp2)
		}
	}
	if len(fp1) != 64 {
		t.Fatalf("expected hex sha256, got %q", fp1)
	}
}

func TestComputeFingerprintSensitivity(t *testing.T) {
	base, err := ComputeFingerprint("smooth", "v1", Values{"fwhm": 4.0}, nil)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	changedLiteral, _ := ComputeFingerprint("smooth", "v1", Values{"fwhm": 8.0}, nil)
	if changedLiteral == base {
		t.Fatalf("literal change did not change fingerprint")
	}

	changedVersion, _ := ComputeFingerprint("smooth", "v2", Values{"fwhm": 4.0}, nil)
	if changedVersion == base {
		t.Fatalf("version change did not change fingerprint")
	}

	changedStep, _ := ComputeFingerprint("blur", "v1", Values{"fwhm": 4.0}, nil)
	if changedStep == base {
		t.Fatalf("step name change did not change fingerprint")
	}
}

func TestComputeFingerprintTracksUpstream(t *testing.T) {
	up := map[string]UpstreamRef{"in": {Source: "realign", Field: "out", Fingerprint: "fp-a"}}
	base, err := ComputeFingerprint("smooth", "v1", nil, up)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	// Same values, different upstream fingerprint: the node must be
	// invalidated even though nothing it can see has changed.
	up2 := map[string]UpstreamRef{"in": {Source: "realign", Field: "out", Fingerprint: "fp-b"}}
	changed, _ := ComputeFingerprint("smooth", "v1", nil, up2)
	if changed == base {
		t.Fatalf("upstream fingerprint change did not propagate")
	}

	// Rewiring the same field to a different source changes identity too.
	up3 := map[string]UpstreamRef{"in": {Source: "align2", Field: "out", Fingerprint: "fp-a"}}
	rewired, _ := ComputeFingerprint("smooth", "v1", nil, up3)
	if rewired == base {
		t.Fatalf("source change did not change fingerprint")
	}
}

func TestComputeFingerprintDefaultVersion(t *testing.T) {
	implicit, err := ComputeFingerprint("mask", "", Values{"x": 1}, nil)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	explicit, err := ComputeFingerprint("mask", DefaultVersion, Values{"x": 1}, nil)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if implicit != explicit {
		t.Fatalf("empty version must hash like DefaultVersion")
	}
}

func TestComputeFingerprintRejectsUnmarshalableLiteral(t *testing.T) {
	_, err := ComputeFingerprint("bad", "v1", Values{"fn": func() {}}, nil)
	if err == nil {
		t.Fatalf("expected error for unmarshalable literal")
	}
}
