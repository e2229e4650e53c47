package agent

import (
	"context"
	"testing"

	"github.com/sgx-labs/tripartite/internal/hardware"
	"github.com/sgx-labs/tripartite/internal/types"
)

func TestTruthVerifyVetoesDestructiveCommand(t *testing.T) {
	truth := NewTruth(hardware.NewStatic(hardware.DefaultLimits), nil)
	manifest := types.Manifest{Telos: "delete everything", QueryType: types.QueryGenerate}

	prefetch, err := truth.Prefetch(context.Background(), manifest)
	if err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	verdict, err := truth.Verify(context.Background(), "rm -rf /", prefetch)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verdict.Kind != types.VerdictVeto {
		t.Fatalf("expected veto, got %v", verdict.Kind)
	}
	if !verdict.HasCritical() {
		t.Fatal("expected at least one critical constraint")
	}
	if verdict.Confidence != 0 {
		t.Fatalf("expected confidence forced to 0 on veto, got %f", verdict.Confidence)
	}
}

func TestTruthVerifyFlagsExposedCredential(t *testing.T) {
	truth := NewTruth(hardware.NewStatic(hardware.DefaultLimits), nil)
	manifest := types.Manifest{Telos: "connect to db", QueryType: types.QueryGenerate}

	prefetch, _ := truth.Prefetch(context.Background(), manifest)
	verdict, err := truth.Verify(context.Background(), "db.connect(password=\"hunter2example\")", prefetch)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verdict.Kind != types.VerdictNeedsRevision {
		t.Fatalf("expected needs_revision for exposed credential, got %v", verdict.Kind)
	}
}

func TestTruthVerifyApprovesCleanAnswer(t *testing.T) {
	truth := NewTruth(hardware.NewStatic(hardware.DefaultLimits), nil)
	manifest := types.Manifest{Telos: "sum list", QueryType: types.QueryGenerate}

	prefetch, _ := truth.Prefetch(context.Background(), manifest)
	verdict, err := truth.Verify(context.Background(), "func sum(xs []int) int { t := 0; for _, x := range xs { t += x }; return t }", prefetch)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verdict.Kind != types.VerdictApproved {
		t.Fatalf("expected approved, got %v: %s", verdict.Kind, verdict.Feedback)
	}
	if verdict.Confidence != 1.0 {
		t.Fatalf("expected full confidence with no constraints, got %f", verdict.Confidence)
	}
}

func TestTruthVerifyHardwareCheckFlagsOverLimitVRAM(t *testing.T) {
	limits := hardware.Limits{MaxVRAMMB: 8000, MaxPowerW: 200, ThermalCeiling: 85}
	truth := NewTruth(hardware.NewStatic(limits), nil)
	manifest := types.Manifest{
		Telos:             "deploy model",
		QueryType:         types.QueryGenerate,
		VerificationScope: types.VerificationScope{CheckHardware: true},
	}

	prefetch, _ := truth.Prefetch(context.Background(), manifest)
	verdict, err := truth.Verify(context.Background(), "this requires 24GB VRAM to run", prefetch)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verdict.Kind != types.VerdictNeedsRevision {
		t.Fatalf("expected needs_revision for over-limit VRAM, got %v: %s", verdict.Kind, verdict.Feedback)
	}
}

func TestTruthVerifyQualityCheckFlagsIncompleteCode(t *testing.T) {
	truth := NewTruth(hardware.NewStatic(hardware.DefaultLimits), nil)
	manifest := types.Manifest{Telos: "write code", QueryType: types.QueryGenerate}

	prefetch, _ := truth.Prefetch(context.Background(), manifest)
	verdict, err := truth.Verify(context.Background(), "func x() { // TODO: implement }", prefetch)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verdict.Kind != types.VerdictApproved {
		t.Fatalf("expected approved (warning only), got %v", verdict.Kind)
	}
	if len(verdict.Constraints) == 0 {
		t.Fatal("expected a quality warning constraint")
	}
}
