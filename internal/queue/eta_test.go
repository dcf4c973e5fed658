package queue

import (
	"testing"

	"github.com/hameed6991/queueless/internal/models"
)

func token(id string, number int, status string) models.Token {
	return models.Token{TokenID: id, TokenNumber: number, Status: status}
}

func TestComputeEstimatesThreeWaiting(t *testing.T) {
	tokens := []models.Token{
		token("a", 1, models.StatusWaiting),
		token("b", 2, models.StatusWaiting),
		token("c", 3, models.StatusWaiting),
	}

	estimates := ComputeEstimates(tokens, 4)
	if len(estimates) != 3 {
		t.Fatalf("expected 3 estimates, got %d", len(estimates))
	}

	want := []Estimate{
		{TokenID: "a", TokenNumber: 1, WaitingAhead: 0, EstimatedWaitMinutes: 0},
		{TokenID: "b", TokenNumber: 2, WaitingAhead: 1, EstimatedWaitMinutes: 4},
		{TokenID: "c", TokenNumber: 3, WaitingAhead: 2, EstimatedWaitMinutes: 8},
	}
	for i, est := range estimates {
		if est != want[i] {
			t.Fatalf("estimate %d: got %+v, want %+v", i, est, want[i])
		}
	}
}

func TestComputeEstimatesServedExcluded(t *testing.T) {
	tokens := []models.Token{
		token("a", 1, models.StatusServed),
		token("b", 2, models.StatusWaiting),
		token("c", 3, models.StatusWaiting),
	}

	estimates := ComputeEstimates(tokens, 4)
	if len(estimates) != 2 {
		t.Fatalf("expected 2 estimates, got %d", len(estimates))
	}
	if estimates[0].TokenID != "b" || estimates[0].WaitingAhead != 0 || estimates[0].EstimatedWaitMinutes != 0 {
		t.Fatalf("unexpected first estimate: %+v", estimates[0])
	}
	if estimates[1].TokenID != "c" || estimates[1].WaitingAhead != 1 || estimates[1].EstimatedWaitMinutes != 4 {
		t.Fatalf("unexpected second estimate: %+v", estimates[1])
	}
}

func TestComputeEstimatesDeterministic(t *testing.T) {
	tokens := []models.Token{
		token("c", 3, models.StatusWaiting),
		token("a", 1, models.StatusWaiting),
		token("b", 2, models.StatusRequested),
	}

	first := ComputeEstimates(tokens, 7)
	second := ComputeEstimates(tokens, 7)
	if len(first) != len(second) {
		t.Fatalf("runs differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("runs differ at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
	// input order must not matter either
	if first[0].TokenID != "a" || first[1].TokenID != "c" {
		t.Fatalf("unexpected ordering: %+v", first)
	}
}

func TestComputeEstimatesEmpty(t *testing.T) {
	if got := ComputeEstimates(nil, 4); len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
	only := []models.Token{token("a", 1, models.StatusCancelled)}
	if got := ComputeEstimates(only, 4); len(got) != 0 {
		t.Fatalf("expected empty result for no waiting tokens, got %+v", got)
	}
}

func TestEffectiveAvgMinutes(t *testing.T) {
	four := 4
	zero := 0
	negative := -3

	cases := []struct {
		avg  *int
		want int
	}{
		{&four, 4},
		{nil, FallbackAvgMinutes},
		{&zero, FallbackAvgMinutes},
		{&negative, FallbackAvgMinutes},
	}
	for _, tt := range cases {
		if got := EffectiveAvgMinutes(tt.avg); got != tt.want {
			t.Fatalf("EffectiveAvgMinutes(%v)=%d, want %d", tt.avg, got, tt.want)
		}
	}
}
