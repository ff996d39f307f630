package race

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SkyZonDev/scrappex/internal/models"
)

// Policy selects the winning record among several of the same verdict.
type Policy string

const (
	// EarliestCompletion picks the first confirmed response. Duration alone
	// cannot tell which concurrent request the server processed first.
	EarliestCompletion Policy = "earliest-completion"
	// ShortestDuration picks the quickest round trip.
	ShortestDuration Policy = "shortest-duration"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", EarliestCompletion:
		return EarliestCompletion, nil
	case ShortestDuration:
		return ShortestDuration, nil
	default:
		return "", fmt.Errorf("race: unknown tie-break policy %q", s)
	}
}

// less orders records under the policy; sequence number breaks exact ties.
func (p Policy) less(a, b models.AttemptRecord) bool {
	switch p {
	case ShortestDuration:
		if a.Elapsed != b.Elapsed {
			return a.Elapsed < b.Elapsed
		}
	default:
		if !a.CompletedAt.Equal(b.CompletedAt) {
			return a.CompletedAt.Before(b.CompletedAt)
		}
	}
	return a.Seq < b.Seq
}

// Resolve selects the winner of one lot from its classified records. A lot
// is won only through a success record; without one it is lost when the
// server definitively rejected at least one attempt, and all-attempts-failed
// when nothing conclusive came back.
func Resolve(lot models.Lot, records []models.AttemptRecord, policy Policy) models.LotResult {
	res := models.LotResult{
		LotID:    lot.ID,
		TargetAt: lot.TargetAt,
		Attempts: len(records),
	}

	var successes, others []models.AttemptRecord
	for _, r := range records {
		switch r.Verdict {
		case models.VerdictSuccess:
			res.Successes++
			successes = append(successes, r)
		case models.VerdictFailure:
			res.Failures++
			others = append(others, r)
		default:
			res.Indeterminate++
			others = append(others, r)
		}
	}

	if len(successes) > 0 {
		best := pick(successes, policy)
		res.Outcome = models.OutcomeWon
		res.Winner = &best
		res.Elapsed = best.Elapsed
		return res
	}

	if res.Failures > 0 {
		res.Outcome = models.OutcomeLost
	} else {
		res.Outcome = models.OutcomeAllFailed
	}
	res.Error = ErrLotExhausted.Error()
	if len(others) > 0 {
		best := pick(others, policy)
		res.Diagnostic = &best
		res.Elapsed = best.Elapsed
	}
	return res
}

func pick(records []models.AttemptRecord, policy Policy) models.AttemptRecord {
	sorted := make([]models.AttemptRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return policy.less(sorted[i], sorted[j]) })
	return sorted[0]
}
