package mcmc

import "sort"

// #region summary
// RunSummary aggregates step results from one or more generations.
type RunSummary struct {
	Generations int
	Tried       int
	Accepted    int
	Rejected    int
	Vetoed      int
	ByVeto      map[VetoType]int
	PerMove     []MoveStats // sorted by name; Tuning is the last seen value
}

// AcceptanceRate returns Accepted/Tried, or 0 before any move has run.
func (s RunSummary) AcceptanceRate() float64 {
	if s.Tried == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Tried)
}

// Summarize computes aggregate stats from step results.
func Summarize(results []StepResult) RunSummary {
	s := RunSummary{ByVeto: map[VetoType]int{}}
	perMove := map[string]*MoveStats{}
	gens := map[int]struct{}{}

	for _, r := range results {
		gens[r.Generation] = struct{}{}
		ms, ok := perMove[r.Move]
		if !ok {
			ms = &MoveStats{Name: r.Move}
			perMove[r.Move] = ms
		}
		ms.Tried++
		ms.Tuning = r.Tuning
		s.Tried++

		switch {
		case r.Decision.Action == ActionAccept:
			s.Accepted++
			ms.Accepted++
		case r.Decision.Vetoed:
			s.Rejected++
			s.Vetoed++
			s.ByVeto[r.Decision.Veto]++
			ms.Vetoed++
		default:
			s.Rejected++
		}
	}

	s.Generations = len(gens)
	for _, ms := range perMove {
		s.PerMove = append(s.PerMove, *ms)
	}
	sort.Slice(s.PerMove, func(i, j int) bool { return s.PerMove[i].Name < s.PerMove[j].Name })
	return s
}

// #endregion summary
