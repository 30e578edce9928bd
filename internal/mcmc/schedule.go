package mcmc

import (
	"math"
	"math/rand/v2"
)

// #region schedule
// Schedule picks the next move to try.
type Schedule interface {
	Next(rng *rand.Rand) *Move
	// PerGeneration is the number of moves tried per generation.
	PerGeneration() int
}

// RandomSchedule picks moves with probability proportional to weight.
// A generation tries as many moves as the rounded total weight.
type RandomSchedule struct {
	moves []*Move
	cum   []float64
}

// NewRandomSchedule builds a schedule over moves.
func NewRandomSchedule(moves []*Move) (*RandomSchedule, error) {
	if len(moves) == 0 {
		return nil, ErrNoMoves
	}
	s := &RandomSchedule{moves: moves, cum: make([]float64, len(moves))}
	total := 0.0
	for i, m := range moves {
		total += m.Weight()
		s.cum[i] = total
	}
	return s, nil
}

func (s *RandomSchedule) Next(rng *rand.Rand) *Move {
	u := rng.Float64() * s.cum[len(s.cum)-1]
	for i, c := range s.cum {
		if u < c {
			return s.moves[i]
		}
	}
	return s.moves[len(s.moves)-1]
}

func (s *RandomSchedule) PerGeneration() int {
	return max(1, int(math.Round(s.cum[len(s.cum)-1])))
}

// #endregion schedule

// #region sequential
// SequentialSchedule tries every move in order, each as many times as its
// rounded weight.
type SequentialSchedule struct {
	order []*Move
	next  int
}

func NewSequentialSchedule(moves []*Move) (*SequentialSchedule, error) {
	if len(moves) == 0 {
		return nil, ErrNoMoves
	}
	s := &SequentialSchedule{}
	for _, m := range moves {
		for range max(1, int(math.Round(m.Weight()))) {
			s.order = append(s.order, m)
		}
	}
	return s, nil
}

func (s *SequentialSchedule) Next(*rand.Rand) *Move {
	m := s.order[s.next]
	s.next = (s.next + 1) % len(s.order)
	return m
}

func (s *SequentialSchedule) PerGeneration() int { return len(s.order) }

// #endregion sequential
