package mocks

import "sync"

// ScriptedScorer implements similarity.Scorer by returning scores in order,
// repeating the last one once the script is exhausted.
type ScriptedScorer struct {
	mu     sync.Mutex
	scores []float64
	calls  int
}

// NewScriptedScorer creates a scorer that returns scores in call order.
func NewScriptedScorer(scores ...float64) *ScriptedScorer {
	return &ScriptedScorer{scores: scores}
}

// Similarity implements similarity.Scorer.
func (s *ScriptedScorer) Similarity(_, _ string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.scores) == 0 {
		return 0
	}
	i := s.calls
	if i >= len(s.scores) {
		i = len(s.scores) - 1
	}
	s.calls++
	return s.scores[i]
}

// Calls returns how many scores were handed out.
func (s *ScriptedScorer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
