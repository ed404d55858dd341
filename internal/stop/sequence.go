package stop

import (
	"fmt"
	"strings"

	"inferd/pkg/types"
)

// StopSequences fires when any configured stop string appears in the
// generated text. Matching spans batch boundaries: a bounded tail of
// previously seen text is kept so a sequence split across two batches is
// still detected.
type StopSequences struct {
	sequences []string
	tail      string
	maxLen    int
}

// NewStopSequences builds a stop-string stopper. Empty sequences are ignored.
func NewStopSequences(sequences []string) *StopSequences {
	s := &StopSequences{}
	for _, seq := range sequences {
		if seq == "" {
			continue
		}
		s.sequences = append(s.sequences, seq)
		if len(seq) > s.maxLen {
			s.maxLen = len(seq)
		}
	}
	return s
}

func (s *StopSequences) Evaluate(b Batch) *types.FinishReason {
	if len(s.sequences) == 0 || b.Len() == 0 {
		return nil
	}
	text := s.tail + strings.Join(b.Tokens, "")
	for _, seq := range s.sequences {
		if strings.Contains(text, seq) {
			return &types.FinishReason{
				Kind:    types.FinishStop,
				Message: fmt.Sprintf("stop sequence %q matched", seq),
			}
		}
	}
	// Keep just enough text to match a sequence straddling the next batch.
	if keep := s.maxLen - 1; len(text) > keep {
		s.tail = text[len(text)-keep:]
	} else {
		s.tail = text
	}
	return nil
}
