package partner

// blockThreshold is how many timeouts a partner may accumulate before
// being excluded for the rest of the run.
const blockThreshold = 3

// State tracks per-partner failure bookkeeping for one run. It is
// never persisted; restarting the process forgets all penalties.
type State struct {
	blocked  map[int64]struct{}
	timeouts map[int64]int
}

func NewState() *State {
	return &State{
		blocked:  map[int64]struct{}{},
		timeouts: map[int64]int{},
	}
}

func (s *State) IsBlocked(partnerID int64) bool {
	_, ok := s.blocked[partnerID]
	return ok
}

// Block excludes the partner immediately, dropping any pending timeout
// count.
func (s *State) Block(partnerID int64) {
	s.blocked[partnerID] = struct{}{}
	delete(s.timeouts, partnerID)
}

// MarkTimeout records one transient failure. Reaching the threshold
// promotes the partner to blocked.
func (s *State) MarkTimeout(partnerID int64) {
	s.timeouts[partnerID]++
	if s.timeouts[partnerID] >= blockThreshold {
		s.Block(partnerID)
	}
}

func (s *State) ClearTimeout(partnerID int64) {
	delete(s.timeouts, partnerID)
}
