package pipeline

// RunStats tracks aggregate counters across a batch or a listener session.
type RunStats struct {
	Total      int
	Current    int
	Compiled   int
	Skipped    int
	Failed     int
	Submitted  int
	Duplicates int
	Ran        int
	Nodes      int
}

// Handled is the number of events that reached a decision.
func (s *RunStats) Handled() int {
	return s.Compiled + s.Skipped + s.Failed
}
