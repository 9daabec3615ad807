package bot

// ConsultSchedule gates advisory calls to every Nth tick. It is advanced
// exactly once per tick and does not depend on wall-clock time.
type ConsultSchedule struct {
	interval uint64
	count    uint64
}

// NewConsultSchedule creates a schedule firing every interval ticks
func NewConsultSchedule(interval int) *ConsultSchedule {
	if interval < 1 {
		interval = 1
	}
	return &ConsultSchedule{interval: uint64(interval)}
}

// Advance counts one tick and reports whether the advisory is due on it
func (s *ConsultSchedule) Advance() bool {
	s.count++
	return s.count%s.interval == 0
}

// Count returns the number of ticks seen
func (s *ConsultSchedule) Count() uint64 {
	return s.count
}

// Reset restarts counting from zero
func (s *ConsultSchedule) Reset() {
	s.count = 0
}
