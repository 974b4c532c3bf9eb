package session

// Queue is an ordered, capacity-limited list of sessions for one fingerprint.
// The front is the oldest retained session and is the "current" one.
// Queue is not safe for concurrent use; Cache guards it.
type Queue struct {
	sessions []*Session // sessions in insertion order, front first
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends s to the back. When max > 0 and the queue is full,
// front entries are evicted first so the length never exceeds max.
// max == 0 means unbounded. Returns the evicted sessions, oldest first.
func (q *Queue) Push(s *Session, max int) []*Session {
	var evicted []*Session

	if max > 0 {
		for len(q.sessions) >= max {
			evicted = append(evicted, q.sessions[0])
			q.sessions[0] = nil
			q.sessions = q.sessions[1:]
		}
	}

	q.sessions = append(q.sessions, s)

	return evicted
}

// Front returns the current session.
func (q *Queue) Front() (*Session, bool) {
	if len(q.sessions) == 0 {
		return nil, false
	}

	return q.sessions[0], true
}

// PopFront removes and returns the current session.
func (q *Queue) PopFront() (*Session, bool) {
	if len(q.sessions) == 0 {
		return nil, false
	}

	s := q.sessions[0]
	q.sessions[0] = nil
	q.sessions = q.sessions[1:]

	return s, true
}

// Len returns the number of retained sessions.
func (q *Queue) Len() int {
	return len(q.sessions)
}

// Sessions returns a copy of the retained sessions, front first.
func (q *Queue) Sessions() []*Session {
	out := make([]*Session, len(q.sessions))
	copy(out, q.sessions)

	return out
}
