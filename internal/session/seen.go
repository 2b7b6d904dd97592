package session

import "time"

// seenEntry is a list node for one post.
type seenEntry struct {
	postID string
	at     time.Time
	prev   *seenEntry
	next   *seenEntry
}

// seenPosts is a bounded LRU of post IDs engaged with recently. Entries
// older than ttl count as unseen. Callers hold the tracker lock.
type seenPosts struct {
	capacity int
	ttl      time.Duration
	items    map[string]*seenEntry
	head     *seenEntry // most recent (sentinel)
	tail     *seenEntry // least recent (sentinel)
}

func newSeenPosts(capacity int, ttl time.Duration) *seenPosts {
	if capacity < 1 {
		capacity = 1
	}
	head, tail := &seenEntry{}, &seenEntry{}
	head.next = tail
	tail.prev = head
	return &seenPosts{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*seenEntry, capacity),
		head:     head,
		tail:     tail,
	}
}

// has reports whether postID was marked within ttl of now.
func (s *seenPosts) has(postID string, now time.Time) bool {
	e, ok := s.items[postID]
	if !ok {
		return false
	}
	if s.ttl > 0 && now.Sub(e.at) > s.ttl {
		s.unlink(e)
		delete(s.items, postID)
		return false
	}
	return true
}

// mark records postID at now, evicting the least recent entry when full.
func (s *seenPosts) mark(postID string, now time.Time) {
	if postID == "" {
		return
	}
	if e, ok := s.items[postID]; ok {
		e.at = now
		s.unlink(e)
		s.pushFront(e)
		return
	}
	if len(s.items) >= s.capacity {
		victim := s.tail.prev
		s.unlink(victim)
		delete(s.items, victim.postID)
	}
	e := &seenEntry{postID: postID, at: now}
	s.items[postID] = e
	s.pushFront(e)
}

func (s *seenPosts) len() int { return len(s.items) }

func (s *seenPosts) unlink(e *seenEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

func (s *seenPosts) pushFront(e *seenEntry) {
	e.next = s.head.next
	e.prev = s.head
	s.head.next.prev = e
	s.head.next = e
}
