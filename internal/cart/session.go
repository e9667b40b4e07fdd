package cart

import "sync"

// SessionStore keeps carts per buyer in memory. It is the delegation point
// for whatever session mechanism the surrounding application uses; losing
// its contents on restart is an accepted, non-fatal condition because the
// cart is not part of the durable data model.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu   sync.Mutex
	cart Cart
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*session)}
}

func (s *SessionStore) session(userID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{}
		s.sessions[userID] = sess
	}
	return sess
}

// With runs fn with exclusive access to the buyer's cart. Two requests for
// the same buyer serialize here; requests for different buyers do not.
func (s *SessionStore) With(userID string, fn func(*Cart) error) error {
	sess := s.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(&sess.cart)
}

// Snapshot returns a copy of the buyer's cart, creating an empty one on
// first access.
func (s *SessionStore) Snapshot(userID string) Cart {
	var c Cart
	_ = s.With(userID, func(cur *Cart) error {
		c = *cur
		c.Lines = append([]Line(nil), cur.Lines...)
		if cur.Promo != nil {
			promo := *cur.Promo
			c.Promo = &promo
		}
		return nil
	})
	return c
}

func (s *SessionStore) Drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
