// Package shares implements the per-file mandatory share/deny reservation
// table backing OPEN, OPEN_DOWNGRADE and CLOSE, plus the stateid "other"
// allocator. A ShareState is keyed by a server-unique 12-byte id and
// belongs to exactly one (file, open-owner) pair.
package shares

import (
	"crypto/rand"
	"errors"
	"sync"

	"github.com/nfsquorum/nfs4state/openowner"
)

const (
	AccessRead  = uint32(0x00000001)
	AccessWrite = uint32(0x00000002)
	AccessBoth  = uint32(0x00000003)

	DenyRead  = uint32(0x00000001)
	DenyWrite = uint32(0x00000002)
	DenyBoth  = uint32(0x00000003)
)

// Other is the 12-byte "other" half of a stateid; paired with a seqid it
// forms the full 16-byte wire stateid.
type Other [12]byte

// State is one mandatory share reservation held by an open-owner against
// a file. The seqid advances independently from the owning OpenOwner's
// request seqid; it tracks how many times this particular stateid has
// been returned to the client.
type State struct {
	Other    Other
	Owner    openowner.Key
	Access   uint32
	Deny     uint32
	Verifier *[8]byte
	FileID   uint64 // key into the worker's open-file table
	Seqid    uint32

	lockHeld int
}

func (s *State) advance() uint32 {
	s.Seqid++

	return s.Seqid
}

var (
	ErrShareDenied = errors.New("share reservation conflict")
	ErrNoSuchState = errors.New("no such share state")
)

// Store is the process-wide table of share reservations, indexed both by
// the file they reserve and by their stateid "other" for direct lookup
// from READ/WRITE/CLOSE/OPEN_DOWNGRADE.
type Store struct {
	sync.Mutex
	byFile  map[string][]*State
	byOther map[Other]*State
}

func NewStore() *Store {
	return &Store{
		byFile:  map[string][]*State{},
		byOther: map[Other]*State{},
	}
}

// conflicts reports whether an existing reservation s blocks a new
// request carrying the given access/deny bits, per the mandatory locking
// rule of RFC 7530 14.2.16: a reservation's ACCESS bits must not
// intersect another's DENY bits, in either direction. This is applied
// uniformly regardless of whether the two reservations share an owner,
// so a self-imposed deny still blocks a later open by the same owner.
func conflicts(s *State, access, deny uint32) bool {
	return s.Access&deny != 0 || s.Deny&access != 0
}

func (s *Store) newOther() Other {
	var o Other

	for {
		if _, err := rand.Read(o[:]); err != nil {
			panic(err)
		}

		if _, taken := s.byOther[o]; !taken {
			return o
		}
	}
}

// Add installs a share reservation for (fileHandle, owner), or returns
// the existing one if owner already holds a reservation on this file.
// Conflicts are checked against every existing reservation first,
// including ones held by owner itself, before the same-owner reuse is
// considered. The returned reused bool reports whether an existing state
// was reused; upgraded reports whether that reuse widened the access or
// deny bits beyond what was already held, which the caller must turn
// into a re-opened descriptor.
func (s *Store) Add(fileHandle []byte, owner openowner.Key, access, deny uint32, verifier *[8]byte) (state *State, reused, upgraded bool, err error) {
	s.Lock()
	defer s.Unlock()

	key := string(fileHandle)
	list := s.byFile[key]

	for _, st := range list {
		if conflicts(st, access, deny) {
			return nil, false, false, ErrShareDenied
		}
	}

	for _, st := range list {
		if st.Owner != owner {
			continue
		}

		upgraded = access&^st.Access != 0 || deny&^st.Deny != 0

		st.Access |= access
		st.Deny |= deny
		st.advance()

		return st, true, upgraded, nil
	}

	st := &State{
		Other:    s.newOther(),
		Owner:    owner,
		Access:   access,
		Deny:     deny,
		Verifier: verifier,
		Seqid:    1,
	}

	s.byFile[key] = append(list, st)
	s.byOther[st.Other] = st

	return st, false, false, nil
}

// FindByOwnerVerifier looks up an existing reservation by owner matching a
// given create verifier, used to detect a retransmitted EXCLUSIVE create.
func (s *Store) FindByOwnerVerifier(fileHandle []byte, owner openowner.Key, verifier [8]byte) (*State, bool) {
	s.Lock()
	defer s.Unlock()

	for _, st := range s.byFile[string(fileHandle)] {
		if st.Owner == owner && st.Verifier != nil && *st.Verifier == verifier {
			return st, true
		}
	}

	return nil, false
}

// Count returns the number of share-state reservations currently installed,
// across all files.
func (s *Store) Count() int {
	s.Lock()
	defer s.Unlock()

	return len(s.byOther)
}

func (s *Store) Get(other Other) (*State, bool) {
	s.Lock()
	defer s.Unlock()

	st, ok := s.byOther[other]

	return st, ok
}

// Iterate returns a snapshot of the reservations held on fileHandle. The
// caller may inspect it without holding the store lock; it will not
// reflect concurrent Add/Remove calls made after it was taken.
func (s *Store) Iterate(fileHandle []byte) []*State {
	s.Lock()
	defer s.Unlock()

	list := s.byFile[string(fileHandle)]
	out := make([]*State, len(list))
	copy(out, list)

	return out
}

// Downgrade replaces an existing reservation's access/deny bits for
// OPEN_DOWNGRADE, re-checking for conflicts against the new bits. It does
// not check that the new bits are a subset of the held ones.
func (s *Store) Downgrade(fileHandle []byte, other Other, access, deny uint32) (*State, error) {
	s.Lock()
	defer s.Unlock()

	st, ok := s.byOther[other]
	if !ok {
		return nil, ErrNoSuchState
	}

	for _, peer := range s.byFile[string(fileHandle)] {
		if peer == st {
			continue
		}

		if conflicts(peer, access, deny) {
			return nil, ErrShareDenied
		}
	}

	st.Access = access
	st.Deny = deny
	st.advance()

	return st, nil
}

// Remove drops a share reservation, e.g. on CLOSE. It refuses while a
// lock derived from this stateid is still outstanding.
func (s *Store) Remove(fileHandle []byte, other Other) bool {
	s.Lock()
	defer s.Unlock()

	key := string(fileHandle)
	list := s.byFile[key]

	for i, st := range list {
		if st.Other != other {
			continue
		}

		if st.lockHeld > 0 {
			return false
		}

		list = append(list[:i], list[i+1:]...)

		if len(list) == 0 {
			delete(s.byFile, key)
		} else {
			s.byFile[key] = list
		}

		delete(s.byOther, other)

		return true
	}

	return false
}
