package shares

import (
	"testing"

	"github.com/nfsquorum/nfs4state/openowner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(owner string) openowner.Key {
	return openowner.Key{ClientID: 0x42, Owner: owner}
}

// Invariant 1: a write access by one owner blocks a conflicting deny by another.
func TestAdd_ConflictAcrossOwners(t *testing.T) {
	s := NewStore()
	fh := []byte("/d/f")

	_, _, _, err := s.Add(fh, key("o1"), AccessWrite, DenyBoth, nil)
	require.NoError(t, err)

	_, _, _, err = s.Add(fh, key("o2"), AccessRead, DenyWrite, nil)
	assert.ErrorIs(t, err, ErrShareDenied)
}

// Invariant: a self-imposed deny still blocks the very owner that installed
// it, independent of owner identity (RFC 14.2.16/8.9).
func TestAdd_SelfConflictSameOwner(t *testing.T) {
	s := NewStore()
	fh := []byte("/d/f")

	_, _, _, err := s.Add(fh, key("o1"), AccessWrite, DenyRead, nil)
	require.NoError(t, err)

	_, _, _, err = s.Add(fh, key("o1"), AccessRead, 0, nil)
	assert.ErrorIs(t, err, ErrShareDenied)
}

// Invariant 2: at most one ShareState per (file, owner); a second Add from
// the same owner reuses the existing state instead of creating a duplicate.
func TestAdd_ReuseSameOwner(t *testing.T) {
	s := NewStore()
	fh := []byte("/d/f")

	st1, reused1, upgraded1, err := s.Add(fh, key("o1"), AccessRead, 0, nil)
	require.NoError(t, err)
	assert.False(t, reused1)
	assert.False(t, upgraded1)

	st2, reused2, upgraded2, err := s.Add(fh, key("o1"), AccessRead, 0, nil)
	require.NoError(t, err)
	assert.True(t, reused2)
	assert.False(t, upgraded2, "repeating the same bits is not an upgrade")
	assert.Same(t, st1, st2)

	assert.Len(t, s.Iterate(fh), 1)
}

// Widening a reused reservation's access/deny bits is reported as an upgrade.
func TestAdd_UpgradeOnWiderBits(t *testing.T) {
	s := NewStore()
	fh := []byte("/d/f")

	st, _, _, err := s.Add(fh, key("o1"), AccessRead, 0, nil)
	require.NoError(t, err)

	st2, reused, upgraded, err := s.Add(fh, key("o1"), AccessBoth, 0, nil)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.True(t, upgraded)
	assert.Equal(t, AccessBoth, st2.Access)
	assert.Same(t, st, st2)
}

// Invariant 4: stateid "other" values are unique, and seqid advances on
// every state-mutating reuse.
func TestAdd_OtherUniqueAndSeqidAdvances(t *testing.T) {
	s := NewStore()

	st1, _, _, err := s.Add([]byte("/d/a"), key("o1"), AccessRead, 0, nil)
	require.NoError(t, err)

	st2, _, _, err := s.Add([]byte("/d/b"), key("o2"), AccessRead, 0, nil)
	require.NoError(t, err)

	assert.NotEqual(t, st1.Other, st2.Other)
	assert.EqualValues(t, 1, st1.Seqid)

	st1b, reused, _, err := s.Add([]byte("/d/a"), key("o1"), AccessWrite, 0, nil)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.EqualValues(t, 2, st1b.Seqid)
}

// Invariant 5: a retransmitted EXCLUSIVE create with a matching verifier is
// found by owner+verifier rather than by conflict/reuse.
func TestFindByOwnerVerifier(t *testing.T) {
	s := NewStore()
	fh := []byte("/d/g")
	verifier := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	st, _, _, err := s.Add(fh, key("o1"), AccessBoth, 0, &verifier)
	require.NoError(t, err)

	found, ok := s.FindByOwnerVerifier(fh, key("o1"), verifier)
	require.True(t, ok)
	assert.Same(t, st, found)

	_, ok = s.FindByOwnerVerifier(fh, key("o1"), [8]byte{9})
	assert.False(t, ok)

	_, ok = s.FindByOwnerVerifier(fh, key("o2"), verifier)
	assert.False(t, ok)
}

func TestDowngrade_NarrowsAndRejectsConflict(t *testing.T) {
	s := NewStore()
	fh := []byte("/d/f")

	st, _, _, err := s.Add(fh, key("o1"), AccessBoth, DenyBoth, nil)
	require.NoError(t, err)

	_, _, _, err = s.Add(fh, key("o2"), AccessRead, 0, nil)
	require.ErrorIs(t, err, ErrShareDenied, "o2 should still be blocked by o1's wide deny before downgrade")

	narrowed, err := s.Downgrade(fh, st.Other, AccessRead, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(AccessRead), narrowed.Access)
	assert.EqualValues(t, 2, narrowed.Seqid)

	_, _, _, err = s.Add(fh, key("o2"), AccessRead, 0, nil)
	assert.NoError(t, err, "downgraded deny bits no longer conflict")
}

func TestDowngrade_UnknownState(t *testing.T) {
	s := NewStore()

	_, err := s.Downgrade([]byte("/d/f"), Other{0xff}, AccessRead, 0)
	assert.ErrorIs(t, err, ErrNoSuchState)
}

func TestRemove_RefusesWhileLockHeld(t *testing.T) {
	s := NewStore()
	fh := []byte("/d/f")

	st, _, _, err := s.Add(fh, key("o1"), AccessRead, 0, nil)
	require.NoError(t, err)

	st.lockHeld = 1
	assert.False(t, s.Remove(fh, st.Other))

	st.lockHeld = 0
	assert.True(t, s.Remove(fh, st.Other))

	_, ok := s.Get(st.Other)
	assert.False(t, ok)
	assert.Zero(t, s.Count())
}

func TestCount(t *testing.T) {
	s := NewStore()

	_, _, _, err := s.Add([]byte("/d/a"), key("o1"), AccessRead, 0, nil)
	require.NoError(t, err)
	_, _, _, err = s.Add([]byte("/d/b"), key("o2"), AccessRead, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Count())
}
