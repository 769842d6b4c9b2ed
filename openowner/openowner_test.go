package openowner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_GetOrCreateIsIdempotent(t *testing.T) {
	table := NewTable()
	key := Key{ClientID: 1, Owner: "o1"}

	o1 := table.GetOrCreate(key)
	o2 := table.GetOrCreate(key)

	assert.Same(t, o1, o2)

	got, ok := table.Get(key)
	require.True(t, ok)
	assert.Same(t, o1, got)
}

func TestTable_Remove(t *testing.T) {
	table := NewTable()
	key := Key{ClientID: 1, Owner: "o1"}

	table.GetOrCreate(key)
	table.Remove(key)

	_, ok := table.Get(key)
	assert.False(t, ok)
}

func TestDigest_StableAndDistinct(t *testing.T) {
	a := Digest(struct{ X uint32 }{1})
	b := Digest(struct{ X uint32 }{1})
	c := Digest(struct{ X uint32 }{2})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCheckSeqid_FreshOwnerAcceptsSeqid1(t *testing.T) {
	o := &Owner{}
	digest := Digest("req")

	assert.Equal(t, Advance, o.CheckSeqid(1, digest))
}

func TestCheckSeqid_AdvanceThenReplay(t *testing.T) {
	o := &Owner{}
	digest1 := Digest("req-1")

	require.Equal(t, Advance, o.CheckSeqid(1, digest1))

	o.SaveReply(1, digest1, 0, []byte("payload-1"))

	// Retransmission: same seqid, same digest.
	assert.Equal(t, Replay, o.CheckSeqid(1, digest1))

	status, payload := o.Replay()
	assert.Equal(t, uint32(0), status)
	assert.Equal(t, []byte("payload-1"), payload)

	// A genuinely new request advances the seqid.
	digest2 := Digest("req-2")
	assert.Equal(t, Advance, o.CheckSeqid(2, digest2))
}

func TestCheckSeqid_SameSeqidDifferentBodyFails(t *testing.T) {
	o := &Owner{}
	digest1 := Digest("req-1")

	require.Equal(t, Advance, o.CheckSeqid(1, digest1))
	o.SaveReply(1, digest1, 0, nil)

	// Same seqid as last reply, but a different request body: not a replay.
	assert.Equal(t, Fail, o.CheckSeqid(1, Digest("different-req")))
}

func TestCheckSeqid_OutOfOrderFails(t *testing.T) {
	o := &Owner{}

	require.Equal(t, Advance, o.CheckSeqid(1, Digest("req-1")))
	o.SaveReply(1, Digest("req-1"), 0, nil)

	assert.Equal(t, Fail, o.CheckSeqid(3, Digest("req-3")))
}

func TestCheckSeqid_ZeroSeqidReconfirmsAnyOwner(t *testing.T) {
	o := &Owner{}

	require.Equal(t, Advance, o.CheckSeqid(1, Digest("req-1")))
	o.SaveReply(1, Digest("req-1"), 0, nil)
	o.Confirm()
	require.True(t, o.IsConfirmed())

	assert.Equal(t, Advance, o.CheckSeqid(0, Digest("reconfirm")))
	assert.False(t, o.IsConfirmed(), "a seqid-0 request drops the owner back to unconfirmed")
}

func TestConfirm(t *testing.T) {
	o := &Owner{}
	assert.False(t, o.IsConfirmed())

	o.Confirm()
	assert.True(t, o.IsConfirmed())
}
