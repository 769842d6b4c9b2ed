package nfs4state

import (
	"os"
	"testing"

	"github.com/nfsquorum/nfs4state/msg"
	"github.com/nfsquorum/nfs4state/shares"
	"github.com/stretchr/testify/assert"
)

func TestOtherRoundTrip(t *testing.T) {
	in := [3]uint32{0x01020304, 0x05060708, 0x090a0b0c}

	got := fromOther(toOther(in))

	assert.Equal(t, in, got)
}

func TestStateID(t *testing.T) {
	st := &shares.State{
		Other: shares.Other{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		Seqid: 7,
	}

	id := stateID(st)

	assert.Equal(t, uint32(7), id.SeqId)
	assert.Equal(t, fromOther(st.Other), id.Other)
}

func TestOpenFlags(t *testing.T) {
	cases := []struct {
		name   string
		access uint32
		deny   uint32
		want   int
	}{
		{"read only, no deny", msg.OPEN4_SHARE_ACCESS_READ, 0, os.O_RDONLY},
		{"write only, no deny", msg.OPEN4_SHARE_ACCESS_WRITE, 0, os.O_RDWR},
		{"read+write", msg.OPEN4_SHARE_ACCESS_BOTH, 0, os.O_RDWR},
		{"read only, deny write forces RDWR", msg.OPEN4_SHARE_ACCESS_READ, shares.DenyWrite, os.O_RDWR},
		{"read only, deny read has no effect on flags", msg.OPEN4_SHARE_ACCESS_READ, shares.DenyRead, os.O_RDONLY},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, openFlags(c.access, c.deny))
		})
	}
}

func TestVerifierBytes(t *testing.T) {
	got := verifierBytes(0x0102030405060708)

	assert.Equal(t, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestAttrSupported(t *testing.T) {
	assert.True(t, attrSupported(A_size))
	assert.True(t, attrSupported(A_mode))
	assert.False(t, attrSupported(999999))
}
