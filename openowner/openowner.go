// Package openowner tracks the per-open-owner seqid and replay cache that
// guards OPEN and OPEN_CONFIRM against duplicate execution of a
// retransmitted request. OPEN_DOWNGRADE and CLOSE do not consult it.
package openowner

import (
	"hash/fnv"
	"sync"

	"github.com/nfsquorum/nfs4state/xdr"
)

// Key identifies an open-owner by the pair the protocol scopes seqid
// bookkeeping to: the owning clientid and its opaque owner string.
type Key struct {
	ClientID uint64
	Owner    string
}

// Owner holds the seqid and single-slot replay cache for one open-owner.
// The mutex guards everything below Key, and sits between the Table lock
// and any per-file share-state lock in the acquisition order.
type Owner struct {
	Key       Key
	Confirmed bool

	sync.Mutex
	seqID    uint32
	digest   [8]byte
	hasReply bool
	status   uint32
	payload  []byte
}

// Table is the process-wide registry of open-owners, keyed by Key.
type Table struct {
	sync.Mutex
	owners map[Key]*Owner
}

func NewTable() *Table {
	return &Table{
		owners: map[Key]*Owner{},
	}
}

// GetOrCreate returns the Owner for key, creating an empty one (seqID 0,
// unconfirmed) on first sight.
func (t *Table) GetOrCreate(key Key) *Owner {
	t.Lock()
	defer t.Unlock()

	if o, ok := t.owners[key]; ok {
		return o
	}

	o := &Owner{Key: key}
	t.owners[key] = o

	return o
}

func (t *Table) Get(key Key) (*Owner, bool) {
	t.Lock()
	defer t.Unlock()

	o, ok := t.owners[key]

	return o, ok
}

// Remove drops an owner from the table, e.g. once its last share state is
// closed and it is confirmed to hold no more state.
func (t *Table) Remove(key Key) {
	t.Lock()
	defer t.Unlock()

	delete(t.owners, key)
}

// Action is the verdict of CheckSeqid.
type Action int

const (
	// Advance means reqSeqid is the expected next seqid; the caller should
	// perform the operation and call SaveReply with the outcome.
	Advance Action = iota
	// Replay means reqSeqid repeats the last seqid seen and its request
	// digest matches what was cached; the caller should answer with the
	// cached status/payload without redoing the operation's side effects.
	Replay
	// Fail means reqSeqid is neither the next seqid nor a matching replay;
	// the caller should return NFS4ERR_BAD_SEQID without touching state.
	Fail
)

// Digest returns a content digest of the decoded arguments of an
// operation, used by CheckSeqid to distinguish a genuine retransmission
// (same seqid, same digest) from a seqid reused with different arguments.
func Digest(args ...interface{}) [8]byte {
	var out [8]byte

	b, err := xdr.Marshal(args...)
	if err != nil {
		return out
	}

	h := fnv.New64a()
	h.Write(b) //nolint:errcheck

	copy(out[:], h.Sum(nil))

	return out
}

// CheckSeqid implements the owner seqid state machine: the common case
// accepts seqid == last+1; a request carrying seqid 0 is always accepted as
// a re-confirmation (dropping the owner back to Unconfirmed), whether the
// owner is brand new or has been through any number of prior requests.
func (o *Owner) CheckSeqid(reqSeqid uint32, digest [8]byte) Action {
	o.Lock()
	defer o.Unlock()

	switch {
	case o.hasReply && reqSeqid == o.seqID && digest == o.digest:
		return Replay
	case reqSeqid == o.seqID+1:
		return Advance
	case reqSeqid == 0:
		o.Confirmed = false

		return Advance
	default:
		return Fail
	}
}

// Replay returns the cached status and payload of the last saved reply.
// Only meaningful right after CheckSeqid returned Replay.
func (o *Owner) Replay() (status uint32, payload []byte) {
	o.Lock()
	defer o.Unlock()

	return o.status, o.payload
}

// SaveReply records the terminal outcome of a request that CheckSeqid let
// through as Advance, so a retransmission of the same seqid can be
// answered without repeating the side effects.
func (o *Owner) SaveReply(reqSeqid uint32, digest [8]byte, status uint32, payload []byte) {
	o.Lock()
	defer o.Unlock()

	o.seqID = reqSeqid
	o.digest = digest
	o.hasReply = true
	o.status = status
	o.payload = append([]byte(nil), payload...)
}

// Confirm marks the owner as confirmed, either because OPEN_CONFIRM was
// processed or because the server decided not to require it.
func (o *Owner) Confirm() {
	o.Lock()
	defer o.Unlock()

	o.Confirmed = true
}

func (o *Owner) IsConfirmed() bool {
	o.Lock()
	defer o.Unlock()

	return o.Confirmed
}
