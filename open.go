package nfs4state

import (
	"errors"
	"os"
	"time"
	"unicode/utf8"

	"github.com/nfsquorum/nfs4state/clients"
	"github.com/nfsquorum/nfs4state/clock"
	"github.com/nfsquorum/nfs4state/metrics"
	"github.com/nfsquorum/nfs4state/msg"
	"github.com/nfsquorum/nfs4state/openowner"
	"github.com/nfsquorum/nfs4state/shares"
	"github.com/nfsquorum/nfs4state/worker"
	"github.com/nfsquorum/nfs4state/xdr"
	"github.com/kuleuven/vfs"
)

// MaxName is the longest a single path component may be.
const MaxName = 255

// toOther converts the wire [3]uint32 stateid "other" to the 12-byte key
// shares.Store indexes by.
func toOther(o [3]uint32) shares.Other {
	var out shares.Other

	out[0], out[1], out[2], out[3] = byte(o[0]>>24), byte(o[0]>>16), byte(o[0]>>8), byte(o[0])
	out[4], out[5], out[6], out[7] = byte(o[1]>>24), byte(o[1]>>16), byte(o[1]>>8), byte(o[1])
	out[8], out[9], out[10], out[11] = byte(o[2]>>24), byte(o[2]>>16), byte(o[2]>>8), byte(o[2])

	return out
}

func fromOther(o shares.Other) [3]uint32 {
	return [3]uint32{
		uint32(o[0])<<24 | uint32(o[1])<<16 | uint32(o[2])<<8 | uint32(o[3]),
		uint32(o[4])<<24 | uint32(o[5])<<16 | uint32(o[6])<<8 | uint32(o[7]),
		uint32(o[8])<<24 | uint32(o[9])<<16 | uint32(o[10])<<8 | uint32(o[11]),
	}
}

func stateID(s *shares.State) msg.StateId4 {
	return msg.StateId4{
		SeqId: s.Seqid,
		Other: fromOther(s.Other),
	}
}

// resolveStateFile resolves a wire stateid to the worker.File it names, by
// first finding the owning share state and then the open descriptor it
// points at.
func (x *Compound) resolveStateFile(fs *worker.Worker, id msg.StateId4) (*worker.File, bool) {
	st, ok := x.Shares.Get(toOther(id.Other))
	if !ok {
		return nil, false
	}

	return fs.GetFile(st.FileID)
}

// checkAccess reports NFS4ERR_ACCESS unless fi's owner-permission bits
// cover every bit requested in access (OPEN4_SHARE_ACCESS_READ/WRITE). As
// with the ACCESS operation, permission is derived from the file's own
// mode bits rather than the caller's uid, since the per-request
// filesystem is already impersonating the right user.
func checkAccess(fi vfs.FileInfo, access uint32) error {
	perm := (uint32(fi.Mode()) >> 6) & 0b0111

	if access&msg.OPEN4_SHARE_ACCESS_READ != 0 && perm&0b100 == 0 {
		return msg.Error(msg.NFS4ERR_ACCESS)
	}

	if access&msg.OPEN4_SHARE_ACCESS_WRITE != 0 && perm&0b010 == 0 {
		return msg.Error(msg.NFS4ERR_ACCESS)
	}

	return nil
}

// openFlags derives the os.O_* flags for the descriptor backing an OPEN.
// DENY_WRITE forces a read/write descriptor even for a read-only access
// request, since the server has to be able to enforce the deny itself.
func openFlags(access, deny uint32) int {
	flag := os.O_RDONLY

	if access&msg.OPEN4_SHARE_ACCESS_WRITE != 0 {
		flag = os.O_RDWR
	}

	if access&msg.OPEN4_SHARE_ACCESS_READ != 0 && access&msg.OPEN4_SHARE_ACCESS_WRITE != 0 {
		flag = os.O_RDWR
	}

	if deny&shares.DenyWrite != 0 {
		flag = os.O_RDWR
	}

	return flag
}

// changeInfo samples a directory's mutation marker before an OPEN that may
// create or truncate a file in it. Atomic is always left false: nothing
// in this codebase holds a lock across the sample-mutate-sample window.
func changeInfo(fs *worker.Worker, dirPath string) msg.ChangeInfo4 {
	fi, err := fs.Lstat(dirPath)
	if err != nil {
		return msg.ChangeInfo4{}
	}

	return msg.ChangeInfo4{Before: uint64(fi.ModTime().UnixNano())}
}

func changeInfoAfter(fs *worker.Worker, dirPath string) uint64 {
	fi, err := fs.Lstat(dirPath)
	if err != nil {
		return 0
	}

	return uint64(clock.MustIncrement(fi.ModTime()).UnixNano())
}

// applyCreateAttrs applies the size/mtime of a decoded createattrs set once
// the target file exists; mode is applied earlier, as part of the open
// call itself, since not every descriptor path accepts a mode parameter.
func applyCreateAttrs(fs *worker.Worker, path string, attrs *Attr) error {
	if attrs.Size != nil {
		if err := fs.Truncate(path, int64(*attrs.Size)); err != nil {
			return err
		}
	}

	if attrs.TimeMetadata != nil {
		mtime := time.Unix(int64(attrs.TimeMetadata.Seconds), int64(attrs.TimeMetadata.NSeconds))
		if err := fs.Chtimes(path, mtime, mtime); err != nil {
			return err
		}
	}

	return nil
}

func attrSupported(id int) bool {
	for _, s := range AttrsSupported {
		if s == id {
			return true
		}
	}

	return false
}

// OperationReplay writes an operation's response from an already-encoded
// resok payload, used both for a fresh success/error reply and for
// answering a detected retransmission from the owner's replay cache.
func OperationReplay(out Bytes, op, status uint32, payload []byte) (uint32, error) {
	encoder := xdr.NewEncoder(out)

	if err := encoder.EncodeAll(op, status); err != nil {
		return status, err
	}

	if payload == nil {
		return status, nil
	}

	_, err := out.Write(payload)

	return status, err
}

// openDescriptor opens the underlying file for an OPEN/CREATE, mirroring
// the flag-based dispatch the server uses everywhere else: O_WRONLY wraps
// a write-only handle as a WriterAtReaderAt with a no-op reader side,
// O_RDWR opens bidirectionally, and the zero value falls back to
// read-only.
func openDescriptor(fs *worker.Worker, path string, flag int, mode os.FileMode) (vfs.WriterAtReaderAt, error) {
	switch {
	case flag&os.O_WRONLY != 0:
		h, err := fs.FileWrite(path, flag)
		if err != nil {
			return nil, err
		}

		return NopReaderAt(h), nil
	case flag&os.O_RDWR != 0:
		return fs.OpenFile(path, flag, mode)
	default:
		h, err := fs.FileRead(path)
		if err != nil {
			return nil, err
		}

		return NopWriterAt(h), nil
	}
}

// Open implements the OPEN operation: resolving or creating the target
// file, installing a mandatory share reservation for the requesting
// open-owner, and returning a stateid for subsequent READ/WRITE/CLOSE.
func (x *Compound) Open(in, out Bytes) (status uint32, err error) {
	start := time.Now()

	defer func() {
		x.Metrics.RecordOp("OPEN", status)
		x.Metrics.ObserveDuration(metrics.Since(start))
	}()

	var args msg.OPEN4args

	if err := xdr.NewDecoder(in).Decode(&args); err != nil {
		return 0, err
	}

	if x.MinorVer > 0 {
		args.Owner.ClientId = clients.ClientIDFromSessionID(x.SessionID)
		args.SeqID = x.Slot.SequenceID*clients.MaxSlotID + x.Slot.SlotID
	}

	x.Logger.Tracef("OPEN %d %+v", args.SeqID, args)

	if x.CurrentHandle == nil {
		return OperationResponse(out, msg.OP4_OPEN, msg.NFS4ERR_NOFILEHANDLE)
	}

	ownerKey := openowner.Key{ClientID: args.Owner.ClientId, Owner: args.Owner.Owner}
	owner := x.Owners.GetOrCreate(ownerKey)
	digest := openowner.Digest(args)

	switch owner.CheckSeqid(args.SeqID, digest) {
	case openowner.Replay:
		replayStatus, payload := owner.Replay()

		x.Metrics.RecordReplay("OPEN")

		return OperationReplay(out, msg.OP4_OPEN, replayStatus, payload)
	case openowner.Fail:
		return OperationResponse(out, msg.OP4_OPEN, msg.NFS4ERR_BAD_SEQID)
	}

	advStatus, payload, err := x.openAdvance(&args, ownerKey, owner)
	if err != nil {
		return 0, err
	}

	if advStatus == msg.NFS4ERR_SHARE_DENIED {
		x.Metrics.RecordShareConflict()
	}

	owner.SaveReply(args.SeqID, digest, advStatus, payload)

	return OperationReplay(out, msg.OP4_OPEN, advStatus, payload)
}

// openResult carries everything openCreate/openExisting discover about the
// target and the share state that should back the response, so
// openAdvance can finish the common (re)opening and encoding work.
type openResult struct {
	status    uint32
	state     *shares.State
	reopen    bool // descriptor behind the stateid needs (re)opening
	createNew bool // openDescriptor must be told to create the file
	mode      os.FileMode
	extraFlag int
	attrs     *Attr // createattrs to apply once the file exists, nil for NOCREATE
}

// openAdvance runs the body of OPEN once CheckSeqid has let the request
// through as a genuine advance. It returns the status and encoded resok
// payload (nil on error) so Open can hand both to the owner's replay
// cache.
func (x *Compound) openAdvance(args *msg.OPEN4args, ownerKey openowner.Key, owner *openowner.Owner) (uint32, []byte, error) { //nolint:funlen,gocognit,gocyclo
	fail := func(status uint32) (uint32, []byte, error) {
		return status, nil, nil
	}

	var name string

	switch args.OpenClaim.Claim {
	case msg.CLAIM_PREVIOUS:
		// Reclaim-on-reboot is not implemented; see DESIGN.md.
		return fail(msg.NFS4ERR_NOTSUPP)
	case msg.CLAIM_DELEGATE_CUR:
		name = args.OpenClaim.DelegateCurInfo.File
	case msg.CLAIM_DELEGATE_PREV:
		name = args.OpenClaim.FileDelegatePrev
	case msg.CLAIM_NULL:
		name = args.OpenClaim.File
	default:
		return fail(msg.NFS4ERR_INVAL)
	}

	if name == "" {
		return fail(msg.NFS4ERR_INVAL)
	}

	if len(name) > MaxName {
		return fail(msg.NFS4ERR_NAMETOOLONG)
	}

	if !utf8.ValidString(name) {
		return fail(msg.NFS4ERR_BADCHAR)
	}

	if args.OpenClaim.Claim != msg.CLAIM_NULL {
		// name validated above; delegation claims themselves are not
		// implemented, see DESIGN.md.
		return fail(msg.NFS4ERR_NOTSUPP)
	}

	fs := x.FS(x.Creds, x.SessionID)
	defer fs.Close()

	parent := x.CurrentHandle.Path

	dirInfo, err := fs.Lstat(parent)
	if err != nil {
		DiscardOnServerFault(fs, err)

		return fail(msg.Err2Status(err))
	}

	if dirInfo.Mode()&os.ModeSymlink == os.ModeSymlink {
		return fail(msg.NFS4ERR_SYMLINK)
	}

	if !dirInfo.IsDir() {
		return fail(msg.NFS4ERR_NOTDIR)
	}

	if _, ok := x.Clients.Get(args.Owner.ClientId); !ok {
		return fail(msg.NFS4ERR_STALE_CLIENTID)
	}

	cinfo := changeInfo(fs, parent)
	path := vfs.Join(parent, name)

	var res openResult

	if args.OpenHow.How == msg.OPEN4_CREATE {
		res, err = x.openCreate(fs, path, args, ownerKey)
	} else {
		res, err = x.openExisting(fs, path, args, ownerKey)
	}

	if err != nil {
		return fail(msg.Err2Status(err))
	}

	if res.status != msg.NFS4_OK {
		return fail(res.status)
	}

	if x.Config.WithMode0Check {
		if fi, ferr := fs.Lstat(path); ferr == nil && fi.Mode()&os.ModePerm == 0 {
			return fail(msg.NFS4ERR_ACCESS)
		}
	}

	if res.reopen {
		if prev, ok := fs.GetFile(res.state.FileID); ok {
			fs.RemoveFile(res.state.FileID) //nolint:errcheck
			prev.File.Close()               //nolint:errcheck
		}

		flag := openFlags(args.ShareAccess, args.ShareDeny) | res.extraFlag

		f, ferr := openDescriptor(fs, path, flag, res.mode)
		if ferr != nil {
			DiscardOnServerFault(fs, ferr)

			// RFC 7530 14.2.16/16.16.4: open_by_name failure reports
			// NFS4ERR_ACCESS, never a status derived from the underlying
			// error.
			return fail(msg.NFS4ERR_ACCESS)
		}

		if res.createNew && flag&os.O_WRONLY != 0 {
			fs.Chmod(path, res.mode) //nolint:errcheck
		}

		if res.attrs != nil {
			if cerr := applyCreateAttrs(fs, path, res.attrs); cerr != nil {
				f.Close() //nolint:errcheck

				return fail(msg.Err2Status(cerr))
			}
		}

		handle, herr := fs.Handle(path)
		if herr != nil {
			f.Close() //nolint:errcheck
			DiscardOnServerFault(fs, herr)

			return fail(msg.Err2Status(herr))
		}

		if res.state.Other == (shares.Other{}) {
			// openCreate couldn't compute a real file handle before the
			// descriptor existed; install the state now that it does.
			st, _, _, serr := x.Shares.Add(handle, ownerKey, args.ShareAccess, args.ShareDeny, res.state.Verifier)
			if serr != nil {
				f.Close() //nolint:errcheck

				return fail(msg.Err2Status(serr))
			}

			res.state = st

			x.Metrics.SetActiveShares(x.Shares.Count())
		}

		res.state.FileID = fs.AddFile(&worker.File{
			File:   f,
			Handle: handle,
			Client: clientOrNil(x, args.Owner.ClientId),
		})

		fs.Cache.Invalidate(x.CurrentHandle.Handle)
	} else if res.attrs != nil {
		if cerr := applyCreateAttrs(fs, path, res.attrs); cerr != nil {
			return fail(msg.Err2Status(cerr))
		}
	}

	x.Metrics.SetActiveShares(x.Shares.Count())

	handle, err := fs.Handle(path)
	if err != nil {
		DiscardOnServerFault(fs, err)

		return fail(msg.Err2Status(err))
	}

	x.CurrentHandle = &FileHandle{Handle: handle, Path: path}

	cinfo.After = changeInfoAfter(fs, parent)

	rflags := uint32(msg.OPEN4_RESULT_LOCKTYPE_POSIX)

	if x.Config.UseOpenConfirm && !owner.IsConfirmed() {
		rflags |= msg.OPEN4_RESULT_CONFIRM
	} else {
		owner.Confirm()
	}

	var attrSet []uint32

	if args.OpenHow.How == msg.OPEN4_CREATE {
		attrSet = bitmap4Encode(map[int]bool{A_size: true, A_mode: true})
	}

	payload, err := xdr.Marshal(msg.OPEN4resok{
		StateId: stateID(res.state),
		CInfo:   cinfo,
		Rflags:  rflags,
		AttrSet: attrSet,
	})
	if err != nil {
		return 0, nil, err
	}

	return msg.NFS4_OK, payload, nil
}

// openExisting implements the NOCREATE branch: look up path, validate its
// type and owner-permission bits, and install or reuse a share
// reservation. reopen is true whenever this call installs a brand-new
// reservation or widens an existing one.
func (x *Compound) openExisting(fs *worker.Worker, path string, args *msg.OPEN4args, ownerKey openowner.Key) (openResult, error) {
	fi, err := fs.Lstat(path)
	if err != nil {
		return openResult{status: msg.Err2Status(err)}, nil
	}

	if fi.IsDir() {
		return openResult{status: msg.NFS4ERR_ISDIR}, nil
	}

	if fi.Mode()&os.ModeSymlink == os.ModeSymlink {
		return openResult{status: msg.NFS4ERR_SYMLINK}, nil
	}

	if !fi.Mode().IsRegular() {
		return openResult{status: msg.NFS4ERR_INVAL}, nil
	}

	if aerr := checkAccess(fi, args.ShareAccess); aerr != nil {
		return openResult{status: msg.Err2Status(aerr)}, nil
	}

	handle, herr := fs.Handle(path)
	if herr != nil {
		return openResult{status: msg.Err2Status(herr)}, nil
	}

	st, reused, upgraded, serr := x.Shares.Add(handle, ownerKey, args.ShareAccess, args.ShareDeny, nil)

	switch {
	case errors.Is(serr, shares.ErrShareDenied):
		return openResult{status: msg.NFS4ERR_SHARE_DENIED}, nil
	case serr != nil:
		return openResult{}, serr
	}

	return openResult{status: msg.NFS4_OK, state: st, reopen: !reused || upgraded}, nil
}

// openCreate implements the CREATE branch, dispatching on UNCHECKED4,
// GUARDED4, EXCLUSIVE4 and EXCLUSIVE4_1.
func (x *Compound) openCreate(fs *worker.Worker, path string, args *msg.OPEN4args, ownerKey openowner.Key) (openResult, error) { //nolint:funlen,gocognit,gocyclo
	how := args.OpenHow.Claim
	mode := os.FileMode(0o644)

	var (
		attrs     *Attr
		verifier  *[8]byte
		extraFlag int
		err       error
	)

	switch how.CreateMode {
	case msg.UNCHECKED4:
		attrs, err = decodeFAttrs4(how.CreateAttrsUnchecked)
		extraFlag = os.O_CREATE
	case msg.GUARDED4:
		attrs, err = decodeFAttrs4(how.CreateAttrsGuarded)
		extraFlag = os.O_CREATE | os.O_EXCL
	case msg.EXCLUSIVE4:
		v := verifierBytes(how.CreateVerf)
		verifier = &v
		attrs = &Attr{}
		extraFlag = os.O_CREATE | os.O_EXCL
	case msg.EXCLUSIVE4_1:
		v := verifierBytes(how.CreateVerf41.Verf)
		verifier = &v
		attrs, err = decodeFAttrs4(how.CreateVerf41.Attrs)
		extraFlag = os.O_CREATE | os.O_EXCL
	default:
		return openResult{status: msg.NFS4ERR_INVAL}, nil
	}

	if err != nil {
		return openResult{status: msg.Err2Status(err)}, nil
	}

	for _, a := range attrs.SupportedAttrs {
		if !attrSupported(int(a)) {
			return openResult{status: msg.NFS4ERR_ATTRNOTSUPP}, nil
		}
	}

	if attrs.Mode != nil {
		mode = os.FileMode(*attrs.Mode) & os.ModePerm
	}

	fi, statErr := fs.Lstat(path)
	found := statErr == nil

	if found {
		if fi.IsDir() {
			return openResult{status: msg.NFS4ERR_ISDIR}, nil
		}

		if fi.Mode()&os.ModeSymlink == os.ModeSymlink {
			return openResult{status: msg.NFS4ERR_SYMLINK}, nil
		}
	}

	switch how.CreateMode {
	case msg.GUARDED4:
		if found {
			return openResult{status: msg.NFS4ERR_EXIST}, nil
		}
	case msg.EXCLUSIVE4, msg.EXCLUSIVE4_1:
		if found {
			handle, herr := fs.Handle(path)
			if herr != nil {
				return openResult{status: msg.Err2Status(herr)}, nil
			}

			if existing, ok := x.Shares.FindByOwnerVerifier(handle, ownerKey, *verifier); ok {
				// Retransmit of a completed EXCLUSIVE create: nothing
				// new to mutate, reuse the reservation and descriptor.
				return openResult{status: msg.NFS4_OK, state: existing}, nil
			}

			return openResult{status: msg.NFS4ERR_EXIST}, nil
		}
	}

	if found {
		if aerr := checkAccess(fi, args.ShareAccess); aerr != nil {
			// RFC 7530 14.2.16/16.16.4: an UNCHECKED4 open-by-name that
			// fails the permission check on an existing file reports
			// NFS4ERR_ACCESS, not NFS4ERR_SHARE_DENIED.
			return openResult{status: msg.NFS4ERR_ACCESS}, nil
		}

		extraFlag &^= os.O_CREATE | os.O_EXCL

		handle, herr := fs.Handle(path)
		if herr != nil {
			return openResult{status: msg.Err2Status(herr)}, nil
		}

		st, reused, upgraded, serr := x.Shares.Add(handle, ownerKey, args.ShareAccess, args.ShareDeny, verifier)

		switch {
		case errors.Is(serr, shares.ErrShareDenied):
			return openResult{status: msg.NFS4ERR_SHARE_DENIED}, nil
		case serr != nil:
			return openResult{}, serr
		}

		return openResult{
			status: msg.NFS4_OK, state: st, reopen: !reused || upgraded,
			createNew: false, mode: mode, extraFlag: extraFlag, attrs: attrs,
		}, nil
	}

	// The target doesn't exist yet: the share state can't be keyed by a
	// real file handle until the descriptor creates it, so openAdvance
	// installs it once the handle is known.
	return openResult{
		status: msg.NFS4_OK,
		state:  &shares.State{Owner: ownerKey, Access: args.ShareAccess, Deny: args.ShareDeny, Verifier: verifier, Seqid: 1},
		reopen: true, createNew: true, mode: mode, extraFlag: extraFlag, attrs: attrs,
	}, nil
}

func verifierBytes(v uint64) [8]byte {
	var out [8]byte

	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * (7 - i)))
	}

	return out
}

func clientOrNil(x *Compound, clientID uint64) *clients.Client {
	c, _ := x.Clients.Get(clientID)

	return c
}

// OpenConfirm implements OPEN_CONFIRM, used by NFSv4.0 clients to confirm
// an open-owner's first OPEN reply when it carried OPEN4_RESULT_CONFIRM.
func (x *Compound) OpenConfirm(in, out Bytes) (status uint32, err error) {
	start := time.Now()

	defer func() {
		x.Metrics.RecordOp("OPEN_CONFIRM", status)
		x.Metrics.ObserveDuration(metrics.Since(start))
	}()

	var args msg.OPENCONFIRM4args

	if err := xdr.NewDecoder(in).Decode(&args); err != nil {
		return 0, err
	}

	x.Logger.Tracef("OPEN_CONFIRM %x %d", args.OpenStateId.Other, args.SeqId)

	st, ok := x.Shares.Get(toOther(args.OpenStateId.Other))
	if !ok {
		return OperationResponse(out, msg.OP4_OPEN_CONFIRM, msg.NFS4ERR_BAD_STATEID)
	}

	owner, ok := x.Owners.Get(st.Owner)
	if !ok {
		return OperationResponse(out, msg.OP4_OPEN_CONFIRM, msg.NFS4ERR_BAD_STATEID)
	}

	digest := openowner.Digest(args)

	switch owner.CheckSeqid(args.SeqId, digest) {
	case openowner.Replay:
		replayStatus, payload := owner.Replay()

		x.Metrics.RecordReplay("OPEN_CONFIRM")

		return OperationReplay(out, msg.OP4_OPEN_CONFIRM, replayStatus, payload)
	case openowner.Fail:
		return OperationResponse(out, msg.OP4_OPEN_CONFIRM, msg.NFS4ERR_BAD_SEQID)
	}

	owner.Confirm()

	payload, err := xdr.Marshal(msg.OPENCONFIRM4resok{OpenStateId: stateID(st)})
	if err != nil {
		return 0, err
	}

	owner.SaveReply(args.SeqId, digest, msg.NFS4_OK, payload)

	return OperationReplay(out, msg.OP4_OPEN_CONFIRM, msg.NFS4_OK, payload)
}

// OpenDowngrade implements OPEN_DOWNGRADE: replacing the access/deny bits
// of an existing share reservation. The new bits are not checked to be a
// subset of the held ones.
func (x *Compound) OpenDowngrade(in, out Bytes) (status uint32, err error) {
	start := time.Now()

	defer func() {
		x.Metrics.RecordOp("OPEN_DOWNGRADE", status)
		x.Metrics.ObserveDuration(metrics.Since(start))
	}()

	var args msg.OPENDG4args

	if err := xdr.NewDecoder(in).Decode(&args); err != nil {
		return 0, err
	}

	x.Logger.Tracef("OPEN_DOWNGRADE %x", args.OpenStateId.Other)

	if x.CurrentHandle == nil {
		return OperationResponse(out, msg.OP4_OPEN_DOWNGRADE, msg.NFS4ERR_NOFILEHANDLE)
	}

	st, dgErr := x.Shares.Downgrade(x.CurrentHandle.Handle, toOther(args.OpenStateId.Other), args.ShareAccess, args.ShareDeny)

	switch {
	case errors.Is(dgErr, shares.ErrNoSuchState):
		return OperationResponse(out, msg.OP4_OPEN_DOWNGRADE, msg.NFS4ERR_BAD_STATEID)
	case errors.Is(dgErr, shares.ErrShareDenied):
		x.Metrics.RecordShareConflict()

		return OperationResponse(out, msg.OP4_OPEN_DOWNGRADE, msg.NFS4ERR_SHARE_DENIED)
	case dgErr != nil:
		return 0, dgErr
	}

	return OperationResponse(out, msg.OP4_OPEN_DOWNGRADE, msg.NFS4_OK, stateID(st))
}

// Close implements CLOSE: closing the open file descriptor a stateid names
// and releasing its share reservation. The descriptor is always closed; the
// reservation is kept while a lock is outstanding against it.
func (x *Compound) Close(in, out Bytes) (status uint32, err error) {
	start := time.Now()

	defer func() {
		x.Metrics.RecordOp("CLOSE", status)
		x.Metrics.ObserveDuration(metrics.Since(start))
	}()

	var args msg.CLOSE4args

	if err := xdr.NewDecoder(in).Decode(&args); err != nil {
		return 0, err
	}

	x.Logger.Tracef("CLOSE %x", args.OpenStateId.Other)

	if x.CurrentHandle == nil {
		return OperationResponse(out, msg.OP4_CLOSE, msg.NFS4ERR_NOFILEHANDLE)
	}

	other := toOther(args.OpenStateId.Other)

	st, ok := x.Shares.Get(other)
	if !ok {
		return OperationResponse(out, msg.OP4_CLOSE, msg.NFS4ERR_BAD_STATEID)
	}

	fs := x.FS(x.Creds, x.SessionID)
	defer fs.Close()

	if fs.IsRemovedFile(st.FileID) {
		return OperationResponse(out, msg.OP4_CLOSE, msg.NFS4_OK, msg.StateId4{SeqId: st.Seqid + 1, Other: args.OpenStateId.Other})
	}

	f, ok := fs.RemoveFile(st.FileID)
	if !ok {
		return OperationResponse(out, msg.OP4_CLOSE, msg.NFS4ERR_BAD_STATEID)
	}

	fs.Cache.Invalidate(f.Handle)

	if err := f.File.Close(); err != nil {
		return OperationResponse(out, msg.OP4_CLOSE, msg.Err2Status(err))
	}

	if !x.Shares.Remove(x.CurrentHandle.Handle, other) {
		x.Logger.Warnf("share state %x still locked on close", other)
	} else {
		x.Metrics.SetActiveShares(x.Shares.Count())
	}

	return OperationResponse(out, msg.OP4_CLOSE, msg.NFS4_OK, msg.StateId4{SeqId: st.Seqid + 1, Other: args.OpenStateId.Other})
}
