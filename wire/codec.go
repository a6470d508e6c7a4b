// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/luxfi/singularity/evidence"
	lids "github.com/luxfi/singularity/ids"
	"github.com/luxfi/singularity/signer"
)

const authorityLen = 20

// ErrShortBuffer is returned when a decode call runs out of input before
// every expected field has been read.
var ErrShortBuffer = errors.New("wire: buffer too short")

// ErrUnsupportedVersion is returned when an envelope declares a version
// this build does not understand.
var ErrUnsupportedVersion = errors.New("wire: unsupported envelope version")

// ErrUnknownTag is returned when an envelope's tag byte does not name one
// of the five message types.
var ErrUnknownTag = errors.New("wire: unknown message tag")

type encoder struct{ buf []byte }

func (e *encoder) putFixed(b []byte) { e.buf = append(e.buf, b...) }

func (e *encoder) putUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putInt64(v int64) { e.putUint64(uint64(v)) }

// putBytes writes a length-prefixed byte string.
func (e *encoder) putBytes(b []byte) {
	e.putUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) putAuthority(a lids.AuthorityID) { e.putFixed(a[:]) }

func (e *encoder) putAuthoritySorted(ids []lids.AuthorityID) {
	sorted := append([]lids.AuthorityID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })
	e.putUint32(uint32(len(sorted)))
	for _, id := range sorted {
		e.putAuthority(id)
	}
}

func (e *encoder) putWitnessSet(ws lids.WitnessSet) {
	e.putUint32(uint32(ws.K()))
	members := ws.Sorted()
	e.putUint32(uint32(len(members)))
	for _, id := range members {
		e.putAuthority(id)
	}
}

func (e *encoder) putCommitment(c signer.NonceCommitment) {
	e.putFixed(c.ConsensusID[:])
	e.putUint64(uint64(c.Epoch))
	e.putAuthority(c.Authority)
	e.putBytes(c.Commitment)
}

func (e *encoder) putCommitments(cs []signer.NonceCommitment) {
	sorted := append([]signer.NonceCommitment(nil), cs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Authority.Compare(sorted[j].Authority) < 0 })
	e.putUint32(uint32(len(sorted)))
	for _, c := range sorted {
		e.putCommitment(c)
	}
}

func (e *encoder) putShare(s signer.SignatureShare) {
	e.putAuthority(s.Signer)
	e.putCommitment(s.Commitment)
	e.putBytes(s.Message)
	e.putBytes(s.Bytes)
}

func (e *encoder) putProof(p evidence.Proof) {
	e.putFixed(p.Context[:])
	e.putAuthority(p.Witness)
	e.putFixed(p.Instance[:])
	e.putFixed(p.Prestate[:])
	e.putFixed(p.FirstResultID[:])
	e.putFixed(p.SecondResultID[:])
	e.putInt64(p.Timestamp.UnixNano())
}

func (e *encoder) putEvidenceDelta(d evidence.Delta) {
	e.putUint32(uint32(len(d.Proofs)))
	for _, p := range d.Proofs {
		e.putProof(p)
	}
}

func (e *encoder) putCommitFact(f CommitFact) {
	e.putFixed(f.ConsensusID[:])
	e.putFixed(f.ResultID[:])
	e.putFixed(f.PrestateHash[:])
	e.putBytes(f.Signature.Bytes)
	e.putAuthoritySorted(f.SignerSet)
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) fixed(n int) ([]byte, error) {
	if len(d.buf)-d.off < n {
		return nil, ErrShortBuffer
	}
	out := d.buf[d.off : d.off+n]
	d.off += n
	return out, nil
}

func (d *decoder) uint32() (uint32, error) {
	b, err := d.fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) uint64() (uint64, error) {
	b, err := d.fixed(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *decoder) int64() (int64, error) {
	v, err := d.uint64()
	return int64(v), err
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	return d.fixed(int(n))
}

func (d *decoder) authority() (lids.AuthorityID, error) {
	b, err := d.fixed(authorityLen)
	if err != nil {
		return lids.AuthorityID{}, err
	}
	return lids.ParseAuthorityID(b)
}

func (d *decoder) consensusID() (lids.ConsensusID, error) {
	b, err := d.fixed(32)
	if err != nil {
		return lids.ConsensusID{}, err
	}
	var out lids.ConsensusID
	copy(out[:], b)
	return out, nil
}

func (d *decoder) resultID() (lids.ResultID, error) {
	b, err := d.fixed(32)
	if err != nil {
		return lids.ResultID{}, err
	}
	var out lids.ResultID
	copy(out[:], b)
	return out, nil
}

func (d *decoder) prestateHash() (lids.PrestateHash, error) {
	b, err := d.fixed(32)
	if err != nil {
		return lids.PrestateHash{}, err
	}
	var out lids.PrestateHash
	copy(out[:], b)
	return out, nil
}

func (d *decoder) contextID() (lids.ContextID, error) {
	b, err := d.fixed(32)
	if err != nil {
		return lids.ContextID{}, err
	}
	var out lids.ContextID
	copy(out[:], b)
	return out, nil
}

func (d *decoder) witnessSet() (lids.WitnessSet, error) {
	k, err := d.uint32()
	if err != nil {
		return lids.WitnessSet{}, err
	}
	count, err := d.uint32()
	if err != nil {
		return lids.WitnessSet{}, err
	}
	members := make([]lids.AuthorityID, count)
	for i := range members {
		members[i], err = d.authority()
		if err != nil {
			return lids.WitnessSet{}, err
		}
	}
	return lids.NewWitnessSet(int(k), members...), nil
}

func (d *decoder) commitment() (signer.NonceCommitment, error) {
	var c signer.NonceCommitment
	cid, err := d.consensusID()
	if err != nil {
		return c, err
	}
	epoch, err := d.uint64()
	if err != nil {
		return c, err
	}
	authority, err := d.authority()
	if err != nil {
		return c, err
	}
	commitment, err := d.bytes()
	if err != nil {
		return c, err
	}
	c.ConsensusID = cid
	c.Epoch = lids.Epoch(epoch)
	c.Authority = authority
	c.Commitment = commitment
	return c, nil
}

func (d *decoder) commitments() ([]signer.NonceCommitment, error) {
	count, err := d.uint32()
	if err != nil {
		return nil, err
	}
	out := make([]signer.NonceCommitment, count)
	for i := range out {
		out[i], err = d.commitment()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *decoder) share() (signer.SignatureShare, error) {
	var s signer.SignatureShare
	signerID, err := d.authority()
	if err != nil {
		return s, err
	}
	commitment, err := d.commitment()
	if err != nil {
		return s, err
	}
	message, err := d.bytes()
	if err != nil {
		return s, err
	}
	sigBytes, err := d.bytes()
	if err != nil {
		return s, err
	}
	s.Signer = signerID
	s.Commitment = commitment
	s.Message = message
	s.Bytes = sigBytes
	return s, nil
}

func (d *decoder) proof() (evidence.Proof, error) {
	var p evidence.Proof
	ctx, err := d.contextID()
	if err != nil {
		return p, err
	}
	witness, err := d.authority()
	if err != nil {
		return p, err
	}
	instance, err := d.consensusID()
	if err != nil {
		return p, err
	}
	prestate, err := d.prestateHash()
	if err != nil {
		return p, err
	}
	first, err := d.resultID()
	if err != nil {
		return p, err
	}
	second, err := d.resultID()
	if err != nil {
		return p, err
	}
	ts, err := d.int64()
	if err != nil {
		return p, err
	}
	p.Context = ctx
	p.Witness = witness
	p.Instance = instance
	p.Prestate = prestate
	p.FirstResultID = first
	p.SecondResultID = second
	p.Timestamp = time.Unix(0, ts).UTC()
	return p, nil
}

func (d *decoder) evidenceDelta() (evidence.Delta, error) {
	count, err := d.uint32()
	if err != nil {
		return evidence.Delta{}, err
	}
	proofs := make([]evidence.Proof, count)
	for i := range proofs {
		proofs[i], err = d.proof()
		if err != nil {
			return evidence.Delta{}, err
		}
	}
	return evidence.Delta{Proofs: proofs}, nil
}

func (d *decoder) commitFact() (CommitFact, error) {
	var f CommitFact
	cid, err := d.consensusID()
	if err != nil {
		return f, err
	}
	rid, err := d.resultID()
	if err != nil {
		return f, err
	}
	phash, err := d.prestateHash()
	if err != nil {
		return f, err
	}
	sigBytes, err := d.bytes()
	if err != nil {
		return f, err
	}
	count, err := d.uint32()
	if err != nil {
		return f, err
	}
	signers := make([]lids.AuthorityID, count)
	for i := range signers {
		signers[i], err = d.authority()
		if err != nil {
			return f, err
		}
	}
	f.ConsensusID = cid
	f.ResultID = rid
	f.PrestateHash = phash
	f.Signature = signer.AggregatedSignature{Bytes: sigBytes}
	f.SignerSet = signers
	return f, nil
}

func envelope(tag byte, payload []byte) []byte {
	out := make([]byte, 0, 2+len(payload))
	out = append(out, EnvelopeVersion, tag)
	return append(out, payload...)
}

// Encode serializes m into its canonical envelope: version byte, tag byte,
// then the fixed-layout payload (spec.md §6).
func Encode(m Execute) []byte {
	e := &encoder{}
	e.putFixed(m.InstanceID[:])
	e.putFixed(m.ContextID[:])
	e.putFixed(m.PrestateHash[:])
	e.putBytes(m.Proposal)
	e.putWitnessSet(m.WitnessSet)
	e.putInt64(m.Deadline.UnixNano())
	e.putEvidenceDelta(m.EvidenceDelta)
	return envelope(TagExecute, e.buf)
}

func EncodeNonceCommit(m NonceCommit) []byte {
	e := &encoder{}
	e.putFixed(m.InstanceID[:])
	e.putCommitment(m.Commitment)
	e.putEvidenceDelta(m.EvidenceDelta)
	return envelope(TagNonceCommit, e.buf)
}

func EncodeSignRequest(m SignRequest) []byte {
	e := &encoder{}
	e.putFixed(m.InstanceID[:])
	e.putFixed(m.ResultID[:])
	e.putFixed(m.PrestateHash[:])
	e.putCommitments(m.Commitments)
	e.putEvidenceDelta(m.EvidenceDelta)
	return envelope(TagSignRequest, e.buf)
}

func EncodeSignShare(m SignShare) []byte {
	e := &encoder{}
	e.putFixed(m.InstanceID[:])
	e.putFixed(m.ResultID[:])
	e.putShare(m.Share)
	e.putEvidenceDelta(m.EvidenceDelta)
	return envelope(TagSignShare, e.buf)
}

func EncodeConsensusResult(m ConsensusResult) []byte {
	e := &encoder{}
	e.putFixed(m.InstanceID[:])
	e.putCommitFact(m.CommitFact)
	e.putEvidenceDelta(m.EvidenceDelta)
	return envelope(TagConsensusResult, e.buf)
}

// Decode parses an enveloped message and returns the payload as one of
// Execute, NonceCommit, SignRequest, SignShare, or ConsensusResult.
func Decode(raw []byte) (interface{}, error) {
	if len(raw) < 2 {
		return nil, ErrShortBuffer
	}
	version, tag := raw[0], raw[1]
	if version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: got %d", ErrUnsupportedVersion, version)
	}
	d := &decoder{buf: raw[2:]}

	switch tag {
	case TagExecute:
		return decodeExecute(d)
	case TagNonceCommit:
		return decodeNonceCommit(d)
	case TagSignRequest:
		return decodeSignRequest(d)
	case TagSignShare:
		return decodeSignShare(d)
	case TagConsensusResult:
		return decodeConsensusResult(d)
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownTag, tag)
	}
}

func decodeExecute(d *decoder) (Execute, error) {
	var m Execute
	instanceID, err := d.consensusID()
	if err != nil {
		return m, err
	}
	contextID, err := d.contextID()
	if err != nil {
		return m, err
	}
	prestate, err := d.prestateHash()
	if err != nil {
		return m, err
	}
	proposal, err := d.bytes()
	if err != nil {
		return m, err
	}
	ws, err := d.witnessSet()
	if err != nil {
		return m, err
	}
	deadline, err := d.int64()
	if err != nil {
		return m, err
	}
	delta, err := d.evidenceDelta()
	if err != nil {
		return m, err
	}
	m.InstanceID = instanceID
	m.ContextID = contextID
	m.PrestateHash = prestate
	m.Proposal = proposal
	m.WitnessSet = ws
	m.Deadline = time.Unix(0, deadline).UTC()
	m.EvidenceDelta = delta
	return m, nil
}

func decodeNonceCommit(d *decoder) (NonceCommit, error) {
	var m NonceCommit
	instanceID, err := d.consensusID()
	if err != nil {
		return m, err
	}
	commitment, err := d.commitment()
	if err != nil {
		return m, err
	}
	delta, err := d.evidenceDelta()
	if err != nil {
		return m, err
	}
	m.InstanceID = instanceID
	m.Commitment = commitment
	m.EvidenceDelta = delta
	return m, nil
}

func decodeSignRequest(d *decoder) (SignRequest, error) {
	var m SignRequest
	instanceID, err := d.consensusID()
	if err != nil {
		return m, err
	}
	resultID, err := d.resultID()
	if err != nil {
		return m, err
	}
	prestate, err := d.prestateHash()
	if err != nil {
		return m, err
	}
	commitments, err := d.commitments()
	if err != nil {
		return m, err
	}
	delta, err := d.evidenceDelta()
	if err != nil {
		return m, err
	}
	m.InstanceID = instanceID
	m.ResultID = resultID
	m.PrestateHash = prestate
	m.Commitments = commitments
	m.EvidenceDelta = delta
	return m, nil
}

func decodeSignShare(d *decoder) (SignShare, error) {
	var m SignShare
	instanceID, err := d.consensusID()
	if err != nil {
		return m, err
	}
	resultID, err := d.resultID()
	if err != nil {
		return m, err
	}
	share, err := d.share()
	if err != nil {
		return m, err
	}
	delta, err := d.evidenceDelta()
	if err != nil {
		return m, err
	}
	m.InstanceID = instanceID
	m.ResultID = resultID
	m.Share = share
	m.EvidenceDelta = delta
	return m, nil
}

func decodeConsensusResult(d *decoder) (ConsensusResult, error) {
	var m ConsensusResult
	instanceID, err := d.consensusID()
	if err != nil {
		return m, err
	}
	fact, err := d.commitFact()
	if err != nil {
		return m, err
	}
	delta, err := d.evidenceDelta()
	if err != nil {
		return m, err
	}
	m.InstanceID = instanceID
	m.CommitFact = fact
	m.EvidenceDelta = delta
	return m, nil
}
