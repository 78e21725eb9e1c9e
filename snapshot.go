package gradtape

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/gradtape/index"
	"github.com/hupe1980/gradtape/llf"
	"github.com/hupe1980/gradtape/model"
	"github.com/hupe1980/gradtape/resource"
)

// Compression selects the snapshot body codec.
type Compression uint8

const (
	// CompressionNone stores the snapshot body uncompressed.
	CompressionNone Compression = iota
	// CompressionZstd compresses the snapshot body with zstd.
	CompressionZstd
	// CompressionLZ4 compresses the snapshot body with lz4 block encoding.
	CompressionLZ4
)

const (
	// snapshotMagic identifies gradtape snapshot streams (ASCII "GTP1").
	snapshotMagic = 0x47545031
	// snapshotVersion is the current snapshot format version.
	snapshotVersion = 0x00010000

	policyLinear = 1
	policyReuse  = 2
)

// snapshotHeader is the fixed-size header at the start of every snapshot.
type snapshotHeader struct {
	Magic           uint32
	Version         uint32
	Codec           uint8
	Policy          uint8
	Pad             uint16
	UncompressedLen uint64
	CompressedLen   uint64
	Checksum        uint32 // CRC32 of the compressed body
}

// Save writes the tape to w: statements, Jacobian entries, low-level-function
// records and payloads, primal values, and index-manager state. Adjoints are
// transient derivative state and are not persisted. Positions do not survive
// a save/load round trip; chunk boundaries are rebuilt on load.
//
// Low-level-function callbacks are not serialized. Tokens must resolve
// against an equivalent registry at load time.
func (t *Tape[M]) Save(ctx context.Context, w io.Writer) error {
	began := time.Now()
	written, err := t.save(ctx, w)
	t.opts.metricsCollector.RecordSnapshot(written, time.Since(began), err)
	t.opts.logger.LogSnapshot(ctx, "save", written, err)
	return err
}

func (t *Tape[M]) save(ctx context.Context, w io.Writer) (int64, error) {
	if t.opts.controller != nil {
		w = resource.NewRateLimitedWriter(ctx, w, t.opts.controller)
	}

	body := t.encodeBody()

	compressed, err := compressBody(t.opts.compression, body)
	if err != nil {
		return 0, err
	}

	policy := uint8(policyReuse)
	if t.indices.IsLinear() {
		policy = policyLinear
	}
	header := snapshotHeader{
		Magic:           snapshotMagic,
		Version:         snapshotVersion,
		Codec:           uint8(t.opts.compression),
		Policy:          policy,
		UncompressedLen: uint64(len(body)),
		CompressedLen:   uint64(len(compressed)),
		Checksum:        crc32.ChecksumIEEE(compressed),
	}

	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return 0, fmt.Errorf("gradtape: write snapshot header: %w", err)
	}
	n, err := w.Write(compressed)
	written := int64(binary.Size(header)) + int64(n)
	if err != nil {
		return written, fmt.Errorf("gradtape: write snapshot body: %w", err)
	}
	return written, nil
}

// Load replaces the tape's contents with a snapshot previously written by
// Save. The tape is reset first; the snapshot must have been recorded under
// the same index policy.
func (t *Tape[M]) Load(ctx context.Context, r io.Reader) error {
	began := time.Now()
	read, err := t.load(ctx, r)
	t.opts.metricsCollector.RecordSnapshot(read, time.Since(began), err)
	t.opts.logger.LogSnapshot(ctx, "load", read, err)
	return err
}

func (t *Tape[M]) load(ctx context.Context, r io.Reader) (int64, error) {
	if t.opts.controller != nil {
		r = resource.NewRateLimitedReader(ctx, r, t.opts.controller)
	}

	var header snapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return 0, fmt.Errorf("gradtape: read snapshot header: %w", err)
	}
	read := int64(binary.Size(header))

	if header.Magic != snapshotMagic {
		return read, ErrInvalidMagic
	}
	if header.Version != snapshotVersion {
		return read, ErrInvalidVersion
	}
	wantPolicy := uint8(policyReuse)
	if t.indices.IsLinear() {
		wantPolicy = policyLinear
	}
	if header.Policy != wantPolicy {
		return read, ErrPolicyMismatch
	}

	// Header lengths are untrusted until the checksum has passed; never
	// allocate from them directly.
	if header.CompressedLen > uint64(math.MaxInt) || header.UncompressedLen > uint64(math.MaxInt) {
		return read, ErrCorrupted
	}
	compressed, err := io.ReadAll(io.LimitReader(r, int64(header.CompressedLen)))
	read += int64(len(compressed))
	if err != nil {
		return read, fmt.Errorf("gradtape: read snapshot body: %w", err)
	}
	if uint64(len(compressed)) != header.CompressedLen {
		return read, ErrCorrupted
	}
	if crc32.ChecksumIEEE(compressed) != header.Checksum {
		return read, ErrChecksum
	}

	body, err := decompressBody(Compression(header.Codec), compressed, int(header.UncompressedLen))
	if err != nil {
		return read, err
	}

	if err := t.decodeBody(body); err != nil {
		return read, err
	}
	return read, nil
}

func compressBody(c Compression, body []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return body, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("gradtape: zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(body, nil), nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(body)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(body, dst)
		if err != nil {
			return nil, fmt.Errorf("gradtape: lz4 compress: %w", err)
		}
		if n == 0 || n >= len(body) {
			// Incompressible; store raw. The reader falls back on equal lengths.
			return body, nil
		}
		return dst[:n], nil
	default:
		return nil, ErrUnknownCompression
	}
}

func decompressBody(c Compression, compressed []byte, uncompressedLen int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(compressed) != uncompressedLen {
			return nil, ErrCorrupted
		}
		return compressed, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(uncompressedLen)+1))
		if err != nil {
			return nil, fmt.Errorf("gradtape: zstd decoder: %w", err)
		}
		defer dec.Close()
		body, err := dec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("gradtape: zstd decompress: %w", err)
		}
		if len(body) != uncompressedLen {
			return nil, ErrCorrupted
		}
		return body, nil
	case CompressionLZ4:
		if len(compressed) == uncompressedLen {
			return compressed, nil // stored raw
		}
		// An lz4 block expands at most ~255x; a larger claimed size cannot
		// come from this compressed body.
		if uncompressedLen > 255*len(compressed)+64 {
			return nil, ErrCorrupted
		}
		body := make([]byte, uncompressedLen)
		n, err := lz4.UncompressBlock(compressed, body)
		if err != nil {
			return nil, fmt.Errorf("gradtape: lz4 decompress: %w", err)
		}
		if n != uncompressedLen {
			return nil, ErrCorrupted
		}
		return body, nil
	default:
		return nil, ErrUnknownCompression
	}
}

// encodeBody serializes the stores flat, in recording order. Per-statement
// grouping is implied by the argument counts and payload sizes.
func (t *Tape[M]) encodeBody() []byte {
	stats := t.Stats()
	size := 8 + stats.Statements*6 +
		8 + stats.JacobianEntries*12 +
		8 + stats.LowLevelFunctions*10 +
		8 + t.llfFixed.Len() +
		8 + t.llfDyn.Len() +
		8 + len(t.primals.Raw())*8

	e := &bodyEncoder{buf: make([]byte, 0, size)}

	e.u64(uint64(stats.Statements))
	t.statements.ForEach(t.statements.ZeroPosition(), t.statements.Position(), func(run []model.Statement) {
		for _, st := range run {
			e.u32(uint32(st.LHS))
			e.u16(uint16(st.Args))
		}
	})

	e.u64(uint64(stats.JacobianEntries))
	t.jacobians.ForEach(t.jacobians.ZeroPosition(), t.jacobians.Position(), func(run []model.JacobianEntry) {
		for _, entry := range run {
			e.f64(entry.Coeff)
			e.u32(uint32(entry.ID))
		}
	})

	e.u64(uint64(stats.LowLevelFunctions))
	t.llfTokens.ForEach(t.llfTokens.ZeroPosition(), t.llfTokens.Position(), func(run []llfRecord) {
		for _, rec := range run {
			e.u16(uint16(rec.Token))
			e.u32(rec.FixedSize)
			e.u32(rec.DynSize)
		}
	})

	e.u64(uint64(t.llfFixed.Len()))
	t.llfFixed.ForEach(t.llfFixed.ZeroPosition(), t.llfFixed.Position(), func(run []byte) {
		e.raw(run)
	})

	e.u64(uint64(t.llfDyn.Len()))
	t.llfDyn.ForEach(t.llfDyn.ZeroPosition(), t.llfDyn.Position(), func(run []byte) {
		e.raw(run)
	})

	primals := t.primals.Raw()
	e.u64(uint64(len(primals)))
	for _, p := range primals {
		e.f64(p)
	}

	// Index-manager state, length-prefixed.
	if sc, ok := any(t.indices).(index.StateCodec); ok {
		var state bytes.Buffer
		if err := sc.SaveState(&state); err != nil {
			panic(fmt.Sprintf("gradtape: save index state: %v", err))
		}
		e.u32(uint32(state.Len()))
		e.raw(state.Bytes())
	} else {
		e.u32(0)
	}

	return e.buf
}

// decodeBody rebuilds the stores from a flat body, restoring the
// per-statement grouping invariants chunk by chunk.
func (t *Tape[M]) decodeBody(body []byte) error {
	d := &bodyDecoder{buf: body}

	// Counts are untrusted input. Each is validated against the bytes left
	// in the body before the slice is allocated; a count that could not
	// possibly be backed by records is corruption, not an allocation.
	stmtCount := d.count(6)
	stmts := make([]model.Statement, stmtCount)
	for i := range stmts {
		stmts[i] = model.Statement{
			LHS:  model.Identifier(d.u32()),
			Args: model.ArgumentSize(d.u16()),
		}
	}

	jacCount := d.count(12)
	jacs := make([]model.JacobianEntry, jacCount)
	for i := range jacs {
		jacs[i] = model.JacobianEntry{Coeff: d.f64(), ID: model.Identifier(d.u32())}
	}

	tokCount := d.count(10)
	toks := make([]llfRecord, tokCount)
	for i := range toks {
		toks[i] = llfRecord{
			Token:     llf.Token(d.u16()),
			FixedSize: d.u32(),
			DynSize:   d.u32(),
		}
	}

	fixedBytes := d.bytes(int(d.u64()))
	dynBytes := d.bytes(int(d.u64()))

	primalCount := d.count(8)
	primals := make([]float64, primalCount)
	for i := range primals {
		primals[i] = d.f64()
	}

	stateLen := int(d.u32())
	state := d.bytes(stateLen)

	if d.failed {
		return ErrCorrupted
	}

	// Replay the flat arrays through the regular push path so that chunk
	// grouping invariants hold on the rebuilt tape.
	t.resetStores()
	var jacPos, tokPos, fixedPos, dynPos int
	for _, st := range stmts {
		if st.IsLowLevelFunction() {
			if tokPos >= len(toks) {
				return ErrCorrupted
			}
			rec := toks[tokPos]
			tokPos++
			fEnd := fixedPos + int(rec.FixedSize)
			dEnd := dynPos + int(rec.DynSize)
			if fEnd > len(fixedBytes) || dEnd > len(dynBytes) {
				return ErrCorrupted
			}
			t.pushLowLevelRecord(rec.Token, fixedBytes[fixedPos:fEnd], dynBytes[dynPos:dEnd])
			fixedPos, dynPos = fEnd, dEnd
			continue
		}

		jEnd := jacPos + int(st.Args)
		if jEnd > len(jacs) {
			return ErrCorrupted
		}
		t.statements.ReserveItems(1)
		t.jacobians.ReserveItems(int(st.Args))
		for _, entry := range jacs[jacPos:jEnd] {
			t.jacobians.Push(entry)
		}
		t.statements.Push(st)
		jacPos = jEnd
	}
	if jacPos != len(jacs) || tokPos != len(toks) {
		return ErrCorrupted
	}

	t.primals.Clear()
	t.primals.EnsureCapacity(primalCount)
	copy(t.primals.Raw(), primals)

	if sc, ok := any(t.indices).(index.StateCodec); ok && stateLen > 0 {
		if err := sc.LoadState(bytes.NewReader(state)); err != nil {
			return err
		}
	}

	t.adjoints.Clear()
	return nil
}

type bodyEncoder struct {
	buf []byte
}

func (e *bodyEncoder) u16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *bodyEncoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *bodyEncoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }
func (e *bodyEncoder) f64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
func (e *bodyEncoder) raw(p []byte) { e.buf = append(e.buf, p...) }

type bodyDecoder struct {
	buf    []byte
	off    int
	failed bool
}

func (d *bodyDecoder) take(n int) []byte {
	if d.failed || n < 0 || n > len(d.buf)-d.off {
		d.failed = true
		return nil
	}
	out := d.buf[d.off : d.off+n]
	d.off += n
	return out
}

// count reads a u64 record count and rejects any value the remaining body
// could not hold at elemSize bytes per record.
func (d *bodyDecoder) count(elemSize int) int {
	v := d.u64()
	if d.failed || v > uint64(len(d.buf)-d.off)/uint64(elemSize) {
		d.failed = true
		return 0
	}
	return int(v)
}

func (d *bodyDecoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *bodyDecoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *bodyDecoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *bodyDecoder) f64() float64 {
	return math.Float64frombits(d.u64())
}

func (d *bodyDecoder) bytes(n int) []byte {
	return d.take(n)
}
