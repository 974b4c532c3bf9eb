package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

const (
	// snapshotVersion is the current cache blob format version.
	snapshotVersion = 1

	// snapshotHeaderSize is magic (4) + version (1) + checksum (32).
	snapshotHeaderSize = 4 + 1 + 32

	// maxSnapshotBody caps the decompressed body (64 MB).
	maxSnapshotBody = 64 << 20

	// entryHeaderSize is fingerprint (32) + session count (4).
	entryHeaderSize = 32 + 4

	// minSessionRecord is a length prefix (4) plus the smallest flatbuffer root (4).
	minSessionRecord = 4 + 4
)

// snapshotMagic tags a session cache blob.
var snapshotMagic = []byte("RCSC")

// ErrCorruptSnapshot is returned when a cache blob fails validation.
var ErrCorruptSnapshot = errors.New("corrupt session cache snapshot")

// EncodeSnapshot serializes the fingerprint→sessions mapping.
// Format: [4B magic] [1B version] [32B blake3(body)] [zstd(body)]
// Body:   [4B entries] { [32B fingerprint] [4B count] { [4B len] [Session flatbuffer] } }
// Entries are sorted by fingerprint so equal mappings encode identically.
func EncodeSnapshot(entries map[Fingerprint][]*Session) ([]byte, error) {
	fps := make([]Fingerprint, 0, len(entries))
	for fp := range entries {
		fps = append(fps, fp)
	}

	sort.Slice(fps, func(i, j int) bool {
		return bytes.Compare(fps[i][:], fps[j][:]) < 0
	})

	var body []byte
	body = binary.BigEndian.AppendUint32(body, uint32(len(fps)))

	for _, fp := range fps {
		sessions := entries[fp]

		body = append(body, fp[:]...)
		body = binary.BigEndian.AppendUint32(body, uint32(len(sessions)))

		for _, s := range sessions {
			encoded := EncodeSession(s)
			body = binary.BigEndian.AppendUint32(body, uint32(len(encoded)))
			body = append(body, encoded...)
		}
	}

	compressed, err := compress(body)
	if err != nil {
		return nil, fmt.Errorf("compress snapshot:\n%w", err)
	}

	checksum := blake3.Sum256(body)

	out := make([]byte, 0, snapshotHeaderSize+len(compressed))
	out = append(out, snapshotMagic...)
	out = append(out, snapshotVersion)
	out = append(out, checksum[:]...)
	out = append(out, compressed...)

	return out, nil
}

// DecodeSnapshot parses a blob produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (map[Fingerprint][]*Session, error) {
	if len(data) < snapshotHeaderSize {
		return nil, fmt.Errorf("%w: blob too short: %d", ErrCorruptSnapshot, len(data))
	}

	if !bytes.Equal(data[:4], snapshotMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptSnapshot)
	}

	if data[4] != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, data[4])
	}

	var want [32]byte
	copy(want[:], data[5:snapshotHeaderSize])

	body, err := decompress(data[snapshotHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrCorruptSnapshot, err)
	}

	if blake3.Sum256(body) != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	return decodeBody(body)
}

// decodeBody parses the uncompressed snapshot body.
func decodeBody(body []byte) (map[Fingerprint][]*Session, error) {
	r := &reader{buf: body}

	count, err := r.uint32()
	if err != nil {
		return nil, err
	}

	// Counts are checked against what the remaining bytes could hold before
	// anything is sized from them.
	if err := r.fits(count, entryHeaderSize); err != nil {
		return nil, err
	}

	entries := make(map[Fingerprint][]*Session, count)

	for i := uint32(0); i < count; i++ {
		var fp Fingerprint

		raw, err := r.bytes(len(fp))
		if err != nil {
			return nil, err
		}
		copy(fp[:], raw)

		n, err := r.uint32()
		if err != nil {
			return nil, err
		}

		if err := r.fits(n, minSessionRecord); err != nil {
			return nil, err
		}

		sessions := make([]*Session, 0, n)

		for j := uint32(0); j < n; j++ {
			size, err := r.uint32()
			if err != nil {
				return nil, err
			}

			encoded, err := r.bytes(int(size))
			if err != nil {
				return nil, err
			}

			s, err := DecodeSession(encoded)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d session %d: %v", ErrCorruptSnapshot, i, j, err)
			}

			sessions = append(sessions, s)
		}

		entries[fp] = sessions
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSnapshot, r.remaining())
	}

	return entries, nil
}

// reader is a bounds-checked cursor over the snapshot body.
type reader struct {
	buf []byte // buf is the full body
	off int    // off is the read position
}

// uint32 reads a big-endian uint32.
func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(b), nil
}

// bytes reads n bytes without copying.
func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("%w: truncated at offset %d", ErrCorruptSnapshot, r.off)
	}

	b := r.buf[r.off : r.off+n]
	r.off += n

	return b, nil
}

// fits checks that count records of at least size bytes each can still be read.
func (r *reader) fits(count uint32, size int) error {
	if uint64(count) > uint64(r.remaining()/size) {
		return fmt.Errorf("%w: count %d exceeds remaining %d bytes at offset %d",
			ErrCorruptSnapshot, count, r.remaining(), r.off)
	}

	return nil
}

// remaining returns the unread byte count.
func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

// compress compresses data using zstd.
func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// decompress decompresses zstd data, refusing bodies above maxSnapshotBody.
func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxSnapshotBody))
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
