package badger

import (
	"encoding/binary"
)

// Key prefixes for different data types
const (
	snapshotManifestPrefix  = "snapman"
	snapshotProvisionPrefix = "snapprov"
	snapshotVectorPrefix    = "snapvec"
	snapshotBaselinePrefix  = "snapbase"
	snapshotVersionSeq      = "snapverseq"
)

// makeVersionKey generates a key for a per-version record.
// Format: prefix:version
func makeVersionKey(prefix string, version uint64) []byte {
	prefixBytes := []byte(prefix + ":")
	buf := make([]byte, len(prefixBytes)+8)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], version)
	return buf
}

// makeVersionItemKey generates a key for the index-th item of a version.
// Format: prefix:version:index
func makeVersionItemKey(prefix string, version uint64, index int) []byte {
	base := makeVersionKey(prefix, version)
	buf := make([]byte, len(base)+1+4)
	offset := copy(buf, base)
	buf[offset] = ':'
	offset++
	binary.BigEndian.PutUint32(buf[offset:], uint32(index))
	return buf
}

// makeVersionItemPrefix generates the iteration prefix of a version's items.
func makeVersionItemPrefix(prefix string, version uint64) []byte {
	return append(makeVersionKey(prefix, version), ':')
}
