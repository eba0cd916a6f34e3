package badger

import (
	"encoding/binary"

	"github.com/poiesic/ragit/core"
)

// Key prefixes for different data types
const (
	projectRecordPrefix = "prorec"
	assetRecordPrefix   = "assrec"
	assetNamePrefix     = "assnam"
	chunkRecordPrefix   = "churec"
	chunkIDSeq          = "churecseq"
	jobRecordPrefix     = "jobrec"
	jobStatePrefix      = "jobsta"
	jobIDSeq            = "jobrecseq"
)

// makeProjectKey generates a key for a project by ID.
// IDs are written in BigEndian order so lexicographic iteration
// yields projects in ascending ID order.
func makeProjectKey(id core.ID) []byte {
	prefix := projectRecordPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeAssetKey generates a composite key for an asset record.
// Format: prefix:projectID:assetID so a project's assets share a prefix.
func makeAssetKey(projectID, assetID core.ID) []byte {
	prefix := assetRecordPrefix + ":"
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(projectID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(assetID))
	return buf
}

// makePartialAssetKey generates the shared prefix of one project's assets.
func makePartialAssetKey(projectID core.ID) []byte {
	prefix := assetRecordPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(projectID))
	return buf
}

// makeAssetNameKey generates a composite key for asset lookup by file name.
// Format: prefix:projectID:name
func makeAssetNameKey(projectID core.ID, name string) []byte {
	prefix := assetNamePrefix + ":"
	buf := make([]byte, len(prefix)+8+len(name))
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(projectID))
	offset += 8
	copy(buf[offset:], name)
	return buf
}

// makeChunkKey generates a composite key for a chunk record.
// Format: prefix:projectID:chunkID. BigEndian IDs make iteration over a
// project's prefix return chunks in ascending chunk ID order, which keeps
// repeated paginated scans stable.
func makeChunkKey(projectID, chunkID core.ID) []byte {
	prefix := chunkRecordPrefix + ":"
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(projectID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(chunkID))
	return buf
}

// makePartialChunkKey generates the shared prefix of one project's chunks.
func makePartialChunkKey(projectID core.ID) []byte {
	prefix := chunkRecordPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(projectID))
	return buf
}

// makeJobKey generates a key for a job by ID.
func makeJobKey(id core.ID) []byte {
	prefix := jobRecordPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeJobStateKey generates a composite key for the job state index.
// Format: prefix:state:jobID
func makeJobStateKey(state core.JobState, id core.ID) []byte {
	prefix := jobStatePrefix + ":"
	buf := make([]byte, len(prefix)+1+8)
	offset := copy(buf, prefix)
	buf[offset] = byte(state)
	offset++
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialJobStateKey generates the shared prefix of one state's jobs.
func makePartialJobStateKey(state core.JobState) []byte {
	prefix := jobStatePrefix + ":"
	buf := make([]byte, len(prefix)+1)
	offset := copy(buf, prefix)
	buf[offset] = byte(state)
	return buf
}
