package core

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// AssetID derives the identifier for an asset from its owning project and name.
// Re-registering the same file for the same project always yields the same ID,
// so re-processing never creates a duplicate asset record.
func AssetID(projectID ID, name string) ID {
	return IDFromContent(fmt.Sprintf("%d:%s", projectID, name))
}

// Project is the top-level owner of assets and chunks.
// Projects are created lazily on first reference and never deleted.
type Project struct {
	Id         ID
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// AssetType categorizes the source of an asset.
type AssetType int

const (
	// AssetTypeFile represents a file ingested from the project directory.
	AssetTypeFile AssetType = iota + 1
)

// String returns the canonical string form of the asset type.
func (t AssetType) String() string {
	switch t {
	case AssetTypeFile:
		return "file"
	default:
		return "unknown"
	}
}

// Asset is a reference to one ingested source file. The Name field doubles as
// the file-system lookup key within the project directory.
type Asset struct {
	Id         ID
	ProjectId  ID
	Type       AssetType
	Name       string
	Size       int64
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// Chunk is one segment of a source document's text. Chunks are immutable once
// written; the only mutations are bulk deletion by project or by asset.
type Chunk struct {
	Id         ID
	ProjectId  ID
	AssetId    ID
	Order      int // 1-based position within the source asset
	Text       string
	Metadata   map[string]string // free-form metadata copied from the loader
	InsertedAt time.Time
}

// RetrievedDocument is a single semantic search hit.
type RetrievedDocument struct {
	Text  string
	Score float32
}

// JobType identifies the kind of work a job performs.
type JobType int

const (
	// JobTypeIngest loads files, splits them, and stores chunks.
	JobTypeIngest JobType = iota + 1
	// JobTypeIndex pages stored chunks, embeds them, and upserts vectors.
	JobTypeIndex
)

// String returns the canonical string form of the job type.
func (t JobType) String() string {
	switch t {
	case JobTypeIngest:
		return "ingest"
	case JobTypeIndex:
		return "index"
	default:
		return "unknown"
	}
}

// JobState describes where a job is in its lifecycle.
//
// Valid transitions: PENDING -> RUNNING -> {SUCCESS, FAILURE}, and
// RUNNING -> PENDING while retry attempts remain.
type JobState int

const (
	// JobStatePending means the job is waiting for a worker slot.
	JobStatePending JobState = iota + 1
	// JobStateRunning means a worker is executing the job.
	JobStateRunning
	// JobStateSuccess means the job completed.
	JobStateSuccess
	// JobStateFailure means the job failed terminally.
	JobStateFailure
)

// String returns the canonical string form of the job state.
func (s JobState) String() string {
	switch s {
	case JobStatePending:
		return "PENDING"
	case JobStateRunning:
		return "RUNNING"
	case JobStateSuccess:
		return "SUCCESS"
	case JobStateFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Machine-readable job outcome signals, queryable by job ID.
const (
	SignalProcessingSuccess = "files processed successfully"
	SignalProcessingFailed  = "file processing failed"
	SignalNoFilesError      = "no files found for the project"
	SignalFileIDError       = "file not found"
	SignalIndexingSuccess   = "inserted into vector database successfully"
	SignalIndexingFailed    = "failed to insert into vector database"
)

// Job is one durable unit of background work. All state transitions are
// persisted so that a retried or recovered job re-derives its work from
// storage rather than from another job's in-memory state.
type Job struct {
	Id         ID
	WorkflowId ID // groups chained jobs; zero for standalone jobs
	Type       JobType
	State      JobState
	Signal     string

	ProjectId   ID
	FileName    string // single-file ingest when set; all project files otherwise
	ChunkSize   int
	OverlapSize int
	DoReset     bool
	Chained     bool // submit the index job when this ingest job succeeds

	Attempts    int
	MaxAttempts int
	LastError   string

	InsertedChunks int
	ProcessedFiles int
	IndexedCount   int

	InsertedAt time.Time
	UpdatedAt  time.Time
}
