// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"encoding/json"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the durable record types. The schemas are small and
// flat, so the serializers are written by hand in the MUS serializer-value
// style rather than generated. Field order is part of the wire format and
// must not change.

// IDMUS serializes IDs.
var IDMUS = idMUS{}

// ProjectMUS serializes Project records.
var ProjectMUS = projectMUS{}

// AssetMUS serializes Asset records.
var AssetMUS = assetMUS{}

// ChunkMUS serializes Chunk records.
var ChunkMUS = chunkMUS{}

// JobMUS serializes Job records.
var JobMUS = jobMUS{}

type idMUS struct{}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

// Timestamps travel as UnixMicro, matching the precision used in index keys.

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(v).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

// Chunk metadata is schemaless, so it travels as a JSON document inside the
// MUS payload. encoding/json sorts map keys, keeping the encoding
// deterministic for identical metadata.

func marshalMetadata(m map[string]string, bs []byte) int {
	return ord.String.Marshal(encodeMetadata(m), bs)
}

func unmarshalMetadata(bs []byte) (map[string]string, int, error) {
	s, n, err := ord.String.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if s == "" || s == "{}" {
		return nil, n, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, n, err
	}
	return m, n, nil
}

func sizeMetadata(m map[string]string) int {
	return ord.String.Size(encodeMetadata(m))
}

func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	bs, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(bs)
}

type projectMUS struct{}

func (projectMUS) Marshal(p Project, bs []byte) (n int) {
	n = IDMUS.Marshal(p.Id, bs)
	n += marshalTime(p.InsertedAt, bs[n:])
	n += marshalTime(p.UpdatedAt, bs[n:])
	return
}

func (projectMUS) Unmarshal(bs []byte) (p Project, n int, err error) {
	var n1 int
	p.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	p.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	p.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (projectMUS) Size(p Project) int {
	return IDMUS.Size(p.Id) + sizeTime(p.InsertedAt) + sizeTime(p.UpdatedAt)
}

type assetMUS struct{}

func (assetMUS) Marshal(a Asset, bs []byte) (n int) {
	n = IDMUS.Marshal(a.Id, bs)
	n += IDMUS.Marshal(a.ProjectId, bs[n:])
	n += varint.Int.Marshal(int(a.Type), bs[n:])
	n += ord.String.Marshal(a.Name, bs[n:])
	n += varint.Int64.Marshal(a.Size, bs[n:])
	n += marshalTime(a.InsertedAt, bs[n:])
	n += marshalTime(a.UpdatedAt, bs[n:])
	return
}

func (assetMUS) Unmarshal(bs []byte) (a Asset, n int, err error) {
	var n1 int
	a.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	a.ProjectId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var typ int
	typ, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	a.Type = AssetType(typ)
	a.Name, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	a.Size, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	a.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	a.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (assetMUS) Size(a Asset) int {
	return IDMUS.Size(a.Id) + IDMUS.Size(a.ProjectId) +
		varint.Int.Size(int(a.Type)) + ord.String.Size(a.Name) +
		varint.Int64.Size(a.Size) + sizeTime(a.InsertedAt) + sizeTime(a.UpdatedAt)
}

type chunkMUS struct{}

func (chunkMUS) Marshal(c Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(c.Id, bs)
	n += IDMUS.Marshal(c.ProjectId, bs[n:])
	n += IDMUS.Marshal(c.AssetId, bs[n:])
	n += varint.Int.Marshal(c.Order, bs[n:])
	n += ord.String.Marshal(c.Text, bs[n:])
	n += marshalMetadata(c.Metadata, bs[n:])
	n += marshalTime(c.InsertedAt, bs[n:])
	return
}

func (chunkMUS) Unmarshal(bs []byte) (c Chunk, n int, err error) {
	var n1 int
	c.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	c.ProjectId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.AssetId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.Order, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.Metadata, n1, err = unmarshalMetadata(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (chunkMUS) Size(c Chunk) int {
	return IDMUS.Size(c.Id) + IDMUS.Size(c.ProjectId) + IDMUS.Size(c.AssetId) +
		varint.Int.Size(c.Order) + ord.String.Size(c.Text) +
		sizeMetadata(c.Metadata) + sizeTime(c.InsertedAt)
}

type jobMUS struct{}

func (jobMUS) Marshal(j Job, bs []byte) (n int) {
	n = IDMUS.Marshal(j.Id, bs)
	n += IDMUS.Marshal(j.WorkflowId, bs[n:])
	n += varint.Int.Marshal(int(j.Type), bs[n:])
	n += varint.Int.Marshal(int(j.State), bs[n:])
	n += ord.String.Marshal(j.Signal, bs[n:])
	n += IDMUS.Marshal(j.ProjectId, bs[n:])
	n += ord.String.Marshal(j.FileName, bs[n:])
	n += varint.Int.Marshal(j.ChunkSize, bs[n:])
	n += varint.Int.Marshal(j.OverlapSize, bs[n:])
	n += ord.Bool.Marshal(j.DoReset, bs[n:])
	n += ord.Bool.Marshal(j.Chained, bs[n:])
	n += varint.Int.Marshal(j.Attempts, bs[n:])
	n += varint.Int.Marshal(j.MaxAttempts, bs[n:])
	n += ord.String.Marshal(j.LastError, bs[n:])
	n += varint.Int.Marshal(j.InsertedChunks, bs[n:])
	n += varint.Int.Marshal(j.ProcessedFiles, bs[n:])
	n += varint.Int.Marshal(j.IndexedCount, bs[n:])
	n += marshalTime(j.InsertedAt, bs[n:])
	n += marshalTime(j.UpdatedAt, bs[n:])
	return
}

func (jobMUS) Unmarshal(bs []byte) (j Job, n int, err error) {
	var n1 int
	j.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	j.WorkflowId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var v int
	v, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.Type = JobType(v)
	v, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.State = JobState(v)
	j.Signal, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.ProjectId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.FileName, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.ChunkSize, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.OverlapSize, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.DoReset, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.Chained, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.Attempts, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.MaxAttempts, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.LastError, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.InsertedChunks, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.ProcessedFiles, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.IndexedCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (jobMUS) Size(j Job) int {
	return IDMUS.Size(j.Id) + IDMUS.Size(j.WorkflowId) +
		varint.Int.Size(int(j.Type)) + varint.Int.Size(int(j.State)) +
		ord.String.Size(j.Signal) + IDMUS.Size(j.ProjectId) +
		ord.String.Size(j.FileName) + varint.Int.Size(j.ChunkSize) +
		varint.Int.Size(j.OverlapSize) + ord.Bool.Size(j.DoReset) +
		ord.Bool.Size(j.Chained) + varint.Int.Size(j.Attempts) +
		varint.Int.Size(j.MaxAttempts) + ord.String.Size(j.LastError) +
		varint.Int.Size(j.InsertedChunks) + varint.Int.Size(j.ProcessedFiles) +
		varint.Int.Size(j.IndexedCount) + sizeTime(j.InsertedAt) + sizeTime(j.UpdatedAt)
}
