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

package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"

	"github.com/poiesic/lexgraph/core"
)

// Leading byte of every encoded value; it names the record kind and layout.
const (
	formatProvision  byte = 1
	formatNodeVector byte = 2
	formatManifest   byte = 3
	formatBaseline   byte = 4
)

// encoder appends mus-encoded fields to a buffer.
type encoder struct {
	buf []byte
}

func newEncoder(format byte, sizeHint int) *encoder {
	buf := make([]byte, 1, 1+sizeHint)
	buf[0] = format
	return &encoder{buf: buf}
}

// reserve returns room for size bytes past the end of the buffer.
func (e *encoder) reserve(size int) []byte {
	e.buf = slices.Grow(e.buf, size)
	return e.buf[len(e.buf) : len(e.buf)+size]
}

func (e *encoder) advance(n int) {
	e.buf = e.buf[:len(e.buf)+n]
}

func (e *encoder) uint64(v uint64) {
	e.advance(varint.Uint64.Marshal(v, e.reserve(varint.Uint64.Size(v))))
}

func (e *encoder) int(v int) {
	e.advance(varint.Int64.Marshal(int64(v), e.reserve(varint.Int64.Size(int64(v)))))
}

func (e *encoder) bool(v bool) {
	e.advance(ord.Bool.Marshal(v, e.reserve(ord.Bool.Size(v))))
}

func (e *encoder) string(v string) {
	e.advance(ord.String.Marshal(v, e.reserve(ord.String.Size(v))))
}

func (e *encoder) strings(v []string) {
	e.int(len(v))
	for _, s := range v {
		e.string(s)
	}
}

func (e *encoder) float32s(v []float32) {
	e.int(len(v))
	for _, f := range v {
		e.advance(raw.Float32.Marshal(f, e.reserve(raw.Float32.Size(f))))
	}
}

func (e *encoder) float64s(v []float64) {
	e.int(len(v))
	for _, f := range v {
		e.advance(raw.Float64.Marshal(f, e.reserve(raw.Float64.Size(f))))
	}
}

func (e *encoder) time(t time.Time) {
	if t.IsZero() {
		e.int(0)
		return
	}
	e.int(int(t.UnixNano()))
}

// decoder reads mus-encoded fields; the first error sticks and later reads
// return zero values.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func newDecoder(bs []byte, format byte) *decoder {
	d := &decoder{bs: bs}
	switch {
	case len(bs) == 0:
		d.err = fmt.Errorf("%w: empty value", ErrTruncatedData)
	case bs[0] != format:
		d.err = fmt.Errorf("%w: unknown format %d", ErrSerializationFailed, bs[0])
	default:
		d.n = 1
	}
	return d
}

func (d *decoder) fail(err error) {
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("%w: at byte %d: %w", ErrSerializationFailed, d.n, err)
	}
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.fail(err)
	return v
}

func (d *decoder) int() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.fail(err)
	return int(v)
}

// length reads a collection length, bounded by the bytes left.
func (d *decoder) length() int {
	l := d.int()
	if d.err == nil && (l < 0 || l > len(d.bs)-d.n) {
		d.err = fmt.Errorf("%w: length %d with %d bytes left", ErrTruncatedData, l, len(d.bs)-d.n)
	}
	if d.err != nil {
		return 0
	}
	return l
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	d.n += n
	d.fail(err)
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.fail(err)
	return v
}

func (d *decoder) strings() []string {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make([]string, 0, l)
	for range l {
		out = append(out, d.string())
	}
	return out
}

func (d *decoder) float32s() []float32 {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make([]float32, 0, l)
	for range l {
		if d.err != nil {
			return nil
		}
		v, n, err := raw.Float32.Unmarshal(d.bs[d.n:])
		d.n += n
		d.fail(err)
		out = append(out, v)
	}
	return out
}

func (d *decoder) float64s() []float64 {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make([]float64, 0, l)
	for range l {
		if d.err != nil {
			return nil
		}
		v, n, err := raw.Float64.Unmarshal(d.bs[d.n:])
		d.n += n
		d.fail(err)
		out = append(out, v)
	}
	return out
}

func (d *decoder) time() time.Time {
	v := d.int()
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(v)).UTC()
}

// finish reports the first error or unread trailing bytes.
func (d *decoder) finish() error {
	if d.err == nil && d.n != len(d.bs) {
		d.err = fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(d.bs)-d.n)
	}
	return d.err
}

// MarshalProvision serializes a Provision to bytes.
func MarshalProvision(p *core.Provision) []byte {
	e := newEncoder(formatProvision, len(p.Content)+len(p.Title)+128)
	e.string(p.InternalID)
	e.string(p.RefID)
	e.string(p.Act)
	e.string(string(p.Type))
	e.string(p.LocalID)
	e.string(p.Title)
	e.string(p.Content)
	e.string(p.ParentID)
	e.int(p.SiblingOrder)
	e.int(len(p.References))
	for _, r := range p.References {
		e.string(r.Target)
		e.string(r.Snippet)
	}
	e.strings(p.TermsUsed)
	e.bool(p.Excluded)
	return e.buf
}

// UnmarshalProvision deserializes a Provision from bytes.
func UnmarshalProvision(data []byte) (*core.Provision, error) {
	d := newDecoder(data, formatProvision)
	p := &core.Provision{
		InternalID: d.string(),
		RefID:      d.string(),
		Act:        d.string(),
		Type:       core.NodeType(d.string()),
		LocalID:    d.string(),
		Title:      d.string(),
		Content:    d.string(),
		ParentID:   d.string(),
	}
	p.SiblingOrder = d.int()
	if l := d.length(); l > 0 {
		p.References = make([]core.Reference, 0, l)
		for range l {
			p.References = append(p.References, core.Reference{Target: d.string(), Snippet: d.string()})
		}
	}
	p.TermsUsed = d.strings()
	p.Excluded = d.bool()
	if err := d.finish(); err != nil {
		return nil, err
	}
	return p, nil
}

// MarshalNodeVector serializes a NodeVector to bytes.
func MarshalNodeVector(v *core.NodeVector) []byte {
	size := 4 * len(v.Mean)
	for _, c := range v.Chunks {
		size += 4 * len(c)
	}
	e := newEncoder(formatNodeVector, size+64)
	e.string(v.InternalID)
	e.uint64(uint64(v.ContentHash))
	e.string(v.Model)
	e.int(len(v.Chunks))
	for _, c := range v.Chunks {
		e.float32s(c)
	}
	e.float32s(v.Mean)
	return e.buf
}

// UnmarshalNodeVector deserializes a NodeVector from bytes.
func UnmarshalNodeVector(data []byte) (*core.NodeVector, error) {
	d := newDecoder(data, formatNodeVector)
	v := &core.NodeVector{
		InternalID:  d.string(),
		ContentHash: core.ID(d.uint64()),
		Model:       d.string(),
	}
	if l := d.length(); l > 0 {
		v.Chunks = make([][]float32, 0, l)
		for range l {
			v.Chunks = append(v.Chunks, d.float32s())
		}
	}
	v.Mean = d.float32s()
	if err := d.finish(); err != nil {
		return nil, err
	}
	return v, nil
}

// MarshalManifest serializes a Manifest to bytes.
func MarshalManifest(m *core.Manifest) []byte {
	e := newEncoder(formatManifest, 64)
	e.uint64(m.Version)
	e.time(m.CreatedAt)
	e.int(m.NodeCount)
	e.int(m.CitationEdges)
	e.int(m.TermEdges)
	e.string(m.EmbeddingModel)
	e.int(m.Dimension)
	e.int(m.BaselineIterations)
	e.bool(m.BaselineConverged)
	e.bool(m.Degraded)
	e.int(m.UnresolvedCitations)
	return e.buf
}

// UnmarshalManifest deserializes a Manifest from bytes.
func UnmarshalManifest(data []byte) (*core.Manifest, error) {
	d := newDecoder(data, formatManifest)
	m := &core.Manifest{
		Version:             d.uint64(),
		CreatedAt:           d.time(),
		NodeCount:           d.int(),
		CitationEdges:       d.int(),
		TermEdges:           d.int(),
		EmbeddingModel:      d.string(),
		Dimension:           d.int(),
		BaselineIterations:  d.int(),
		BaselineConverged:   d.bool(),
		Degraded:            d.bool(),
		UnresolvedCitations: d.int(),
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalBaseline serializes baseline importance scores to bytes.
func MarshalBaseline(scores []float64) []byte {
	e := newEncoder(formatBaseline, 8*len(scores)+8)
	e.float64s(scores)
	return e.buf
}

// UnmarshalBaseline deserializes baseline importance scores from bytes.
func UnmarshalBaseline(data []byte) ([]float64, error) {
	d := newDecoder(data, formatBaseline)
	scores := d.float64s()
	if err := d.finish(); err != nil {
		return nil, err
	}
	return scores, nil
}
