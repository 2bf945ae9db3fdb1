package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"image/png"
	"sort"
)

// ResourcePrefix prefixes every picture key in the resource bundle.
const ResourcePrefix = "miui.focus.pic_"

var ErrEmptyPayload = errors.New("render: empty payload")

// Rendered is the opaque result handed to the host: encoded pictures and
// the serialized parameter string.
type Rendered struct {
	Resources map[string][]byte
	Param     string
}

// Hash is the FNV-64a hash of the parameter string. Identical payloads
// hash identically.
func (r Rendered) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(r.Param))
	return h.Sum64()
}

type Sink interface {
	Render(p *Payload) (Rendered, error)
}

// JSONSink serializes payloads as canonical JSON under "param_v2" and
// PNG-encodes pictures.
type JSONSink struct{}

type paramV2 struct {
	*Payload
	Pictures  []string `json:"pictures,omitempty"`
	TimeoutMS int64    `json:"timeout,omitempty"`
}

func (JSONSink) Render(p *Payload) (Rendered, error) {
	if p == nil || (p.Title == "" && p.Big == (BigIsland{}) && p.CustomView == "") {
		return Rendered{}, ErrEmptyPayload
	}

	keys := make([]string, 0, len(p.Pictures))
	for k := range p.Pictures {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := make(map[string][]byte, len(keys))
	for _, k := range keys {
		var buf bytes.Buffer
		if err := png.Encode(&buf, p.Pictures[k]); err != nil {
			return Rendered{}, fmt.Errorf("render: encode %s: %w", k, err)
		}
		res[ResourcePrefix+k] = buf.Bytes()
	}

	param, err := json.Marshal(map[string]any{
		"param_v2": paramV2{Payload: p, Pictures: keys, TimeoutMS: p.Island.Timeout.Milliseconds()},
	})
	if err != nil {
		return Rendered{}, fmt.Errorf("render: marshal: %w", err)
	}
	return Rendered{Resources: res, Param: string(param)}, nil
}
