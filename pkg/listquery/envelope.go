package listquery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnsuccessful is returned for bodies carrying "success": false.
var ErrUnsuccessful = errors.New("upstream reported failure")

// ErrUnsupportedShape is returned when no list can be found in a body.
var ErrUnsupportedShape = errors.New("unsupported list response shape")

// Envelope is the canonical list response.
type Envelope[T any] struct {
	Data      []T
	Meta      ServerPageMeta
	Paginated bool
}

// MetaPtr returns the server meta, or nil for unpaginated responses.
func (e Envelope[T]) MetaPtr() *ServerPageMeta {
	if !e.Paginated {
		return nil
	}
	meta := e.Meta
	return &meta
}

type metaProbe struct {
	CurrentPage *int `json:"current_page"`
	LastPage    *int `json:"last_page"`
	PerPage     *int `json:"per_page"`
	Total       *int `json:"total"`
}

func (m metaProbe) present() bool {
	return m.CurrentPage != nil || m.LastPage != nil || m.Total != nil
}

func (m metaProbe) meta() ServerPageMeta {
	var out ServerPageMeta
	if m.CurrentPage != nil {
		out.CurrentPage = *m.CurrentPage
	}
	if m.LastPage != nil {
		out.LastPage = *m.LastPage
	}
	if m.PerPage != nil {
		out.PerPage = *m.PerPage
	}
	if m.Total != nil {
		out.Total = *m.Total
	}
	return out
}

type envelopeProbe struct {
	metaProbe
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    *metaProbe      `json:"meta"`
}

// DecodeEnvelope normalizes every list shape the upstream API produces:
// a bare array, {data: [...]}, {data: [...], current_page, ...},
// {data: [...], meta: {...}}, {data: {data: [...], current_page, ...}} and the
// same wrapped in {success, data}.
func DecodeEnvelope[T any](raw []byte) (Envelope[T], error) {
	return decodeEnvelope[T](bytes.TrimSpace(raw), 0)
}

func decodeEnvelope[T any](raw []byte, depth int) (Envelope[T], error) {
	var env Envelope[T]
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		env.Data = []T{}
		return env, nil
	}

	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &env.Data); err != nil {
			return env, fmt.Errorf("decode list: %w", err)
		}
		return env, nil
	case '{':
	default:
		return env, ErrUnsupportedShape
	}

	if depth > 2 {
		return env, ErrUnsupportedShape
	}

	var probe envelopeProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if probe.Success != nil && !*probe.Success {
		if probe.Message != "" {
			return env, fmt.Errorf("%w: %s", ErrUnsuccessful, probe.Message)
		}
		return env, ErrUnsuccessful
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	data, ok := keys["data"]
	if !ok {
		return env, ErrUnsupportedShape
	}

	inner, err := decodeEnvelope[T](bytes.TrimSpace(data), depth+1)
	if err != nil {
		return env, err
	}
	env = inner
	if env.Data == nil {
		env.Data = []T{}
	}

	if !env.Paginated {
		switch {
		case probe.metaProbe.present():
			env.Meta = probe.metaProbe.meta()
			env.Paginated = true
		case probe.Meta != nil && probe.Meta.present():
			env.Meta = probe.Meta.meta()
			env.Paginated = true
		}
	}
	return env, nil
}

// DecodeObject unwraps {data: {...}} and {success, data: {...}} around a single record.
func DecodeObject[T any](raw []byte) (T, error) {
	var out T
	raw = bytes.TrimSpace(raw)
	var probe envelopeProbe
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &probe); err != nil {
			return out, fmt.Errorf("decode object: %w", err)
		}
		if probe.Success != nil && !*probe.Success {
			return out, fmt.Errorf("%w: %s", ErrUnsuccessful, probe.Message)
		}
		if data := bytes.TrimSpace(probe.Data); len(data) > 0 && data[0] == '{' {
			raw = data
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode object: %w", err)
	}
	return out, nil
}
