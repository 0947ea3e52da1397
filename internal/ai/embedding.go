package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EmbedContent returns the embedding of text using the configured API
// flavour. The response shape is normalized by ParseEmbedding.
func (c *OpenAICompatibleClient) EmbedContent(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	var (
		url     string
		headers map[string]string
		reqBody map[string]interface{}
	)
	switch c.embedding.API {
	case APIGemini:
		url = geminiURL(c.embedding.BaseURL, c.embedding.Model, "embedContent", c.embedding.APIKey)
		reqBody = map[string]interface{}{
			"model":   "models/" + strings.TrimPrefix(c.embedding.Model, "models/"),
			"content": map[string]interface{}{"parts": []map[string]string{{"text": text}}},
		}
	case APIOllama:
		url = strings.TrimRight(c.embedding.BaseURL, "/") + "/api/embeddings"
		reqBody = map[string]interface{}{"model": c.embedding.Model, "prompt": text}
	default:
		url = strings.TrimRight(c.embedding.BaseURL, "/") + "/embeddings"
		headers = bearer(c.embedding.APIKey)
		reqBody = map[string]interface{}{"model": c.embedding.Model, "input": text}
	}

	raw, err := c.post(ctx, url, headers, reqBody)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	vec, err := ParseEmbedding(raw)
	if err != nil {
		return nil, fmt.Errorf("parse embedding failed: %w", err)
	}
	return vec, nil
}

// ParseEmbedding extracts a single vector from any of the payload shapes
// providers use:
//
//	{"data":[{"index":0,"embedding":[...]}]}   OpenAI
//	{"embedding":[...]}                         Ollama
//	{"embedding":{"values":[...]}}              Gemini
//	{"embeddings":[{"values":[...]}]}           Gemini batch
//	[...]                                       bare array
//	{"0":0.1,"1":0.2}                           keyed object
//
// Keyed objects are ordered by their numeric keys, which must be exactly
// 0..n-1.
func ParseEmbedding(raw []byte) ([]float32, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedEmbedding)
	}
	if raw[0] == '[' {
		return parseVector(raw)
	}
	if raw[0] != '{' {
		return nil, fmt.Errorf("%w: unexpected payload", ErrMalformedEmbedding)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
	}
	if data, ok := obj["data"]; ok {
		var items []struct {
			Index     int             `json:"index"`
			Embedding json.RawMessage `json:"embedding"`
		}
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: empty data", ErrMalformedEmbedding)
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].Index < items[j].Index })
		return parseVector(items[0].Embedding)
	}
	if emb, ok := obj["embedding"]; ok {
		return parseVector(emb)
	}
	if embs, ok := obj["embeddings"]; ok {
		var list []json.RawMessage
		if err := json.Unmarshal(embs, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: empty embeddings", ErrMalformedEmbedding)
		}
		return parseVector(list[0])
	}
	if values, ok := obj["values"]; ok {
		return parseVector(values)
	}
	return parseKeyed(obj)
}

func parseVector(raw json.RawMessage) ([]float32, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrMalformedEmbedding)
	}
	switch raw[0] {
	case '[':
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: empty vector", ErrMalformedEmbedding)
		}
		return vec, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
		}
		if values, ok := obj["values"]; ok {
			return parseVector(values)
		}
		return parseKeyed(obj)
	default:
		return nil, fmt.Errorf("%w: vector is neither array nor object", ErrMalformedEmbedding)
	}
}

func parseKeyed(obj map[string]json.RawMessage) ([]float32, error) {
	if len(obj) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrMalformedEmbedding)
	}
	vec := make([]float32, len(obj))
	seen := make([]bool, len(obj))
	for key, rawVal := range obj {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(obj) || seen[idx] {
			return nil, fmt.Errorf("%w: unexpected dimension key %q", ErrMalformedEmbedding, key)
		}
		if err := json.Unmarshal(rawVal, &vec[idx]); err != nil {
			return nil, fmt.Errorf("%w: dimension %q: %v", ErrMalformedEmbedding, key, err)
		}
		seen[idx] = true
	}
	return vec, nil
}
