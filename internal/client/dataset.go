package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hisyeo/kennings/internal/model"
)

// DatasetClient fetches the Panlexia tables and the Hîsyêô word list. A
// source is either an http(s) URL or a local file path.
type DatasetClient struct {
	httpClient *http.Client
}

func NewDatasetClient() *DatasetClient {
	return &DatasetClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Open returns the body of source. The caller closes it.
func (c *DatasetClient) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	if source == "" {
		return nil, fmt.Errorf("dataset source is empty")
	}
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return os.Open(source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned status %d: %s", source, resp.StatusCode, string(body))
	}
	return resp.Body, nil
}

// wordEntry is one value of words.json, which is keyed by latin spelling.
type wordEntry struct {
	Abugida   string `json:"abugida"`
	Syllabary string `json:"syllabary"`
	Kind      string `json:"kind"`
	Type      string `json:"type"`
}

// FetchWords loads the word list, sorted by latin spelling.
func (c *DatasetClient) FetchWords(ctx context.Context, source string) ([]model.HisyeoWord, error) {
	body, err := c.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return DecodeWords(body)
}

func DecodeWords(r io.Reader) ([]model.HisyeoWord, error) {
	var raw map[string]wordEntry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode word list: %w", err)
	}

	words := make([]model.HisyeoWord, 0, len(raw))
	for latin, e := range raw {
		latin = strings.TrimSpace(latin)
		if latin == "" {
			continue
		}
		kind := e.Kind
		switch kind {
		case model.KindWord, model.KindPunct, model.KindGroup:
		default:
			kind = model.KindWord
		}
		words = append(words, model.HisyeoWord{
			Latin:     latin,
			Abugida:   e.Abugida,
			Syllabary: e.Syllabary,
			Kind:      kind,
			TypeRef:   e.Type,
		})
	}

	sort.Slice(words, func(i, j int) bool { return words[i].Latin < words[j].Latin })
	return words, nil
}
