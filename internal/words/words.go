// Package words sources the word pairs the liar game plays with. The
// lookup goes to a remote dictionary service; every failure mode ends in
// the fixed fallback pair, so a game start never fails on vocabulary.
package words

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/hyeonwoo/partyroom-backend/internal/logger"
)

const (
	defaultBaseURL = "https://krdict.korean.go.kr/api/search"
	maxAttempts    = 3
	maxWordLength  = 5 // runes; the game wants short words
)

var categories = []string{"동물", "과일", "음식", "직업", "장소", "물건", "스포츠"}

// FallbackPair is used when no API key is configured or every lookup
// attempt comes back empty or broken.
var FallbackPair = Pair{Common: "사과", Divergent: "복숭아"}

// Pair is one round's vocabulary: the word everyone gets and the word
// only the divergent participant gets. The two are always distinct.
type Pair struct {
	Common    string
	Divergent string
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

var log = logger.With("words")

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewClientWithBaseURL is for tests pointing at a local server.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = baseURL
	return c
}

type searchResponse struct {
	Entries []struct {
		Word string `json:"word"`
	} `json:"entries"`
}

// WordPair returns two distinct short words from a random category. It
// retries with a fresh category up to the attempt bound and falls back
// to FallbackPair rather than returning an error.
func (c *Client) WordPair(ctx context.Context) Pair {
	if c.apiKey == "" {
		log.Debug().Msg("no api key configured, using fallback pair")
		return FallbackPair
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		category := categories[rand.Intn(len(categories))]
		pair, err := c.lookup(ctx, category)
		if err != nil {
			log.Warn().Err(err).Str("category", category).Int("attempt", attempt).Msg("word lookup failed")
			continue
		}
		return pair
	}
	log.Warn().Msg("all word lookups failed, using fallback pair")
	return FallbackPair
}

func (c *Client) lookup(ctx context.Context, category string) (Pair, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", category)
	q.Set("num", "30")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Pair{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Pair{}, fmt.Errorf("dictionary request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Pair{}, fmt.Errorf("dictionary responded %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Pair{}, fmt.Errorf("decoding response: %w", err)
	}

	candidates := make([]string, 0, len(parsed.Entries))
	seen := make(map[string]bool)
	for _, e := range parsed.Entries {
		w := e.Word
		if w == "" || seen[w] || utf8.RuneCountInString(w) > maxWordLength {
			continue
		}
		seen[w] = true
		candidates = append(candidates, w)
	}
	if len(candidates) < 2 {
		return Pair{}, fmt.Errorf("category yielded %d usable words", len(candidates))
	}

	i := rand.Intn(len(candidates))
	j := rand.Intn(len(candidates) - 1)
	if j >= i {
		j++
	}
	return Pair{Common: candidates[i], Divergent: candidates[j]}, nil
}
