// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package responder

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// encodingName is the BPE used for token estimates.
const encodingName = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// CountTokens estimates the token count of s. The BPE ranks are embedded in
// the binary, so no download happens on first use. When the encoding cannot
// be loaded it falls back to one token per four runes.
func CountTokens(s string) int {
	encOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		e, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			enc = e
		}
	})
	if enc != nil {
		return len(enc.Encode(s, nil, nil))
	}
	return (utf8.RuneCountInString(s) + 3) / 4
}

// turnOverhead approximates the per-message framing tokens.
const turnOverhead = 4

// Fit drops the oldest history turns until turns fit within maxTokens. The
// system turn and the final turn are always kept. A non-positive maxTokens
// disables trimming.
func Fit(turns []Turn, maxTokens int) []Turn {
	if maxTokens <= 0 || len(turns) <= 2 {
		return turns
	}
	costs := make([]int, len(turns))
	total := 0
	for i, t := range turns {
		costs[i] = CountTokens(t.Content) + turnOverhead
		total += costs[i]
	}

	drop := 1
	for total > maxTokens && drop < len(turns)-1 {
		total -= costs[drop]
		drop++
	}
	if drop == 1 {
		return turns
	}

	out := make([]Turn, 0, len(turns)-drop+1)
	out = append(out, turns[0])
	return append(out, turns[drop:]...)
}
