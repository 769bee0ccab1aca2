package search

import (
	"strconv"
	"strings"
)

const defaultLimit = 10

// Query represents the structured parameters for a message search.
// It decouples raw client input from the index engine requirements.
type Query struct {
	RawInput       string // the original input from the user
	Terms          string // the actual text to search in Bluge
	ConversationID string // scope of the search, never empty
	Limit          int    // pagination: number of results
}

// NewQuery parses command-line style search input.
// Example: /search invoice pdf --limit 5
func NewQuery(input, conversationID string) *Query {
	query := &Query{
		RawInput:       input,
		ConversationID: conversationID,
		Limit:          defaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			val := parts[i+1]

			if key == "limit" {
				if limit, err := strconv.Atoi(val); err == nil && limit > 0 {
					query.Limit = limit
				}
			}
			i++ // skip the value part in next iteration
			continue
		}

		// If it's not a flag, it's a search term
		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, part)
		}
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}

// Hit is one scored match returned by the index.
type Hit struct {
	MessageID string
	SenderID  string
	Content   string
	Score     float64
}
