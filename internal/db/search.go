package db

// SortedQuery lists hashes whose keys start with Prefix, ordered by the
// numeric field SortBy.
type SortedQuery struct {
	IndexName    string // used by drivers backed by a secondary index
	Prefix       string
	SortBy       string
	Descending   bool
	Offset       int
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a list/search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hash returned by a list/search.
type SearchEntry struct {
	Key    string
	Fields map[string]string
}
