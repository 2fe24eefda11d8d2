package anthropic

// CachedSystem returns text as a single system block marked for prompt caching.
func CachedSystem(text string) []SystemBlock {
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "5m"}}}
}
