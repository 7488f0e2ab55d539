package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. The instructions shared across every company or query in a
// run go here so repeated calls hit the warm prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
