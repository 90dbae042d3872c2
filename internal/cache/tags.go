package cache

import "strings"

// TagStrategy derives cache tags from outgoing query text. The inference is
// best-effort categorization, not guaranteed complete; callers can always
// supply explicit tags alongside the inferred ones.
type TagStrategy interface {
	Tags(document string) []string
}

// FieldTagger tags a query with every known top-level resource field its
// text mentions. Plain substring matching: a query selecting products gets
// the "products" tag, one touching both products and collections gets both.
type FieldTagger struct {
	Fields []string
}

// DefaultResourceFields are the storefront resource roots worth grouping
// cache entries by.
var DefaultResourceFields = []string{
	"products",
	"product",
	"collections",
	"collection",
	"cart",
	"customer",
	"orders",
	"shop",
	"pages",
	"blogs",
	"menu",
	"search",
	"localization",
	"metaobjects",
}

// NewFieldTagger builds a tagger over the default resource fields.
func NewFieldTagger() *FieldTagger {
	return &FieldTagger{Fields: DefaultResourceFields}
}

// Tags implements TagStrategy.
func (t *FieldTagger) Tags(document string) []string {
	var tags []string
	seen := make(map[string]struct{})
	for _, field := range t.Fields {
		if !strings.Contains(document, field) {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		tags = append(tags, field)
	}
	return tags
}
