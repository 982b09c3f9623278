package naming

import (
	"strings"
	"unicode"
)

// Namer converts between model names, table names and collection names.
type Namer struct {
	config Config
}

// New creates a Namer with the given configuration
func New(cfg Config) *Namer {
	return &Namer{config: cfg}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig())
}

// CollectionName returns the resource type name used on the wire for a model.
// Example: "BlogPost" -> "blog_posts"
func (n *Namer) CollectionName(modelName string) string {
	snake := ToSnakeCase(modelName)
	if snake == "" {
		return ""
	}
	idx := strings.LastIndex(snake, "_")
	head, last := snake[:idx+1], snake[idx+1:]
	return head + n.Pluralize(last)
}

// TableName returns the default table for a model, which matches its
// collection name.
func (n *Namer) TableName(modelName string) string {
	return n.CollectionName(modelName)
}

// ModelName converts a collection or table name back to a model name.
// Example: "blog_posts" -> "BlogPost"
func (n *Namer) ModelName(collection string) string {
	idx := strings.LastIndex(collection, "_")
	head, last := collection[:idx+1], collection[idx+1:]
	return ToPascalCase(head + n.Singularize(last))
}

// ToSnakeCase converts PascalCase or camelCase to snake_case.
// Example: "HTTPRequestLog" -> "http_request_log"
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToPascalCase converts snake_case to PascalCase
func ToPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}
