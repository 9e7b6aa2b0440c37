package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// CamelToSnake converts a CamelCase string to snake_case.
// Consecutive uppercase letters (acronyms) are kept together:
// "ID" → "id", "UserID" → "user_id", "CreatedAt" → "created_at".
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if unicode.IsLower(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TableName derives a table name from a model name.
// e.g. "UserProfile" -> "user_profile", or "user_profiles" when plural.
func TableName(model string, plural bool) string {
	snake := CamelToSnake(model)
	if plural {
		return inflection.Plural(snake)
	}
	return snake
}

// ForeignKey returns the conventional column referencing model's key.
// Both the read and the write side of a relation use it, so a join
// column is named the same way whichever path created it.
// e.g. "User" -> "user_id", "TagGroup" -> "tag_group_id".
func ForeignKey(model string) string {
	return CamelToSnake(model) + "_id"
}

// JoinTable returns the conventional many-to-many join table name:
// prefix + owner table + "_" + target model, lower-cased.
// e.g. ("app_", "post", "Tag") -> "app_post_tag".
func JoinTable(prefix, ownerTable, targetModel string) string {
	return strings.ToLower(prefix + ownerTable + "_" + targetModel)
}

// Singular returns the singular form of a plural model or relation name.
// e.g. "tags" -> "tag", "categories" -> "category".
func Singular(name string) string {
	return inflection.Singular(name)
}
