package models

import (
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Hashtag is a HashtagRepository entry. Tags are stored without '#'.
type Hashtag struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Tag        string             `bson:"tag" json:"tag"`
	Category   string             `bson:"category,omitempty" json:"category,omitempty"`
	UsageCount int64              `bson:"usage_count" json:"usage_count"`
	IsActive   bool               `bson:"is_active" json:"is_active"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

// CaptionTemplate is a named caption with {variable} placeholders
type CaptionTemplate struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Template  string             `bson:"template" json:"template"`
	Category  string             `bson:"category,omitempty" json:"category,omitempty"`
	Variables []string           `bson:"variables,omitempty" json:"variables,omitempty"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// TemplateVariables lists the distinct placeholder names in order of first use.
func TemplateVariables(template string) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			vars = append(vars, m[1])
		}
	}
	return vars
}
