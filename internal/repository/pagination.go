package repository

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Page limits.  Listing endpoints accept 1 <= limit <= MaxPageSize.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page selects a window of a listing.  Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page into the accepted range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// Offset is the number of documents to skip.
func (p Page) Offset() int64 {
	p = p.Normalize()
	return int64((p.Page - 1) * p.Limit)
}

// newestFirst is the stable ordering used by every listing: creation time
// descending, _id breaking ties so pages never overlap.
var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

func findPage(p Page) *options.FindOptions {
	p = p.Normalize()
	return options.Find().
		SetSort(newestFirst).
		SetSkip(p.Offset()).
		SetLimit(int64(p.Limit))
}
