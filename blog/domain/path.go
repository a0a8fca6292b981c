package domain

import (
	"fmt"
	"strconv"
)

// PathShape is a parsed route: the group slug followed by the rest of the
// segments. Implementations are ListingPath, SlugPath, VersionedSlugPath,
// DatePath and TimestampPath.
type PathShape interface {
	GroupSlug() string
	isPathShape()
}

// ListingPath is "[group]". An empty Group means the site root.
type ListingPath struct{ Group string }

// SlugPath is "[group, slug]".
type SlugPath struct{ Group, Slug string }

// VersionedSlugPath is "[group, slug, "v", N]".
type VersionedSlugPath struct {
	Group, Slug string
	Version     int
}

// DatePath is "[group, date]".
type DatePath struct{ Group, Date string }

// TimestampPath is "[group, date, time]".
type TimestampPath struct{ Group, Date, Time string }

// UnknownPath is any segment list that matches no known shape.
type UnknownPath struct{ Segments []string }

func (p ListingPath) GroupSlug() string       { return p.Group }
func (p SlugPath) GroupSlug() string          { return p.Group }
func (p VersionedSlugPath) GroupSlug() string { return p.Group }
func (p DatePath) GroupSlug() string          { return p.Group }
func (p TimestampPath) GroupSlug() string     { return p.Group }
func (p UnknownPath) GroupSlug() string {
	if len(p.Segments) > 0 {
		return p.Segments[0]
	}
	return ""
}

func (ListingPath) isPathShape()       {}
func (SlugPath) isPathShape()          {}
func (VersionedSlugPath) isPathShape() {}
func (DatePath) isPathShape()          {}
func (TimestampPath) isPathShape()     {}
func (UnknownPath) isPathShape()       {}

// ParsePath classifies router segments ([group_slug, ...rest]).
func ParsePath(segments []string) PathShape {
	switch len(segments) {
	case 0:
		return ListingPath{}
	case 1:
		return ListingPath{Group: segments[0]}
	case 2:
		if IsDate(segments[1]) {
			return DatePath{Group: segments[0], Date: segments[1]}
		}
		return SlugPath{Group: segments[0], Slug: segments[1]}
	case 3:
		if IsDate(segments[1]) && IsTime(segments[2]) {
			return TimestampPath{Group: segments[0], Date: segments[1], Time: segments[2]}
		}
	case 4:
		if segments[2] == "v" {
			if n, err := strconv.Atoi(segments[3]); err == nil && n > 0 {
				return VersionedSlugPath{Group: segments[0], Slug: segments[1], Version: n}
			}
		}
	}
	return UnknownPath{Segments: segments}
}

// IdentifierFor returns the post identifier a path points at, if any.
func IdentifierFor(p PathShape) (Identifier, error) {
	switch shape := p.(type) {
	case SlugPath:
		return SlugIdentifier{Slug: shape.Slug}, nil
	case VersionedSlugPath:
		return SlugIdentifier{Slug: shape.Slug}, nil
	case TimestampPath:
		return TimestampIdentifier{Date: shape.Date, Time: shape.Time}, nil
	default:
		return nil, fmt.Errorf("path %T does not name a post", p)
	}
}
