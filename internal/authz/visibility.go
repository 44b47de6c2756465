package authz

import (
	"errors"
	"fmt"
)

// ContentCategory is a class of tenant content gated by a feature flag and a visitor rule.
type ContentCategory string

const (
	CategoryPosts          ContentCategory = "posts"
	CategoryCalendar       ContentCategory = "calendar"
	CategorySermons        ContentCategory = "sermons"
	CategoryPodcasts       ContentCategory = "podcasts"
	CategoryBooks          ContentCategory = "books"
	CategoryPrayerWall     ContentCategory = "prayerWall"
	CategoryDonations      ContentCategory = "donations"
	CategoryVolunteering   ContentCategory = "volunteering"
	CategorySmallGroups    ContentCategory = "smallGroups"
	CategoryLiveStream     ContentCategory = "liveStream"
	CategoryResourceCenter ContentCategory = "resourceCenter"
)

// ErrUnknownCategory is returned by ParseCategory for names outside AllCategories.
var ErrUnknownCategory = errors.New("unknown content category")

// AllCategories returns every content category.
func AllCategories() []ContentCategory {
	return []ContentCategory{
		CategoryPosts,
		CategoryCalendar,
		CategorySermons,
		CategoryPodcasts,
		CategoryBooks,
		CategoryPrayerWall,
		CategoryDonations,
		CategoryVolunteering,
		CategorySmallGroups,
		CategoryLiveStream,
		CategoryResourceCenter,
	}
}

// Valid reports whether c is a known category.
func (c ContentCategory) Valid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory converts a raw category name into a ContentCategory.
func ParseCategory(name string) (ContentCategory, error) {
	c := ContentCategory(name)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return c, nil
}

// CanView reports whether content in category is visible given the caller's membership
// (nil for anonymous visitors).
//
// The tenant feature flag is a hard gate. Approved members see every enabled category;
// everyone else falls back to the tenant's visitor visibility rule. Unknown categories
// are never visible.
func CanView(tenant *Tenant, membership *Membership, category ContentCategory) bool {
	if tenant == nil || !category.Valid() {
		return false
	}
	if !tenant.Settings.Features[category] {
		return false
	}
	if !membership.IsActive() {
		return tenant.Settings.VisitorVisibility[category]
	}
	return true
}

// DefaultSettings enables every category and exposes only public-facing ones to visitors.
func DefaultSettings() TenantSettings {
	s := TenantSettings{
		Features:          make(map[ContentCategory]bool),
		VisitorVisibility: make(map[ContentCategory]bool),
	}
	for _, c := range AllCategories() {
		s.Features[c] = true
	}
	for _, c := range []ContentCategory{CategoryCalendar, CategorySermons, CategoryPodcasts, CategoryDonations, CategoryLiveStream} {
		s.VisitorVisibility[c] = true
	}
	return s
}
