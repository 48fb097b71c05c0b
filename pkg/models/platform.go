package models

import "strings"

// Platform is the publishing destination a draft is written for.
type Platform string

const (
	PlatformNone      Platform = ""
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformEmail     Platform = "email"
	PlatformBlog      Platform = "blog"
	PlatformGeneric   Platform = "generic"
)

// ParsePlatform normalizes user input ("X", "Twitter", " linkedin ") to a Platform.
// Unknown values map to PlatformGeneric; empty input maps to PlatformNone.
func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PlatformNone
	case "twitter", "x":
		return PlatformTwitter
	case "linkedin":
		return PlatformLinkedIn
	case "instagram":
		return PlatformInstagram
	case "facebook":
		return PlatformFacebook
	case "email", "newsletter":
		return PlatformEmail
	case "blog":
		return PlatformBlog
	default:
		return PlatformGeneric
	}
}

// Goal is a content objective that shifts quality weighting.
type Goal string

const (
	GoalEngagement Goal = "engagement"
	GoalConversion Goal = "conversion"
	GoalAwareness  Goal = "awareness"
)
