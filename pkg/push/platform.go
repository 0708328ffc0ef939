// Package push contains the public domain types, error taxonomy and relay
// capability contract for the push orchestration service.
package push

import (
	"fmt"
	"strings"
)

// Platform is the closed set of delivery channels an installation can use.
// The zero value is not a valid platform.
type Platform int

const (
	PlatformAPNS Platform = iota + 1
	PlatformFCMV1
)

// Platforms lists every supported platform in dispatch order.
var Platforms = []Platform{PlatformAPNS, PlatformFCMV1}

// platformNames is the lookup table used at the edge. It is never written after init.
var platformNames = map[string]Platform{
	"apns":  PlatformAPNS,
	"fcmv1": PlatformFCMV1,
}

// ParsePlatform maps a caller-supplied platform name onto the enumerant.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParsePlatform(name string) (Platform, error) {
	p, ok := platformNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, name)
	}
	return p, nil
}

// String returns the canonical lower-case wire name.
func (p Platform) String() string {
	switch p {
	case PlatformAPNS:
		return "apns"
	case PlatformFCMV1:
		return "fcmv1"
	default:
		return fmt.Sprintf("platform(%d)", int(p))
	}
}

// Valid reports whether p is one of the known enumerants.
func (p Platform) Valid() bool {
	return p == PlatformAPNS || p == PlatformFCMV1
}

// BucketTag is the audience tag that addresses every installation of the platform.
func (p Platform) BucketTag() string {
	switch p {
	case PlatformAPNS:
		return TagIOS
	case PlatformFCMV1:
		return TagAndroid
	default:
		return ""
	}
}

// MarshalText encodes the platform by name so it round-trips through JSON and Firestore.
func (p Platform) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedPlatform, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText parses a platform name.
func (p *Platform) UnmarshalText(text []byte) error {
	parsed, err := ParsePlatform(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
