// Package identity defines the identity scope an assignment is keyed by.
package identity

import "context"

// Kind distinguishes authenticated users from device-scoped anonymous
// installations. Exactly one scope is active per installation at a time.
type Kind string

const (
	KindUser   Kind = "user"
	KindDevice Kind = "device"
)

// Identity is either an authenticated user or an anonymous device. The
// zero value means no identity is resolvable.
type Identity struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// User returns an authenticated-user identity.
func User(id string) Identity {
	return Identity{Kind: KindUser, ID: id}
}

// Device returns a device-scoped anonymous identity.
func Device(id string) Identity {
	return Identity{Kind: KindDevice, ID: id}
}

// IsZero reports whether no identity is present.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// Authenticated reports whether the identity belongs to a signed-in user.
func (i Identity) Authenticated() bool {
	return i.Kind == KindUser && i.ID != ""
}

// Key renders the identity as the stable assignment key component,
// e.g. "user:42" or "device:ab12". Parseable back via ParseKey.
func (i Identity) Key() string {
	if i.IsZero() {
		return ""
	}
	return string(i.Kind) + ":" + i.ID
}

// ParseKey reverses Key. Unknown or malformed keys yield the zero value.
func ParseKey(key string) Identity {
	for _, kind := range []Kind{KindUser, KindDevice} {
		prefix := string(kind) + ":"
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			return Identity{Kind: kind, ID: key[len(prefix):]}
		}
	}
	return Identity{}
}

// Provider resolves the currently signed-in identity. Only the long-lived
// process has one; the short-lived process relies on the identity the
// daemon last published to the signal channel.
type Provider interface {
	// CurrentIdentity returns the active identity, or the zero value when
	// nobody is signed in and no device scope has been established.
	CurrentIdentity(ctx context.Context) (Identity, error)
}

// StaticProvider returns a fixed identity; used for device-scoped
// installations and in tests.
type StaticProvider struct {
	Identity Identity
}

func (p StaticProvider) CurrentIdentity(ctx context.Context) (Identity, error) {
	return p.Identity, nil
}
