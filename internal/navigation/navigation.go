// Package navigation decides where a visitor belongs given their session and
// profile. It is the single place the onboarding gate is enforced.
package navigation

import "strings"

const (
	PathHome       = "/"
	PathAuth       = "/auth"
	PathOnboarding = "/onboarding"
)

// State is the guard input. Unverified means the session check failed
// without ruling on the session, so the visitor stays where they are.
type State struct {
	Loading       bool
	Unverified    bool
	HasSession    bool
	HasProfile    bool
	TermsAccepted bool
	Path          string
}

// Decision is a replace-navigation when Redirect is set.
type Decision struct {
	Redirect string `json:"redirect,omitempty"`
}

func (d Decision) ShouldRedirect() bool { return d.Redirect != "" }

// Decide applies the guard rules in order. Loading and unverified states
// never redirect.
func Decide(s State) Decision {
	if s.Loading || s.Unverified {
		return Decision{}
	}
	path := normalize(s.Path)

	if !s.HasSession {
		if path != PathAuth {
			return Decision{Redirect: PathAuth}
		}
		return Decision{}
	}

	if !s.HasProfile || !s.TermsAccepted {
		if path != PathOnboarding {
			return Decision{Redirect: PathOnboarding}
		}
		return Decision{}
	}

	if path == PathAuth || path == PathOnboarding {
		return Decision{Redirect: PathHome}
	}
	return Decision{}
}

// DecidePublic is Decide for routes anonymous visitors may browse: without a
// session nothing happens, otherwise the onboarding gate still applies.
func DecidePublic(s State) Decision {
	if !s.HasSession {
		return Decision{}
	}
	return Decide(s)
}

func normalize(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return PathHome
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
