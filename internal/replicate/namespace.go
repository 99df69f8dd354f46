// Package replicate clones the resource graph of root entities from one
// environment into a namespaced copy in another: blob objects through
// server-side copies and table records through the catalog's reference paths.
package replicate

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"cellenics/internal/errs"

	"github.com/google/uuid"
)

// MaxNamespaceLen bounds namespaces so they fit DNS labels of derived resources.
const MaxNamespaceLen = 26

var namespacePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// Namespace is a validated clone namespace (sandbox id).
type Namespace string

// ParseNamespace validates raw as a namespace.
func ParseNamespace(raw string) (Namespace, error) {
	if raw == "" || len(raw) > MaxNamespaceLen || !namespacePattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q must be 1-%d lowercase alphanumerics or '-', not starting or ending with '-'",
			errs.ErrInvalidNamespace, raw, MaxNamespaceLen)
	}
	return Namespace(raw), nil
}

// Prefix returns the "{namespace}-" prefix carried by cloned ids.
func (ns Namespace) Prefix() string { return string(ns) + "-" }

// Owns reports whether id already carries the namespace prefix.
func (ns Namespace) Owns(id string) bool { return strings.HasPrefix(id, ns.Prefix()) }

// RewriteID returns the cloned identifier of id. Empty ids stay empty.
func RewriteID(id string, ns Namespace) string {
	if id == "" {
		return id
	}
	return ns.Prefix() + id
}

// StripNamespace recovers the original id of a cloned id. ok is false when id
// does not carry the namespace.
func StripNamespace(id string, ns Namespace) (original string, ok bool) {
	return strings.CutPrefix(id, ns.Prefix())
}

var adjectives = []string{
	"amber", "bold", "brave", "bright", "calm", "clever", "cosmic", "crisp", "curious", "daring",
	"eager", "fancy", "fluffy", "gentle", "glad", "golden", "happy", "humble", "jolly", "keen",
	"lively", "lucky", "mellow", "merry", "misty", "nimble", "noble", "plucky", "proud", "quick",
	"quiet", "rapid", "shiny", "silent", "sleepy", "snowy", "sunny", "swift", "tidy", "vivid",
	"warm", "witty", "zesty",
}

var animals = []string{
	"alpaca", "badger", "beaver", "bison", "crane", "dingo", "dolphin", "eagle", "falcon", "ferret",
	"gecko", "heron", "ibis", "jackal", "koala", "lemur", "lynx", "marmot", "moose", "narwhal",
	"newt", "ocelot", "otter", "panda", "puffin", "quail", "raven", "salmon", "seal", "sloth",
	"stoat", "tapir", "toucan", "turtle", "walrus", "wombat", "yak", "zebra",
}

var nickCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateNamespace builds a random adjective-animal namespace, optionally led
// by nick, with a short random suffix. The result always parses.
func GenerateNamespace(nick string) Namespace {
	nick = strings.Trim(nickCleaner.ReplaceAllString(strings.ToLower(nick), "-"), "-")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	fragments := []string{nick, adjectives[rand.IntN(len(adjectives))], animals[rand.IntN(len(animals))], suffix}
	var kept []string
	for _, f := range fragments {
		if f != "" {
			kept = append(kept, f)
		}
	}
	name := strings.Join(kept, "-")
	if len(name) > MaxNamespaceLen {
		// Keep the random tail so truncated names stay distinct.
		head := strings.Join(kept[:len(kept)-1], "-")
		head = strings.Trim(head[:MaxNamespaceLen-len(suffix)-1], "-")
		name = head + "-" + suffix
	}
	return Namespace(strings.Trim(name, "-"))
}
