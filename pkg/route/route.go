package route

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key identifies a group of request paths that share one remote rate limit.
type Key uint64

// String renders the key as fixed-width hex.
func (k Key) String() string {
	s := strconv.FormatUint(uint64(k), 16)
	if len(s) < 16 {
		s = strings.Repeat("0", 16-len(s)) + s
	}
	return s
}

// GatewayPath is the well-known path of the gateway discovery endpoint.
const GatewayPath = "/gateway/bot"

// DefaultMajorParameters are the collections whose resource ID partitions
// the remote limits.
var DefaultMajorParameters = []string{"channels", "guilds", "webhooks"}

// Classifier maps request paths to route keys.
//
// A path segment is kept verbatim when it is purely alphabetic or when it
// directly follows one of the major parameter collections. Any other segment
// (typically a numeric ID) is elided, so paths that differ only in elided
// segments share a key.
type Classifier struct {
	majors  map[string]struct{}
	gateway string
}

// NewClassifier creates a classifier for the given major collections.
// A nil or empty slice selects DefaultMajorParameters.
func NewClassifier(majors []string) *Classifier {
	if len(majors) == 0 {
		majors = DefaultMajorParameters
	}
	c := &Classifier{
		majors:  make(map[string]struct{}, len(majors)),
		gateway: GatewayPath,
	}
	for _, m := range majors {
		c.majors[m] = struct{}{}
	}
	return c
}

// Canonical returns the elided form of path that Classify hashes.
func (c *Classifier) Canonical(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimPrefix(path, "/")

	var sb strings.Builder
	var prev string
	for _, seg := range strings.Split(path, "/") {
		sb.WriteByte('|')
		if _, major := c.majors[prev]; major || isAlpha(seg) {
			sb.WriteString(seg)
		}
		prev = seg
	}
	return sb.String()
}

// Classify returns the route key for path.
func (c *Classifier) Classify(path string) Key {
	return Key(xxhash.Sum64String(c.Canonical(path)))
}

// WithGateway returns a copy of c whose gateway route is path.
// An empty path keeps the current one.
func (c *Classifier) WithGateway(path string) *Classifier {
	cp := *c
	if path != "" {
		cp.gateway = path
	}
	return &cp
}

// Gateway returns the key of the gateway route, GatewayPath unless
// changed with WithGateway.
func (c *Classifier) Gateway() Key {
	return c.Classify(c.gateway)
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if (b < 'a' || b > 'z') && (b < 'A' || b > 'Z') {
			return false
		}
	}
	return true
}

var defaultClassifier = NewClassifier(nil)

// Classify classifies path with the default major parameters.
func Classify(path string) Key {
	return defaultClassifier.Classify(path)
}

// Gateway is the key of GatewayPath under the default classifier.
var Gateway = defaultClassifier.Gateway()
