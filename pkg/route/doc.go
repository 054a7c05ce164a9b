// Package route derives rate-limit route keys from request paths.
//
// The remote service groups endpoints into rate-limit buckets by path shape,
// not by the concrete resource addressed. Two requests share a route key
// when their paths match after resource IDs are elided:
//
//	route.Classify("/users/123/profile") == route.Classify("/users/456/profile")
//
// IDs that follow a major collection (channels, guilds, webhooks) are kept,
// because the remote service keeps a separate limit per resource there:
//
//	route.Classify("/channels/123/messages") != route.Classify("/channels/456/messages")
//
// Paths that elide to the same canonical form collide on purpose.
package route
