// Package google provides OAuth2 configuration and token sources for the
// Gmail API.
//
// Tokens come from two places: a token file written by "inboxlabeler auth"
// and refreshed in place, or a bearer token supplied with a relay request.
// RequestTokenProvider prefers the latter and falls back to the former.
package google
