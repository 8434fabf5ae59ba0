// Package google validates identity assertions minted by Google's federated
// sign-in. Assertions are RS256 JWTs; keys come from Google's JWKS endpoint
// and are cached with background refresh.
package google
