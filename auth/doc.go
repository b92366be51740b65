// Package auth provides the authentication primitives used by the streaming
// HTTP transport. An Authenticator validates the bearer token taken from the
// Authorization header and returns the authenticated principal.
//
// NewStaticToken builds an Authenticator that accepts exactly one shared
// token, compared in constant time. GenerateToken creates a random token
// suitable for it:
//
//	tok, err := auth.GenerateToken()
//	if err != nil { return err }
//	authn := auth.NewStaticToken(tok)
//
// The transport maps ErrUnauthorized to a 401 response with a Bearer
// challenge.
package auth
