package goSession

import (
	"github.com/MrEthical07/goSession/internal/flows"
)

// LoginOptions carries the request facts recorded on a new session.
//
// PreviousToken is the session token presented by the client before login, if any.
// Login revokes it before issuing the new token so a pre-login session id is never
// carried across the authentication boundary. IP and UserAgent default to the values
// attached with WithClientIP and WithUserAgent.
type LoginOptions struct {
	Remember      bool
	IP            string
	UserAgent     string
	PreviousToken string
}

// RegisterRequest is the input for Engine.Register.
type RegisterRequest = flows.RegisterRequest
