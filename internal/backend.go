package internal

import (
	"context"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core/client"
)

// Backend decides what happens to each connection the frontend accepts. The
// frontend owns the socket and the wire format; the Backend owns the decision.
type Backend interface {
	// Identifier returns a uniquely identifying string.
	Identifier() string

	// Init is called before a Backend is started as a hook for the Backend to
	// perform any necessary initialization before it can accept clients.
	Init(ctx context.Context) error

	// Admit reports whether the token sent by c lets the player join.
	Admit(c *client.Client, token string) bool

	// Refuse is told about a connection that closed, timed out or sent nothing
	// usable before a token could be validated.
	Refuse(c *client.Client, reason string)
}
