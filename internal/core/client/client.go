package client

import (
	"fmt"
	"net"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Client represents a player connection accepted by the admission listener.
type Client struct {
	connection net.Conn
	ipAddr     string
	port       string

	// ID correlates log lines and ledger rows for one connection.
	ID string
}

func NewClient(connection net.Conn) *Client {
	ipAddr, port, err := net.SplitHostPort(connection.RemoteAddr().String())
	if err != nil {
		ipAddr = connection.RemoteAddr().String()
	}

	return &Client{
		connection: connection,
		ipAddr:     ipAddr,
		port:       port,
		ID:         uuid.Must(uuid.NewV4()).String(),
	}
}

func (c *Client) IPAddr() string { return c.ipAddr }
func (c *Client) Port() string   { return c.port }

// RemoteAddr returns the ip:port of the player.
func (c *Client) RemoteAddr() string {
	return net.JoinHostPort(c.ipAddr, c.port)
}

// ReadWithTimeout performs a single read from the connection, failing if nothing
// arrives within timeout.
func (c *Client) ReadWithTimeout(b []byte, timeout time.Duration) (int, error) {
	if err := c.connection.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("setting read deadline for %s: %w", c.RemoteAddr(), err)
	}
	return c.connection.Read(b)
}

// Read consumes the available bytes directly the client's TCP connection.
func (c *Client) Read(b []byte) (int, error) {
	return c.connection.Read(b)
}

// Write directly sends data to the client over its TCP connection.
func (c *Client) Write(bytes []byte) (int, error) {
	return c.connection.Write(bytes)
}

// Send writes all of msg to the client, giving up after timeout.
func (c *Client) Send(msg string, timeout time.Duration) error {
	if err := c.connection.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("setting write deadline for %s: %w", c.RemoteAddr(), err)
	}

	data := []byte(msg)
	bytesSent := 0
	for bytesSent < len(data) {
		b, err := c.Write(data[bytesSent:])
		if err != nil {
			return fmt.Errorf("failed to send to client %v: %w", c.RemoteAddr(), err)
		}
		bytesSent += b
	}
	return nil
}

// Close the TCP connection.
func (c *Client) Close() error {
	return c.connection.Close()
}
