package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
)

// AuthTokenEnvVar is the environment variable the proxy reads the token from.
const AuthTokenEnvVar = "FEEDBACK_LOOP_TOKEN"

// authResponse is the server's reply to an auth message.
type authResponse struct {
	Authenticated bool   `json:"authenticated"`
	Error         string `json:"error,omitempty"`
}

// ProxyConn is an authenticated connection to a TCP-mode server.
type ProxyConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to a TCP-mode server and authenticates with token.
func Dial(ctx context.Context, addr, token string) (*ProxyConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	pc := &ProxyConn{conn: conn, reader: bufio.NewReader(conn)}
	if err := pc.authenticate(token); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return pc, nil
}

func (pc *ProxyConn) authenticate(token string) error {
	data, err := json.Marshal(authMessage{Auth: token})
	if err != nil {
		return fmt.Errorf("failed to marshal auth message: %w", err)
	}
	if _, err := pc.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to send auth message: %w", err)
	}

	line, err := pc.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	var response authResponse
	if err := json.Unmarshal(line, &response); err != nil {
		return fmt.Errorf("failed to parse auth response: %w", err)
	}
	if !response.Authenticated {
		if response.Error != "" {
			return fmt.Errorf("server rejected authentication: %s", response.Error)
		}
		return errors.New("server rejected authentication")
	}
	return nil
}

// Forward copies in to the server and the server's replies to out. It returns
// once the server closes its side or ctx is cancelled; a read from in that is
// still blocked at that point is abandoned. The connection is closed on return.
func (pc *ProxyConn) Forward(ctx context.Context, in io.Reader, out io.Writer) error {
	stop := context.AfterFunc(ctx, func() { _ = pc.conn.Close() })
	defer stop()
	defer pc.conn.Close() //nolint:errcheck

	var upErr error
	upDone := make(chan struct{})
	go func() {
		defer close(upDone)
		_, upErr = io.Copy(pc.conn, in)
		// Half-close so the server sees EOF and finishes pending replies.
		if c, ok := pc.conn.(*net.TCPConn); ok {
			_ = c.CloseWrite()
		}
	}()

	_, downErr := io.Copy(out, pc.reader)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if downErr != nil {
		return fmt.Errorf("failed to read from server: %w", downErr)
	}

	select {
	case <-upDone:
		if upErr != nil && !errors.Is(upErr, net.ErrClosed) {
			return fmt.Errorf("failed to write to server: %w", upErr)
		}
	default:
	}
	return nil
}
