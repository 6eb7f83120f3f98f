package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible
// cache server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// ValkeyProvider implements Provider against a Valkey server using a
// minimal RESP client. Connections are dialed per operation; the cached
// payloads are small and query volume is bounded by investigation rate.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// NewValkeyProvider creates a Provider and pings the target to fail fast on
// bad credentials or connectivity.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	provider := &ValkeyProvider{cfg: cfg}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if _, err := provider.roundTrip(ctx, "PING"); err != nil {
		return nil, err
	}
	return provider, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := p.roundTrip(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, ErrCacheMiss
	}
	return reply, nil
}

// Set stores bytes with the provided TTL.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := []string{"SET", key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	reply, err := p.roundTrip(ctx, args...)
	if err != nil {
		return err
	}
	if !strings.EqualFold(string(reply), "OK") {
		return fmt.Errorf("unexpected SET response: %s", reply)
	}
	return nil
}

// Del removes a key from the cache.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.roundTrip(ctx, "DEL", key)
	return err
}

// Close is a no-op; the provider dials per operation.
func (p *ValkeyProvider) Close() error { return nil }

// roundTrip dials, authenticates, issues one command, and reads the reply.
// A nil reply with nil error means RESP nil (key absent).
func (p *ValkeyProvider) roundTrip(ctx context.Context, args ...string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reply, err := p.once(ctx, args)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() || attempt == p.cfg.MaxRetries-1 {
			return nil, err
		}
		time.Sleep(time.Duration(1<<attempt) * 25 * time.Millisecond)
	}
	return nil, lastErr
}

func (p *ValkeyProvider) once(ctx context.Context, args []string) ([]byte, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	if p.cfg.Password != "" {
		auth := []string{"AUTH", p.cfg.Password}
		if p.cfg.Username != "" {
			auth = []string{"AUTH", p.cfg.Username, p.cfg.Password}
		}
		if _, err := p.command(conn, reader, auth); err != nil {
			return nil, fmt.Errorf("auth failed: %w", err)
		}
	}
	if p.cfg.DB > 0 {
		if _, err := p.command(conn, reader, []string{"SELECT", strconv.Itoa(p.cfg.DB)}); err != nil {
			return nil, fmt.Errorf("select failed: %w", err)
		}
	}

	return p.command(conn, reader, args)
}

func (p *ValkeyProvider) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: p.cfg.DialTimeout}
	if p.cfg.TLS {
		host := p.cfg.Addr
		if h, _, err := net.SplitHostPort(p.cfg.Addr); err == nil {
			host = h
		}
		return tls.DialWithDialer(&dialer, "tcp", p.cfg.Addr, &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: host,
		})
	}
	return dialer.DialContext(ctx, "tcp", p.cfg.Addr)
}

func (p *ValkeyProvider) command(conn net.Conn, reader *bufio.Reader, args []string) ([]byte, error) {
	if err := conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout)); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "*%d\r\n", len(args))
	for _, arg := range args {
		fmt.Fprintf(&sb, "$%d\r\n%s\r\n", len(arg), arg)
	}
	if _, err := io.WriteString(conn, sb.String()); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	return readReply(reader)
}

func readReply(reader *bufio.Reader) ([]byte, error) {
	prefix, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	line, err := readLine(reader)
	if err != nil {
		return nil, err
	}

	switch prefix {
	case '+', ':':
		return line, nil
	case '-':
		return nil, errors.New(string(line))
	case '$':
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return nil, err
		}
		if size < 0 {
			return nil, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return nil, err
		}
		return buf[:size], nil
	default:
		return nil, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func readLine(reader *bufio.Reader) ([]byte, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return []byte(line), nil
}
