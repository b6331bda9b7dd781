package storage

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/bstardust/photo-gps-resolver/internal/logger"
)

// TunnelConfig describes the SSH server that fronts the database host
type TunnelConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	KeyFile    string
	KnownHosts string
	Timeout    time.Duration
}

// Tunnel forwards database connections through an SSH session. The SSH
// session is opened on first use and reopened after it breaks.
type Tunnel struct {
	cfg    TunnelConfig
	mu     sync.Mutex
	client *ssh.Client
}

// NewTunnel creates a tunnel that is not yet connected
func NewTunnel(cfg TunnelConfig) *Tunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Tunnel{cfg: cfg}
}

// Open establishes the SSH session if it is not already up
func (t *Tunnel) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return nil
	}

	clientCfg, err := t.clientConfig()
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	logger.Debug("Establishing SSH tunnel to %s...", addr)

	dialer := net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial ssh server %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	t.client = ssh.NewClient(c, chans, reqs)
	logger.Info("SSH tunnel to %s has been established", addr)
	return nil
}

// DialContext opens a connection to addr as seen from the SSH server
func (t *Tunnel) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return nil, fmt.Errorf("ssh tunnel is not open: %w", net.ErrClosed)
	}

	conn, err := client.DialContext(ctx, network, addr)
	if err != nil {
		// the SSH session is probably dead, reopen it on the next attempt
		t.reset(client)
		return nil, fmt.Errorf("dial %s through ssh tunnel: %w", addr, err)
	}
	return conn, nil
}

func (t *Tunnel) reset(broken *ssh.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == broken {
		_ = t.client.Close()
		t.client = nil
	}
}

// Close tears down the SSH session
func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	logger.Info("SSH tunnel has been closed")
	return err
}

func (t *Tunnel) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if t.cfg.KeyFile != "" {
		key, err := os.ReadFile(t.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if t.cfg.Password != "" {
		auth = append(auth, ssh.Password(t.cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("ssh tunnel needs a password or a key file")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if t.cfg.KnownHosts != "" {
		cb, err := knownhosts.New(t.cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		logger.Warn("SSH host key of %s is not verified, set tunnel.known_hosts", t.cfg.Host)
	}

	return &ssh.ClientConfig{
		User:            t.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.cfg.Timeout,
	}, nil
}

// UseTunnel reports whether this host must reach the database through the
// tunnel: it is enabled and we are not running on the direct host itself.
func UseTunnel(enabled bool, directHostname string) bool {
	if !enabled {
		return false
	}
	if directHostname == "" {
		return true
	}
	host, err := os.Hostname()
	if err != nil {
		return true
	}
	return host != directHostname
}
