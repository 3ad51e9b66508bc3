package driver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/OpenCHAMI/pdusim/pkg/secrets"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

const SSH_PORT = 22

// SSHRunner runs commands over one lazily opened, reconnecting SSH
// connection.
type SSHRunner struct {
	mu     sync.Mutex
	addr   string
	config *ssh.ClientConfig
	client *ssh.Client
}

func NewSSHRunner(host string, creds secrets.Credentials, timeout time.Duration) *SSHRunner {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, fmt.Sprint(SSH_PORT))
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SSHRunner{
		addr: addr,
		config: &ssh.ClientConfig{
			User: creds.Username,
			Auth: []ssh.AuthMethod{ssh.Password(creds.Password)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         timeout,
		},
	}
}

func (r *SSHRunner) session(reconnect bool) (*ssh.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reconnect && r.client != nil {
		r.client.Close()
		r.client = nil
	}
	if r.client == nil {
		log.Info().Str("addr", r.addr).Str("user", r.config.User).Msg("connecting")
		client, err := ssh.Dial("tcp", r.addr, r.config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", r.addr, err)
		}
		r.client = client
	}
	return r.client.NewSession()
}

func (r *SSHRunner) Run(ctx context.Context, cmd string) (int, string, error) {
	session, err := r.session(false)
	if err != nil {
		log.Warn().Err(err).Str("addr", r.addr).Msg("session failed, reconnecting")
		if session, err = r.session(true); err != nil {
			return -1, "", err
		}
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return -1, "", ctx.Err()
	case res := <-done:
		var exitErr *ssh.ExitError
		if errors.As(res.err, &exitErr) {
			return exitErr.ExitStatus(), string(res.out), nil
		}
		if res.err != nil {
			return -1, string(res.out), res.err
		}
		return 0, string(res.out), nil
	}
}

func (r *SSHRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
