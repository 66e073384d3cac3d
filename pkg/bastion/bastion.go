// Package bastion reaches slice nodes over SSH. Testbed nodes sit on a
// private management network behind a bastion host, so every connection is
// two hops: an SSH transport to the bastion, then a direct-tcpip channel
// through it carrying a second SSH handshake to the node itself.
//
// Transports are scoped to a single call. Execute, Upload, and Download each
// dial, do their work, and tear both hops down; nothing is pooled. That costs
// a handshake per call and buys freedom from connection lifecycle bugs —
// post-boot configuration runs tens of commands per node, not thousands.
package bastion

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
)

// Config locates and authenticates the bastion hop.
type Config struct {
	// Host is the bastion address, host or host:port. Port defaults to 22.
	Host string

	// User is the bastion login.
	User string

	// KeyPath is the private key for the bastion login.
	KeyPath string

	// KeyPassphrase decrypts KeyPath if it is encrypted.
	KeyPassphrase string

	// DialTimeout bounds each SSH handshake. Defaults to 15s.
	DialTimeout time.Duration
}

func (c Config) addr() string {
	if _, _, err := net.SplitHostPort(c.Host); err == nil {
		return c.Host
	}
	return net.JoinHostPort(c.Host, "22")
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return 15 * time.Second
}

// Channel executes commands and moves files on slice nodes. Safe for
// concurrent use across distinct nodes; callers must not overlap operations
// on a single node.
type Channel struct {
	cfg         Config
	bastionAuth ssh.Signer
	nodeAuth    ssh.Signer
	dial        dialFunc
}

// NewChannel builds a channel from the bastion config and the slice's
// private key. The slice key authenticates the node hop; the bastion key
// authenticates the bastion hop.
func NewChannel(cfg Config, sliceKeyPath, sliceKeyPassphrase string) (*Channel, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("bastion: host not configured")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("bastion: user not configured")
	}
	bastionAuth, err := LoadSigner(cfg.KeyPath, cfg.KeyPassphrase)
	if err != nil {
		return nil, fmt.Errorf("bastion key: %w", err)
	}
	nodeAuth, err := LoadSigner(sliceKeyPath, sliceKeyPassphrase)
	if err != nil {
		return nil, fmt.Errorf("slice key: %w", err)
	}
	ch := &Channel{
		cfg:         cfg,
		bastionAuth: bastionAuth,
		nodeAuth:    nodeAuth,
	}
	ch.dial = ch.dialThroughBastion
	return ch, nil
}

// conn is one established two-hop transport to a node.
type conn interface {
	exec(ctx context.Context, command string) (*Result, error)
	put(ctx context.Context, localPath, remotePath string) error
	get(ctx context.Context, remotePath, localPath string) error
	close() error
}

type dialFunc func(ctx context.Context, nodeAddr, user string) (conn, error)

func (c *Channel) clientConfig(user string, auth ssh.Signer) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(auth)},
		// Node host keys rotate with every slice; there is nothing stable
		// to pin.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.cfg.dialTimeout(),
	}
}

// dialThroughBastion opens the bastion transport, asks it for a TCP channel
// to the node's management address, and runs the node SSH handshake over
// that channel.
func (c *Channel) dialThroughBastion(ctx context.Context, nodeAddr, user string) (conn, error) {
	bastion, err := ssh.Dial("tcp", c.cfg.addr(), c.clientConfig(c.cfg.User, c.bastionAuth))
	if err != nil {
		return nil, fmt.Errorf("dial bastion %s: %w", c.cfg.addr(), err)
	}

	inner, err := bastion.Dial("tcp", nodeAddr)
	if err != nil {
		bastion.Close()
		return nil, fmt.Errorf("bastion relay to %s: %w", nodeAddr, err)
	}

	ncc, chans, reqs, err := ssh.NewClientConn(inner, nodeAddr, c.clientConfig(user, c.nodeAuth))
	if err != nil {
		inner.Close()
		bastion.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", nodeAddr, err)
	}

	return &sshConn{
		node:    ssh.NewClient(ncc, chans, reqs),
		bastion: bastion,
	}, nil
}

// nodeAddr resolves the node's management SSH endpoint, or NodeNotReadyError
// when the node has no management address yet.
func nodeAddr(node *topology.Node) (addr, user string, err error) {
	ip := node.ManagementIP()
	if ip == "" {
		return "", "", &NodeNotReadyError{Node: node.Name()}
	}
	return net.JoinHostPort(ip, "22"), node.SSHUsername(), nil
}

// ProbeBastion checks that the bastion itself accepts our login. Useful as
// a fast preflight before slower per-node operations.
func (c *Channel) ProbeBastion(ctx context.Context) error {
	client, err := ssh.Dial("tcp", c.cfg.addr(), c.clientConfig(c.cfg.User, c.bastionAuth))
	if err != nil {
		return fmt.Errorf("bastion %s unreachable: %w", c.cfg.addr(), err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("bastion %s refused session: %w", c.cfg.addr(), err)
	}
	defer session.Close()

	util.Debugf("bastion %s reachable", c.cfg.addr())
	return nil
}
