package bastion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sshConn is the production conn: an SSH client to the node riding a
// direct-tcpip channel through the bastion client.
type sshConn struct {
	node    *ssh.Client
	bastion *ssh.Client
}

func (s *sshConn) close() error {
	nodeErr := s.node.Close()
	bastionErr := s.bastion.Close()
	if nodeErr != nil {
		return nodeErr
	}
	return bastionErr
}

func (s *sshConn) exec(ctx context.Context, command string) (*Result, error) {
	session, err := s.node.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		// Closing the session tears the remote command down with it.
		return nil, ctx.Err()
	case err := <-done:
		res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return res, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		return nil, fmt.Errorf("run command: %w", err)
	}
}

func (s *sshConn) put(ctx context.Context, localPath, remotePath string) error {
	client, err := sftp.NewClient(s.node)
	if err != nil {
		return fmt.Errorf("open sftp: %w", err)
	}
	defer client.Close()

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("create remote dir %s: %w", dir, err)
		}
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := copyCtx(ctx, dst, src); err != nil {
		return fmt.Errorf("write %s: %w", remotePath, err)
	}
	if err := client.Chmod(remotePath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", remotePath, err)
	}
	return nil
}

func (s *sshConn) get(ctx context.Context, remotePath, localPath string) error {
	client, err := sftp.NewClient(s.node)
	if err != nil {
		return fmt.Errorf("open sftp: %w", err)
	}
	defer client.Close()

	src, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open remote file %s: %w", remotePath, err)
	}
	defer src.Close()

	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	dst, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := copyCtx(ctx, dst, src); err != nil {
		return fmt.Errorf("read %s: %w", remotePath, err)
	}
	return nil
}

// copyCtx copies in chunks, checking for cancellation between chunks.
func copyCtx(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 128<<10)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
			if wn < n {
				return written, io.ErrShortWrite
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}
