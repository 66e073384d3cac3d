package bastion

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
)

// withConn dials the node with the usual retry budget and hands the live
// transport to fn. Only dialing is retried: once fn runs, its errors are
// the caller's.
func (c *Channel) withConn(ctx context.Context, node *topology.Node, opts ExecOptions, fn func(conn) error) error {
	addr, user, err := nodeAddr(node)
	if err != nil {
		return err
	}
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.RetryInterval):
			}
		}
		tc, err := c.dial(ctx, addr, user)
		if err != nil {
			lastErr = err
			continue
		}
		err = fn(tc)
		tc.close()
		return err
	}
	return &ConnectError{Node: node.Name(), Attempts: opts.Retries, Err: lastErr}
}

// Upload copies a local file to the node, creating parent directories and
// carrying the local permission bits over.
func (c *Channel) Upload(ctx context.Context, node *topology.Node, localPath, remotePath string) error {
	util.WithNode(node.Name()).Debugf("upload %s -> %s", localPath, remotePath)
	return c.withConn(ctx, node, ExecOptions{}, func(tc conn) error {
		return tc.put(ctx, localPath, remotePath)
	})
}

// Download copies a file from the node to the local filesystem.
func (c *Channel) Download(ctx context.Context, node *topology.Node, remotePath, localPath string) error {
	util.WithNode(node.Name()).Debugf("download %s -> %s", remotePath, localPath)
	return c.withConn(ctx, node, ExecOptions{}, func(tc conn) error {
		return tc.get(ctx, remotePath, localPath)
	})
}

// UploadDirectory ships a whole directory to the node: gzipped tarball
// built locally, uploaded to /tmp, extracted into remoteDir. The directory
// lands as remoteDir/<basename of localDir>/...
func (c *Channel) UploadDirectory(ctx context.Context, node *topology.Node, localDir, remoteDir string) error {
	tmpLocal, err := tarballDir(localDir)
	if err != nil {
		return fmt.Errorf("pack %s: %w", localDir, err)
	}
	defer os.Remove(tmpLocal)

	tmpRemote := "/tmp/weft-" + uuid.NewString()[:8] + ".tar.gz"
	if err := c.Upload(ctx, node, tmpLocal, tmpRemote); err != nil {
		return err
	}

	cmd := fmt.Sprintf("mkdir -p %s && tar -xzf %s -C %s && rm -f %s",
		shellQuote(remoteDir), shellQuote(tmpRemote), shellQuote(remoteDir), shellQuote(tmpRemote))
	res, err := c.Execute(ctx, node, cmd, ExecOptions{})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("extract on %s failed (exit %d): %s", node.Name(), res.ExitCode, res.Stderr)
	}
	return nil
}

// DownloadDirectory fetches a whole directory from the node: tarball built
// remotely, downloaded, extracted under localDir.
func (c *Channel) DownloadDirectory(ctx context.Context, node *topology.Node, localDir, remoteDir string) error {
	tmpRemote := "/tmp/weft-" + uuid.NewString()[:8] + ".tar.gz"
	cmd := fmt.Sprintf("tar -czf %s -C %s . && echo packed",
		shellQuote(tmpRemote), shellQuote(remoteDir))
	res, err := c.Execute(ctx, node, cmd, ExecOptions{})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("pack on %s failed (exit %d): %s", node.Name(), res.ExitCode, res.Stderr)
	}

	tmpLocal := filepath.Join(os.TempDir(), filepath.Base(tmpRemote))
	defer os.Remove(tmpLocal)
	if err := c.Download(ctx, node, tmpRemote, tmpLocal); err != nil {
		return err
	}
	// Best effort; a leaked tarball in /tmp is harmless.
	if _, err := c.Execute(ctx, node, "rm -f "+shellQuote(tmpRemote), ExecOptions{Retries: 1}); err != nil {
		util.WithNode(node.Name()).Debugf("cleanup %s: %v", tmpRemote, err)
	}

	return untarInto(tmpLocal, localDir)
}

// tarballDir packs dir into a temporary gzipped tarball whose entries are
// rooted at the directory's basename, and returns the tarball path.
func tarballDir(dir string) (string, error) {
	dir = filepath.Clean(dir)
	base := filepath.Base(dir)

	tmp, err := os.CreateTemp("", "weft-*.tar.gz")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(base, rel))

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tw.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := gz.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// untarInto extracts a gzipped tarball under dest, refusing entries that
// would escape it.
func untarInto(tarball, dest string) error {
	f, err := os.Open(tarball)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("tar entry %q escapes %s", hdr.Name, dest)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		default:
			// Symlinks and specials do not survive the trip; skip them.
			util.Debugf("skipping tar entry %s (type %c)", hdr.Name, hdr.Typeflag)
		}
	}
}
