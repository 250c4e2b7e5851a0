package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

// IPFSBackend keeps content in the mutable file system of an IPFS node,
// under root/<namespace>/<content id>, so it can be found again by our own
// content id rather than the node's CID.
type IPFSBackend struct {
	shell *shell.Shell
	api   string
	root  string
	log   *slog.Logger
}

func NewIPFSBackend(api, root string, log *slog.Logger) (*IPFSBackend, error) {
	root = "/" + strings.Trim(root, "/")
	if root == "/" {
		root = "/capsule-ledger"
	}
	sh := shell.NewShell(api)
	sh.SetTimeout(30 * time.Second)
	return &IPFSBackend{shell: sh, api: api, root: root, log: log}, nil
}

func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	p := b.filePath(id, contentType)

	reader, err := b.shell.FilesRead(ctx, p)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return nil, interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to read from IPFS", slog.String("path", p), "err", err)
		return nil, fmt.Errorf("%w: %w", interfaces.ErrBackendUnavailable, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}
	b.log.Debug("Fetched content from IPFS",
		slog.String("path", p),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	p := b.filePath(id, contentType)

	err := b.shell.FilesWrite(ctx, p, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return id, fmt.Errorf("failed to write data to IPFS: %w", err)
	}
	stat, err := b.shell.FilesStat(ctx, p)
	if err == nil {
		b.log.Debug("Stored content in IPFS", slog.String("path", p), slog.String("cid", stat.Hash))
	}
	return id, nil
}

func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

func (b *IPFSBackend) Name() string {
	return "ipfs-" + b.api
}

func (b *IPFSBackend) LocationURI() string {
	return "ipfs://" + b.api + b.root
}

func (b *IPFSBackend) filePath(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return path.Join(b.root, namespace(contentType), id.String())
}
