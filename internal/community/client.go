// Package community downloads mapping libraries shared in the community
// GitHub repository.
package community

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/tdmaps/internal/config"
	"github.com/standardbeagle/tdmaps/internal/debug"
	tderrors "github.com/standardbeagle/tdmaps/internal/errors"
	"github.com/standardbeagle/tdmaps/internal/mapping"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// maxBodySize bounds API listings and library downloads
	maxBodySize = 8 << 20

	// maxListDepth bounds recursion into repository directories
	maxListDepth = 4
)

// File is a mapping library available for download
type File struct {
	Path        string `json:"path"` // Repository path, "/" separated
	Name        string `json:"name"` // File name with extension
	DisplayName string `json:"displayName"`
}

type contentItem struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// Client talks to the GitHub API and the raw content mirrors
type Client struct {
	cfg  config.Community
	http *http.Client
}

// New creates a client; a zero timeout falls back to 15 seconds
func New(cfg config.Community) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if len(cfg.Mirrors) == 0 {
		cfg.Mirrors = append([]string(nil), config.DefaultMirrors...)
	}
	if cfg.APIBase == "" {
		cfg.APIBase = config.DefaultAPIBase
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// WithHTTPClient replaces the transport, mainly for tests
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// List returns every .json file in the repository, sorted by path.
// Failures in subdirectories are collected; files found elsewhere are still returned.
func (c *Client) List(ctx context.Context) ([]File, error) {
	root := fmt.Sprintf("%s/repos/%s/%s/contents", strings.TrimRight(c.cfg.APIBase, "/"), c.cfg.Owner, c.cfg.Repo)
	items, err := c.listDir(ctx, root)
	if err != nil {
		return nil, tderrors.NewMultiError([]error{err})
	}

	var (
		mu    sync.Mutex
		files []File
		errs  []error
	)
	collect := func(f File) {
		mu.Lock()
		files = append(files, f)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	var walk func(items []contentItem, depth int)
	walk = func(items []contentItem, depth int) {
		for _, item := range items {
			switch {
			case item.Type == "file" && mapping.IsMappingFile(item.Path):
				collect(newFile(item.Path))
			case item.Type == "dir" && depth < maxListDepth:
				dir := item.Path
				g.Go(func() error {
					sub, err := c.listDir(gctx, root+"/"+dir)
					if err != nil {
						mu.Lock()
						errs = append(errs, err)
						mu.Unlock()
						return nil
					}
					walk(sub, depth+1)
					return nil
				})
			}
		}
	}
	walk(items, 0)
	_ = g.Wait()

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	debug.LogNetwork("listed %d mapping libraries (%d errors)\n", len(files), len(errs))
	return files, tderrors.NewMultiError(errs).ErrOrNil()
}

func newFile(p string) File {
	name := path.Base(p)
	return File{Path: p, Name: name, DisplayName: strings.TrimSuffix(name, path.Ext(name))}
}

func (c *Client) listDir(ctx context.Context, url string) ([]contentItem, error) {
	body, err := c.get(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}
	var items []contentItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, tderrors.NewNetworkError(url, fmt.Errorf("decode listing: %w", err))
	}
	return items, nil
}

// MirrorURL returns the raw content URL of repoPath on mirror
func (c *Client) MirrorURL(mirror, repoPath string) string {
	mirror = strings.TrimRight(mirror, "/")
	repoPath = strings.TrimLeft(repoPath, "/")
	if strings.Contains(mirror, "cdn.statically.io") {
		return fmt.Sprintf("%s/gh/%s/%s/%s/%s", mirror, c.cfg.Owner, c.cfg.Repo, c.cfg.Branch, repoPath)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", mirror, c.cfg.Owner, c.cfg.Repo, c.cfg.Branch, repoPath)
}

// Download fetches repoPath from the mirrors strictly in order; the first
// successful response wins. When every mirror fails the error lists each failure.
func (c *Client) Download(ctx context.Context, repoPath string) ([]byte, error) {
	var errs []error
	for _, mirror := range c.cfg.Mirrors {
		url := c.MirrorURL(mirror, repoPath)
		body, err := c.get(ctx, url, "*/*")
		if err == nil {
			debug.LogNetwork("downloaded %s from %s\n", repoPath, mirror)
			return body, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		debug.LogNetwork("mirror %s failed: %v\n", mirror, err)
	}
	return nil, tderrors.NewMultiError(errs)
}

// Store is where installed libraries land
type Store interface {
	MappingDir() string
	Reload(ctx context.Context) error
}

// Install downloads repoPath, writes it pretty-printed into the mapping
// directory under its file name and reloads the store. It returns the written path.
func (c *Client) Install(ctx context.Context, s Store, repoPath string) (string, error) {
	name := path.Base(repoPath)
	if !mapping.IsMappingFile(name) {
		return "", fmt.Errorf("not a mapping library: %s", repoPath)
	}
	data, err := c.Download(ctx, repoPath)
	if err != nil {
		return "", err
	}
	data = mapping.Pretty(data)

	dir := s.MappingDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", tderrors.NewFileError("mkdir", dir, err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, data, 0644); err != nil {
		return "", tderrors.NewFileError("write", target, err)
	}
	if err := s.Reload(ctx); err != nil {
		return target, err
	}
	return target, nil
}

func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, tderrors.NewNetworkError(url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, tderrors.NewNetworkError(url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, tderrors.NewNetworkError(url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, tderrors.NewStatusError(url, resp.StatusCode, string(body))
	}
	return body, nil
}
