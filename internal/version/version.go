// Package version reports the scout build and checks for newer releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// Build metadata, set with -ldflags "-X".
//
//nolint:gochecknoglobals // Populated by the linker
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// Release repository.
const (
	Owner = "mrz1836"
	Repo  = "scout"

	DefaultBaseURL = "https://api.github.com"
	maxBodySize    = 64 * 1024
)

// Info describes the running binary and, after a check, the latest release.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Latest    string `json:"latest,omitempty"`
	Outdated  bool   `json:"outdated,omitempty"`
}

// Current returns the build information of this binary.
func Current() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the one-line version banner.
func (i Info) String() string {
	s := "scout " + i.Version
	if i.Commit != "" {
		s += " (" + i.Commit + ")"
	}
	return s + " " + i.GoVersion + " " + i.Platform
}

// Checker fetches the latest published release.
type Checker struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewChecker returns a checker against the public GitHub API.
func NewChecker() *Checker {
	return &Checker{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Latest returns the tag of the latest release.
func (c *Checker) Latest(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", strings.TrimSuffix(c.BaseURL, "/"), Owner, Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "scout/"+Version)

	resp, err := c.HTTPClient.Do(req) //nolint:gosec // URL is built from constants and the configured base URL
	if err != nil {
		return "", scouterr.WithCause(scouterr.ErrNetworkError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", scouterr.WithDetails(scouterr.ErrNetworkError, map[string]string{"status": strconv.Itoa(resp.StatusCode)})
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&release); err != nil {
		return "", scouterr.WithCause(scouterr.ErrNetworkError, err)
	}
	return release.TagName, nil
}

// Check fills in the latest release and whether info is behind it.
func (c *Checker) Check(ctx context.Context, info Info) (Info, error) {
	latest, err := c.Latest(ctx)
	if err != nil {
		return info, err
	}
	info.Latest = latest
	info.Outdated = Compare(latest, info.Version) > 0
	return info, nil
}

// Compare compares two versions, returning 1, 0 or -1. A "v" prefix and any
// pre-release or build suffix are ignored. "dev" sorts before every release.
func Compare(a, b string) int {
	pa, pb := parse(a), parse(b)
	switch {
	case pa == nil && pb == nil:
		return 0
	case pa == nil:
		return -1
	case pb == nil:
		return 1
	}
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			if pa[i] > pb[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// parse returns major, minor, patch, or nil for a non-release version.
func parse(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	if v == "" || v == "dev" {
		return nil
	}
	out := make([]int, 3)
	for i, part := range strings.SplitN(v, ".", 3) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil
		}
		out[i] = n
	}
	return out
}
