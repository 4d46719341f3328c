package core

import (
	"bufio"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
)

const defaultRevisionTimeout = 5 * time.Second

var hgLogLine = regexp.MustCompile(`^(\w+):\s+(.+)$`)

// RevisionInfo describes the latest change of a file under version control
type RevisionInfo struct {
	Date      string
	User      string
	Changeset string
	Tag       string
	Summary   string
}

// DefaultRevisionInfo is used when no revision information is available
func DefaultRevisionInfo() RevisionInfo {
	return RevisionInfo{User: "unknown"}
}

// RevisionProvider looks up revision information. Implementations never
// fail; they return DefaultRevisionInfo instead.
type RevisionProvider interface {
	Lookup(ctx context.Context, repoRoot, filePath string) RevisionInfo
}

// NoopRevisionProvider always returns the default record
type NoopRevisionProvider struct{}

func (NoopRevisionProvider) Lookup(context.Context, string, string) RevisionInfo {
	return DefaultRevisionInfo()
}

// MercurialProvider runs `hg log -l 1` on the file
type MercurialProvider struct {
	Binary   string        // defaults to "hg"
	Encoding string        // encoding of the hg output, e.g. "utf-8" or "iso-8859-2"
	Timeout  time.Duration // defaults to 5s
}

// NewMercurialProvider creates a provider using the given binary and
// output encoding
func NewMercurialProvider(binary, encoding string) *MercurialProvider {
	return &MercurialProvider{Binary: binary, Encoding: encoding}
}

func (p *MercurialProvider) Lookup(ctx context.Context, repoRoot, filePath string) RevisionInfo {
	binary := p.Binary
	if binary == "" {
		binary = "hg"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultRevisionTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, "log", "-l", "1", filePath)
	cmd.Dir = repoRoot
	output, err := cmd.Output()
	if err != nil {
		Warn("failed to fetch version info", zap.String("path", filePath), zap.Error(err))
		return DefaultRevisionInfo()
	}

	text, err := decodeOutput(output, p.Encoding)
	if err != nil {
		Warn("failed to decode version info", zap.String("path", filePath),
			zap.String("encoding", p.Encoding), zap.Error(err))
		return DefaultRevisionInfo()
	}
	return ParseHgLog(text)
}

func decodeOutput(data []byte, encoding string) (string, error) {
	if encoding == "" || strings.EqualFold(encoding, "utf-8") || strings.EqualFold(encoding, "utf8") {
		return string(data), nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return "", err
	}
	return enc.NewDecoder().String(string(data))
}

// ParseHgLog reads the "key: value" lines of hg log output. Unknown keys
// are ignored; missing keys keep their defaults.
func ParseHgLog(output string) RevisionInfo {
	info := DefaultRevisionInfo()
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := hgLogLine.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\r"))
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		switch m[1] {
		case "changeset":
			info.Changeset = value
		case "tag":
			info.Tag = value
		case "user":
			info.User = value
		case "date":
			info.Date = value
		case "summary":
			info.Summary = value
		}
	}
	return info
}
