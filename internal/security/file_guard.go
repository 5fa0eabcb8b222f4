package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrFileTooLarge はリモートファイルが読み取り上限を超えた場合のエラー。
var ErrFileTooLarge = errors.New("remote file exceeds size limit")

// RemoteFile はfile_urlから取得したファイルの内容。
// Bodyは呼び出し元がCloseする。
type RemoteFile struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// allowedSchemes はドキュメントのfile_urlで許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はfile_urlとして受け付けないネットワーク範囲。
// 実際の接続時のIP検証はsafeurlのDialerが行い、ここでは登録時の静的チェックに使う。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータ (169.254.169.254) を含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// FileGuard はドキュメントのfile_urlを検証し、SSRF防止付きのHTTPクライアントで取得する。
type FileGuard struct {
	client  *http.Client
	logger  *slog.Logger
	maxSize int64
}

// NewFileGuard はFileGuardを生成する。
// safeurlの設定により、プライベートIP、ループバック、リンクローカル、
// メタデータIPへの接続はDNS解決後のDialer段階でブロックされる。
func NewFileGuard(logger *slog.Logger, timeout time.Duration, maxSize int64) *FileGuard {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return &FileGuard{
		client:  safeurl.Client(config).Client,
		logger:  logger,
		maxSize: maxSize,
	}
}

// ValidateURL はfile_urlとして登録可能かを静的に検証する。DNS解決は行わない。
func (g *FileGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip.String())
			}
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// Fetch はfile_urlの内容を取得する。
// 2xx以外のステータスはエラー、Content-Lengthが上限を超える場合はErrFileTooLargeを返す。
// ボディは上限バイト数で打ち切られる。
func (g *FileGuard) Fetch(ctx context.Context, rawURL string) (*RemoteFile, error) {
	if err := g.ValidateURL(rawURL); err != nil {
		return nil, err
	}
	return g.fetch(ctx, rawURL)
}

func (g *FileGuard) fetch(ctx context.Context, rawURL string) (*RemoteFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("ドキュメントファイルの取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ドキュメントファイルの取得に失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("ドキュメントファイルの取得で予期しないステータスが返されました: %d", resp.StatusCode)
	}

	if g.maxSize > 0 && resp.ContentLength > g.maxSize {
		resp.Body.Close()
		return nil, ErrFileTooLarge
	}

	body := resp.Body
	if g.maxSize > 0 {
		body = limitedReadCloser{Reader: io.LimitReader(resp.Body, g.maxSize), Closer: resp.Body}
	}

	return &RemoteFile{
		Body:          body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}
