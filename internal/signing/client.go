package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/hitoshi/alluna/internal/model"
	"golang.org/x/net/html"
)

const (
	// contractPath はプロバイダの契約作成エンドポイントのパス。
	contractPath = "/external/contract"
	// maxResponseBytes はプロバイダレスポンスの読み取り上限。
	maxResponseBytes = 1 << 20
)

// ContractResponse はプロバイダの契約作成レスポンス。
type ContractResponse struct {
	ContractID string `json:"contract_id"`
	Link       string `json:"link"`
	Message    string `json:"message,omitempty"`
}

// Client はOkiDoki APIのクライアント。
// 1回の呼び出しにつき1回だけリクエストを送信し、リトライは行わない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLにスキームが無い場合はhttps://を補う。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    NormalizeBaseURL(baseURL),
	}
}

// NormalizeBaseURL はベースURLにスキームを補い、末尾のスラッシュを除去する。
func NormalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// CreateContract はプロバイダに署名可能な契約インスタンスの作成を依頼する。
//   - 2xx以外: Kind=statusのProviderError（生ボディとステータスを保持）
//   - 2xxだがJSONでない: Kind=malformedのProviderError
//   - 2xxかつJSON: ContractResponse
func (c *Client) CreateContract(ctx context.Context, payload *ContractPayload) (*ContractResponse, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	endpoint := c.baseURL + contractPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Info("署名プロバイダに契約作成を依頼します",
		slog.String("endpoint", endpoint),
		slog.String("external_id", payload.ExternalID),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("署名プロバイダの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("external_id", payload.ExternalID),
		)
		return nil, fmt.Errorf("署名プロバイダの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("署名プロバイダがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("external_id", payload.ExternalID),
			slog.String("body", string(body)),
		)
		return nil, &model.ProviderError{
			Kind:       model.ProviderErrorStatus,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Reason:     htmlTitle(resp.Header.Get("Content-Type"), body),
		}
	}

	if !isJSONContentType(resp.Header.Get("Content-Type")) {
		reason := htmlTitle(resp.Header.Get("Content-Type"), body)
		c.logger.Error("署名プロバイダがJSON以外のレスポンスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("content_type", resp.Header.Get("Content-Type")),
			slog.String("reason", reason),
		)
		return nil, &model.ProviderError{
			Kind:       model.ProviderErrorMalformed,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Reason:     reason,
		}
	}

	var result ContractResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("署名プロバイダのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, &model.ProviderError{
			Kind:       model.ProviderErrorMalformed,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Reason:     err.Error(),
		}
	}

	if missing := missingContractFields(&result); missing != "" {
		c.logger.Error("署名プロバイダのレスポンスに必須項目が含まれていません",
			slog.String("external_id", payload.ExternalID),
			slog.String("missing", missing),
		)
		return nil, &model.ProviderError{
			Kind:       model.ProviderErrorMalformed,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Reason:     "missing " + missing,
		}
	}

	return &result, nil
}

// missingContractFields は成功レスポンスに欠けている必須項目名を返す。
func missingContractFields(r *ContractResponse) string {
	var missing []string
	if strings.TrimSpace(r.ContractID) == "" {
		missing = append(missing, "contract_id")
	}
	if strings.TrimSpace(r.Link) == "" {
		missing = append(missing, "link")
	}
	return strings.Join(missing, ", ")
}

// isJSONContentType はContent-TypeがJSONを示すかを判定する。
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// htmlTitle はHTMLレスポンスから<title>要素のテキストを抽出する。
// HTMLでない場合やtitleが無い場合は空文字列を返す。
func htmlTitle(contentType string, body []byte) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.EqualFold(mediaType, "text/html") && !bytes.Contains(bytes.ToLower(body), []byte("<html")) {
		return ""
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return title
}
