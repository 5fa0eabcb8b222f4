package signing

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/alluna/internal/model"
)

// MetadataAdditionalTerms は契約本文に追加条項として埋め込まれるメタデータキー。
// 値はHTMLとして扱い、サニタイズしてから埋め込む。
const MetadataAdditionalTerms = "additional_terms"

// プロバイダのテンプレートで予約されているsystem_entitiesのキーワード。
const (
	KeywordClientFirstName   = "client_first_name"
	KeywordClientLastName    = "client_last_name"
	KeywordClientPhoneNumber = "client_phone_number"
	KeywordClientEmail       = "client_email"
	KeywordEmailSubject      = "email_subject"
)

var reservedKeywords = map[string]bool{
	KeywordClientFirstName:   true,
	KeywordClientLastName:    true,
	KeywordClientPhoneNumber: true,
	KeywordClientEmail:       true,
	KeywordEmailSubject:      true,
	MetadataAdditionalTerms:  true,
}

// Signer は署名者の情報。
type Signer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email"`
}

// Request は署名依頼の入力。
// DocumentIDはプロバイダ側のexternal_idとしてコールバックの突き合わせに使われる。
type Request struct {
	DocumentID   string            `json:"document_id"`
	DocumentName string            `json:"document_name"`
	DocumentURL  string            `json:"document_url,omitempty"`
	Signer       Signer            `json:"signer"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Validate は必須項目を検証する。ネットワーク呼び出しの前に必ず実行される。
func (r *Request) Validate() error {
	switch {
	case strings.TrimSpace(r.DocumentID) == "":
		return model.NewRequiredFieldError("document_id")
	case strings.TrimSpace(r.DocumentName) == "":
		return model.NewRequiredFieldError("document_name")
	case strings.TrimSpace(r.Signer.Email) == "":
		return model.NewRequiredFieldError("signer.email")
	}
	return nil
}

// Entity はプロバイダのテンプレート変数（keyword/valueの組）。
type Entity struct {
	Keyword string `json:"keyword"`
	Value   string `json:"value"`
}

// ContractPayload はプロバイダの契約作成エンドポイントに送るリクエストボディ。
type ContractPayload struct {
	APIKey         string   `json:"api_key"`
	ExternalID     string   `json:"external_id"`
	Body           string   `json:"body"`
	Source         string   `json:"source"`
	Entities       []Entity `json:"entities"`
	SystemEntities []Entity `json:"system_entities"`
	CallbackURL    string   `json:"callback_url"`
}

// HTMLSanitizer は追加条項のHTMLをサニタイズするインターフェース。
type HTMLSanitizer interface {
	Sanitize(rawHTML string) string
}

// BuilderConfig はBuilderの設定。
type BuilderConfig struct {
	APIKey      string // 設定値。利用者入力ではない
	Source      string // 送信元タグ
	CallbackURL string // このシステムのコールバックエンドポイントの絶対URL
}

// Builder はドキュメント・署名者情報からプロバイダへのリクエストを組み立てる。
// 状態を持たず、ネットワーク呼び出しも行わない。
type Builder struct {
	config    BuilderConfig
	sanitizer HTMLSanitizer
	now       func() time.Time
}

// NewBuilder はBuilderを生成する。
func NewBuilder(config BuilderConfig, sanitizer HTMLSanitizer) *Builder {
	return &Builder{
		config:    config,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Build はリクエストを検証し、プロバイダ向けのペイロードを組み立てる。
func (b *Builder) Build(req *Request) (*ContractPayload, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := b.renderBody(req)
	if err != nil {
		return nil, fmt.Errorf("契約本文の生成に失敗しました: %w", err)
	}

	firstName, lastName := splitName(req.Signer.Name)

	systemEntities := []Entity{
		{Keyword: KeywordClientFirstName, Value: firstName},
		{Keyword: KeywordClientLastName, Value: lastName},
		{Keyword: KeywordClientPhoneNumber, Value: req.Signer.Phone},
		{Keyword: KeywordClientEmail, Value: req.Signer.Email},
		{Keyword: KeywordEmailSubject, Value: EmailSubject(req.DocumentName)},
	}
	systemEntities = append(systemEntities, metadataEntities(req.Metadata)...)

	return &ContractPayload{
		APIKey:         b.config.APIKey,
		ExternalID:     req.DocumentID,
		Body:           body,
		Source:         b.config.Source,
		Entities:       []Entity{},
		SystemEntities: systemEntities,
		CallbackURL:    b.config.CallbackURL,
	}, nil
}

// EmailSubject は署名依頼メールの件名を返す。
func EmailSubject(documentName string) string {
	return "Договор для подписания: " + documentName
}

// splitName は署名者名を空白で分割し、先頭2トークンを名・姓として返す。
func splitName(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], fields[1]
	}
}

// metadataEntities は予約キーワード以外のメタデータをキー順にEntityへ変換する。
func metadataEntities(metadata map[string]string) []Entity {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		if reservedKeywords[k] || strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entities := make([]Entity, 0, len(keys))
	for _, k := range keys {
		entities = append(entities, Entity{Keyword: k, Value: metadata[k]})
	}
	return entities
}

type contractBodyData struct {
	SignerName      string
	DocumentName    string
	CreatedDate     string
	AdditionalTerms template.HTML
}

var contractBodyTemplate = template.Must(template.New("contract").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #2563eb; text-align: center;">Договор оказания услуг по дизайну</h1>

  <div style="background: #f8fafc; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h2>Стороны договора:</h2>
    <p><strong>Исполнитель:</strong> ООО "Alluna Design"</p>
    <p><strong>Заказчик:</strong> {{.SignerName}}</p>
  </div>

  <div style="margin: 20px 0;">
    <h3>Предмет договора:</h3>
    <p>Исполнитель обязуется оказать услуги по дизайну интерьера согласно техническому заданию, а Заказчик обязуется принять и оплатить данные услуги.</p>
  </div>

  <div style="background: #ecfdf5; padding: 15px; border-radius: 8px; margin: 20px 0;">
    <h3>Условия договора:</h3>
    <p>Документ: <strong>{{.DocumentName}}</strong></p>
    <p>Дата создания: <strong>{{.CreatedDate}}</strong></p>
  </div>
{{if .AdditionalTerms}}
  <div style="margin: 20px 0;">
    <h3>Дополнительные условия:</h3>
    {{.AdditionalTerms}}
  </div>
{{end}}
  <div style="background: #fef3c7; padding: 15px; border-radius: 8px; margin: 20px 0;">
    <p><strong>Подписание договора:</strong> Настоящий договор вступает в силу с момента его подписания обеими сторонами.</p>
  </div>
</div>
`))

// renderBody は契約本文のHTMLを生成する。
// 署名者名と文書名はテンプレートでエスケープされ、追加条項はサニタイズ済みHTMLとして埋め込まれる。
func (b *Builder) renderBody(req *Request) (string, error) {
	data := contractBodyData{
		SignerName:   req.Signer.Name,
		DocumentName: req.DocumentName,
		CreatedDate:  b.now().Format("02.01.2006"),
	}
	if terms := strings.TrimSpace(req.Metadata[MetadataAdditionalTerms]); terms != "" && b.sanitizer != nil {
		data.AdditionalTerms = template.HTML(b.sanitizer.Sanitize(terms))
	}

	var buf bytes.Buffer
	if err := contractBodyTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
