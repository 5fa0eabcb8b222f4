// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TermsSanitizer は契約本文に埋め込む追加条項のHTMLをサニタイズする。
// 追加条項は利用者が自由に入力するため、署名プロバイダに送る前に
// bluemondayの許可リストポリシーで書式タグ以外を取り除く。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// TermsSanitizer は契約の追加条項HTMLのサニタイズ機能のインターフェースを定義する。
// signing.HTMLSanitizerを満たす。
type TermsSanitizer interface {
	// Sanitize は追加条項のHTMLをサニタイズして安全なHTMLを返す。
	// 段落・改行・リスト・強調・見出し・表のみを通過させ、
	// リンク、画像、script、style、on*イベント属性はすべて除去する。
	// 空文字列の入力には空文字列を返す。
	Sanitize(rawHTML string) string
}

// termsSanitizer はTermsSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので、1つのインスタンスを共有する。
type termsSanitizer struct {
	policy *bluemonday.Policy
}

// NewTermsSanitizer はTermsSanitizerの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, strong, em, b, i, u, h3, h4, table, thead, tbody, tr, th, td
//   - リンクと画像は許可しない（契約本文に外部参照を持ち込まない）
//   - 属性は一切許可しない
func NewTermsSanitizer() *termsSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em", "b", "i", "u",
		"h3", "h4",
	)
	p.AllowTables()

	return &termsSanitizer{
		policy: p,
	}
}

// Sanitize は追加条項のHTMLをサニタイズして安全なHTMLを返す。
func (s *termsSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}
