// Package model はドメインモデルを定義する。
package model

import "time"

// Project はクライアント案件（インテリアデザインのプロジェクト）を表す。
// プロジェクト自身は状態遷移を持たない。削除時は配下のDocumentもすべて削除される。
type Project struct {
	ID          string
	Name        string
	ClientName  string
	ClientPhone string
	ClientEmail string // 任意
	Description string // 任意
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProjectWithCount はプロジェクトと配下のドキュメント数を結合したモデル。
type ProjectWithCount struct {
	Project
	DocumentCount int
}
