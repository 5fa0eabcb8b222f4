// Package database はPostgreSQLストアのスキーマ管理を提供する。
//
// スキーマは埋め込みの2本のマイグレーションで構成される。
//   - 000001_create_projects: projectsテーブル
//   - 000002_create_documents: documentsテーブル（projectsへのON DELETE CASCADE、statusのCHECK制約）
//
// インメモリストア（STORE_DRIVER=memory）ではこのパッケージは使われない。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// LatestSchemaVersion は埋め込まれたマイグレーションの最新バージョン。
// documentsテーブルを追加したら更新する。
const LatestSchemaVersion uint = 2

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator はprojects/documentsスキーマ用のmigrateインスタンスを生成する。
// 呼び出し側はCloseで接続を解放すること。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションソースの読み込みに失敗しました: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションの初期化に失敗しました: %w", err)
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションをLatestSchemaVersionまで適用する。
// 適用済みの場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("マイグレーションの適用に失敗しました: %w", err)
	}
	return nil
}

// SchemaVersion は適用済みのスキーマバージョンを返す。
// 未適用の場合は0を返す。途中で失敗したマイグレーション（dirty）はエラーになる。
func SchemaVersion(databaseURL string) (uint, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("スキーマバージョンの取得に失敗しました: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("スキーマバージョン%dが未完了（dirty）の状態です", version)
	}
	return version, nil
}
