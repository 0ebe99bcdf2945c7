// Package model はドメインモデルを定義する。
package model

import "time"

// Profile は隔離されたブラウザアイデンティティを表す。
// 各Profileは独立した永続ストレージディレクトリとプロキシ設定を持つ。
type Profile struct {
	ID               string
	Name             string
	Email            string
	ProxyURL         string
	ProxyEnabled     bool
	IsActive         bool
	IsLoggedIn       bool
	LastTokenPreview string
	LastTokenAt      *time.Time
	LastSyncAt       *time.Time
	LastSyncResult   string
	SyncCount        int
	ErrorCount       int
	Remark           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProfileUpdate はProfileの部分更新を表す。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Name             *string
	Email            *string
	Remark           *string
	IsActive         *bool
	IsLoggedIn       *bool
	ProxyURL         *string
	ProxyEnabled     *bool
	LastTokenPreview *string
	LastTokenAt      *time.Time
	LastSyncAt       *time.Time
	LastSyncResult   *string
	SyncCount        *int
	ErrorCount       *int
}
