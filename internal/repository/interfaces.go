// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/tokenman/internal/model"
)

// ProfileRepository はProfileデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのProfileを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// FindByName は名前でProfileを検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Profile, error)

	// FindByEmail はメールアドレスでProfileを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Profile, error)

	// ListAll は全Profileを作成順で返す。
	ListAll(ctx context.Context) ([]*model.Profile, error)

	// ListActive は有効化されたProfileを作成順で返す。
	ListActive(ctx context.Context) ([]*model.Profile, error)

	// ListLoggedIn はログイン済みかつ有効化されたProfileを作成順で返す。
	ListLoggedIn(ctx context.Context) ([]*model.Profile, error)

	// Create はProfileを作成する。
	Create(ctx context.Context, profile *model.Profile) error

	// Update は指定IDのProfileを部分更新する。
	// updateのnilフィールドは変更せず、既存の値を維持する。
	Update(ctx context.Context, id string, update *model.ProfileUpdate) error

	// Delete は指定IDのProfileを削除する。
	Delete(ctx context.Context, id string) error
}
