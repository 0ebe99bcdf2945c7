package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/tokenman/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したProfileリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// profileColumns はSELECT句で使用するカラムリスト。scanProfileと順序を一致させること。
const profileColumns = `id, name, email, proxy_url, proxy_enabled, is_active, is_logged_in,
	last_token_preview, last_token_at, last_sync_at, last_sync_result,
	sync_count, error_count, remark, created_at, updated_at`

// scanProfile は1行をProfileにスキャンする。
func scanProfile(row interface{ Scan(...any) error }) (*model.Profile, error) {
	p := &model.Profile{}
	var lastTokenAt, lastSyncAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.Name, &p.Email, &p.ProxyURL, &p.ProxyEnabled,
		&p.IsActive, &p.IsLoggedIn,
		&p.LastTokenPreview, &lastTokenAt, &lastSyncAt, &p.LastSyncResult,
		&p.SyncCount, &p.ErrorCount, &p.Remark, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastTokenAt.Valid {
		t := lastTokenAt.Time
		p.LastTokenAt = &t
	}
	if lastSyncAt.Valid {
		t := lastSyncAt.Time
		p.LastSyncAt = &t
	}

	return p, nil
}

// FindByID は指定IDのProfileを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByName は名前でProfileを検索する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByName(ctx context.Context, name string) (*model.Profile, error) {
	return r.findOne(ctx, "name = $1", name)
}

// FindByEmail はメールアドレスでProfileを検索する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return r.findOne(ctx, "email = $1", email)
}

func (r *PostgresProfileRepo) findOne(ctx context.Context, where string, arg any) (*model.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM profiles WHERE %s", profileColumns, where), arg)

	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Profileの取得に失敗しました: %w", err)
	}
	return p, nil
}

// ListAll は全Profileを作成順で返す。
func (r *PostgresProfileRepo) ListAll(ctx context.Context) ([]*model.Profile, error) {
	return r.list(ctx, "")
}

// ListActive は有効化されたProfileを作成順で返す。
func (r *PostgresProfileRepo) ListActive(ctx context.Context) ([]*model.Profile, error) {
	return r.list(ctx, "WHERE is_active")
}

// ListLoggedIn はログイン済みかつ有効化されたProfileを作成順で返す。
func (r *PostgresProfileRepo) ListLoggedIn(ctx context.Context) ([]*model.Profile, error) {
	return r.list(ctx, "WHERE is_logged_in AND is_active")
}

func (r *PostgresProfileRepo) list(ctx context.Context, where string) ([]*model.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM profiles %s ORDER BY created_at, id", profileColumns, where))
	if err != nil {
		return nil, fmt.Errorf("Profile一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("Profileのスキャンに失敗しました: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Profile一覧の走査に失敗しました: %w", err)
	}

	return profiles, nil
}

// Create はProfileを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, name, email, proxy_url, proxy_enabled, is_active,
		        remark, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.Email, p.ProxyURL, p.ProxyEnabled, p.IsActive,
		p.Remark, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Profileの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は指定IDのProfileを部分更新する。
// updateのnilフィールドは変更せず、既存の値を維持する。
func (r *PostgresProfileRepo) Update(ctx context.Context, id string, u *model.ProfileUpdate) error {
	var sets []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Email != nil {
		add("email", *u.Email)
	}
	if u.Remark != nil {
		add("remark", *u.Remark)
	}
	if u.IsActive != nil {
		add("is_active", *u.IsActive)
	}
	if u.IsLoggedIn != nil {
		add("is_logged_in", *u.IsLoggedIn)
	}
	if u.ProxyURL != nil {
		add("proxy_url", *u.ProxyURL)
	}
	if u.ProxyEnabled != nil {
		add("proxy_enabled", *u.ProxyEnabled)
	}
	if u.LastTokenPreview != nil {
		add("last_token_preview", *u.LastTokenPreview)
	}
	if u.LastTokenAt != nil {
		add("last_token_at", *u.LastTokenAt)
	}
	if u.LastSyncAt != nil {
		add("last_sync_at", *u.LastSyncAt)
	}
	if u.LastSyncResult != nil {
		add("last_sync_result", *u.LastSyncResult)
	}
	if u.SyncCount != nil {
		add("sync_count", *u.SyncCount)
	}
	if u.ErrorCount != nil {
		add("error_count", *u.ErrorCount)
	}

	if len(sets) == 0 {
		return nil
	}

	add("updated_at", time.Now())
	args = append(args, id)

	query := fmt.Sprintf("UPDATE profiles SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("Profileの更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("更新対象のProfileが存在しません: %s", id)
	}

	return nil
}

// Delete は指定IDのProfileを削除する。
func (r *PostgresProfileRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM profiles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("Profileの削除に失敗しました: %w", err)
	}
	return nil
}
