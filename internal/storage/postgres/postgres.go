package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/strandapp/strand-service/internal/config"
	"github.com/strandapp/strand-service/internal/media"
	"github.com/strandapp/strand-service/internal/types"
)

type Postgres struct {
	Db *sql.DB
}

func NewPostgres(cfg *config.Config) (*Postgres, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.PGSQL.Host, cfg.PGSQL.Port, cfg.PGSQL.User, cfg.PGSQL.Password, cfg.PGSQL.DBName, cfg.PGSQL.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	log.Println("Connected to Postgres database")

	pg := &Postgres{Db: db}
	if err := pg.CreateTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return pg, nil
}

func (p *Postgres) CreateTables() error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			joined_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (group_id, user_id)
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS media_assets (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			object_key VARCHAR(512) NOT NULL,
			storage_url TEXT NOT NULL,
			thumbnail_url TEXT NOT NULL,
			file_name VARCHAR(512) NOT NULL,
			byte_size BIGINT NOT NULL CHECK (byte_size > 0),
			mime_type VARCHAR(255) NOT NULL,
			media_kind VARCHAR(16) NOT NULL CHECK (media_kind IN ('image', 'video', 'audio')),
			duration_seconds INTEGER,
			width_px INTEGER,
			height_px INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			author_id TEXT NOT NULL,
			text_content TEXT,
			primary_media_id TEXT REFERENCES media_assets(id),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			edited_at TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS post_media_links (
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			media_id TEXT NOT NULL REFERENCES media_assets(id) ON DELETE CASCADE,
			display_order INTEGER NOT NULL,
			PRIMARY KEY (post_id, media_id)
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS group_shares (
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			shared_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (post_id, group_id)
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS push_targets (
			user_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			p256dh_key TEXT NOT NULL,
			auth_key TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, endpoint)
		);
		`,
	}

	for _, q := range queries {
		if _, err := p.Db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

func (p *Postgres) CreateMediaAsset(ctx context.Context, asset *media.Asset) error {
	asset.ID = uuid.NewString()
	asset.CreatedAt = time.Now().UTC()
	if asset.ThumbnailURL == "" {
		asset.ThumbnailURL = asset.StorageURL
	}

	query := `
	INSERT INTO media_assets (id, owner_id, object_key, storage_url, thumbnail_url, file_name,
		byte_size, mime_type, media_kind, duration_seconds, width_px, height_px, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := p.Db.ExecContext(ctx, query, asset.ID, asset.OwnerID, asset.ObjectKey,
		asset.StorageURL, asset.ThumbnailURL, asset.FileName, asset.ByteSize,
		asset.MimeType, string(asset.Kind), asset.DurationSeconds,
		asset.WidthPx, asset.HeightPx, asset.CreatedAt)
	return err
}

func (p *Postgres) GetMediaAsset(ctx context.Context, id string) (*media.Asset, error) {
	query := `
	SELECT id, owner_id, object_key, storage_url, thumbnail_url, file_name,
		byte_size, mime_type, media_kind, duration_seconds, width_px, height_px, created_at
	FROM media_assets WHERE id = $1
	`

	var a media.Asset
	err := p.Db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.OwnerID, &a.ObjectKey,
		&a.StorageURL, &a.ThumbnailURL, &a.FileName, &a.ByteSize, &a.MimeType,
		&a.Kind, &a.DurationSeconds, &a.WidthPx, &a.HeightPx, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *Postgres) AssetExistsByObjectKey(ctx context.Context, objectKey string) (bool, error) {
	var exists bool
	err := p.Db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM media_assets WHERE object_key = $1)`, objectKey).Scan(&exists)
	return exists, err
}

func (p *Postgres) CreatePost(ctx context.Context, post *types.Post) error {
	post.ID = uuid.NewString()
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	query := `
	INSERT INTO posts (id, author_id, text_content, primary_media_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := p.Db.ExecContext(ctx, query, post.ID, post.AuthorID,
		sql.NullString{String: post.TextContent, Valid: post.TextContent != ""},
		post.PrimaryMediaID, post.CreatedAt, post.UpdatedAt)
	return err
}

func (p *Postgres) GetPost(ctx context.Context, id string) (*types.Post, error) {
	query := `
	SELECT id, author_id, COALESCE(text_content, ''), primary_media_id, created_at, updated_at, edited_at
	FROM posts WHERE id = $1
	`

	var post types.Post
	err := p.Db.QueryRowContext(ctx, query, id).Scan(&post.ID, &post.AuthorID,
		&post.TextContent, &post.PrimaryMediaID, &post.CreatedAt, &post.UpdatedAt, &post.EditedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (p *Postgres) GetPostMedia(ctx context.Context, postID string) ([]media.Asset, error) {
	query := `
	SELECT m.id, m.owner_id, m.object_key, m.storage_url, m.thumbnail_url, m.file_name,
		m.byte_size, m.mime_type, m.media_kind, m.duration_seconds, m.width_px, m.height_px, m.created_at
	FROM media_assets m
	JOIN post_media_links l ON l.media_id = m.id
	WHERE l.post_id = $1
	ORDER BY l.display_order
	`

	rows, err := p.Db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []media.Asset
	for rows.Next() {
		var a media.Asset
		err := rows.Scan(&a.ID, &a.OwnerID, &a.ObjectKey, &a.StorageURL, &a.ThumbnailURL,
			&a.FileName, &a.ByteSize, &a.MimeType, &a.Kind, &a.DurationSeconds,
			&a.WidthPx, &a.HeightPx, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}

	return assets, rows.Err()
}

func (p *Postgres) GetPostGroupIDs(ctx context.Context, postID string) ([]string, error) {
	rows, err := p.Db.QueryContext(ctx,
		`SELECT group_id FROM group_shares WHERE post_id = $1 ORDER BY group_id`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) DeletePost(ctx context.Context, id string) error {
	// Media links and group shares go with the post via ON DELETE CASCADE.
	_, err := p.Db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	return err
}

func (p *Postgres) UserCanViewPost(ctx context.Context, userID, postID string) (bool, error) {
	query := `
	SELECT EXISTS(
		SELECT 1 FROM posts WHERE id = $1 AND author_id = $2
		UNION
		SELECT 1 FROM group_shares gs
		JOIN group_members gm ON gm.group_id = gs.group_id
		WHERE gs.post_id = $1 AND gm.user_id = $2
	)
	`

	var ok bool
	err := p.Db.QueryRowContext(ctx, query, postID, userID).Scan(&ok)
	return ok, err
}

func (p *Postgres) InsertPostMediaLink(ctx context.Context, postID, mediaID string, displayOrder int) error {
	query := `
	INSERT INTO post_media_links (post_id, media_id, display_order)
	VALUES ($1, $2, $3)
	ON CONFLICT (post_id, media_id) DO NOTHING
	`

	_, err := p.Db.ExecContext(ctx, query, postID, mediaID, displayOrder)
	return err
}

func (p *Postgres) InsertGroupShare(ctx context.Context, postID, groupID string) error {
	query := `
	INSERT INTO group_shares (post_id, group_id)
	VALUES ($1, $2)
	ON CONFLICT (post_id, group_id) DO NOTHING
	`

	_, err := p.Db.ExecContext(ctx, query, postID, groupID)
	return err
}

func (p *Postgres) GetMemberGroupIDs(ctx context.Context, userID string, groupIDs []string) ([]string, error) {
	query := `
	SELECT group_id FROM group_members
	WHERE user_id = $1 AND group_id = ANY($2)
	`

	rows, err := p.Db.QueryContext(ctx, query, userID, pq.Array(groupIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) GetGroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	rows, err := p.Db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) GetPushTargetsForGroup(ctx context.Context, groupID string, excludeUserIDs []string) ([]types.PushTarget, error) {
	query := `
	SELECT pt.user_id, pt.endpoint, pt.p256dh_key, pt.auth_key
	FROM push_targets pt
	JOIN group_members gm ON gm.user_id = pt.user_id
	WHERE gm.group_id = $1 AND NOT (pt.user_id = ANY($2))
	`

	if excludeUserIDs == nil {
		excludeUserIDs = []string{}
	}

	rows, err := p.Db.QueryContext(ctx, query, groupID, pq.Array(excludeUserIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []types.PushTarget
	for rows.Next() {
		var t types.PushTarget
		if err := rows.Scan(&t.UserID, &t.Endpoint, &t.P256dhKey, &t.AuthKey); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (p *Postgres) DeletePushTarget(ctx context.Context, userID, endpoint string) error {
	_, err := p.Db.ExecContext(ctx,
		`DELETE FROM push_targets WHERE user_id = $1 AND endpoint = $2`, userID, endpoint)
	return err
}
