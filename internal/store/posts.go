package store

import (
	"context"
	"database/sql"
	"time"
)

// eligiblePostFilter selects published posts and pages whose content embeds
// at least one <img> tag and that have not completed a mirror pass yet.
const eligiblePostFilter = `
	p.status = 'publish'
	AND p.kind IN ('post', 'page')
	AND instr(lower(p.content), '<img') > 0
	AND NOT EXISTS (
		SELECT 1 FROM post_meta m
		WHERE m.post_id = p.id AND m.key = 'mirror_done' AND m.value = '1'
	)`

func (s *Store) InsertPost(ctx context.Context, post Post) (int64, error) {
	if post.Kind == "" {
		post.Kind = "post"
	}
	if post.Status == "" {
		post.Status = "publish"
	}
	now := time.Now()
	modifiedAt := post.ModifiedAt
	if modifiedAt.IsZero() {
		modifiedAt = now
	}
	modifiedGMT := post.ModifiedGMT
	if modifiedGMT.IsZero() {
		modifiedGMT = now.UTC()
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO posts (kind, status, title, content, modified_at, modified_gmt)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		post.Kind,
		post.Status,
		post.Title,
		post.Content,
		modifiedAt,
		modifiedGMT,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetPost(ctx context.Context, id int64) (Post, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, kind, status, title, content, modified_at, modified_gmt FROM posts WHERE id = ?`,
		id,
	)
	var ret Post
	if err := row.Scan(&ret.ID, &ret.Kind, &ret.Status, &ret.Title, &ret.Content, &ret.ModifiedAt, &ret.ModifiedGMT); err != nil {
		if err == sql.ErrNoRows {
			return Post{}, false, nil
		}
		return Post{}, false, err
	}
	return ret, true, nil
}

func (s *Store) GetPostMeta(ctx context.Context, id int64, key string) (string, bool, error) {
	return s.metaValue(ctx, "post_meta", "post_id", id, key)
}

func (s *Store) SetPostMeta(ctx context.Context, id int64, key, value string) error {
	return s.setMetaValue(ctx, "post_meta", "post_id", id, key, value)
}

func (s *Store) DeletePostMeta(ctx context.Context, id int64, key string) error {
	return s.deleteMetaValue(ctx, "post_meta", "post_id", id, key)
}

// EligiblePosts returns the next page of posts that still need an image
// mirror pass, ordered by ascending ID.
func (s *Store) EligiblePosts(ctx context.Context, limit int) ([]Post, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT p.id, p.kind, p.status, p.title, p.content, p.modified_at, p.modified_gmt
		 FROM posts p
		 WHERE `+eligiblePostFilter+`
		 ORDER BY p.id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]Post, 0, limit)
	for rows.Next() {
		var item Post
		if err := rows.Scan(&item.ID, &item.Kind, &item.Status, &item.Title, &item.Content, &item.ModifiedAt, &item.ModifiedGMT); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

// CountEligiblePosts returns the remaining-work count for the post corpus,
// using the same filter as EligiblePosts.
func (s *Store) CountEligiblePosts(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts p WHERE `+eligiblePostFilter)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// UpdatePostContent persists rewritten content together with local and UTC
// modification timestamps, and drops any cached rendering of the post.
func (s *Store) UpdatePostContent(ctx context.Context, id int64, content string, now time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE posts SET content = ?, modified_at = ?, modified_gmt = ? WHERE id = ?`,
		content,
		now,
		now.UTC(),
		id,
	)
	if err != nil {
		return err
	}
	s.contentCache.Remove(id)
	return nil
}

// RenderedContent returns a post's content through the LRU cache.
func (s *Store) RenderedContent(ctx context.Context, id int64) (string, bool, error) {
	if content, ok := s.contentCache.Get(id); ok {
		return content, true, nil
	}
	post, found, err := s.GetPost(ctx, id)
	if err != nil || !found {
		return "", found, err
	}
	s.contentCache.Add(id, post.Content)
	return post.Content, true, nil
}

// InvalidateContentCache drops a single cached rendering.
func (s *Store) InvalidateContentCache(id int64) {
	s.contentCache.Remove(id)
}

// PurgeContentCache drops every cached rendering. Used by the reset
// controller so a rerun never serves stale content.
func (s *Store) PurgeContentCache() {
	s.contentCache.Purge()
}

// ResetPostMeta deletes all mirror_done flags, re-queueing every post for the
// next run. mirror_failed flags are left in place. Returns rows deleted.
func (s *Store) ResetPostMeta(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM post_meta WHERE key = ?`, MetaMirrorDone)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
