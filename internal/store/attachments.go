package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// eligibleAttachmentFilter selects image attachments that carry no terminal
// flag: no remote URL, not classified restricted, not marked for skipping.
// The remaining-count query and the page query must use the same filter so
// the completed signal and pagination agree.
const eligibleAttachmentFilter = `
	a.mime_type LIKE 'image/%'
	AND NOT EXISTS (
		SELECT 1 FROM attachment_meta m
		WHERE m.attachment_id = a.id
		AND (
			(m.key = 'remote_url' AND m.value != '')
			OR (m.key = 'type' AND m.value = '1')
			OR (m.key = 'batch_skip' AND m.value = '1')
		)
	)`

func (s *Store) InsertAttachment(ctx context.Context, attachment Attachment) (int64, error) {
	createdAt := attachment.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO attachments (file_path, mime_type, guid_url, created_at) VALUES (?, ?, ?, ?)`,
		attachment.FilePath,
		attachment.MimeType,
		attachment.GUIDURL,
		createdAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetAttachment(ctx context.Context, id int64) (Attachment, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, file_path, mime_type, guid_url, created_at FROM attachments WHERE id = ?`,
		id,
	)
	var ret Attachment
	if err := row.Scan(&ret.ID, &ret.FilePath, &ret.MimeType, &ret.GUIDURL, &ret.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Attachment{}, false, nil
		}
		return Attachment{}, false, err
	}
	return ret, true, nil
}

// AttachmentMeta returns all metadata flags for one attachment.
func (s *Store) AttachmentMeta(ctx context.Context, id int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key, value FROM attachment_meta WHERE attachment_id = ?`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		ret[key] = value
	}
	return ret, rows.Err()
}

func (s *Store) GetAttachmentMeta(ctx context.Context, id int64, key string) (string, bool, error) {
	return s.metaValue(ctx, "attachment_meta", "attachment_id", id, key)
}

func (s *Store) SetAttachmentMeta(ctx context.Context, id int64, key, value string) error {
	return s.setMetaValue(ctx, "attachment_meta", "attachment_id", id, key, value)
}

func (s *Store) DeleteAttachmentMeta(ctx context.Context, id int64, key string) error {
	return s.deleteMetaValue(ctx, "attachment_meta", "attachment_id", id, key)
}

// EligibleAttachments returns the next page of attachments that still need
// classification or migration, ordered by ascending ID.
func (s *Store) EligibleAttachments(ctx context.Context, limit int) ([]Attachment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT a.id, a.file_path, a.mime_type, a.guid_url, a.created_at
		 FROM attachments a
		 WHERE `+eligibleAttachmentFilter+`
		 ORDER BY a.id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]Attachment, 0, limit)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.FilePath, &item.MimeType, &item.GUIDURL, &item.CreatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

// CountEligibleAttachments returns the remaining-work count for the
// attachment corpus, using the same filter as EligibleAttachments.
func (s *Store) CountEligibleAttachments(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM attachments a WHERE `+eligibleAttachmentFilter,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountImageAttachments returns the full image corpus size, terminal rows included.
func (s *Store) CountImageAttachments(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attachments WHERE mime_type LIKE 'image/%'`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ResetAttachmentMeta deletes every migration flag the attachment engine
// writes, making all attachments eligible again. Returns rows deleted.
func (s *Store) ResetAttachmentMeta(ctx context.Context) (int64, error) {
	keys := []string{
		MetaRemoteURL,
		MetaRemotePhotoID,
		MetaType,
		MetaBatchSkip,
		MetaIsAvatar,
		MetaSkipReason,
	}
	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(keys))
	for _, key := range keys {
		args = append(args, key)
	}
	res, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf(`DELETE FROM attachment_meta WHERE key IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) InsertUser(ctx context.Context, login string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (login) VALUES (?)`, login)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) SetUserMeta(ctx context.Context, userID int64, key, value string) error {
	return s.setMetaValue(ctx, "user_meta", "user_id", userID, key, value)
}

// AvatarMetaValues collects every user-meta value stored under a known
// avatar-plugin key, across all users. The avatar heuristic scans these for
// references to an attachment.
func (s *Store) AvatarMetaValues(ctx context.Context) ([]string, error) {
	placeholders := strings.Repeat("?,", len(AvatarMetaKeys))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(AvatarMetaKeys))
	for _, key := range AvatarMetaKeys {
		args = append(args, key)
	}
	rows, err := s.db.QueryContext(
		ctx,
		fmt.Sprintf(`SELECT value FROM user_meta WHERE key IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		ret = append(ret, value)
	}
	return ret, rows.Err()
}
