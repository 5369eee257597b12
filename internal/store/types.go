package store

import "time"

// Attachment metadata keys. The priority chain the attachment engine walks
// lives in these flags; a key is absent until an engine writes it.
const (
	MetaIsAvatar      = "is_avatar"
	MetaBatchSkip     = "batch_skip"
	MetaType          = "type"
	MetaRemoteURL     = "remote_url"
	MetaRemotePhotoID = "remote_photo_id"
	MetaSkipReason    = "skip_reason"
)

// Post metadata keys.
const (
	MetaMirrorDone   = "mirror_done"
	MetaMirrorFailed = "mirror_failed"
)

// Values for MetaType.
const (
	TypeOrdinary   = "0"
	TypeRestricted = "1"
)

// AvatarMetaKeys is the fixed set of user-meta keys known avatar plugins
// store attachment references under.
var AvatarMetaKeys = []string{
	"wp_user_avatar",
	"simple_local_avatar",
	"avatar",
	"user_avatar",
	"user_avatar_id",
	"profile_picture",
	"profile_picture_id",
}

type Attachment struct {
	ID        int64     `json:"id"`
	FilePath  string    `json:"file_path"`
	MimeType  string    `json:"mime_type"`
	GUIDURL   string    `json:"guid_url"`
	CreatedAt time.Time `json:"created_at"`
}

type Post struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ModifiedAt  time.Time `json:"modified_at"`
	ModifiedGMT time.Time `json:"modified_gmt"`
}

type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}
