package batch

import (
	"context"
	"testing"

	"github.com/mirrorkit/lsky-mirror/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueReferencesID(t *testing.T) {
	assert.True(t, valueReferencesID("42", 42))
	assert.True(t, valueReferencesID(" 42 ", 42))
	assert.True(t, valueReferencesID(`a:1:{s:4:"full";i:42;}`, 42))
	assert.True(t, valueReferencesID(`s:2:"42"`, 42))
	assert.True(t, valueReferencesID(`{"attachment_id":"42"}`, 42))

	assert.False(t, valueReferencesID("420", 42))
	assert.False(t, valueReferencesID("i:420;", 42))
	assert.False(t, valueReferencesID("", 42))
}

func TestIsAvatarAttachmentByBasename(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.InsertAttachment(ctx, store.Attachment{
		FilePath: "/uploads/2024/avatar-bob.jpg",
		MimeType: "image/jpeg",
		GUIDURL:  "https://blog.example.com/uploads/2024/avatar-bob.jpg",
	})
	require.NoError(t, err)

	userID, err := st.InsertUser(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, st.SetUserMeta(ctx, userID, "avatar", "https://blog.example.com/uploads/2024/avatar-bob.jpg"))

	att, ok, err := st.GetAttachment(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	isAvatar, err := isAvatarAttachment(ctx, st, att)
	require.NoError(t, err)
	assert.True(t, isAvatar)
}

func TestIsAvatarAttachmentNoUserMeta(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	isAvatar, err := isAvatarAttachment(ctx, st, store.Attachment{
		ID:       1,
		FilePath: "/uploads/plain.jpg",
	})
	require.NoError(t, err)
	assert.False(t, isAvatar)
}

func TestIsAvatarAttachmentUnrelatedMeta(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	userID, err := st.InsertUser(ctx, "carol")
	require.NoError(t, err)
	require.NoError(t, st.SetUserMeta(ctx, userID, "profile_picture", "https://cdn.example.com/other.png"))

	isAvatar, err := isAvatarAttachment(ctx, st, store.Attachment{
		ID:       7,
		FilePath: "/uploads/unrelated.jpg",
		GUIDURL:  "https://blog.example.com/uploads/unrelated.jpg",
	})
	require.NoError(t, err)
	assert.False(t, isAvatar)
}
