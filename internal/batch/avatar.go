package batch

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mirrorkit/lsky-mirror/internal/store"
)

// isAvatarAttachment runs the avatar-detection heuristic: any user's
// avatar-plugin metadata referencing this attachment's ID (exact, serialized
// or JSON-quoted), or failing that, its file basename or public URL as a
// substring. Best effort over loosely-typed storage; evaluated lazily by the
// engine only for rows not already classified.
func isAvatarAttachment(ctx context.Context, st *store.Store, att store.Attachment) (bool, error) {
	values, err := st.AvatarMetaValues(ctx)
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return false, nil
	}

	for _, value := range values {
		if valueReferencesID(value, att.ID) {
			return true, nil
		}
	}

	base := filepath.Base(att.FilePath)
	for _, value := range values {
		if base != "" && base != "." && base != "/" && strings.Contains(value, base) {
			return true, nil
		}
		if att.GUIDURL != "" && strings.Contains(value, att.GUIDURL) {
			return true, nil
		}
	}
	return false, nil
}

func valueReferencesID(value string, id int64) bool {
	idStr := strconv.FormatInt(id, 10)
	if strings.TrimSpace(value) == idStr {
		return true
	}
	// PHP-serialized integer: i:123;
	if strings.Contains(value, "i:"+idStr+";") {
		return true
	}
	// PHP-serialized string: s:3:"123"
	if strings.Contains(value, `:"`+idStr+`"`) {
		return true
	}
	// JSON-quoted: "123"
	if strings.Contains(value, `"`+idStr+`"`) {
		return true
	}
	return false
}
