package lsky

import "encoding/json"

// apiEnvelope is the response wrapper every Lsky Pro v1 endpoint returns.
type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type uploadData struct {
	ID       int64   `json:"id"`
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	Pathname string  `json:"pathname"`
	Size     float64 `json:"size"`
	Links    struct {
		URL          string `json:"url"`
		ThumbnailURL string `json:"thumbnail_url"`
	} `json:"links"`
}

// UploadResult carries what the engines persist after a successful upload.
type UploadResult struct {
	URL     string
	PhotoID int64
	Key     string
}

type Profile struct {
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Capacity     float64 `json:"capacity"`
	UsedCapacity float64 `json:"used_capacity"`
	ImageNum     int     `json:"image_num"`
	AlbumNum     int     `json:"album_num"`
}

type Album struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Intro    string `json:"intro"`
	ImageNum int    `json:"image_num"`
}

type albumListData struct {
	CurrentPage int     `json:"current_page"`
	LastPage    int     `json:"last_page"`
	Data        []Album `json:"data"`
}

// AlbumPage is one page of the remote host's album listing.
type AlbumPage struct {
	CurrentPage int
	LastPage    int
	Albums      []Album
}
