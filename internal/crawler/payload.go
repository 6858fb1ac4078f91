package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexInt accepts a JSON number or a quoted number. The platform is not
// consistent about which one it sends for ids, cursors and counters.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse integer %q: %w", s, err)
	}
	*f = flexInt(int64(fl))
	return nil
}

// flexString accepts a JSON string or a bare number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("parse string: %w", err)
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("parse string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// flexBool follows JSON truthiness: false, null, zero, "", "0", "false" and
// empty containers are false, everything else is true. It never fails.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	switch s {
	case "false", "null", `""`, `"0"`, `"false"`, "[]", "{}":
		*f = false
		return nil
	}
	if n, err := strconv.ParseFloat(strings.Trim(s, `"`), 64); err == nil {
		*f = n != 0
		return nil
	}
	*f = true
	return nil
}

type videoPayload struct {
	ID           flexString `json:"id"`
	Desc         string     `json:"desc"`
	CreateTime   flexInt    `json:"create_time"`
	DiggCount    flexInt    `json:"digg_count"`
	ShareCount   flexInt    `json:"share_count"`
	CommentCount flexInt    `json:"comment_count"`
	PlayCount    flexInt    `json:"play_count"`
	CollectCount flexInt    `json:"collect_count"`
	AuthorID     flexString `json:"author_id"`
	Author       string     `json:"author"`
}

func (p videoPayload) video(videoID string) Video {
	return Video{
		VideoID:      videoID,
		Description:  p.Desc,
		CreateTime:   int64(p.CreateTime),
		DiggCount:    int64(p.DiggCount),
		ShareCount:   int64(p.ShareCount),
		CommentCount: int64(p.CommentCount),
		PlayCount:    int64(p.PlayCount),
		CollectCount: int64(p.CollectCount),
		AuthorID:     string(p.AuthorID),
		AuthorName:   p.Author,
	}
}

type userPayload struct {
	SecUID         string  `json:"sec_uid"`
	UniqueID       string  `json:"unique_id"`
	Nickname       string  `json:"nickname"`
	FollowerCount  flexInt `json:"follower_count"`
	FollowingCount flexInt `json:"following_count"`
	LikesCount     flexInt `json:"likes_count"`
	VideoCount     flexInt `json:"video_count"`
}

func (p userPayload) user(secUID string) User {
	if secUID == "" {
		secUID = p.SecUID
	}
	return User{
		SecUID:         secUID,
		Username:       p.UniqueID,
		Nickname:       p.Nickname,
		FollowerCount:  int64(p.FollowerCount),
		FollowingCount: int64(p.FollowingCount),
		LikesCount:     int64(p.LikesCount),
		VideoCount:     int64(p.VideoCount),
	}
}

type videoEnvelope struct {
	ItemInfo *videoPayload `json:"item_info"`
}

type userEnvelope struct {
	UserInfo *userPayload `json:"user_info"`
}

// listingEnvelope defers item and cursor decoding so one malformed value
// does not discard the rest of the page.
type listingEnvelope struct {
	Items   *[]json.RawMessage `json:"items"`
	Cursor  json.RawMessage    `json:"cursor"`
	HasMore flexBool           `json:"has_more"`
}

// decodeVideo extracts item_info from a detail response.
func decodeVideo(videoID string, body []byte) Outcome[Video] {
	var env videoEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Absent[Video](ReasonDecode)
	}
	if env.ItemInfo == nil {
		return Absent[Video](ReasonShape)
	}
	return Found(env.ItemInfo.video(videoID))
}

// decodeUser extracts user_info from a detail response. secUID may be empty
// when the lookup was by username; the payload's own sec_uid is used then.
func decodeUser(secUID string, body []byte) Outcome[User] {
	var env userEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Absent[User](ReasonDecode)
	}
	if env.UserInfo == nil {
		return Absent[User](ReasonShape)
	}
	return Found(env.UserInfo.user(secUID))
}

// decodePage decodes one listing response. Items that do not decode or have
// no id are counted in Skipped and dropped. A cursor that is not a number is
// treated as missing.
func decodePage(body []byte) Outcome[Page] {
	var env listingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Absent[Page](ReasonDecode)
	}
	if env.Items == nil {
		return Absent[Page](ReasonShape)
	}
	page := Page{HasMore: bool(env.HasMore)}
	for _, raw := range *env.Items {
		var item videoPayload
		if err := json.Unmarshal(raw, &item); err != nil || item.ID == "" {
			page.Skipped++
			continue
		}
		page.Items = append(page.Items, item.video(string(item.ID)))
	}
	if len(env.Cursor) > 0 && !bytes.Equal(env.Cursor, []byte("null")) {
		var cursor flexInt
		if err := json.Unmarshal(env.Cursor, &cursor); err == nil {
			page.Cursor = int64(cursor)
			page.HasCursor = true
		}
	}
	return Found(page)
}
