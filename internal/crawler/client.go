package crawler

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultBaseURL is the web origin the API paths are resolved against.
const DefaultBaseURL = "https://www.tiktok.com"

// Endpoint names, also used as metric labels.
const (
	EndpointVideoDetail = "video_detail"
	EndpointUserDetail  = "user_detail"
	EndpointUserVideos  = "user_videos"
)

const (
	videoDetailPath = "/api/item/detail/"
	userDetailPath  = "/api/user/detail/"
	userVideosPath  = "/api/post/item_list/"
)

// Client wraps the platform's JSON endpoints. Every method returns an
// Outcome; nothing here retries.
type Client struct {
	fetcher Fetcher
	baseURL string
	archive *archiver
	logger  *zap.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another origin (tests, mirrors).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithArchive stores the raw body of every successful detail response.
func WithArchive(store BlobStore, prefix string, clock Clock) ClientOption {
	return func(c *Client) {
		if store != nil {
			c.archive = newArchiver(store, prefix, clock)
		}
	}
}

// NewClient builds a Client on top of fetcher.
func NewClient(fetcher Fetcher, logger *zap.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		fetcher: fetcher,
		baseURL: DefaultBaseURL,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.archive != nil {
		c.archive.logger = logger
	}
	return c
}

// VideoDetail fetches one video's item_info.
func (c *Client) VideoDetail(ctx context.Context, videoID string) Outcome[Video] {
	if videoID == "" {
		return Absent[Video](ReasonInvalidInput)
	}
	body := c.fetcher.Fetch(ctx, Request{
		Endpoint: EndpointVideoDetail,
		URL:      c.baseURL + videoDetailPath,
		Query:    Query{{Key: "item_id", Value: videoID}},
		Sign:     true,
	})
	return mapOutcome(body, func(b []byte) Outcome[Video] {
		out := decodeVideo(videoID, b)
		if out.OK() {
			c.archive.put(ctx, "videos", videoID, b)
		}
		return out
	})
}

// UserDetail fetches one account's user_info by sec_uid.
func (c *Client) UserDetail(ctx context.Context, secUID string) Outcome[User] {
	if secUID == "" {
		return Absent[User](ReasonInvalidInput)
	}
	return c.userDetail(ctx, secUID, Query{{Key: "sec_user_id", Value: secUID}})
}

// UserByName fetches one account's user_info by its unique username.
func (c *Client) UserByName(ctx context.Context, username string) Outcome[User] {
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return Absent[User](ReasonInvalidInput)
	}
	return c.userDetail(ctx, "", Query{{Key: "unique_id", Value: username}})
}

func (c *Client) userDetail(ctx context.Context, secUID string, query Query) Outcome[User] {
	body := c.fetcher.Fetch(ctx, Request{
		Endpoint: EndpointUserDetail,
		URL:      c.baseURL + userDetailPath,
		Query:    query,
		Sign:     true,
	})
	return mapOutcome(body, func(b []byte) Outcome[User] {
		out := decodeUser(secUID, b)
		if u, ok := out.Get(); ok && u.SecUID != "" {
			c.archive.put(ctx, "users", u.SecUID, b)
		}
		return out
	})
}

// UserVideosPage fetches one page of an account's video listing.
func (c *Client) UserVideosPage(ctx context.Context, secUID string, count int, cursor int64) Outcome[Page] {
	if secUID == "" {
		return Absent[Page](ReasonInvalidInput)
	}
	body := c.fetcher.Fetch(ctx, Request{
		Endpoint: EndpointUserVideos,
		URL:      c.baseURL + userVideosPath,
		Query: Query{
			{Key: "sec_user_id", Value: secUID},
			{Key: "count", Value: strconv.Itoa(count)},
			{Key: "cursor", Value: strconv.FormatInt(cursor, 10)},
		},
		Sign: true,
	})
	return mapOutcome(body, decodePage)
}

// ExtractVideoID returns the numeric id of a video share link. Short links
// are resolved through their redirect first.
func (c *Client) ExtractVideoID(ctx context.Context, shareURL string) Outcome[string] {
	resolved := c.resolveShortLink(ctx, shareURL)
	return mapOutcome(resolved, func(link string) Outcome[string] {
		id := videoIDFromURL(link)
		if id == "" {
			return Absent[string](ReasonInvalidInput)
		}
		return Found(id)
	})
}

// ExtractSecUID returns the sec_uid of the account a profile link points at.
// It costs one username lookup, plus one redirect for short links.
func (c *Client) ExtractSecUID(ctx context.Context, shareURL string) Outcome[string] {
	return mapOutcome(c.resolveShortLink(ctx, shareURL), func(link string) Outcome[string] {
		return c.secUIDFromLink(ctx, link)
	})
}

// ResolveShareLink identifies the video or account a share link points at.
// Short links are followed once; a link without a video id costs one
// username lookup.
func (c *Client) ResolveShareLink(ctx context.Context, shareURL string) Outcome[ShareTarget] {
	return mapOutcome(c.resolveShortLink(ctx, shareURL), func(link string) Outcome[ShareTarget] {
		if id := videoIDFromURL(link); id != "" {
			return Found(ShareTarget{ResolvedURL: link, VideoID: id})
		}
		return mapOutcome(c.secUIDFromLink(ctx, link), func(secUID string) Outcome[ShareTarget] {
			return Found(ShareTarget{ResolvedURL: link, SecUID: secUID})
		})
	})
}

func (c *Client) secUIDFromLink(ctx context.Context, link string) Outcome[string] {
	username := usernameFromURL(link)
	if username == "" {
		return Absent[string](ReasonInvalidInput)
	}
	return mapOutcome(c.UserByName(ctx, username), func(u User) Outcome[string] {
		if u.SecUID == "" {
			return Absent[string](ReasonShape)
		}
		return Found(u.SecUID)
	})
}

func (c *Client) resolveShortLink(ctx context.Context, shareURL string) Outcome[string] {
	shareURL = strings.TrimSpace(shareURL)
	if shareURL == "" {
		return Absent[string](ReasonInvalidInput)
	}
	if !isShortLink(shareURL) {
		return Found(shareURL)
	}
	out := c.fetcher.Resolve(ctx, shareURL)
	if !out.OK() {
		c.logger.Warn("short link not resolved",
			zap.String("url", shareURL),
			zap.String("reason", string(out.Reason())),
		)
	}
	return out
}

func isShortLink(link string) bool {
	host := hostOf(link)
	return strings.HasPrefix(host, "vt.") || strings.HasPrefix(host, "vm.")
}

func hostOf(link string) string {
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// videoIDFromURL returns the path segment after "/video/".
func videoIDFromURL(link string) string {
	_, rest, ok := strings.Cut(link, "/video/")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "?")
	id, _, _ = strings.Cut(id, "/")
	id, _, _ = strings.Cut(id, "#")
	if id == "" || strings.Trim(id, "0123456789") != "" {
		return ""
	}
	return id
}

// usernameFromURL returns the segment after '@'.
func usernameFromURL(link string) string {
	_, rest, ok := strings.Cut(link, "@")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	name, _, _ = strings.Cut(name, "?")
	return name
}
