package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kittclouds/nodegraph/pkg/graph"
	"github.com/kittclouds/nodegraph/pkg/resource"
)

// TweetArchivePrefix starts the tweet.js file of a Twitter data export.
const TweetArchivePrefix = "window.YTD.tweet.part0 = "

type archivedTweet struct {
	Tweet struct {
		ID                string `json:"id"`
		CreatedAt         string `json:"created_at"`
		FullText          string `json:"full_text"`
		InReplyToStatusID string `json:"in_reply_to_status_id"`
	} `json:"tweet"`
}

func initTweetUpload(c *resource.Construction) (*Exports, error) {
	g, err := GraphOf(c.Imports.Get("graph"))
	if err != nil {
		return nil, err
	}
	return &Exports{Methods: map[string]resource.Method{
		"init": func(ctx context.Context, args ...any) (any, error) {
			return "Upload the tweet.js file of a Twitter data export, with the account's username.", nil
		},
		"upload": func(ctx context.Context, args ...any) (any, error) {
			text, err := arg[string](args, 0, "text")
			if err != nil {
				return nil, err
			}
			user, err := arg[string](args, 1, "user")
			if err != nil {
				return nil, err
			}
			return UploadTweets(ctx, g, text, user)
		},
	}}, nil
}

// ParseTweetArchive turns the contents of a tweet.js export into Tweet
// nodes posted by user. The nodes carry no id.
func ParseTweetArchive(text, user string) ([]*graph.Node, error) {
	if user == "" {
		return nil, fmt.Errorf("%w: a username is required", ErrBadArgument)
	}
	_, body, ok := strings.Cut(text, TweetArchivePrefix)
	body = strings.TrimSuffix(strings.TrimSpace(body), ";")
	if !ok || body == "" {
		return nil, fmt.Errorf("%w: unknown formatting in tweet.js", ErrBadArgument)
	}

	var raw []archivedTweet
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tweet.js: %w", err)
	}

	nodes := make([]*graph.Node, 0, len(raw))
	for _, r := range raw {
		tw := r.Tweet
		created, err := time.Parse(time.RubyDate, tw.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse time of tweet %s: %w", tw.ID, err)
		}
		nodes = append(nodes, &graph.Node{
			Type:  TypeTweet,
			Links: []string{},
			Props: map[string]any{
				"tweetId": tw.ID,
				"time":    float64(created.UnixMilli()),
				"text":    tw.FullText,
				"user":    user,
				"replyId": tw.InReplyToStatusID,
			},
		})
	}
	return nodes, nil
}

// UploadTweets parses a tweet.js export and saves every tweet under a fresh id.
func UploadTweets(ctx context.Context, g *GraphLibrary, text, user string) ([]*graph.Node, error) {
	nodes, err := ParseTweetArchive(text, user)
	if err != nil {
		return nil, err
	}
	return g.SaveNodes(ctx, nodes)
}
