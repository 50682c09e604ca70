package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tierguard/internal/platform"
)

type thing[T any] struct {
	Kind string `json:"kind"`
	Data T      `json:"data"`
}

type listing[T any] struct {
	Data struct {
		Children []thing[T] `json:"children"`
	} `json:"data"`
}

type account struct {
	Name         string `json:"name"`
	LinkKarma    int64  `json:"link_karma"`
	CommentKarma int64  `json:"comment_karma"`
}

type moderator struct {
	Name string `json:"name"`
}

type link struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Author     string  `json:"author"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Domain     string  `json:"domain"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
}

func (l link) submission() platform.Submission {
	sec := int64(l.CreatedUTC)
	return platform.Submission{
		ID:        l.ID,
		Author:    l.Author,
		Title:     l.Title,
		Body:      l.Selftext,
		Domain:    l.Domain,
		URL:       l.URL,
		Permalink: l.Permalink,
		CreatedAt: time.Unix(sec, 0).UTC(),
	}
}

type commentResponse struct {
	JSON struct {
		Errors [][]interface{} `json:"errors"`
		Data   struct {
			Things []thing[struct {
				Name string `json:"name"`
			}] `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// Karma returns link plus comment karma.
func (c *Client) Karma(ctx context.Context, identity string) (int64, error) {
	var about thing[account]
	if err := c.do(ctx, http.MethodGet, "/user/"+url.PathEscape(identity)+"/about", nil, nil, &about); err != nil {
		return 0, fmt.Errorf("failed to fetch karma for %s: %w", identity, err)
	}
	return about.Data.LinkKarma + about.Data.CommentKarma, nil
}

// IsModerator checks the community's moderator list, cached for a few minutes.
func (c *Client) IsModerator(ctx context.Context, identity string) (bool, error) {
	mods, ok := c.moderators.Get(c.community)
	if !ok {
		var resp struct {
			Data struct {
				Children []moderator `json:"children"`
			} `json:"data"`
		}
		if err := c.do(ctx, http.MethodGet, "/r/"+c.community+"/about/moderators", nil, nil, &resp); err != nil {
			return false, fmt.Errorf("failed to fetch moderators: %w", err)
		}

		mods = make(map[string]struct{}, len(resp.Data.Children))
		for _, m := range resp.Data.Children {
			mods[strings.ToLower(m.Name)] = struct{}{}
		}
		c.moderators.Add(c.community, mods)
	}

	_, isMod := mods[strings.ToLower(identity)]
	return isMod, nil
}

// Remove removes a submission and attaches modNote as the removal note. A
// failure to attach the note is logged; the removal still counts.
func (c *Client) Remove(ctx context.Context, submissionID string, spam bool, modNote string) error {
	return c.RemoveItem(ctx, fullname(submissionID), spam, modNote)
}

func (c *Client) RemoveItem(ctx context.Context, name string, spam bool, modNote string) error {
	name = fullname(name)
	form := url.Values{
		"id":   {name},
		"spam": {strconv.FormatBool(spam)},
	}
	if err := c.do(ctx, http.MethodPost, "/api/remove", nil, form, nil); err != nil {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}

	if modNote == "" {
		return nil
	}
	// the item is already gone; a missing note must not read as a failed removal
	if err := c.addRemovalNote(ctx, name, modNote); err != nil {
		c.log.WarnwCtx(ctx, "Removed item but failed to add removal note",
			"item", name,
			"error", err,
		)
	}
	return nil
}

func (c *Client) addRemovalNote(ctx context.Context, name, note string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"item_ids":  []string{name},
		"mod_note":  note,
		"reason_id": nil,
	})
	if err != nil {
		return err
	}
	form := url.Values{"json": {string(payload)}}
	return c.do(ctx, http.MethodPost, "/api/v1/modactions/removal_reasons", nil, form, nil)
}

// Reply comments on a submission and, when sticky is set, distinguishes the
// comment and pins it to the top.
func (c *Client) Reply(ctx context.Context, submissionID string, text string, sticky bool) error {
	form := url.Values{
		"thing_id": {fullname(submissionID)},
		"text":     {text},
		"api_type": {"json"},
	}

	var resp commentResponse
	if err := c.do(ctx, http.MethodPost, "/api/comment", nil, form, &resp); err != nil {
		return fmt.Errorf("failed to reply to %s: %w", submissionID, err)
	}
	if len(resp.JSON.Errors) > 0 {
		return fmt.Errorf("failed to reply to %s: %v", submissionID, resp.JSON.Errors)
	}
	if len(resp.JSON.Data.Things) == 0 {
		return fmt.Errorf("failed to reply to %s: no comment returned", submissionID)
	}

	commentName := resp.JSON.Data.Things[0].Data.Name
	distinguish := url.Values{
		"id":       {commentName},
		"how":      {"yes"},
		"sticky":   {strconv.FormatBool(sticky)},
		"api_type": {"json"},
	}
	if err := c.do(ctx, http.MethodPost, "/api/distinguish", nil, distinguish, nil); err != nil {
		return fmt.Errorf("failed to distinguish reply %s: %w", commentName, err)
	}
	return nil
}

func (c *Client) Approve(ctx context.Context, name string) error {
	name = fullname(name)
	if err := c.do(ctx, http.MethodPost, "/api/approve", nil, url.Values{"id": {name}}, nil); err != nil {
		return fmt.Errorf("failed to approve %s: %w", name, err)
	}
	return nil
}

// IgnoreReports approves the item and silences further reports on it.
func (c *Client) IgnoreReports(ctx context.Context, name string) error {
	name = fullname(name)
	if err := c.Approve(ctx, name); err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, "/api/ignore_reports", nil, url.Values{"id": {name}}, nil); err != nil {
		return fmt.Errorf("failed to ignore reports on %s: %w", name, err)
	}
	return nil
}

func (c *Client) Ban(ctx context.Context, req platform.BanRequest) error {
	form := url.Values{
		"type":     {"banned"},
		"name":     {req.Identity},
		"api_type": {"json"},
	}
	if req.Days > 0 {
		form.Set("duration", strconv.Itoa(req.Days))
	}
	if req.Reason != "" {
		form.Set("ban_reason", req.Reason)
	}
	if req.Note != "" {
		form.Set("note", req.Note)
	}
	if req.Message != "" {
		form.Set("ban_message", req.Message)
	}

	if err := c.do(ctx, http.MethodPost, "/r/"+c.community+"/api/friend", nil, form, nil); err != nil {
		return fmt.Errorf("failed to ban %s: %w", req.Identity, err)
	}
	return nil
}

// NewSubmissions returns the newest submissions in the community, newest
// first as the API lists them.
func (c *Client) NewSubmissions(ctx context.Context, limit int) ([]platform.Submission, error) {
	query := url.Values{
		"limit":    {strconv.Itoa(limit)},
		"raw_json": {"1"},
	}

	var resp listing[link]
	if err := c.do(ctx, http.MethodGet, "/r/"+c.community+"/new", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list new submissions: %w", err)
	}

	subs := make([]platform.Submission, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		subs = append(subs, child.Data.submission())
	}
	return subs, nil
}
