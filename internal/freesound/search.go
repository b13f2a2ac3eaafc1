package freesound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// Search fetches a single page (1-based) of text search results.
func (c *Client) Search(ctx context.Context, params SearchParams, page int) (*SearchPage, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("query", params.Query)
	if params.Filter != "" {
		q.Set("filter", params.Filter)
	}
	if params.Sort != "" {
		q.Set("sort", params.Sort)
	}
	q.Set("fields", params.fields())
	q.Set("page_size", strconv.Itoa(params.pageSize()))
	q.Set("page", strconv.Itoa(page))

	return c.searchURL(ctx, "/search/text/?"+q.Encode())
}

func (c *Client) searchURL(ctx context.Context, u string) (*SearchPage, error) {
	resp, err := c.get(ctx, u, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page SearchPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding search page: %w", err)
	}
	return &page, nil
}

// SearchAll walks every result page in order, calling fn for each sound. It
// stops when the results run out, params.MaxResults sounds have been passed to
// fn, or fn returns ErrStop. It returns the number of sounds passed to fn.
func (c *Client) SearchAll(ctx context.Context, params SearchParams, fn func(Sound) error) (int, error) {
	page, err := c.Search(ctx, params, 1)
	if err != nil {
		return 0, err
	}

	seen := 0
	pageNum := 1
	for {
		c.log.Debugf("freesound: page %d, %d results (total %d)", pageNum, len(page.Results), page.Count)
		for _, s := range page.Results {
			if params.MaxResults > 0 && seen >= params.MaxResults {
				return seen, nil
			}
			seen++
			if err := fn(s); err != nil {
				if errors.Is(err, ErrStop) {
					return seen, nil
				}
				return seen, err
			}
		}
		if params.MaxResults > 0 && seen >= params.MaxResults {
			return seen, nil
		}
		if !page.HasNext() || len(page.Results) == 0 {
			return seen, nil
		}

		pageNum++
		if page, err = c.searchURL(ctx, *page.Next); err != nil {
			return seen, fmt.Errorf("page %d: %w", pageNum, err)
		}
	}
}

// GetSound fetches a single sound instance.
func (c *Client) GetSound(ctx context.Context, id int) (*Sound, error) {
	q := url.Values{}
	q.Set("fields", (SearchParams{}).fields())

	resp, err := c.get(ctx, fmt.Sprintf("/sounds/%d/?%s", id, q.Encode()), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var s Sound
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding sound %d: %w", id, err)
	}
	return &s, nil
}
