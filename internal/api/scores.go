package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/joltkit/jolt/internal/wire"
	"github.com/tidwall/gjson"
)

// ScoreQuery selects scores to fetch. Zero values leave the platform
// defaults in place (10 scores from the primary table, all users).
type ScoreQuery struct {
	Limit      int
	TableID    int
	UserScoped bool
}

// NewScore is a score to submit. Guest submits a guest score instead of one
// for the configured user.
type NewScore struct {
	Score     string
	Sort      int64
	TableID   int
	ExtraData string
	Guest     string
}

// FetchScores returns the scores matching query.
func (c *Client) FetchScores(ctx context.Context, query ScoreQuery) ([]Score, error) {
	params, err := c.scopedParams(query.UserScoped)
	if err != nil {
		return nil, err
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.TableID > 0 {
		params.Set("table_id", strconv.Itoa(query.TableID))
	}
	params.Set(paramFormat, "json")

	body, err := c.Call(ctx, pathScoresFetch, params)
	if err != nil {
		return nil, fmt.Errorf("fetch scores: %w", err)
	}
	response, err := wire.DecodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("fetch scores: %w", err)
	}

	entries := response.Get("scores").Array()
	scores := make([]Score, 0, len(entries))
	for _, entry := range entries {
		scores = append(scores, scoreFromJSON(entry))
	}
	return scores, nil
}

// AddScore submits a score for the configured user, or for the guest name.
func (c *Client) AddScore(ctx context.Context, score NewScore) error {
	if strings.TrimSpace(score.Score) == "" {
		return errors.New("score must not be empty")
	}

	params := url.Values{}
	if guest := strings.TrimSpace(score.Guest); guest != "" {
		params.Set("guest", guest)
	} else {
		userParams, err := c.userParams()
		if err != nil {
			return err
		}
		params = userParams
	}
	params.Set("score", score.Score)
	params.Set("sort", strconv.FormatInt(score.Sort, 10))
	if score.TableID > 0 {
		params.Set("table_id", strconv.Itoa(score.TableID))
	}
	if score.ExtraData != "" {
		params.Set("extra_data", score.ExtraData)
	}

	if _, err := c.Keypair(ctx, pathScoresAdd, params); err != nil {
		return fmt.Errorf("add score: %w", err)
	}
	return nil
}

// ScoreTables lists the game's high score tables.
func (c *Client) ScoreTables(ctx context.Context) ([]ScoreTable, error) {
	records, err := c.KeypairRecords(ctx, pathScoreTables, url.Values{}, "id")
	if err != nil {
		return nil, fmt.Errorf("fetch score tables: %w", err)
	}

	tables := make([]ScoreTable, 0, len(records))
	for _, record := range records {
		id, err := parseID("id", record["id"])
		if err != nil {
			return nil, err
		}
		tables = append(tables, ScoreTable{
			ID:          id,
			Name:        record["name"],
			Description: record["description"],
			Primary:     record["primary"] == "1" || record["primary"] == "true",
		})
	}
	return tables, nil
}

func scoreFromJSON(entry gjson.Result) Score {
	return Score{
		Score:     entry.Get("score").String(),
		Sort:      entry.Get("sort").Int(),
		ExtraData: entry.Get("extra_data").String(),
		User:      entry.Get("user").String(),
		UserID:    entry.Get("user_id").String(),
		Guest:     entry.Get("guest").String(),
		Stored:    entry.Get("stored").String(),
	}
}
