package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// TrophyQuery filters the trophy list. Achieved nil returns every trophy;
// IDs, when set, wins over Achieved.
type TrophyQuery struct {
	Achieved *bool
	IDs      []int
}

// FetchTrophies returns the configured user's trophies.
func (c *Client) FetchTrophies(ctx context.Context, query TrophyQuery) ([]Trophy, error) {
	params, err := c.userParams()
	if err != nil {
		return nil, err
	}
	switch {
	case len(query.IDs) > 0:
		ids := make([]string, 0, len(query.IDs))
		for _, id := range query.IDs {
			ids = append(ids, strconv.Itoa(id))
		}
		params.Set("trophy_id", strings.Join(ids, ","))
	case query.Achieved != nil:
		params.Set("achieved", strconv.FormatBool(*query.Achieved))
	}

	records, err := c.KeypairRecords(ctx, pathTrophies, params, "id")
	if err != nil {
		return nil, fmt.Errorf("fetch trophies: %w", err)
	}

	trophies := make([]Trophy, 0, len(records))
	for _, record := range records {
		id, err := parseID("id", record["id"])
		if err != nil {
			return nil, err
		}
		trophies = append(trophies, Trophy{
			ID:          id,
			Title:       record["title"],
			Description: record["description"],
			Difficulty:  parseDifficulty(record["difficulty"]),
			ImageURL:    record["image_url"],
			Achieved:    parseAchieved(record["achieved"]),
		})
	}
	return trophies, nil
}

// AwardTrophy marks the trophy as achieved by the configured user.
func (c *Client) AwardTrophy(ctx context.Context, trophyID int) error {
	if trophyID <= 0 {
		return fmt.Errorf("trophy id must be positive, got %d", trophyID)
	}
	params, err := c.userParams()
	if err != nil {
		return err
	}
	params.Set("trophy_id", strconv.Itoa(trophyID))
	if _, err := c.Keypair(ctx, pathTrophyAward, params); err != nil {
		return fmt.Errorf("award trophy %d: %w", trophyID, err)
	}
	return nil
}
