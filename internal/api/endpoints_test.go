package api

import (
	"context"
	"errors"
	"testing"

	"github.com/joltkit/jolt/internal/config"
	"github.com/joltkit/jolt/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchUserParsesDeveloperProfile(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]string{
		pathUsersFetch: "success:\"true\"\n" +
			"id:\"42\"\n" +
			"type:\"Developer\"\n" +
			"username:\"alice\"\n" +
			"avatar_url:\"https://cdn.example.test/a.png\"\n" +
			"signed_up:\"4 years ago\"\n" +
			"last_logged_in:\"Online Now\"\n" +
			"status:\"Active\"\n" +
			"developer_name:\"Alice Games\"\n" +
			"developer_website:\"https://alice.example.test\"\n" +
			"developer_description:\"Makes games\"\n",
	}}
	client := newTestClient(t, fetcher, testSettings())

	user, err := client.FetchUser(context.Background(), UserQuery{})
	require.NoError(t, err)
	assert.Equal(t, 42, user.ID)
	assert.Equal(t, UserTypeDeveloper, user.Type)
	assert.Equal(t, UserStatusActive, user.Status)
	assert.Equal(t, "https://cdn.example.test/a.png", user.AvatarURL)

	developer, err := user.Developer()
	require.NoError(t, err)
	assert.Equal(t, "Alice Games", developer.Name)
	assert.Equal(t, "https://alice.example.test", developer.Website)

	path, query := fetcher.lastQuery(t)
	assert.Equal(t, "/v1/users/", path)
	assert.Equal(t, "alice", query.Get(ParamUsername))
}

func TestFetchUserByIDAndNonDeveloper(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]string{
		pathUsersFetch: "success:true\nid:7\ntype:User\nusername:bob\nstatus:Banned\n",
	}}
	client := newTestClient(t, fetcher, testSettings())

	user, err := client.FetchUser(context.Background(), UserQuery{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, UserTypeUser, user.Type)
	assert.Equal(t, UserStatusBanned, user.Status)

	_, err = user.Developer()
	assert.True(t, errors.Is(err, ErrUserNotDeveloper))

	_, query := fetcher.lastQuery(t)
	assert.Equal(t, "7", query.Get("user_id"))
	assert.Empty(t, query.Get(ParamUsername))
}

func TestFetchUserRejectsBadID(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]string{
		pathUsersFetch: "success:true\nid:abc\n",
	}}
	client := newTestClient(t, fetcher, testSettings())

	_, err := client.FetchUser(context.Background(), UserQuery{Username: "bob"})
	var fieldErr *FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "id", fieldErr.Field)
}

func TestAuthUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    bool
		wantErr bool
	}{
		{name: "accepted", body: "success:true", want: true},
		{name: "rejected", body: "success:false\nmessage:bad token", want: false},
		{name: "garbage", body: "<html>", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &fakeFetcher{responses: map[string]string{pathUsersAuth: tt.body}}
			client := newTestClient(t, fetcher, testSettings())

			got, err := client.AuthUser(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthUserRequiresCredentials(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	settings := config.NewSettings(nil)
	settings.SetGameID("1")
	settings.SetSignature("sig")
	client := newTestClient(t, fetcher, settings)

	_, err := client.AuthUser(context.Background())
	assert.True(t, errors.Is(err, config.ErrNotConfigured))
	assert.Empty(t, fetcher.calls)
}

func TestFetchScoresParsesJSON(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]string{
		pathScoresFetch: `{"response":{"success":"true","scores":[` +
			`{"score":"34 coins","sort":"34","extra_data":"lvl2","user":"alice","user_id":"42","guest":"","stored":"1 week ago"},` +
			`{"score":"12 coins","sort":12,"guest":"visitor"}]}}`,
	}}
	client := newTestClient(t, fetcher, testSettings())

	scores, err := client.FetchScores(context.Background(), ScoreQuery{Limit: 5, TableID: 3, UserScoped: true})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, Score{
		Score:     "34 coins",
		Sort:      34,
		ExtraData: "lvl2",
		User:      "alice",
		UserID:    "42",
		Stored:    "1 week ago",
	}, scores[0])
	assert.Equal(t, int64(12), scores[1].Sort)
	assert.Equal(t, "visitor", scores[1].Guest)

	_, query := fetcher.lastQuery(t)
	assert.Equal(t, "json", query.Get("format"))
	assert.Equal(t, "5", query.Get("limit"))
	assert.Equal(t, "3", query.Get("table_id"))
	assert.Equal(t, "tok", query.Get(ParamUserToken))
}

func TestFetchScoresFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]string{
		pathScoresFetch: `{"response":{"success":"false","message":"No such table"}}`,
	}}
	client := newTestClient(t, fetcher, testSettings())

	_, err := client.FetchScores(context.Background(), ScoreQuery{})
	require.Error(t, err)
	assert.Equal(t, "No such table", wire.FailureMessage(err))

	_, query := fetcher.lastQuery(t)
	assert.Empty(t, query.Get(ParamUsername), "unscoped fetch must not send credentials")
}

func TestAddScoreForUserAndGuest(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]string{pathScoresAdd: "success:true"}}
	client := newTestClient(t, fetcher, testSettings())

	require.NoError(t, client.AddScore(context.Background(), NewScore{Score: "10 coins", Sort: 10, ExtraData: "x"}))
	_, query := fetcher.lastQuery(t)
	assert.Equal(t, "alice", query.Get(ParamUsername))
	assert.Equal(t, "10", query.Get("sort"))
	assert.Equal(t, "x", query.Get("extra_data"))

	require.NoError(t, client.AddScore(context.Background(), NewScore{Score: "5", Sort: 5, Guest: "visitor", TableID: 2}))
	_, query = fetcher.lastQuery(t)
	assert.Equal(t, "visitor", query.Get("guest"))
	assert.Empty(t, query.Get(ParamUserToken))
	assert.Equal(t, "2", query.Get("table_id"))

	require.Error(t, client.AddScore(context.Background(), NewScore{}))
}

func TestScoreTables(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]string{
		pathScoreTables: "success:true\n" +
			"id:1\nname:Main\ndescription:All time\nprimary:1\n" +
			"id:2\nname:Weekly\ndescription:\nprimary:0\n",
	}}
	client := newTestClient(t, fetcher, testSettings())

	tables, err := client.ScoreTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ScoreTable{
		{ID: 1, Name: "Main", Description: "All time", Primary: true},
		{ID: 2, Name: "Weekly"},
	}, tables)
}

func TestDataStoreOperations(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]string{
		pathDataKeys:   "success:true\nkey:level\nkey:coins\n",
		pathDataSet:    "success:true",
		pathDataUpdate: "success:true\ndata:15",
		pathDataRemove: "success:true",
		pathDataFetch:  "SUCCESS\nline one\nline two",
	}}
	client := newTestClient(t, fetcher, testSettings())
	ctx := context.Background()

	value, err := client.DataFetch(ctx, DataQuery{Key: "save"})
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", value)
	_, query := fetcher.lastQuery(t)
	assert.Equal(t, "dump", query.Get("format"))
	assert.Equal(t, "save", query.Get("key"))

	require.NoError(t, client.DataSet(ctx, DataQuery{Key: "coins", UserScoped: true}, "10"))
	_, query = fetcher.lastQuery(t)
	assert.Equal(t, "10", query.Get("data"))
	assert.Equal(t, "alice", query.Get(ParamUsername))

	updated, err := client.DataUpdate(ctx, DataQuery{Key: "coins"}, DataAdd, "5")
	require.NoError(t, err)
	assert.Equal(t, "15", updated)
	_, query = fetcher.lastQuery(t)
	assert.Equal(t, "add", query.Get("operation"))

	require.NoError(t, client.DataRemove(ctx, DataQuery{Key: "coins"}))

	keys, err := client.DataKeys(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"level", "coins"}, keys)
}

func TestDataStoreValidation(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	client := newTestClient(t, fetcher, testSettings())

	_, err := client.DataFetch(context.Background(), DataQuery{Key: "  "})
	require.Error(t, err)

	_, err = client.DataUpdate(context.Background(), DataQuery{Key: "coins"}, DataOperation("modulo"), "2")
	require.Error(t, err)
	assert.Empty(t, fetcher.calls)

	operation, err := ParseDataOperation(" Prepend ")
	require.NoError(t, err)
	assert.Equal(t, DataPrepend, operation)
}

func TestDataFetchFailureMessage(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]string{pathDataFetch: "FAILURE\nNo item with that key could be found."}}
	client := newTestClient(t, fetcher, testSettings())

	_, err := client.DataFetch(context.Background(), DataQuery{Key: "missing"})
	require.Error(t, err)
	assert.Equal(t, "No item with that key could be found.", wire.FailureMessage(err))
}

func TestFetchTrophiesAndAward(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]string{
		pathTrophies: "success:true\n" +
			"id:1\ntitle:First\ndescription:Start\ndifficulty:Bronze\nimage_url:https://cdn.example.test/1.png\nachieved:false\n" +
			"id:2\ntitle:Second\ndescription:Finish\ndifficulty:Gold\nimage_url:https://cdn.example.test/2.png\nachieved:5 days ago\n",
		pathTrophyAward: "success:true",
	}}
	client := newTestClient(t, fetcher, testSettings())

	achieved := true
	trophies, err := client.FetchTrophies(context.Background(), TrophyQuery{Achieved: &achieved})
	require.NoError(t, err)
	require.Len(t, trophies, 2)
	assert.Equal(t, TrophyBronze, trophies[0].Difficulty)
	assert.Empty(t, trophies[0].Achieved)
	assert.Equal(t, "https://cdn.example.test/1.png", trophies[0].ImageURL)
	assert.Equal(t, TrophyGold, trophies[1].Difficulty)
	assert.Equal(t, "5 days ago", trophies[1].Achieved)

	_, query := fetcher.lastQuery(t)
	assert.Equal(t, "true", query.Get("achieved"))

	_, err = client.FetchTrophies(context.Background(), TrophyQuery{IDs: []int{1, 2}})
	require.NoError(t, err)
	_, query = fetcher.lastQuery(t)
	assert.Equal(t, "1,2", query.Get("trophy_id"))
	assert.Empty(t, query.Get("achieved"))

	require.NoError(t, client.AwardTrophy(context.Background(), 2))
	path, query := fetcher.lastQuery(t)
	assert.Equal(t, "/v1/trophies/add-achieved/", path)
	assert.Equal(t, "2", query.Get("trophy_id"))

	require.Error(t, client.AwardTrophy(context.Background(), 0))
}
