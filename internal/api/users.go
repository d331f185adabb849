package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/joltkit/jolt/internal/wire"
)

// UserQuery selects the user to fetch. With both fields empty the configured
// username is used; Username wins when both are set.
type UserQuery struct {
	Username string
	ID       int
}

// FetchUser returns the profile of one user.
func (c *Client) FetchUser(ctx context.Context, query UserQuery) (User, error) {
	params := url.Values{}
	switch {
	case strings.TrimSpace(query.Username) != "":
		params.Set(ParamUsername, strings.TrimSpace(query.Username))
	case query.ID > 0:
		params.Set("user_id", strconv.Itoa(query.ID))
	default:
		username, err := c.settings.Username()
		if err != nil {
			return User{}, err
		}
		params.Set(ParamUsername, username)
	}

	response, err := c.Keypair(ctx, pathUsersFetch, params)
	if err != nil {
		return User{}, fmt.Errorf("fetch user: %w", err)
	}
	return userFromResponse(response)
}

// AuthUser verifies the configured username and user token. An explicit
// rejection by the platform is reported as false with a nil error.
func (c *Client) AuthUser(ctx context.Context) (bool, error) {
	params, err := c.userParams()
	if err != nil {
		return false, err
	}
	if _, err := c.Keypair(ctx, pathUsersAuth, params); err != nil {
		if wire.IsKind(err, wire.KindExplicitFailure) {
			return false, nil
		}
		return false, fmt.Errorf("authenticate user: %w", err)
	}
	return true, nil
}

func userFromResponse(response wire.Response) (User, error) {
	rawID, ok := response.Get("id")
	if !ok {
		return User{}, &FieldError{Field: "id", Err: errors.New("missing")}
	}
	id, err := parseID("id", rawID)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           id,
		Type:         parseUserType(response.Value("type")),
		Username:     response.Value("username"),
		AvatarURL:    response.Value("avatar_url"),
		SignedUp:     response.Value("signed_up"),
		LastLoggedIn: response.Value("last_logged_in"),
		Status:       parseUserStatus(response.Value("status")),
	}
	if user.Type == UserTypeDeveloper {
		user.developer = DeveloperInfo{
			Name:        response.Value("developer_name"),
			Website:     response.Value("developer_website"),
			Description: response.Value("developer_description"),
		}
	}
	return user, nil
}
