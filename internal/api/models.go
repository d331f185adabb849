package api

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUserNotDeveloper is returned when developer details are read for a user
// whose account type is not Developer.
var ErrUserNotDeveloper = errors.New("user is not a developer")

// UserType is the platform account type.
type UserType string

const (
	UserTypeUser          UserType = "User"
	UserTypeDeveloper     UserType = "Developer"
	UserTypeModerator     UserType = "Moderator"
	UserTypeAdministrator UserType = "Administrator"
)

// UserStatus reports whether the account is still a member of the site.
type UserStatus string

const (
	UserStatusActive UserStatus = "Active"
	UserStatusBanned UserStatus = "Banned"
)

// User is a fetched user profile.
type User struct {
	ID           int
	Type         UserType
	Username     string
	AvatarURL    string
	SignedUp     string
	LastLoggedIn string
	Status       UserStatus

	developer DeveloperInfo
}

// DeveloperInfo holds the developer-only profile fields.
type DeveloperInfo struct {
	Name        string
	Website     string
	Description string
}

// Developer returns the developer profile, or ErrUserNotDeveloper.
func (u User) Developer() (DeveloperInfo, error) {
	if u.Type != UserTypeDeveloper {
		return DeveloperInfo{}, ErrUserNotDeveloper
	}
	return u.developer, nil
}

// Score is one scoreboard entry.
type Score struct {
	Score     string
	Sort      int64
	ExtraData string
	User      string
	UserID    string
	Guest     string
	Stored    string
}

// ScoreTable describes a high score table.
type ScoreTable struct {
	ID          int
	Name        string
	Description string
	Primary     bool
}

// TrophyDifficulty is the trophy tier.
type TrophyDifficulty string

const (
	TrophyBronze   TrophyDifficulty = "Bronze"
	TrophySilver   TrophyDifficulty = "Silver"
	TrophyGold     TrophyDifficulty = "Gold"
	TrophyPlatinum TrophyDifficulty = "Platinum"
)

// Trophy is one trophy and the user's progress on it.
type Trophy struct {
	ID          int
	Title       string
	Description string
	Difficulty  TrophyDifficulty
	ImageURL    string
	// Achieved is when the user achieved the trophy, empty if not yet.
	Achieved string
}

func parseUserType(value string) UserType {
	value = strings.TrimSpace(value)
	if value == "" {
		return UserTypeUser
	}
	switch value[0] {
	case 'D':
		return UserTypeDeveloper
	case 'M':
		return UserTypeModerator
	case 'A':
		return UserTypeAdministrator
	default:
		return UserTypeUser
	}
}

func parseUserStatus(value string) UserStatus {
	if strings.HasPrefix(strings.TrimSpace(value), "A") {
		return UserStatusActive
	}
	return UserStatusBanned
}

func parseDifficulty(value string) TrophyDifficulty {
	switch TrophyDifficulty(strings.TrimSpace(value)) {
	case TrophySilver:
		return TrophySilver
	case TrophyGold:
		return TrophyGold
	case TrophyPlatinum:
		return TrophyPlatinum
	default:
		return TrophyBronze
	}
}

// parseAchieved maps the platform's "false" to an empty timestamp.
func parseAchieved(value string) string {
	value = strings.TrimSpace(value)
	if value == "false" {
		return ""
	}
	return value
}

func parseID(field, value string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &FieldError{Field: field, Value: value, Err: err}
	}
	return id, nil
}
