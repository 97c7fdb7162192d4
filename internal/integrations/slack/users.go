package slackbot

import (
	"log"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

const userCacheTTL = 5 * time.Minute

type cachedUser struct {
	name      string
	fetchedAt time.Time
}

var userCache struct {
	sync.Mutex
	users map[string]cachedUser
}

// displayName resolves a Slack user ID to the name shown on tickets,
// falling back to the handle the command came with.
func displayName(api *slack.Client, userID, fallback string) string {
	userCache.Lock()
	if c, ok := userCache.users[userID]; ok && time.Since(c.fetchedAt) < userCacheTTL {
		userCache.Unlock()
		return c.name
	}
	userCache.Unlock()

	name := fallback
	user, err := api.GetUserInfo(userID)
	if err != nil {
		log.Printf("resolve user %s: %v", userID, err)
		return name
	}
	if user.Profile.DisplayName != "" {
		name = user.Profile.DisplayName
	} else if user.RealName != "" {
		name = user.RealName
	}

	userCache.Lock()
	if userCache.users == nil {
		userCache.users = make(map[string]cachedUser)
	}
	userCache.users[userID] = cachedUser{name: name, fetchedAt: time.Now()}
	userCache.Unlock()
	return name
}
