package moderation

import "fmt"

const rateLimitNote = "Daily post limit exceeded"

func rateLimitReply(author string, karma int64, limit int) string {
	return fmt.Sprintf("Hi /u/%s, your post has been removed because you have reached your daily posting limit.\n\n"+
		"Your account has **%d karma**, which limits you to **%d post(s)** per 24 hours.\n\n"+
		"Please try again tomorrow!", author, karma, limit)
}
