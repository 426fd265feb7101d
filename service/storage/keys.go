package storage

import (
	"strconv"
	"time"
)

const (
	historyLimit    = 100
	defaultPageSize = 50
)

func messageKey(id string) string { return "message:" + id }

func historyKey(roomID string) string { return "messages:" + roomID }

func presenceKey(channelID, userID string) string {
	return "active_users:" + channelID + ":" + userID
}

func activeSetKey(channelID string) string { return "channel:" + channelID + ":active" }

func unreadKey(userID, channelID string) string { return "unread:" + userID + ":" + channelID }

const activeSetPattern = "channel:*:active"

func formatUnix(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }

// channelFromActiveSet is the inverse of activeSetKey.
func channelFromActiveSet(key string) string {
	const prefix, suffix = "channel:", ":active"
	if len(key) < len(prefix)+len(suffix) {
		return ""
	}
	return key[len(prefix) : len(key)-len(suffix)]
}
