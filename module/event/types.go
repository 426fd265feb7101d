package event

// Type is the domain event kind; the value is what travels in the envelope "type" field.
type Type string

const (
	MessageCreated         Type = "new_message"
	ReactionAdded          Type = "reaction_added"
	UserJoined             Type = "user_joined"
	UserLeft               Type = "user_left"
	TypingIndicator        Type = "typing"
	NotificationDispatched Type = "notification"
)

func (t Type) Valid() bool {
	switch t {
	case MessageCreated, ReactionAdded, UserJoined, UserLeft, TypingIndicator, NotificationDispatched:
		return true
	}
	return false
}

// Broker topics.
const (
	TopicMessages      = "messages"
	TopicUserActivity  = "user-activity"
	TopicReactions     = "reactions"
	TopicNotifications = "notifications"
)

// Topics lists every topic the consumer manager runs a loop for.
func Topics() []string {
	return []string{TopicMessages, TopicUserActivity, TopicReactions, TopicNotifications}
}

// GroupFor returns the consumer group owning a topic. Each topic has its own group so
// the loops never compete for the same offsets.
func GroupFor(topic string) string {
	switch topic {
	case TopicMessages:
		return "messages-group"
	case TopicUserActivity:
		return "activity-group"
	case TopicReactions:
		return "reactions-group"
	case TopicNotifications:
		return "notifications-group"
	default:
		return topic + "-group"
	}
}

// Client-visible event names.
const (
	ClientNewMessage       = "new_message"
	ClientUserJoined       = "user_joined"
	ClientUserLeft         = "user_left"
	ClientUserTyping       = "user_typing"
	ClientReactionAdded    = "reaction_added"
	ClientNotification     = "notification"
	ClientUserStatusChange = "user_status_change"
)

const userRoomPrefix = "user:"

// UserRoom is the virtual room every connection of userID joins.
func UserRoom(userID string) string { return userRoomPrefix + userID }
