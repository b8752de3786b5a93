package domain

import "time"

// Event - закрытое множество событий, которые поток доставляет боту.
type Event interface {
	Kind() string
	isEvent()
}

// ChatPost - новое сообщение в чате, DM или ленте трансляции.
type ChatPost struct {
	EntityID         string
	FeedID           string
	FeedType         FeedType
	UserID           string
	Username         string
	Content          string
	CreatedAt        time.Time
	IsPosterAdmin    bool
	MentionedUserIDs []string
}

// LivestreamStarted приходит, когда хост начинает трансляцию.
type LivestreamStarted struct {
	EntityID     string
	HostID       string
	ExperienceID string
	Title        string
	StartedAt    time.Time
}

// ConnectionOpened сообщает об установленном соединении.
type ConnectionOpened struct{}

// ConnectionClosed сообщает о закрытии соединения.
type ConnectionClosed struct {
	Code   int
	Reason string
}

// ConnectionError сообщает об ошибке транспорта.
type ConnectionError struct {
	Err error
}

func (ChatPost) Kind() string          { return "chat_post" }
func (LivestreamStarted) Kind() string { return "livestream_started" }
func (ConnectionOpened) Kind() string  { return "connection_opened" }
func (ConnectionClosed) Kind() string  { return "connection_closed" }
func (ConnectionError) Kind() string   { return "connection_error" }

func (ChatPost) isEvent()          {}
func (LivestreamStarted) isEvent() {}
func (ConnectionOpened) isEvent()  {}
func (ConnectionClosed) isEvent()  {}
func (ConnectionError) isEvent()   {}

// Session возвращает сессию автора поста.
func (p ChatPost) Session() Session {
	return Session{UserID: p.UserID, FeedID: p.FeedID, FeedType: p.FeedType}
}

// LivestreamFeedID возвращает id ленты чата трансляции.
func (l LivestreamStarted) LivestreamFeedID() string {
	return l.EntityID
}
