package bus

// Kind — тип события в стриме. Значение попадает в строку "event:" SSE.
type Kind string

const (
	KindMessage           Kind = "message"
	KindMessageEdited     Kind = "message_edited"
	KindMessageDeleted    Kind = "message_deleted"
	KindFileUploaded      Kind = "file_uploaded"
	KindFileDeleted       Kind = "file_deleted"
	KindReactionAdded     Kind = "reaction_added"
	KindReactionRemoved   Kind = "reaction_removed"
	KindMessagePinned     Kind = "message_pinned"
	KindMessageUnpinned   Kind = "message_unpinned"
	KindPresenceJoined    Kind = "presence_joined"
	KindPresenceLeft      Kind = "presence_left"
	KindTyping            Kind = "typing"
	KindRoomUpdated       Kind = "room_updated"
	KindRoomArchived      Kind = "room_archived"
	KindRoomUnarchived    Kind = "room_unarchived"
	KindProfileUpdated    Kind = "profile_updated"
	KindProfileDeleted    Kind = "profile_deleted"
	KindReadCursorUpdated Kind = "read_cursor_updated"
	KindHeartbeat         Kind = "heartbeat"
)

// Event — одно событие шины. Data — готовый JSON, маршалится один раз
// при публикации, а не на каждого подписчика.
type Event struct {
	Kind   Kind
	RoomID string
	// Seq заполнен только у событий новых сообщений; они попадают в replay ring.
	Seq  int64
	Data []byte
}
