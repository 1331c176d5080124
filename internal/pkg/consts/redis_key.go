package consts

const (
	ChatConversationChannel = "chat:conversation:"
	ChatUserChannel         = "chat:user:"
	ChatPresenceChannel     = "chat:presence"

	PresenceOnlineKey = "chat:online:"
	SocketRouteKey    = "chat:socket:"
	TypingKey         = "chat:typing:"
	ConvMembersKey    = "chat:conv:members:"
)
