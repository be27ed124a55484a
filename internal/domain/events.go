package domain

// Outbound event names.
const (
	EventUserStatus       = "user_status"
	EventDataUpdate       = "data_update"
	EventPrivateChatReady = "private_chat_ready"
	EventForceJoinRoom    = "force_join_room"
	EventForceLeaveRoom   = "force_leave_room"
	EventChatHistory      = "chat_history"
	EventGroupDetails     = "group_details"
	EventNewMessage       = "new_message"
	EventMessageEdited    = "message_edited"
	EventMessageDeleted   = "message_deleted"
	EventMessageHidden    = "message_hidden"
	EventReactionAdded    = "reaction_added"
	EventNotification     = "notification"
	EventGroupCreated     = "group_created"
	EventGroupUpdate      = "group_update"
	EventProfileUpdated   = "profile_updated"
	EventUserRegistered   = "user_registered"
)
