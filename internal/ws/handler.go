package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatd/internal/domain"
	"chatd/internal/security"
	"chatd/internal/service"
)

// frame is an inbound client message. Every frame may carry a token in its
// data; the frame acts on behalf of whoever that token resolves to, falling
// back to the user authenticated at upgrade time.
type frame struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Handler upgrades HTTP requests to websocket sessions and routes inbound
// frames to the services.
type Handler struct {
	hub      *Hub
	tokens   *security.TokenService
	users    domain.UserRepository
	rooms    domain.RoomRepository
	roomSvc  *service.RoomService
	msgSvc   *service.MessageService
	upgrader websocket.Upgrader
	buffer   int
	log      zerolog.Logger
}

func NewHandler(
	hub *Hub,
	tokens *security.TokenService,
	users domain.UserRepository,
	rooms domain.RoomRepository,
	roomSvc *service.RoomService,
	msgSvc *service.MessageService,
	allowedOrigins []string,
	buffer int,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		hub:     hub,
		tokens:  tokens,
		users:   users,
		rooms:   rooms,
		roomSvc: roomSvc,
		msgSvc:  msgSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		buffer: buffer,
		log:    log,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP authenticates the upgrade request and runs the session until the
// connection drops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := h.authenticate(r)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var header http.Header
	if proto := r.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		header = http.Header{"Sec-WebSocket-Protocol": {strings.Split(proto, ",")[0]}}
	}
	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := NewSession(userID, conn, h.buffer, h.log)
	h.run(r.Context(), sess)
}

// authenticate resolves the connecting user from the Authorization header or,
// for browser clients that cannot set headers on websocket upgrades, from the
// Sec-WebSocket-Protocol token slot.
func (h *Handler) authenticate(r *http.Request) string {
	var token string
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if token == "" {
		if proto := r.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
			parts := strings.Split(proto, ",")
			token = strings.TrimSpace(parts[len(parts)-1])
		}
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return ""
	}
	return h.tokens.Subject(token)
}

func (h *Handler) run(ctx context.Context, sess *Session) {
	go sess.writePump()

	if wentOnline := h.hub.Register(sess); wentOnline {
		h.broadcastStatus(ctx, sess.UserID, true)
	}
	h.subscribeRooms(ctx, sess)
	if err := h.users.TouchLastActive(ctx, sess.UserID); err != nil {
		h.log.Warn().Err(err).Str("user_id", sess.UserID).Msg("touch last_active")
	}
	h.deliverSnapshot(ctx, sess)

	defer h.teardown(sess)

	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("session_id", sess.ID).Msg("websocket closed")
			}
			return
		}
		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			h.log.Debug().Err(err).Msg("malformed frame")
			continue
		}
		h.dispatch(ctx, sess, f)
	}
}

func (h *Handler) teardown(sess *Session) {
	sess.Close()
	wentOffline := h.hub.Unregister(sess)

	// The read loop's context dies with the connection; teardown work gets
	// its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.users.TouchLastActive(ctx, sess.UserID); err != nil {
		h.log.Warn().Err(err).Str("user_id", sess.UserID).Msg("persist last_active")
	}
	if wentOffline {
		h.broadcastStatus(ctx, sess.UserID, false)
	}
}

// broadcastStatus announces an online/offline transition. The offline form
// carries the user's gender and last-active timestamp so clients can render
// a "last seen" line without a round trip.
func (h *Handler) broadcastStatus(ctx context.Context, userID string, online bool) {
	data := map[string]any{"user_id": userID, "is_online": online}
	if u, err := h.users.GetByID(ctx, userID); err == nil {
		if !online {
			data["gender"] = u.Gender
			data["last_active"] = u.LastActive
		}
	}
	h.hub.BroadcastAll(domain.Event{Name: domain.EventUserStatus, Data: data})
}

func (h *Handler) subscribeRooms(ctx context.Context, sess *Session) {
	rooms, err := h.rooms.ListForUser(ctx, sess.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", sess.UserID).Msg("list rooms for session")
		return
	}
	for _, room := range rooms {
		h.hub.Subscribe(sess, room.ID)
	}
}

func (h *Handler) deliverSnapshot(ctx context.Context, sess *Session) {
	snap, err := h.roomSvc.Snapshot(ctx, sess.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", sess.UserID).Msg("build snapshot")
		return
	}
	sess.Deliver(domain.Event{Name: domain.EventDataUpdate, Data: snap})
}

// actor resolves which user a frame acts for. A frame carrying a token acts
// for that token's subject; a frame with a token that does not resolve is
// dropped (empty return). No token means the session's own user.
func (h *Handler) actor(sess *Session, data json.RawMessage) string {
	var t struct {
		Token string `json:"token"`
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &t)
	}
	if t.Token == "" {
		return sess.UserID
	}
	return h.tokens.Subject(t.Token)
}

func (h *Handler) dispatch(ctx context.Context, sess *Session, f frame) {
	actorID := h.actor(sess, f.Data)
	if actorID == "" {
		h.log.Debug().Str("event", f.Name).Msg("unresolvable token, frame dropped")
		return
	}

	var err error
	switch f.Name {
	case "get_snapshot":
		h.deliverSnapshot(ctx, sess)
	case "start_private_chat":
		err = h.onStartPrivateChat(ctx, sess, actorID, f.Data)
	case "join_room":
		err = h.onJoinRoom(ctx, sess, actorID, f.Data)
	case "send_message":
		err = h.onSendMessage(ctx, actorID, f.Data)
	case "edit_message":
		err = h.onEditMessage(ctx, actorID, f.Data)
	case "delete_message":
		err = h.onDeleteMessage(ctx, sess, actorID, f.Data)
	case "add_reaction":
		err = h.onAddReaction(ctx, actorID, f.Data)
	case "remove_reaction":
		err = h.onRemoveReaction(ctx, actorID, f.Data)
	case "create_group":
		err = h.onCreateGroup(ctx, actorID, f.Data)
	case "update_group_settings":
		err = h.onUpdateGroupSettings(ctx, actorID, f.Data)
	case "add_participant":
		err = h.onAddParticipant(ctx, actorID, f.Data)
	case "remove_participant":
		err = h.onRemoveParticipant(ctx, actorID, f.Data)
	case "leave_group":
		err = h.onLeaveGroup(ctx, actorID, f.Data)
	case "promote_admin":
		err = h.onChangeRole(ctx, actorID, f.Data, true)
	case "demote_admin":
		err = h.onChangeRole(ctx, actorID, f.Data, false)
	case "delete_group", "delete_chat":
		err = h.onDeleteRoom(ctx, actorID, f.Data)
	default:
		h.log.Debug().Str("event", f.Name).Msg("unknown event")
		return
	}

	if err != nil {
		h.notifyError(sess, f.Name, err)
	}
}

// notifyError surfaces rejections to the invoking session only. Rejections
// are normal flow (blocks, permissions), so they log at debug.
func (h *Handler) notifyError(sess *Session, event string, err error) {
	h.log.Debug().Err(err).Str("event", event).Str("user_id", sess.UserID).Msg("event rejected")

	body := "Something went wrong"
	switch {
	case errors.Is(err, domain.ErrBlocked):
		body = "You cannot interact with this user"
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrForbidden):
		body = "You are not allowed to do that"
	case errors.Is(err, domain.ErrNotFound):
		body = "Not found"
	case errors.Is(err, domain.ErrInvalidInput):
		body = "Invalid request"
	}
	sess.Deliver(domain.Event{
		Name: domain.EventNotification,
		Data: map[string]any{"title": "Error", "body": body},
	})
}

func (h *Handler) onStartPrivateChat(ctx context.Context, sess *Session, actorID string, data json.RawMessage) error {
	var p struct {
		TargetID string `json:"target_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TargetID == "" {
		return domain.ErrInvalidInput
	}
	room, err := h.roomSvc.StartPrivateChat(ctx, actorID, p.TargetID)
	if err != nil {
		return err
	}
	sess.Deliver(domain.Event{
		Name: domain.EventPrivateChatReady,
		Data: map[string]any{"room_id": room.ID},
	})
	return nil
}

func (h *Handler) onJoinRoom(ctx context.Context, sess *Session, actorID string, data json.RawMessage) error {
	var p struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		return domain.ErrInvalidInput
	}
	room, err := h.rooms.GetByID(ctx, p.RoomID)
	if err != nil {
		return err
	}
	member, err := h.roomSvc.IsParticipant(ctx, actorID, p.RoomID)
	if err != nil {
		return err
	}
	if !member {
		return domain.ErrUnauthorized
	}

	h.hub.Subscribe(sess, p.RoomID)

	history, err := h.msgSvc.History(ctx, actorID, p.RoomID)
	if err != nil {
		return err
	}
	sess.Deliver(domain.Event{
		Name: domain.EventChatHistory,
		Data: map[string]any{"room_id": p.RoomID, "messages": history},
	})

	if room.Kind == domain.RoomGroup {
		details, err := h.roomSvc.GroupDetails(ctx, actorID, p.RoomID)
		if err != nil {
			return err
		}
		sess.Deliver(domain.Event{Name: domain.EventGroupDetails, Data: details})
	}
	return nil
}

func (h *Handler) onSendMessage(ctx context.Context, actorID string, data json.RawMessage) error {
	var p struct {
		RoomID   string  `json:"room_id"`
		Content  string  `json:"content"`
		Kind     string  `json:"type"`
		Filename *string `json:"filename"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ErrInvalidInput
	}
	_, err := h.msgSvc.Send(ctx, actorID, service.SendInput{
		RoomID:   p.RoomID,
		Content:  p.Content,
		Kind:     p.Kind,
		Filename: p.Filename,
	})
	return err
}

func (h *Handler) onEditMessage(ctx context.Context, actorID string, data json.RawMessage) error {
	var p struct {
		MessageID int64  `json:"message_id"`
		Content   string `json:"content"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ErrInvalidInput
	}
	err := h.msgSvc.Edit(ctx, actorID, p.MessageID, p.Content)
	if errors.Is(err, domain.ErrNotFound) {
		// Either the message is gone or the editor is not the author; both
		// end the same way, silently.
		return nil
	}
	return err
}

func (h *Handler) onDeleteMessage(ctx context.Context, sess *Session, actorID string, data json.RawMessage) error {
	var p struct {
		MessageID   int64 `json:"message_id"`
		ForEveryone bool  `json:"for_everyone"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ErrInvalidInput
	}
	res, err := h.msgSvc.Delete(ctx, actorID, p.MessageID, p.ForEveryone)
	if err != nil {
		return err
	}
	if !res.ForEveryone {
		// A personal hide only concerns the invoking session.
		sess.Deliver(domain.Event{
			Name: domain.EventMessageHidden,
			Data: map[string]any{"id": res.MessageID, "room_id": res.RoomID},
		})
	}
	return nil
}

func (h *Handler) onAddReaction(ctx context.Context, actorID string, data json.RawMessage) error {
	var p struct {
		MessageID int64  `json:"message_id"`
		Reaction  string `json:"reaction"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Reaction == "" {
		return domain.ErrInvalidInput
	}
	return h.msgSvc.React(ctx, actorID, p.MessageID, p.Reaction)
}

func (h *Handler) onRemoveReaction(ctx context.Context, actorID string, data json.RawMessage) error {
	var p struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ErrInvalidInput
	}
	return h.msgSvc.RemoveReaction(ctx, actorID, p.MessageID)
}

func (h *Handler) onCreateGroup(ctx context.Context, actorID string, data json.RawMessage) error {
	var p struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ErrInvalidInput
	}
	_, err := h.roomSvc.CreateGroup(ctx, actorID, p.Name, p.Members)
	return err
}

func (h *Handler) onUpdateGroupSettings(ctx context.Context, actorID string, data json.RawMessage) error {
	var p struct {
		RoomID string `json:"room_id"`
		Name   string `json:"name"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Name == "" {
		return domain.ErrInvalidInput
	}
	return h.roomSvc.UpdateGroupSettings(ctx, actorID, p.RoomID, p.Name)
}

func (h *Handler) onAddParticipant(ctx context.Context, actorID string, data json.RawMessage) error {
	var p struct {
		RoomID   string `json:"room_id"`
		TargetID string `json:"target_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ErrInvalidInput
	}
	return h.roomSvc.AddParticipant(ctx, actorID, p.RoomID, p.TargetID)
}

func (h *Handler) onRemoveParticipant(ctx context.Context, actorID string, data json.RawMessage) error {
	var p struct {
		RoomID   string `json:"room_id"`
		TargetID string `json:"target_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ErrInvalidInput
	}
	return h.roomSvc.RemoveParticipant(ctx, actorID, p.RoomID, p.TargetID)
}

func (h *Handler) onLeaveGroup(ctx context.Context, actorID string, data json.RawMessage) error {
	var p struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ErrInvalidInput
	}
	return h.roomSvc.LeaveGroup(ctx, actorID, p.RoomID)
}

func (h *Handler) onChangeRole(ctx context.Context, actorID string, data json.RawMessage, promote bool) error {
	var p struct {
		RoomID   string `json:"room_id"`
		TargetID string `json:"target_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ErrInvalidInput
	}
	if promote {
		return h.roomSvc.PromoteAdmin(ctx, actorID, p.RoomID, p.TargetID)
	}
	return h.roomSvc.DemoteAdmin(ctx, actorID, p.RoomID, p.TargetID)
}

func (h *Handler) onDeleteRoom(ctx context.Context, actorID string, data json.RawMessage) error {
	var p struct {
		RoomID string `json:"room_id"`
		Mutual bool   `json:"mutual"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ErrInvalidInput
	}
	return h.roomSvc.DeleteRoom(ctx, actorID, p.RoomID, p.Mutual)
}
