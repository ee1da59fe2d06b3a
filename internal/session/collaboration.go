package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"classwire/internal/dispatch"
	"classwire/pkg/types"
)

// Collaboration tracks shared-workspace state and room presence: the
// set of active users, the last-writer-wins workspace snapshot, and the
// current room. Presence is cleared on disconnect since membership is
// unknowable while offline.
type Collaboration struct {
	notifier
	sender   Sender
	identity types.Identity

	mu           sync.RWMutex
	room         string
	activeUsers  map[int]struct{}
	workspace    json.RawMessage
	onCodeChange func(types.CodeChange)
}

// NewCollaboration creates the collaboration/presence session.
func NewCollaboration(sender Sender, router *dispatch.Router, identity types.Identity) *Collaboration {
	c := &Collaboration{
		sender:      sender,
		identity:    identity,
		activeUsers: make(map[int]struct{}),
	}

	router.Subscribe(c.reduce,
		types.MessageTypeRoomJoined,
		types.MessageTypeRoomLeft,
		types.MessageTypeUserJoined,
		types.MessageTypeUserLeft,
		types.MessageTypeCodeChange,
		types.MessageTypeWorkspaceUpdate,
		types.MessageTypeStudyGroupJoined,
	)
	router.SubscribeLifecycle(c.onLifecycle)

	return c
}

// SetOnCodeChange registers the editor's delta callback.
func (c *Collaboration) SetOnCodeChange(f func(types.CodeChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCodeChange = f
}

type roomOut struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type collabOut struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type codeChangeData struct {
	Action  string          `json:"action"`
	RoomID  string          `json:"room_id"`
	Changes json.RawMessage `json:"changes"`
}

type workspaceData struct {
	Action        string          `json:"action"`
	RoomID        string          `json:"room_id"`
	WorkspaceData json.RawMessage `json:"workspace_data"`
}

type studyGroupData struct {
	Action     string          `json:"action"`
	StudyGroup studyGroupInner `json:"study_group"`
}

type studyGroupInner struct {
	Action  string `json:"action"`
	GroupID int    `json:"group_id"`
}

// JoinRoom requests membership in a collaboration room. The room
// becomes current only when the server confirms with room_joined.
func (c *Collaboration) JoinRoom(roomID string) error {
	if err := types.ValidateRoomID(roomID); err != nil {
		return err
	}
	if !c.sender.IsConnected() {
		c.notify(NoticeError, "cannot join room: not connected")
		return ErrNotConnected
	}
	return c.sender.Send(roomOut{Type: types.MessageTypeJoinRoom, RoomID: roomID})
}

// LeaveRoom requests departure from the current room.
func (c *Collaboration) LeaveRoom() error {
	c.mu.RLock()
	room := c.room
	c.mu.RUnlock()

	if room == "" {
		return ErrNoActiveRoom
	}
	if !c.sender.IsConnected() {
		c.notify(NoticeError, "cannot leave room: not connected")
		return ErrNotConnected
	}
	return c.sender.Send(roomOut{Type: types.MessageTypeLeaveRoom, RoomID: room})
}

// SendCodeChange broadcasts an editing delta to the current room.
func (c *Collaboration) SendCodeChange(changes json.RawMessage) error {
	return c.sendRoomAction(func(room string) interface{} {
		return codeChangeData{Action: types.CollabActionCodeCollaboration, RoomID: room, Changes: changes}
	})
}

// UpdateWorkspace replaces the shared workspace snapshot for the room.
func (c *Collaboration) UpdateWorkspace(data json.RawMessage) error {
	return c.sendRoomAction(func(room string) interface{} {
		return workspaceData{Action: types.CollabActionSharedWorkspace, RoomID: room, WorkspaceData: data}
	})
}

func (c *Collaboration) sendRoomAction(build func(room string) interface{}) error {
	c.mu.RLock()
	room := c.room
	c.mu.RUnlock()

	if room == "" {
		return ErrNoActiveRoom
	}
	if !c.sender.IsConnected() {
		c.notify(NoticeError, "collaboration unavailable: not connected")
		return ErrNotConnected
	}
	return c.sender.Send(collabOut{Type: types.MessageTypeCollaboration, Data: build(room)})
}

// JoinStudyGroup joins a study group. Success is surfaced as a one-shot
// confirmation, not persisted state.
func (c *Collaboration) JoinStudyGroup(groupID int) error {
	if !c.sender.IsConnected() {
		c.notify(NoticeError, "cannot join study group: not connected")
		return ErrNotConnected
	}
	return c.sender.Send(collabOut{
		Type: types.MessageTypeCollaboration,
		Data: studyGroupData{
			Action:     types.CollabActionStudyGroup,
			StudyGroup: studyGroupInner{Action: "join", GroupID: groupID},
		},
	})
}

// Room returns the current room id, or "".
func (c *Collaboration) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

// ActiveUsers returns the ids of users present in the room, sorted.
func (c *Collaboration) ActiveUsers() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]int, 0, len(c.activeUsers))
	for id := range c.activeUsers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Workspace returns the latest shared workspace snapshot, if any.
func (c *Collaboration) Workspace() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workspace
}

func (c *Collaboration) reduce(env *types.Envelope) {
	switch env.Type {
	case types.MessageTypeRoomJoined:
		var body struct {
			RoomID string `json:"room_id"`
		}
		if err := env.Payload(&body); err != nil {
			return
		}
		c.mu.Lock()
		c.room = body.RoomID
		c.activeUsers = make(map[int]struct{})
		c.mu.Unlock()

	case types.MessageTypeRoomLeft:
		c.mu.Lock()
		c.room = ""
		c.activeUsers = make(map[int]struct{})
		c.workspace = nil
		c.mu.Unlock()

	case types.MessageTypeUserJoined:
		var body struct {
			UserID int `json:"user_id"`
		}
		if err := env.Payload(&body); err != nil {
			return
		}
		c.mu.Lock()
		c.activeUsers[body.UserID] = struct{}{}
		c.mu.Unlock()

	case types.MessageTypeUserLeft:
		var body struct {
			UserID int `json:"user_id"`
		}
		if err := env.Payload(&body); err != nil {
			return
		}
		c.mu.Lock()
		delete(c.activeUsers, body.UserID)
		c.mu.Unlock()

	case types.MessageTypeCodeChange:
		var change types.CodeChange
		if err := env.Payload(&change); err != nil {
			return
		}
		c.mu.RLock()
		cb := c.onCodeChange
		c.mu.RUnlock()
		if cb != nil {
			cb(change)
		}

	case types.MessageTypeWorkspaceUpdate:
		var body struct {
			WorkspaceData json.RawMessage `json:"workspace_data"`
		}
		if err := env.Payload(&body); err != nil {
			return
		}
		// Last writer wins: the snapshot is replaced wholesale.
		c.mu.Lock()
		c.workspace = body.WorkspaceData
		c.mu.Unlock()

	case types.MessageTypeStudyGroupJoined:
		var body struct {
			GroupID int `json:"group_id"`
		}
		if err := env.Payload(&body); err != nil {
			return
		}
		c.notify(NoticeInfo, fmt.Sprintf("joined study group %d", body.GroupID))
	}
}

// onLifecycle clears presence when the connection drops; membership is
// unknowable while offline.
func (c *Collaboration) onLifecycle(ev dispatch.Event) {
	if ev.Kind == dispatch.EventClose || ev.Kind == dispatch.EventError {
		c.mu.Lock()
		c.activeUsers = make(map[int]struct{})
		c.mu.Unlock()
	}
}
