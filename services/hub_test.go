package services

import (
	"encoding/json"
	"testing"

	"opentrivia/models"

	"go.uber.org/zap"
)

func newTestClient(hub *Hub, nickname string) *Client {
	client := &Client{
		hub:  hub,
		id:   nickname + "-conn",
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	client.user = NewUser(client.id, nickname, client)
	return client
}

// drain returns the frames queued for client so far.
func drain(t *testing.T, client *Client) []Message {
	t.Helper()
	var frames []Message
	for {
		select {
		case data := <-client.send:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("bad frame %s: %v", data, err)
			}
			frames = append(frames, msg)
		default:
			return frames
		}
	}
}

func frameTypes(frames []Message) []string {
	types := make([]string, 0, len(frames))
	for _, frame := range frames {
		types = append(types, frame.Type)
	}
	return types
}

func hasFrame(frames []Message, event string) (Message, bool) {
	for _, frame := range frames {
		if frame.Type == event {
			return frame, true
		}
	}
	return Message{}, false
}

func command(t *testing.T, kind string, payload any) Message {
	t.Helper()
	msg := Message{Type: kind}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		msg.Payload = data
	}
	return msg
}

func TestHubCommands(t *testing.T) {
	env := newTestEnv(t)
	hub := NewHub(NewLoop(zap.NewNop()), env.registry, env.bus, zap.NewNop())
	room := env.createRoom(t, false, models.RoomConfiguration{MaxSeconds: 10})
	env.exec.flush()

	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")

	alice.handleMessage(command(t, CommandPing, nil))
	if _, ok := hasFrame(drain(t, alice), EventPong); !ok {
		t.Fatal("ping not answered")
	}

	alice.handleMessage(command(t, CommandJoinRoom, joinRoomCommand{ID: "nope"}))
	if _, ok := hasFrame(drain(t, alice), EventError); !ok {
		t.Fatal("joining an unknown room did not report an error")
	}

	alice.handleMessage(command(t, CommandJoinRoom, joinRoomCommand{ID: room.ID()}))
	bob.handleMessage(command(t, CommandJoinRoom, joinRoomCommand{ID: room.ID()}))
	frames := drain(t, alice)
	for _, event := range []string{EventEnteredRoom, EventUserList, EventSetQuestion, EventUserJoined} {
		if _, ok := hasFrame(frames, event); !ok {
			t.Fatalf("alice missing %q in %v", event, frameTypes(frames))
		}
	}
	drain(t, bob)

	bob.handleMessage(command(t, CommandMessage, messageCommand{Text: "  good luck  "}))
	frame, ok := hasFrame(drain(t, alice), EventMessage)
	if !ok {
		t.Fatal("chat message not relayed")
	}
	var chat chatMessage
	json.Unmarshal(frame.Payload, &chat)
	if chat.Nickname != "bob" || chat.Text != "good luck" {
		t.Fatalf("chat = %+v", chat)
	}

	alice.handleMessage(command(t, CommandAnswer, answerCommand{Index: 2}))
	if stats, _ := room.Stats(alice.User()); stats.SelectedAnswerIndex != 2 {
		t.Fatalf("answer not recorded: %+v", stats)
	}

	bob.handleMessage(command(t, CommandLeaveRoom, nil))
	if room.IsMember(bob.User()) || bob.User().Room() != nil {
		t.Fatal("leave command did not remove the user")
	}
	if _, ok := hasFrame(drain(t, alice), EventUserLeft); !ok {
		t.Fatal("remaining member not told about the leave")
	}
}

func TestHubForwardsLifecycleEvents(t *testing.T) {
	env := newTestEnv(t)
	hub := NewHub(NewLoop(zap.NewNop()), env.registry, env.bus, zap.NewNop())
	client := newTestClient(hub, "alice")
	hub.clients[client] = true

	room := env.createRoom(t, true, models.RoomConfiguration{MaxSeconds: 10})
	env.registry.DeleteRoom(room)

	frames := drain(t, client)
	types := frameTypes(frames)
	if len(types) != 2 || types[0] != EventRoomCreated || types[1] != EventRoomDeleted {
		t.Fatalf("frames = %v", types)
	}
	var summary models.RoomSummary
	json.Unmarshal(frames[0].Payload, &summary)
	if summary.ID != room.ID() {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestClientSendAfterDisconnectIsDropped(t *testing.T) {
	env := newTestEnv(t)
	hub := NewHub(NewLoop(zap.NewNop()), env.registry, env.bus, zap.NewNop())
	client := newTestClient(hub, "alice")
	close(client.done)

	client.Send(EventPong, nil)
	if len(client.send) != 0 {
		t.Fatal("frame queued for a closed connection")
	}
}
