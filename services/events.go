package services

// Events sent to connections.
const (
	EventUserJoined   = "user joined"
	EventUserLeft     = "user left"
	EventUserList     = "user list"
	EventMessage      = "message"
	EventSetQuestion  = "set question"
	EventSecondsLeft  = "seconds left"
	EventEndQuestion  = "end question"
	EventAnswerResult = "answer result"
	EventSetUserStats = "set user stats"
	EventGameOver     = "game over"
	EventEnteredRoom  = "entered game room"
	EventLeftRoom     = "left game room"
	EventRoomCreated  = "room created"
	EventRoomUpdated  = "room updated"
	EventRoomDeleted  = "room deleted"
	EventRoomList     = "room list"
	EventError        = "error"
	EventPong         = "pong"
)

// Commands received from connections.
const (
	CommandJoinRoom  = "join game room"
	CommandLeaveRoom = "leave game room"
	CommandMessage   = "message"
	CommandAnswer    = "answer"
	CommandPing      = "ping"
)

// Answer results carried by EventAnswerResult.
const (
	AnswerIncorrect = 0
	AnswerCorrect   = 1
	AnswerSkipped   = 2
)

type chatMessage struct {
	Nickname string `json:"nickname"`
	Text     string `json:"text"`
}

type nicknamePayload struct {
	Nickname string `json:"nickname"`
}
