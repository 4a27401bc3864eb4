// Package protocol defines the wire messages between client and server. The
// transport is a reliable ordered message stream per channel; messages are
// tagged JSON envelopes with binary payloads (snapshots, input patches)
// base64-encoded by the JSON layer. Every string is bounded; both sides
// check the limits before acting on a message.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"arena-core/internal/game"
	"arena-core/internal/input"
)

// Protocol string bounds.
const (
	MaxNameLen       = 16
	MaxMapLen        = 64
	MaxCategoryLen   = 32
	MaxChatLen       = 256
	MaxErrorLen      = 1024
	MaxRconResultLen = 65536
)

// Channel separates ordering domains. Within one channel messages arrive in
// order; across channels they may reorder.
type Channel uint8

const (
	ChannelInputs Channel = iota
	ChannelChat
	ChannelVotes
	ChannelRcon
)

// MsgType tags an envelope.
type MsgType string

// Client → server.
const (
	TypeReady             MsgType = "ready"
	TypeAddLocalPlayer    MsgType = "add_local_player"
	TypeRemLocalPlayer    MsgType = "rem_local_player"
	TypeInputs            MsgType = "inputs"
	TypePlayerMsg         MsgType = "player_msg"
	TypeLoadVotes         MsgType = "load_votes"
	TypeAccountChangeName MsgType = "account_change_name"
	TypeAccountReqInfo    MsgType = "account_request_info"
)

// Server → client.
const (
	TypeServerInfo     MsgType = "server_info"
	TypeQueueInfo      MsgType = "queue_info"
	TypeLoad           MsgType = "load"
	TypeReadyResponse  MsgType = "ready_response"
	TypeSnapshot       MsgType = "snapshot"
	TypeEvents         MsgType = "events"
	TypeChat           MsgType = "chat"
	TypeVote           MsgType = "vote"
	TypeStartVoteRes   MsgType = "start_vote_res"
	TypeRconCommands   MsgType = "rcon_commands"
	TypeRconExecResult MsgType = "rcon_exec_result"
	TypeLoadVote       MsgType = "load_vote"
)

// Envelope frames every message.
type Envelope struct {
	Type    MsgType         `json:"type"`
	Channel Channel         `json:"chan"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrMessageBounds is returned when a string field exceeds its bound.
var ErrMessageBounds = errors.New("protocol: string field exceeds bound")

// Encode wraps a payload into envelope bytes.
func Encode(t MsgType, ch Channel, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Channel: ch, Payload: raw})
}

// Decode parses envelope bytes.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("protocol: bad envelope: %w", err)
	}
	return env, nil
}

// CharacterInfo is the wire form of a player identity.
type CharacterInfo struct {
	Name string `json:"name"`
	Clan string `json:"clan,omitempty"`
	Skin string `json:"skin,omitempty"`
	Eye  uint8  `json:"eye,omitempty"`
}

// Check validates the string bounds.
func (ci CharacterInfo) Check() error {
	if len(ci.Name) > MaxNameLen || len(ci.Clan) > MaxNameLen || len(ci.Skin) > MaxNameLen+8 {
		return ErrMessageBounds
	}
	return nil
}

// ToGame converts to the simulation's info type.
func (ci CharacterInfo) ToGame() game.CharacterInfo {
	return game.CharacterInfo{Name: ci.Name, Clan: ci.Clan, Skin: ci.Skin, Eye: game.Eye(ci.Eye)}
}

// LocalPlayer is one slot of a Ready message.
type LocalPlayer struct {
	// ID is the client's slot id for this local player.
	ID   uint64        `json:"id"`
	Info CharacterInfo `json:"info"`
}

// MsgClReady starts the join handshake. UniqueID identifies the client
// installation; together with a slot id it keys the server's timeout-player
// retention.
type MsgClReady struct {
	UniqueID   uint64        `json:"uniqueId"`
	Players    []LocalPlayer `json:"players"`
	RconSecret []byte        `json:"rconSecret,omitempty"`
}

// MsgClAddLocalPlayer attaches one more local player to a ready connection.
type MsgClAddLocalPlayer struct {
	LocalPlayer
}

// MsgClRemLocalPlayer detaches a local player.
type MsgClRemLocalPlayer struct {
	PlayerID game.PlayerID `json:"playerId"`
}

// MsgClInputs carries one frame's input chains plus snapshot acks.
type MsgClInputs struct {
	// ID identifies this inputs message; as_diff chains store their final
	// input under it.
	ID      uint64                         `json:"id"`
	Inputs  map[game.PlayerID]InputChain   `json:"inputs"`
	SnapAck []uint64                       `json:"snapAck,omitempty"`
}

// InputChain is the wire input chain for one player.
type InputChain struct {
	Chain input.Chain `json:"chain"`
	// ForTick is the first tick the reconstructed inputs apply to.
	ForTick uint64 `json:"forTick"`
	// Version of the first input in the chain.
	Version uint64 `json:"version"`
}

// PlayerMsgKind tags a per-player game message.
type PlayerMsgKind string

const (
	PlayerMsgChat          PlayerMsgKind = "chat"
	PlayerMsgKill          PlayerMsgKind = "kill"
	PlayerMsgJoinSpectator PlayerMsgKind = "join_spectator"
	PlayerMsgJoinStage     PlayerMsgKind = "join_stage"
	PlayerMsgJoinSide      PlayerMsgKind = "join_side"
	PlayerMsgSwitchCamera  PlayerMsgKind = "switch_camera"
	PlayerMsgEmoticon      PlayerMsgKind = "emoticon"
	PlayerMsgChangeEyes    PlayerMsgKind = "change_eyes"
	PlayerMsgStartVote     PlayerMsgKind = "start_vote"
	PlayerMsgVoted         PlayerMsgKind = "voted"
	PlayerMsgUpdateInfo    PlayerMsgKind = "update_info"
	PlayerMsgRconExec      PlayerMsgKind = "rcon_exec"
)

// ChatMode selects chat routing.
type ChatMode string

const (
	ChatGlobal  ChatMode = "global"
	ChatTeam    ChatMode = "team"
	ChatWhisper ChatMode = "whisper"
)

// VoteStartKind tags a start_vote request.
type VoteStartKind string

const (
	VoteStartMap             VoteStartKind = "map"
	VoteStartRandomUnfinished VoteStartKind = "random_unfinished_map"
	VoteStartKick            VoteStartKind = "kick"
	VoteStartSpec            VoteStartKind = "spec"
	VoteStartMisc            VoteStartKind = "misc"
)

// MsgClPlayerMsg is a per-player game command.
type MsgClPlayerMsg struct {
	PlayerID game.PlayerID `json:"playerId"`
	Kind     PlayerMsgKind `json:"kind"`

	// Chat
	ChatMode ChatMode      `json:"chatMode,omitempty"`
	ChatText string        `json:"chatText,omitempty"`
	Whisper  game.PlayerID `json:"whisperTo,omitempty"`

	// Join stage
	StageName  string   `json:"stageName,omitempty"`
	OwnStage   bool     `json:"ownStage,omitempty"`
	StageColor [3]uint8 `json:"stageColor,omitempty"`

	Side     uint8 `json:"side,omitempty"`
	Camera   uint8 `json:"camera,omitempty"`
	Emoticon uint8 `json:"emoticon,omitempty"`
	Eye      uint8 `json:"eye,omitempty"`

	// Vote start / cast
	VoteKind   VoteStartKind `json:"voteKind,omitempty"`
	VoteTarget game.PlayerID `json:"voteTarget,omitempty"`
	VoteMap    string        `json:"voteMap,omitempty"`
	VoteMisc   string        `json:"voteMisc,omitempty"`
	VoteYes    bool          `json:"voteYes,omitempty"`

	// Update info
	Info        CharacterInfo `json:"info,omitempty"`
	InfoVersion uint64        `json:"infoVersion,omitempty"`

	// Rcon exec
	RconName string   `json:"rconName,omitempty"`
	RconArgs []string `json:"rconArgs,omitempty"`
}

// MsgClLoadVotes asks for the vote catalogue.
type MsgClLoadVotes struct {
	Kind       string `json:"kind"` // "map" or "misc"
	CachedHash []byte `json:"cachedHash,omitempty"`
}

// MsgClAccountChangeName renames the account.
type MsgClAccountChangeName struct {
	NewName string `json:"newName"`
}

// ServerOptions is the subset of game options the client needs.
type ServerOptions struct {
	MaxIngame    int   `json:"maxIngame"`
	FriendlyFire bool  `json:"friendlyFire"`
	Sided        bool  `json:"sided"`
	ScoreLimit   int64 `json:"scoreLimit"`
	TimeLimit    int   `json:"timeLimitSecs"`
}

// MsgSvServerInfo is sent once the transport is established, and again as a
// Load on map change.
type MsgSvServerInfo struct {
	Map               string        `json:"map"`
	MapHash           []byte        `json:"mapHash"`
	RequiredResources []string      `json:"requiredResources,omitempty"`
	GameMod           string        `json:"gameMod"`
	RenderMod         string        `json:"renderMod"`
	ModConfig         []byte        `json:"modConfig,omitempty"`
	ResourceFallback  string        `json:"resourceFallback,omitempty"`
	StartCameraPos    [2]float64    `json:"startCameraPos"`
	Options           ServerOptions `json:"options"`
	SpatialChat       bool          `json:"spatialChat"`
	// Overhead is the server's wall-clock handling delay estimate.
	OverheadMS int64 `json:"overheadMs"`
}

// MsgSvQueueInfo tells a queued connection its position.
type MsgSvQueueInfo struct {
	Text string `json:"text"`
}

// ReadyResponseKind is the outcome of a Ready handshake.
type ReadyResponseKind string

const (
	ReadySuccess        ReadyResponseKind = "success"
	ReadyPartialSuccess ReadyResponseKind = "partial_success"
	ReadyError          ReadyResponseKind = "error"
)

// ReadyErrorKind explains a failed handshake.
type ReadyErrorKind string

const (
	ReadyErrClientAlreadyReady ReadyErrorKind = "client_already_ready"
	ReadyErrServerFull         ReadyErrorKind = "server_full"
)

// JoinedID maps a client slot to the authoritative player id.
type JoinedID struct {
	Slot     uint64        `json:"slot"`
	PlayerID game.PlayerID `json:"playerId"`
}

// MsgSvReadyResponse answers a Ready.
type MsgSvReadyResponse struct {
	Kind         ReadyResponseKind `json:"kind"`
	Joined       []JoinedID        `json:"joined,omitempty"`
	ErrorKind    ReadyErrorKind    `json:"errorKind,omitempty"`
	NonJoined    []uint64          `json:"nonJoined,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}

// MsgSvSnapshot carries one snapshot, full or as a diff against an acked
// baseline.
type MsgSvSnapshot struct {
	SnapID uint64 `json:"snapId"`
	// AsDiff: Data is a binary patch against DiffID's snapshot.
	AsDiff bool    `json:"asDiff"`
	DiffID *uint64 `json:"diffId,omitempty"`
	Data   []byte  `json:"data"`
	// GameMonotonicTickDiff holds the absolute monotonic tick of this
	// snapshot, for full and diffed snapshots alike; no delta against the
	// baseline's tick is sent.
	GameMonotonicTickDiff uint64 `json:"tickDiff"`
	// OverheadTimeMS is the server-side delay between tick and send.
	OverheadTimeMS int64 `json:"overheadMs"`
	// InputAck acknowledges processed input message ids with the server's
	// logic overhead at processing time.
	InputAck []InputAck `json:"inputAck,omitempty"`
}

// InputAck acknowledges one inputs message.
type InputAck struct {
	ID uint64 `json:"id"`
	// LogicOverheadMS is the wall-clock delta between receipt and tick
	// application.
	LogicOverheadMS int64 `json:"logicOverheadMs"`
}

// WireEvent is a world event for the client.
type WireEvent struct {
	ID      uint64     `json:"id"`
	Kind    uint8      `json:"kind"`
	X       int32      `json:"x"`
	Y       int32      `json:"y"`
	Killer  game.PlayerID `json:"killer,omitempty"`
	Victim  game.PlayerID `json:"victim,omitempty"`
	Player  game.PlayerID `json:"player,omitempty"`
	Weapon  uint8      `json:"weapon,omitempty"`
	Text    string     `json:"text,omitempty"`
}

// MsgSvEvents carries the world events of one tick, grouped by stage.
type MsgSvEvents struct {
	GameMonotonicTick uint64                        `json:"tick"`
	Events            map[game.StageID][]WireEvent  `json:"events"`
}

// MsgSvChat is a routed chat line.
type MsgSvChat struct {
	Mode ChatMode      `json:"mode"`
	From game.PlayerID `json:"from"`
	Name string        `json:"name"`
	Text string        `json:"text"`
}

// VoteState mirrors the active vote for clients. A nil state in MsgSvVote
// means the vote ended.
type VoteState struct {
	Description  string `json:"description"`
	Yes          int    `json:"yes"`
	No           int    `json:"no"`
	Allowed      int    `json:"allowed"`
	RemainingSec int    `json:"remainingSec"`
}

// MsgSvVote broadcasts vote progress.
type MsgSvVote struct {
	State *VoteState `json:"state,omitempty"`
}

// StartVoteResult is the server's answer to a start_vote.
type StartVoteResult string

const (
	StartVoteOK              StartVoteResult = "ok"
	StartVoteAnotherActive   StartVoteResult = "another_vote_active"
	StartVoteSpectator       StartVoteResult = "spectators_cannot_vote"
	StartVoteSelfVote        StartVoteResult = "cannot_vote_self"
	StartVoteTargetImmune    StartVoteResult = "target_cannot_be_kicked"
	StartVoteUnknownTarget   StartVoteResult = "unknown_target"
	StartVoteRateLimited     StartVoteResult = "rate_limited"
)

// MsgSvStartVoteResult answers the initiating client.
type MsgSvStartVoteResult struct {
	Result StartVoteResult `json:"result"`
}

// MsgSvRconCommands publishes the command catalogue for tab completion.
type MsgSvRconCommands struct {
	Commands []string `json:"commands"`
}

// MsgSvRconExecResult returns command output lines.
type MsgSvRconExecResult struct {
	Results []string `json:"results"`
}

// VoteListEntry is one selectable vote.
type VoteListEntry struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Command  string `json:"command"`
}

// MsgSvLoadVote delivers the vote catalogue.
type MsgSvLoadVote struct {
	Kind    string          `json:"kind"`
	Hash    []byte          `json:"hash"`
	Entries []VoteListEntry `json:"entries,omitempty"`
	// Cached is set when the client's hash matched and Entries is empty.
	Cached bool `json:"cached"`
}

// CheckChat validates a chat text against the protocol bound.
func CheckChat(text string) error {
	if len(text) > MaxChatLen {
		return ErrMessageBounds
	}
	return nil
}
