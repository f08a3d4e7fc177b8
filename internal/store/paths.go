package store

import "strings"

// Collection names under room/{code}.
const (
	CollectionPlayers      = "players"
	CollectionSettings     = "settings"
	CollectionGameState    = "gameState"
	CollectionVotes        = "votes"
	CollectionNightActions = "nightActions"
	CollectionDeathLog     = "deathLog"
	CollectionVoteHistory  = "voteHistory"
)

// GameCollections are cleared together on a reset.
var GameCollections = []string{
	CollectionVotes,
	CollectionNightActions,
	CollectionDeathLog,
	CollectionVoteHistory,
}

// RoomPath is the room metadata document.
func RoomPath(code string) string {
	return "room/" + code
}

// RoomCollection is a collection nested under the room document.
func RoomCollection(code, collection string) string {
	return RoomPath(code) + "/" + collection
}

// RoomDoc is one document of a room collection.
func RoomDoc(code, collection, id string) string {
	return RoomCollection(code, collection) + "/" + id
}

// PlayerPath is a player document.
func PlayerPath(code, playerID string) string {
	return RoomDoc(code, CollectionPlayers, playerID)
}

// SettingsPath is the single settings document.
func SettingsPath(code string) string {
	return RoomDoc(code, CollectionSettings, "main")
}

// GameStatePath is the single authoritative phase record.
func GameStatePath(code string) string {
	return RoomDoc(code, CollectionGameState, "current")
}

// TimerKey is the ephemeral countdown of a room.
func TimerKey(code string) string {
	return "timers/" + code
}

// PresenceKey is the ephemeral heartbeat of a player.
func PresenceKey(code, playerID string) string {
	return "presence/" + code + "/" + playerID
}

// Split separates a document path into its collection and document ID.
func Split(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
