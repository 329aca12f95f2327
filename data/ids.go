// Package data defines the message ids of the remote-control protocol, the
// record schema bound to each id, and the records themselves.
package data

import "strconv"

// Connection management.
const (
	// IDIgnore marks a message that carries nothing to interpret. The framer
	// also substitutes it for payloads it had to drain.
	IDIgnore int32 = 0
	// IDConnPlayerInfo carries the server's PlayerInfo during the handshake.
	IDConnPlayerInfo int32 = 1
	// IDConnClientInfo carries the client's ClientInfo during the handshake.
	IDConnClientInfo int32 = 2
	// IDConnSleep asks the server to pause updates.
	IDConnSleep int32 = 3
	// IDConnWakeup resumes updates after IDConnSleep.
	IDConnWakeup int32 = 4
	// IDConnBye announces a shutdown by the sending side.
	IDConnBye int32 = 5
)

// Player state synchronization, server to client.
const (
	IDSyncState    int32 = 100
	IDSyncProgress int32 = 101
	IDSyncItem     int32 = 102
)

// Player control, client to server.
const (
	IDCtrlPlayPause  int32 = 200
	IDCtrlNext       int32 = 201
	IDCtrlPrev       int32 = 202
	IDCtrlSeek       int32 = 203
	IDCtrlVolume     int32 = 204
	IDCtrlRepeat     int32 = 205
	IDCtrlShuffle    int32 = 206
	IDCtrlRate       int32 = 207
	IDCtrlTag        int32 = 208
	IDCtrlNavigate   int32 = 209
	IDCtrlFullscreen int32 = 210
)

// Actions on items of a list, client to server.
const (
	IDActPlaylist int32 = 300
	IDActQueue    int32 = 301
	IDActMediaLib int32 = 302
	IDActFiles    int32 = 303
	IDActSearch   int32 = 304
)

// List requests. The client sends a Request and the server answers with an
// ItemList under the same id.
const (
	IDReqItem     int32 = 400
	IDReqPlaylist int32 = 401
	IDReqQueue    int32 = 402
	IDReqMediaLib int32 = 403
	IDReqFiles    int32 = 404
	IDReqSearch   int32 = 405
)

var idNames = map[int32]string{
	IDIgnore:         "ignore",
	IDConnPlayerInfo: "conn/pinfo",
	IDConnClientInfo: "conn/cinfo",
	IDConnSleep:      "conn/sleep",
	IDConnWakeup:     "conn/wakeup",
	IDConnBye:        "conn/bye",
	IDSyncState:      "sync/state",
	IDSyncProgress:   "sync/progress",
	IDSyncItem:       "sync/item",
	IDCtrlPlayPause:  "ctrl/playpause",
	IDCtrlNext:       "ctrl/next",
	IDCtrlPrev:       "ctrl/prev",
	IDCtrlSeek:       "ctrl/seek",
	IDCtrlVolume:     "ctrl/volume",
	IDCtrlRepeat:     "ctrl/repeat",
	IDCtrlShuffle:    "ctrl/shuffle",
	IDCtrlRate:       "ctrl/rate",
	IDCtrlTag:        "ctrl/tag",
	IDCtrlNavigate:   "ctrl/navigate",
	IDCtrlFullscreen: "ctrl/fullscreen",
	IDActPlaylist:    "act/playlist",
	IDActQueue:       "act/queue",
	IDActMediaLib:    "act/mlib",
	IDActFiles:       "act/files",
	IDActSearch:      "act/search",
	IDReqItem:        "req/item",
	IDReqPlaylist:    "req/playlist",
	IDReqQueue:       "req/queue",
	IDReqMediaLib:    "req/mlib",
	IDReqFiles:       "req/files",
	IDReqSearch:      "req/search",
}

// IDName returns a short name for id, for logs.
func IDName(id int32) string {
	if name, ok := idNames[id]; ok {
		return name
	}
	return "id/" + strconv.Itoa(int(id))
}
