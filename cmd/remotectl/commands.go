package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/Zereker/comm/data"
	"github.com/Zereker/comm/serial"
)

type command struct {
	id   int32
	rec  serial.Serializable
	quit bool
}

var controls = map[string]int32{
	"pp":         data.IDCtrlPlayPause,
	"play":       data.IDCtrlPlayPause,
	"pause":      data.IDCtrlPlayPause,
	"next":       data.IDCtrlNext,
	"prev":       data.IDCtrlPrev,
	"repeat":     data.IDCtrlRepeat,
	"shuffle":    data.IDCtrlShuffle,
	"fullscreen": data.IDCtrlFullscreen,
}

// controls taking a numeric parameter
var paramControls = map[string]int32{
	"seek": data.IDCtrlSeek,
	"vol":  data.IDCtrlVolume,
	"rate": data.IDCtrlRate,
	"nav":  data.IDCtrlNavigate,
}

var requests = map[string]int32{
	"playlist": data.IDReqPlaylist,
	"queue":    data.IDReqQueue,
	"mlib":     data.IDReqMediaLib,
	"files":    data.IDReqFiles,
}

// parseCommand turns a line typed by the user into a message. Empty lines
// yield the zero command.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, nil
	}
	name, args := fields[0], fields[1:]

	if id, ok := controls[name]; ok {
		return command{id: id, rec: &data.Control{}}, nil
	}

	if id, ok := paramControls[name]; ok {
		if len(args) != 1 {
			return command{}, errors.Errorf("usage: %s <number>", name)
		}
		n, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil {
			return command{}, errors.Errorf("%s: bad number %q", name, args[0])
		}
		return command{id: id, rec: &data.Control{Param: int32(n)}}, nil
	}

	if id, ok := requests[name]; ok {
		req := &data.Request{}
		for _, arg := range args {
			if page, err := strconv.ParseInt(arg, 10, 32); err == nil {
				req.Page = int32(page)
			} else {
				req.Path = append(req.Path, arg)
			}
		}
		return command{id: id, rec: req}, nil
	}

	switch name {
	case "item":
		if len(args) != 1 {
			return command{}, errors.New("usage: item <id>")
		}
		return command{id: data.IDReqItem, rec: &data.Request{ID: args[0]}}, nil
	case "search":
		if len(args) == 0 {
			return command{}, errors.New("usage: search <terms>")
		}
		return command{id: data.IDReqSearch, rec: &data.Request{Path: args}}, nil
	case "tag":
		if len(args) < 1 {
			return command{}, errors.New("usage: tag <item id> [tags]")
		}
		return command{id: data.IDCtrlTag, rec: &data.Tag{ItemID: args[0], Tags: strings.Join(args[1:], ",")}}, nil
	case "sleep":
		return command{id: data.IDConnSleep}, nil
	case "wakeup":
		return command{id: data.IDConnWakeup}, nil
	case "quit", "exit":
		return command{quit: true}, nil
	}
	return command{}, errors.Errorf("unknown command %q", name)
}
