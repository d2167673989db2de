package srt

import (
	"errors"
	"fmt"
	"strings"

	srtgo "github.com/zsiec/srtgo"
)

var (
	errBadStreamID = errors.New("srt: malformed stream id")
	errBadMode     = errors.New("srt: only publishing is accepted")
)

// publication is what a publisher's stream id asks for.
type publication struct {
	Key string // registry key, played as ingest://<key>

	// Pair and Eye are set when the key names one view of a stereo pair,
	// e.g. "studio/left" is the left eye of pair "studio".
	Pair string
	Eye  string
}

// partner returns the registry key of the other view of the pair, or ""
// when p is not part of a pair.
func (p publication) partner() string {
	if p.Eye == "" {
		return ""
	}
	other := "right"
	if p.Eye == "right" {
		other = "left"
	}
	return strings.TrimSuffix(p.Key, p.Eye) + other
}

// parseStreamID accepts a plain stream id such as "/live/cam1" and the SRT
// access control form "#!::r=cam1,m=publish". An empty resource maps to
// the key "default".
func parseStreamID(id string) (publication, error) {
	resource := id
	if body, ok := strings.CutPrefix(id, "#!::"); ok {
		resource = ""
		for _, kv := range strings.Split(body, ",") {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return publication{}, fmt.Errorf("%w: %q", errBadStreamID, kv)
			}
			switch k {
			case "r":
				resource = v
			case "m":
				if v != "publish" {
					return publication{}, fmt.Errorf("%w: mode %q", errBadMode, v)
				}
			}
		}
	}

	key := strings.TrimPrefix(resource, "/")
	key = strings.TrimPrefix(key, "live/")
	if key == "" {
		key = "default"
	}
	p := publication{Key: key}

	// The eye is the last path element.
	pair, eye := "", key
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		pair, eye = key[:i], key[i+1:]
	}
	if (eye == "left" || eye == "right") && pair != "" {
		p.Pair, p.Eye = pair, eye
	}
	return p, nil
}

// rejectReason is the handshake rejection for a stream id, or 0 to accept.
func rejectReason(id string) srtgo.RejectReason {
	if id == "" {
		return srtgo.RejPeer
	}
	_, err := parseStreamID(id)
	switch {
	case errors.Is(err, errBadMode):
		return srtgo.RejXBadMode
	case err != nil:
		return srtgo.RejXBadRequest
	}
	return 0
}
