// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package control

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrProtocolViolation is returned for any input that is not one of the
// messages defined in this package.
var ErrProtocolViolation = errors.New("control protocol violation")

// Wire actions.
const (
	ActionClose   = "close"
	ActionReady   = "ready"
	ActionRestart = "restart"
	ActionCrash   = "crash"
)

// Message is one of Close, Ready, RestartNotice or SimulatedCrash. The set is
// closed: the unexported method keeps other packages from adding members.
type Message interface {
	Action() string
	sealed()
}

// Close asks the worker to shut down and exit with Code.
type Close struct {
	Code int
}

// Ready tells the supervisor that every listener is bound.
type Ready struct{}

// RestartNotice tells the supervisor the worker is exiting on purpose and
// wants to be started again.
type RestartNotice struct{}

// SimulatedCrash asks a debug-mode worker to panic.
type SimulatedCrash struct{}

func (Close) Action() string          { return ActionClose }
func (Ready) Action() string          { return ActionReady }
func (RestartNotice) Action() string  { return ActionRestart }
func (SimulatedCrash) Action() string { return ActionCrash }

func (Close) sealed()          {}
func (Ready) sealed()          {}
func (RestartNotice) sealed()  {}
func (SimulatedCrash) sealed() {}

// envelope is the JSON form of every message. Code is a pointer so that a
// close without a code can be told apart from close with code 0.
type envelope struct {
	Action string `json:"action"`
	Code   *int   `json:"code,omitempty"`
}

// Encode renders m as a single JSON object without a trailing newline.
func Encode(m Message) ([]byte, error) {
	env := envelope{Action: m.Action()}
	if c, ok := m.(Close); ok {
		code := c.Code
		env.Code = &code
	}
	return json.Marshal(env)
}

// Decode parses one JSON object. Anything that is not exactly a known
// message yields an error wrapping ErrProtocolViolation.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed message %q: %v", ErrProtocolViolation, truncate(data), err)
	}

	switch env.Action {
	case ActionClose:
		if env.Code == nil {
			return nil, fmt.Errorf("%w: close without code", ErrProtocolViolation)
		}
		return Close{Code: *env.Code}, nil
	case ActionReady:
		return Ready{}, nil
	case ActionRestart:
		return RestartNotice{}, nil
	case ActionCrash:
		return SimulatedCrash{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrProtocolViolation, env.Action)
	}
}

func truncate(b []byte) string {
	const limit = 64
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
