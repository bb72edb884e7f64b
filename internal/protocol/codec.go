package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

var ErrUnknownType = errors.New("unknown message type")

type envelope struct {
	Type     Type `json:"type"`
	Contents any  `json:"contents,omitempty"`
}

var decoders = map[Type]func(contents any) (Message, error){
	TypeAnnounce:         decodeAs[Announce],
	TypeRosterSnapshot:   decodeAs[RosterSnapshot],
	TypeAddDelta:         decodeAs[AddDelta],
	TypeRemoveDelta:      decodeAs[RemoveDelta],
	TypeReadyDelta:       decodeAs[ReadyDelta],
	TypeCharacterDelta:   decodeAs[CharacterDelta],
	TypeKickRequest:      decodeAs[KickRequest],
	TypeKickNotice:       decodeAs[KickNotice],
	TypeChatRequest:      decodeAs[ChatRequest],
	TypeChatRelay:        decodeAs[ChatRelay],
	TypeStartGameRequest: decodeAs[StartGameRequest],
	TypePhaseChange:      decodeAs[PhaseChange],
}

func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(envelope{Type: m.MessageType(), Contents: m})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	return data, nil
}

// Decode parses an envelope and returns the typed message it carries.
// Numbers are kept as json.Number so 64-bit session ids survive intact.
func Decode(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	decode, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return decode(env.Contents)
}

func decodeAs[T Message](contents any) (Message, error) {
	var msg T
	cfg := &mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &msg,
	}
	dec, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(contents); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.MessageType(), err)
	}
	return msg, nil
}
