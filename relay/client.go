package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/echolock/echolock/internal/common"
)

// client wraps one relay's websocket connection and speaks the wire
// verbs from spec.md §4.3: PUBLISH/SUBSCRIBE/CLOSE outbound,
// OK/EVENT/EOSE/NOTICE inbound.
type client struct {
	url  string
	conn *websocket.Conn
}

func dial(ctx context.Context, url string) (*client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, common.NewError(common.KindRelayUnreachable, "dialing relay "+url, err)
	}
	return &client{url: url, conn: conn}, nil
}

func (c *client) close() {
	_ = c.conn.WriteMessage(websocket.TextMessage, mustJSON([]interface{}{"CLOSE", ""}))
	_ = c.conn.Close()
}

// publish sends an event and waits for its OK response, or ctx's
// deadline, whichever comes first.
func (c *client) publish(ctx context.Context, e *Event) error {
	frame, err := json.Marshal([]interface{}{"PUBLISH", e})
	if err != nil {
		return common.NewError(common.KindIo, "encoding PUBLISH frame", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		_ = c.conn.SetReadDeadline(deadline)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return common.NewError(common.KindRelayUnreachable, "writing PUBLISH frame", err)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return common.NewError(common.KindRelayUnreachable, "reading relay response", err)
		}
		verb, rest, err := splitFrame(data)
		if err != nil {
			continue
		}
		switch verb {
		case "OK":
			var resp struct {
				ID      string `json:"id"`
				Accepted bool  `json:"accepted"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(rest, &resp); err != nil {
				continue
			}
			if !resp.Accepted {
				return common.NewError(common.KindRelayRejected, resp.Message, nil)
			}
			return nil
		case "NOTICE":
			continue
		default:
			continue
		}
	}
}

// subscribe sends a SUBSCRIBE frame and streams EVENT frames to out
// until EOSE, ctx cancellation, or a read error.
func (c *client) subscribe(ctx context.Context, subID string, filter Filter, out chan<- *Event) error {
	frame, err := json.Marshal([]interface{}{"SUBSCRIBE", subID, filter.toWire()})
	if err != nil {
		return common.NewError(common.KindIo, "encoding SUBSCRIBE frame", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		_ = c.conn.SetReadDeadline(deadline)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return common.NewError(common.KindRelayUnreachable, "writing SUBSCRIBE frame", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return common.NewError(common.KindRelayUnreachable, "reading relay response", err)
		}
		verb, rest, err := splitFrame(data)
		if err != nil {
			continue
		}
		switch verb {
		case "EVENT":
			var payload struct {
				SubID string `json:"sub_id"`
				Event *Event `json:"event"`
			}
			if err := json.Unmarshal(rest, &payload); err != nil || payload.Event == nil {
				continue
			}
			select {
			case out <- payload.Event:
			case <-ctx.Done():
				return nil
			}
		case "EOSE":
			return nil
		case "NOTICE":
			continue
		default:
			continue
		}
	}
}

// splitFrame unwraps the ["VERB", ...rest] envelope every server
// frame is sent in, re-marshalling the remainder for the verb's own
// struct to consume.
func splitFrame(data []byte) (verb string, rest []byte, err error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 1 {
		return "", nil, common.NewError(common.KindIo, "decoding relay frame", err)
	}
	if err := json.Unmarshal(raw[0], &verb); err != nil {
		return "", nil, common.NewError(common.KindIo, "decoding relay frame verb", err)
	}
	combined := map[string]json.RawMessage{}
	switch verb {
	case "OK":
		if len(raw) >= 3 {
			var id string
			_ = json.Unmarshal(raw[1], &id)
			combined["id"], _ = json.Marshal(id)
		}
		if len(raw) >= 3 {
			combined["accepted"] = raw[2]
		}
		if len(raw) >= 4 {
			combined["message"] = raw[3]
		}
	case "EVENT":
		if len(raw) >= 2 {
			var subID string
			_ = json.Unmarshal(raw[1], &subID)
			combined["sub_id"], _ = json.Marshal(subID)
		}
		if len(raw) >= 3 {
			combined["event"] = raw[2]
		}
	}
	rest, _ = json.Marshal(combined)
	return verb, rest, nil
}

func mustJSON(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
