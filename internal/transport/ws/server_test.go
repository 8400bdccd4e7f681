package ws

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"biomelevel.ai/internal/level/world"
	"biomelevel.ai/internal/persistence/store"
	"biomelevel.ai/internal/protocol"
	"biomelevel.ai/internal/tuning"
)

func dial(t *testing.T) *websocket.Conn {
	t.Helper()
	tune := tuning.Defaults()
	st, err := store.Open(t.TempDir(), tune, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	srv := httptest.NewServer(NewServer(st, tune, log.New(io.Discard, "", 0)).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, req string) map[string]json.RawMessage {
	t.Helper()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(req)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return m
}

func str(t *testing.T, m map[string]json.RawMessage, k string) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(m[k], &s); err != nil {
		t.Fatalf("field %q: %v (%s)", k, err, m[k])
	}
	return s
}

const legacyWorld = `{"metadata":{"name":"lagoon","world_size":4,"format_version":2},"layers":[
	{"layer_type":"terrain","palette":["#1e90ff","#e3c16f"],"color_data":[[0,5],[1,11]]},
	{"layer_type":"hazard","color_data":[{"color":"none","count":16}]}]}`

func TestServer_SaveLoadList(t *testing.T) {
	conn := dial(t)

	saved := roundTrip(t, conn, `{"type":"SAVE_LEVEL","protocol_version":"1.0","req_id":"s1","world":`+legacyWorld+`}`)
	if str(t, saved, "type") != protocol.TypeSaved || str(t, saved, "req_id") != "s1" || str(t, saved, "name") != "lagoon" {
		t.Fatalf("save reply: %v", saved)
	}
	digest := str(t, saved, "digest")

	level := roundTrip(t, conn, `{"type":"LOAD_LEVEL","protocol_version":"1.0","req_id":"l1","name":"lagoon"}`)
	if str(t, level, "type") != protocol.TypeLevel || str(t, level, "digest") != digest {
		t.Fatalf("load reply: %v", level)
	}
	var c world.Container
	if err := json.Unmarshal(level["world"], &c); err != nil {
		t.Fatalf("decode world: %v", err)
	}
	stats, err := world.Stats(&c)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 || stats[0].ShapeName != "rle-base64" || stats[0].Runs != 2 {
		t.Fatalf("stats=%+v", stats)
	}

	levels := roundTrip(t, conn, `{"type":"LIST_LEVELS","protocol_version":"1.0"}`)
	var list []protocol.LevelSummary
	if err := json.Unmarshal(levels["levels"], &list); err != nil {
		t.Fatalf("levels: %v", err)
	}
	if len(list) != 1 || list[0].Name != "lagoon" || list[0].Digest != digest {
		t.Fatalf("levels=%+v", list)
	}
}

func TestServer_Errors(t *testing.T) {
	conn := dial(t)

	cases := []struct {
		name string
		req  string
		code string
	}{
		{"bad json", `{`, protocol.ErrBadRequest},
		{"bad version", `{"type":"LIST_LEVELS","protocol_version":"0.1"}`, protocol.ErrBadRequest},
		{"unknown type", `{"type":"DELETE_LEVEL","protocol_version":"1.0"}`, protocol.ErrBadRequest},
		{"missing level", `{"type":"LOAD_LEVEL","protocol_version":"1.0","name":"nowhere"}`, protocol.ErrNotFound},
		{"bad name", `{"type":"LOAD_LEVEL","protocol_version":"1.0","name":"../etc"}`, protocol.ErrBadRequest},
		{"truncated", `{"type":"SAVE_LEVEL","protocol_version":"1.0","world":{"metadata":{"name":"t"},"layers":[
			{"layer_type":"terrain","palette":["a"],"encoding":"rle-base64-v1","width":4,"height":4,"data_b64":"Hw=="}]}}`, protocol.ErrTruncated},
		{"unsupported", `{"type":"SAVE_LEVEL","protocol_version":"1.0","world":{"metadata":{"name":"t"},"layers":[
			{"layer_type":"terrain","palette":["a"],"encoding":"rle-base64-v2","width":4,"height":4,"data_b64":"EA=="}]}}`, protocol.ErrUnsupportedEncoding},
		{"shape mismatch", `{"type":"SAVE_LEVEL","protocol_version":"1.0","world":{"metadata":{"name":"t","world_size":4},"layers":[
			{"layer_type":"terrain","color_data":[{"color":"a","count":15}]}]}}`, protocol.ErrShapeMismatch},
		{"index out of range", `{"type":"SAVE_LEVEL","protocol_version":"1.0","world":{"metadata":{"name":"t"},"layers":[
			{"layer_type":"terrain","palette":["a"],"encoding":"rle-base64-v1","width":4,"height":4,"data_b64":"8A=="}]}}`, protocol.ErrBadEncoding},
	}
	for _, tc := range cases {
		m := roundTrip(t, conn, tc.req)
		if str(t, m, "type") != protocol.TypeError {
			t.Fatalf("%s: reply %v", tc.name, m)
		}
		if got := str(t, m, "code"); got != tc.code {
			t.Fatalf("%s: code=%s want %s (%s)", tc.name, got, tc.code, m["message"])
		}
	}
}
