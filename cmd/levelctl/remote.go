package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"

	"biomelevel.ai/internal/level/world"
	"biomelevel.ai/internal/persistence/snapshot"
	"biomelevel.ai/internal/protocol"
)

const defaultURL = "ws://localhost:8080/v1/levels"

// request sends one message and waits for its reply. ERROR replies become errors.
func request(url string, req any, resp any) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if base.Type == protocol.TypeError {
		var e protocol.ErrorMsg
		_ = json.Unmarshal(msg, &e)
		return fmt.Errorf("%s: %s", e.Code, e.Message)
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return json.Unmarshal(msg, resp)
}

func pushCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("push", flag.ExitOnError)
	url := fs.String("url", defaultURL, "level service ws url")
	name := fs.String("name", "", "override metadata.name")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("want: push [-url u] [-name n] <level>")
	}
	_, c, err := readLevel(fs.Arg(0))
	if err != nil {
		return err
	}
	if *name != "" {
		c.Metadata.Name = *name
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var saved protocol.SavedMsg
	err = request(*url, protocol.SaveLevelMsg{
		Type:            protocol.TypeSaveLevel,
		ProtocolVersion: protocol.Version,
		World:           raw,
	}, &saved)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "saved %s digest=%s layers=%d archived_revision=%d\n", saved.Name, saved.Digest, saved.Layers, saved.Revision)
	return nil
}

func pullCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("pull", flag.ExitOnError)
	url := fs.String("url", defaultURL, "level service ws url")
	out := fs.String("o", "", "output path (.json or .level.zst; default: <name>.level.zst)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("want: pull [-url u] [-o out] <name>")
	}
	var lv protocol.LevelMsg
	err := request(*url, protocol.LoadLevelMsg{
		Type:            protocol.TypeLoadLevel,
		ProtocolVersion: protocol.Version,
		Name:            fs.Arg(0),
	}, &lv)
	if err != nil {
		return err
	}
	var c world.Container
	if err := json.Unmarshal(lv.World, &c); err != nil {
		return err
	}
	if got, err := world.Digest(&c); err != nil || got != lv.Digest {
		return fmt.Errorf("digest mismatch: server %s, received %s (%v)", lv.Digest, got, err)
	}
	path := *out
	if path == "" {
		path = fs.Arg(0) + snapshot.Ext
	}
	if err := writeLevel(path, &c); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s digest=%s\n", path, lv.Digest)
	return nil
}

func lsCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	url := fs.String("url", defaultURL, "level service ws url")
	limit := fs.Int("limit", 0, "max levels (0: server default)")
	_ = fs.Parse(args)

	var resp protocol.LevelsMsg
	err := request(*url, protocol.ListLevelsMsg{
		Type:            protocol.TypeListLevels,
		ProtocolVersion: protocol.Version,
		Limit:           *limit,
	}, &resp)
	if err != nil {
		return err
	}
	for _, l := range resp.Levels {
		printJSON(w, l)
	}
	return nil
}
