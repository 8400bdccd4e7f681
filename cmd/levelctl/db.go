package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"biomelevel.ai/internal/persistence/log"
)

func dbCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index.sqlite)")
	level := fs.String("level", "", "level name filter (layers, events, revisions)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "levels"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	switch q {
	case "levels":
		rows, err := db.Query(`SELECT name,digest,path,world_size,layers,format_version,saved_at FROM levels ORDER BY name LIMIT ?`, *limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name          string `json:"name"`
				Digest        string `json:"digest"`
				Path          string `json:"path"`
				WorldSize     int    `json:"world_size"`
				Layers        int    `json:"layers"`
				FormatVersion int    `json:"format_version"`
				SavedAt       string `json:"saved_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.Path, &r.WorldSize, &r.Layers, &r.FormatVersion, &r.SavedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "layers":
		rows, err := db.Query(`SELECT level,layer_type,shape,width,height,palette_size,runs,payload_len FROM layers
			WHERE (?='' OR level=?) ORDER BY level,layer_type LIMIT ?`, *level, *level, *limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Level       string `json:"level"`
				LayerType   string `json:"layer_type"`
				Shape       string `json:"shape"`
				Width       int    `json:"width"`
				Height      int    `json:"height"`
				PaletteSize int    `json:"palette_size"`
				Runs        int    `json:"runs"`
				PayloadLen  int    `json:"payload_len"`
			}
			if err := rows.Scan(&r.Level, &r.LayerType, &r.Shape, &r.Width, &r.Height, &r.PaletteSize, &r.Runs, &r.PayloadLen); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "events":
		rows, err := db.Query(`SELECT seq,time,op,level,digest,remote,error FROM events
			WHERE (?='' OR level=?) ORDER BY seq DESC LIMIT ?`, *level, *level, *limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq    int64          `json:"seq"`
				Time   string         `json:"time"`
				Op     string         `json:"op"`
				Level  sql.NullString `json:"level"`
				Digest sql.NullString `json:"digest"`
				Remote sql.NullString `json:"remote"`
				Error  sql.NullString `json:"error"`
			}
			if err := rows.Scan(&r.Seq, &r.Time, &r.Op, &r.Level, &r.Digest, &r.Remote, &r.Error); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, log.AuditEntry{
				Time:   r.Time,
				Op:     r.Op,
				Level:  r.Level.String,
				Digest: r.Digest.String,
				Remote: r.Remote.String,
				Error:  r.Error.String,
			})
		}
		return rows.Err()

	case "revisions":
		rows, err := db.Query(`SELECT level,revision,path,recorded_at FROM revisions
			WHERE (?='' OR level=?) ORDER BY level,revision DESC LIMIT ?`, *level, *level, *limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Level      string `json:"level"`
				Revision   int    `json:"revision"`
				Path       string `json:"path"`
				RecordedAt string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Level, &r.Revision, &r.Path, &r.RecordedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query %q (levels, layers, events, revisions)", q)
	}
}

func auditCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	level := fs.String("level", "", "level name filter")
	_ = fs.Parse(args)

	files, err := log.AuditFiles(*dataDir)
	if err != nil {
		return err
	}
	for _, f := range files {
		entries, err := log.ReadAudit(f)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if *level != "" && e.Level != *level {
				continue
			}
			printJSON(w, e)
		}
	}
	return nil
}
