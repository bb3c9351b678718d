package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type snapshotRow struct {
	Tick         int64  `json:"tick"`
	Path         string `json:"path"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Digest       string `json:"digest"`
	EditsApplied int64  `json:"edits_applied"`
	CreatedAt    string `json:"created_at"`
}

type tickRow struct {
	Tick       int64  `json:"tick"`
	Digest     string `json:"digest"`
	Edits      int    `json:"edits"`
	Moves      int    `json:"moves"`
	Explosions int    `json:"explosions"`
	Writes     int    `json:"writes"`
}

type editRow struct {
	Tick   int64  `json:"tick"`
	Seq    int    `json:"seq"`
	Y      int    `json:"y"`
	X      int    `json:"x"`
	Glyph  string `json:"glyph"`
	Source string `json:"source"`
}

type auditRow struct {
	Tick   int64  `json:"tick"`
	Seq    int    `json:"seq"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Y      int    `json:"y"`
	X      int    `json:"x"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type dbQuery struct {
	Since, To uint64
	Cell      *[2]int
	Limit     int
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	since := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	to := fs.Uint64("to_tick", 0, "last tick (inclusive, 0 = no limit)")
	cell := fs.String("cell", "", "y,x filter (edits, audits)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	what := "snapshots"
	if fs.NArg() > 0 {
		what = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	q := dbQuery{Since: *since, To: *to, Limit: *limit}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if strings.TrimSpace(*cell) != "" {
		c, err := parseCell(*cell)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -cell:", err)
			os.Exit(2)
		}
		q.Cell = &c
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var rows []any
	switch what {
	case "snapshots":
		rows, err = collect(querySnapshots(db, q))
	case "ticks":
		rows, err = collect(queryTicks(db, q))
	case "edits":
		rows, err = collect(queryEdits(db, q))
	case "audits":
		rows, err = collect(queryAudits(db, q))
	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (snapshots|ticks|edits|audits)\n", what)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

func collect[T any](rows []T, err error) ([]any, error) {
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i := range rows {
		out[i] = rows[i]
	}
	return out, nil
}

// upper returns the inclusive upper tick bound; 0 means open-ended.
func (q dbQuery) upper() int64 {
	if q.To == 0 {
		return 1<<63 - 1
	}
	return int64(q.To)
}

func (q dbQuery) cellClause() (string, []any) {
	if q.Cell == nil {
		return "", nil
	}
	return " AND y=? AND x=?", []any{q.Cell[0], q.Cell[1]}
}

func querySnapshots(db *sql.DB, q dbQuery) ([]snapshotRow, error) {
	rows, err := db.Query(`SELECT tick,path,width,height,digest,edits_applied,created_at FROM snapshots
		WHERE tick>=? AND tick<=? ORDER BY tick DESC LIMIT ?`, int64(q.Since), q.upper(), q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []snapshotRow
	for rows.Next() {
		var r snapshotRow
		if err := rows.Scan(&r.Tick, &r.Path, &r.Width, &r.Height, &r.Digest, &r.EditsApplied, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryTicks(db *sql.DB, q dbQuery) ([]tickRow, error) {
	rows, err := db.Query(`SELECT tick,digest,edits,moves,explosions,writes FROM ticks
		WHERE tick>=? AND tick<=? ORDER BY tick LIMIT ?`, int64(q.Since), q.upper(), q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tickRow
	for rows.Next() {
		var r tickRow
		if err := rows.Scan(&r.Tick, &r.Digest, &r.Edits, &r.Moves, &r.Explosions, &r.Writes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryEdits(db *sql.DB, q dbQuery) ([]editRow, error) {
	clause, extra := q.cellClause()
	args := append([]any{int64(q.Since), q.upper()}, extra...)
	args = append(args, q.Limit)
	rows, err := db.Query(`SELECT tick,seq,y,x,glyph,source FROM edits
		WHERE tick>=? AND tick<=?`+clause+` ORDER BY tick, seq LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []editRow
	for rows.Next() {
		var r editRow
		if err := rows.Scan(&r.Tick, &r.Seq, &r.Y, &r.X, &r.Glyph, &r.Source); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryAudits(db *sql.DB, q dbQuery) ([]auditRow, error) {
	clause, extra := q.cellClause()
	args := append([]any{int64(q.Since), q.upper()}, extra...)
	args = append(args, q.Limit)
	rows, err := db.Query(`SELECT tick,seq,actor,action,y,x,from_glyph,to_glyph,COALESCE(reason,'') FROM audits
		WHERE tick>=? AND tick<=?`+clause+` ORDER BY tick, seq LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auditRow
	for rows.Next() {
		var r auditRow
		if err := rows.Scan(&r.Tick, &r.Seq, &r.Actor, &r.Action, &r.Y, &r.X, &r.From, &r.To, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
