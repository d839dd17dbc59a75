// Package repo exposes typed repositories over the flat record store. Each
// repository receives its store handle by constructor; nothing in here owns a
// process-wide client.
package repo

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrNotFound reports a missing entity or slot. Call sites decide between a
// user message and a silent drop.
var ErrNotFound = errors.New("not found")

func atoiOr(record map[string]string, field string, fallback int) int {
	raw, ok := record[field]
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

func boolField(record map[string]string, field string) bool {
	return record[field] == "1"
}

func encodeBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func playerKey(id int64) string      { return fmt.Sprintf("player:%d", id) }
func usernameKey(name string) string { return "username:" + name }
func npcKey(id int64) string         { return fmt.Sprintf("npc:%d", id) }
func npcIndexKey(mapID int) string   { return fmt.Sprintf("npcindex:%d", mapID) }
func merchantKey(id int64) string    { return fmt.Sprintf("merchant:%d", id) }
func itemKey(id int) string          { return fmt.Sprintf("item:%d", id) }
func groundKey(mapID int) string     { return fmt.Sprintf("grounditems:%d", mapID) }

const tuningKey = "config"
