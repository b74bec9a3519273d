package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// appendSessionEvent appends one JSON line to the session's event log.
func appendSessionEvent(artifactsDir string, ev Event) error {
	dir := filepath.Join(artifactsDir, ev.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(raw, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeSessionSummary replaces the session summary atomically so a reader
// never sees a torn file.
func writeSessionSummary(artifactsDir string, snap Snapshot) error {
	dir := filepath.Join(artifactsDir, snap.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, "summary.json")
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// readSessionSummary loads a previously written summary.
func readSessionSummary(artifactsDir, sessionID string) (Snapshot, error) {
	var snap Snapshot
	raw, err := os.ReadFile(filepath.Join(artifactsDir, sessionID, "summary.json"))
	if err != nil {
		return snap, err
	}
	err = json.Unmarshal(raw, &snap)
	return snap, err
}
