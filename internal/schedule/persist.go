package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"
)

type document struct {
	Tasks      map[string][]Task `json:"tasks"`
	NextTaskID int               `json:"next_task_id"`
}

// Snapshot encodes the current state in the persisted layout.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encodeLocked()
}

func (s *Store) encodeLocked() ([]byte, error) {
	doc := document{Tasks: make(map[string][]Task, len(s.tasks)), NextTaskID: s.nextID}
	for owner, list := range s.tasks {
		if len(list) == 0 {
			continue
		}
		doc.Tasks[owner.String()] = list
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (s *Store) persistLocked(ctx context.Context, op string) error {
	if s.blob == nil {
		return nil
	}
	data, err := s.encodeLocked()
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	start := time.Now()
	err = s.blob.Save(ctx, data)
	if s.obs != nil {
		s.obs.ObservePersist(time.Since(start), err)
	}
	if err != nil {
		s.log.Error("persist failed", logx.String("op", op), logx.Err(err))
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

// Load replaces the in-memory state with the persisted blob. A missing
// blob leaves the store empty.
func (s *Store) Load(ctx context.Context) error {
	if s.blob == nil {
		return nil
	}
	data, err := s.blob.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Info("no saved schedule, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("schedule: load: %w", err)
	}
	return s.Restore(data)
}

// Restore replaces the in-memory state with a previously encoded snapshot.
func (s *Store) Restore(data []byte) error {
	tasks, persistedNext, err := decodeDocument(data, s.log)
	if err != nil {
		return fmt.Errorf("schedule: decode: %w", err)
	}

	maxID := 0
	seen := map[int]OwnerID{}
	total := 0
	for owner, list := range tasks {
		if len(list) == 0 {
			delete(tasks, owner)
			continue
		}
		for i := range list {
			t := &list[i]
			t.Owner = owner
			if !InWindow(t.Hour) {
				s.log.Warn("stored task outside display window", logx.Int("id", t.ID), logx.Int("hour", t.Hour))
			}
			if other, dup := seen[t.ID]; dup {
				s.log.Warn("duplicate task id in stored data", logx.Int("id", t.ID), logx.Int64("owner", int64(owner)), logx.Int64("other_owner", int64(other)))
			}
			seen[t.ID] = owner
			maxID = max(maxID, t.ID)
		}
		sortTasks(list)
		total += len(list)
	}

	next := maxID + 1
	if persistedNext > next {
		next = persistedNext
	}

	s.mu.Lock()
	s.tasks = tasks
	s.nextID = next
	s.mu.Unlock()

	s.log.Info("schedule loaded", logx.Int("tasks", total), logx.Int("owners", len(tasks)), logx.Int("next_id", next))
	return nil
}

// decodeDocument walks the top-level object by token so that repeated or
// equivalent owner keys are concatenated instead of overwritten.
func decodeDocument(data []byte, log logx.Logger) (map[OwnerID][]Task, int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, 0, err
	}

	tasks := map[OwnerID][]Task{}
	next := 0
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return nil, 0, err
		}
		switch key {
		case "tasks":
			if err := decodeOwners(dec, tasks, log); err != nil {
				return nil, 0, err
			}
		case "next_task_id":
			var n *int
			if err := dec.Decode(&n); err != nil {
				return nil, 0, fmt.Errorf("next_task_id: %w", err)
			}
			if n != nil {
				next = *n
			}
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, 0, err
			}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, 0, err
	}
	return tasks, next, nil
}

func decodeOwners(dec *json.Decoder, out map[OwnerID][]Task, log logx.Logger) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("tasks: expected object, got %v", tok)
	}
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return err
		}
		var list []Task
		if err := dec.Decode(&list); err != nil {
			return fmt.Errorf("tasks[%s]: %w", key, err)
		}
		owner, err := ParseOwnerID(key)
		if err != nil {
			log.Warn("skipping tasks for unparseable owner", logx.String("key", key), logx.Int("tasks", len(list)))
			continue
		}
		out[owner] = append(out[owner], list...)
	}
	return expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return s, nil
}
