package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"serialscope/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func sampleMacro() Macro {
	return Macro{
		Name: "reset",
		Commands: []Command{
			{Data: "AT+RST", Mode: "ascii", DelayMS: 100},
			{Data: "AT", Mode: "ascii"},
		},
		RepeatCount: 1,
	}
}

func TestMacroStoreCreateAssignsID(t *testing.T) {
	s, err := NewMacroStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewMacroStore() error = %v", err)
	}

	created, err := s.Create(sampleMacro())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Error("Create() did not assign an id")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("Create() did not stamp timestamps")
	}
}

func TestMacroStorePersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewMacroStore(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	created, err := s.Create(sampleMacro())
	if err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewMacroStore(dir, testLogger())
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	got, err := reloaded.Get(created.ID)
	if err != nil {
		t.Fatalf("Get() after reload error = %v", err)
	}
	if got.Name != "reset" || len(got.Commands) != 2 {
		t.Errorf("reloaded macro = %+v", got)
	}
}

func TestMacroStoreFileIsPrettyJSONArray(t *testing.T) {
	dir := t.TempDir()
	s, err := NewMacroStore(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(sampleMacro()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "macros.json"))
	if err != nil {
		t.Fatalf("macros.json not written: %v", err)
	}

	var arr []Macro
	if err := json.Unmarshal(data, &arr); err != nil {
		t.Fatalf("macros.json is not a JSON array: %v", err)
	}
	if len(arr) != 1 {
		t.Errorf("macros.json has %d entries, want 1", len(arr))
	}
	if !json.Valid(data) || data[0] != '[' {
		t.Error("macros.json should be a top-level array")
	}
}

func TestMacroStoreUpdateKeepsIDAndCreatedAt(t *testing.T) {
	s, err := NewMacroStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	created, err := s.Create(sampleMacro())
	if err != nil {
		t.Fatal(err)
	}

	changed := created
	changed.Name = "reset-fast"
	changed.ID = "attempted-override"

	updated, err := s.Update(created.ID, changed)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("Update() changed the id: %s", updated.ID)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("Update() changed CreatedAt")
	}
	if updated.Name != "reset-fast" {
		t.Errorf("Name = %q", updated.Name)
	}
}

func TestMacroStoreDelete(t *testing.T) {
	s, err := NewMacroStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	created, err := s.Create(sampleMacro())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestMacroStoreValidation(t *testing.T) {
	s, err := NewMacroStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Create(Macro{Commands: []Command{{Data: "x"}}}); err == nil {
		t.Error("Create() accepted a macro without a name")
	}
	if _, err := s.Create(Macro{Name: "empty"}); err == nil {
		t.Error("Create() accepted a macro without commands")
	}

	// RepeatCount below 1 is normalised, empty mode defaults to ascii
	created, err := s.Create(Macro{Name: "norm", Commands: []Command{{Data: "x"}}})
	if err != nil {
		t.Fatal(err)
	}
	if created.RepeatCount != 1 {
		t.Errorf("RepeatCount = %d, want 1", created.RepeatCount)
	}
	if created.Commands[0].Mode != "ascii" {
		t.Errorf("Mode = %q, want ascii", created.Commands[0].Mode)
	}
}

func TestProfileStoreCRUD(t *testing.T) {
	dir := t.TempDir()
	s, err := NewProfileStore(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	created, err := s.Create(Profile{
		Name:   "bench PSU",
		Config: config.PortConfig{Path: "/dev/ttyUSB0", BaudRate: 9600},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Error("Create() did not assign an id")
	}
	// Stored config is fully populated
	if created.Config.DataBits != 8 || created.Config.Parity != "none" {
		t.Errorf("Config = %+v, want defaults applied", created.Config)
	}

	reloaded, err := NewProfileStore(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	got, err := reloaded.Get(created.ID)
	if err != nil {
		t.Fatalf("Get() after reload error = %v", err)
	}
	if got.Config.BaudRate != 9600 {
		t.Errorf("BaudRate = %d", got.Config.BaudRate)
	}

	if err := s.Delete(created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(s.List()) != 0 {
		t.Error("List() not empty after delete")
	}
}
