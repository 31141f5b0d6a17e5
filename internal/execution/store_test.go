package execution

import (
	"path/filepath"
	"testing"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "operations.db"), filepath.Join(dir, "operations.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSaveGetList(t *testing.T) {
	store := openTestStore(t)

	action := NewAction(NewActionID(), "venus_lend", "eip155:56")
	action.Asset = "USDT"
	action.Pool = "core"
	action.Steps = append(action.Steps, Step{
		StepID: "supply-1",
		Type:   StepTypeSupply,
		Status: StepStatusPending,
		Target: "0xfD5840Cd36d94D7229439859C0112a4185BC0255",
		Data:   "0x",
		Value:  "0",
	})
	if err := store.Save(action); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(action.ActionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.IntentType != "venus_lend" || got.Asset != "USDT" || len(got.Steps) != 1 {
		t.Fatalf("unexpected operation: %+v", got)
	}

	got.Status = ActionStatusCompleted
	if err := store.Save(got); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}
	completed, err := store.List(ListFilter{Status: string(ActionStatusCompleted), Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("expected one completed operation, got %d", len(completed))
	}
}

func TestStoreListFiltersByIntent(t *testing.T) {
	store := openTestStore(t)
	for _, intent := range []string{"lista_stake", "kernel_stake", "lista_stake"} {
		if err := store.Save(NewAction(NewActionID(), intent, "eip155:56")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	got, err := store.List(ListFilter{Intent: "lista_stake"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two lista_stake operations, got %d", len(got))
	}
}

func TestStoreGetMissingOperation(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get("missing")
	if clierr.ExitCode(err) != int(clierr.CodeUsage) {
		t.Fatalf("expected usage error for missing operation, got %v", err)
	}
}

func TestNewActionIDPrefix(t *testing.T) {
	id := NewActionID()
	if len(id) != len("op_")+36 || id[:3] != "op_" {
		t.Fatalf("unexpected id: %s", id)
	}
}
