package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"docchat/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleAnswer(id string) domain.Answer {
	return domain.Answer{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Query:     "how do I reset my password",
		Response:  "Use the self-service portal.",
		Sources: []domain.Source{
			{Document: "it_handbook.pdf", Page: 12},
		},
		Images:          []string{"it_handbook_p12_a1b2.png"},
		Suggestions:     []string{"How do I unlock my account?"},
		ElapsedMS:       420,
		ChunksRetrieved: 5,
	}
}

func TestSaveAndLoadAnswer(t *testing.T) {
	store := openTestStore(t)

	want := sampleAnswer("bot-1")
	if err := store.SaveAnswer(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Answer("bot-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Query != want.Query || got.Response != want.Response {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Sources) != 1 || got.Sources[0].Document != "it_handbook.pdf" || got.Sources[0].Page != 12 {
		t.Fatalf("sources mismatch: %+v", got.Sources)
	}
	if len(got.Images) != 1 || len(got.Suggestions) != 1 {
		t.Fatalf("images/suggestions mismatch: %+v", got)
	}
}

func TestAnswerNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Answer("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	store := openTestStore(t)

	for i, id := range []string{"bot-a", "bot-b", "bot-c"} {
		a := sampleAnswer(id)
		a.Timestamp = int64(1000 + i)
		if err := store.SaveAnswer(a); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	recent, err := store.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(recent))
	}
	if recent[0].ID != "bot-c" || recent[1].ID != "bot-b" {
		t.Fatalf("wrong order: %s, %s", recent[0].ID, recent[1].ID)
	}
}

func TestFeedback(t *testing.T) {
	store := openTestStore(t)
	if err := store.SaveAnswer(sampleAnswer("bot-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.Feedback("bot-1", "good"); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	got, err := store.Answer("bot-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Rating != "good" {
		t.Fatalf("expected rating good, got %q", got.Rating)
	}

	if err := store.Feedback("bot-1", "excellent"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad rating, got %v", err)
	}
	if err := store.Feedback("missing", "bad"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown answer, got %v", err)
	}
}

func TestSettingsDefaults(t *testing.T) {
	store := openTestStore(t)

	temperature, topP, err := store.GenerationParams()
	if err != nil {
		t.Fatalf("generation params: %v", err)
	}
	if temperature != 0.7 || topP != 1.0 {
		t.Fatalf("unexpected defaults: temperature=%v top_p=%v", temperature, topP)
	}

	instruction, err := store.SystemInstruction()
	if err != nil {
		t.Fatalf("system instruction: %v", err)
	}
	if instruction == "" {
		t.Fatal("default instruction is empty")
	}

	size, overlap, err := store.ChunkingParams()
	if err != nil {
		t.Fatalf("chunking params: %v", err)
	}
	if size != 512 || overlap != 50 {
		t.Fatalf("unexpected chunking defaults: size=%d overlap=%d", size, overlap)
	}
}

func TestSettingsReadPerCall(t *testing.T) {
	store := openTestStore(t)

	if err := store.SetSetting(KeyTemperature, "0.2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	temperature, _, err := store.GenerationParams()
	if err != nil {
		t.Fatalf("generation params: %v", err)
	}
	if temperature != 0.2 {
		t.Fatalf("updated setting not visible, got %v", temperature)
	}
}

func TestSettingValidation(t *testing.T) {
	store := openTestStore(t)

	bad := [][2]string{
		{KeyTemperature, "3.5"},
		{KeyTemperature, "warm"},
		{KeyTopP, "0"},
		{KeyTopP, "1.5"},
		{KeyChunkSize, "-10"},
		{KeyChunkOverlap, "-1"},
		{KeySystemInstruction, ""},
		{"nonsense", "x"},
	}
	for _, kv := range bad {
		if err := store.SetSetting(kv[0], kv[1]); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("SetSetting(%q, %q): expected ErrInvalidInput, got %v", kv[0], kv[1], err)
		}
	}

	if _, err := store.Setting("nonsense"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown key, got %v", err)
	}
}

func TestInconsistentChunkOverlapClamped(t *testing.T) {
	store := openTestStore(t)

	if err := store.SetSetting(KeyChunkSize, "100"); err != nil {
		t.Fatalf("set size: %v", err)
	}
	if err := store.SetSetting(KeyChunkOverlap, "200"); err != nil {
		t.Fatalf("set overlap: %v", err)
	}

	size, overlap, err := store.ChunkingParams()
	if err != nil {
		t.Fatalf("chunking params: %v", err)
	}
	if overlap >= size {
		t.Fatalf("overlap %d not clamped below size %d", overlap, size)
	}
}
