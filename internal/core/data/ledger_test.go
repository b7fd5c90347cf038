package data

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/session"
)

const testSessionID = "arn:aws:gamelift:us-east-1::gamesession/fleet-123/gsess-abc"

func TestInitialize_Sqlite(t *testing.T) {
	cfg := &core.Config{}
	cfg.Database.Engine = "sqlite"
	cfg.Database.Filename = filepath.Join(t.TempDir(), "logs", "sessions.db")

	db, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("Initialize() returned an unexpected error: %v", err)
	}
	defer Shutdown(db)

	if _, err := os.Stat(cfg.Database.Filename); err != nil {
		t.Errorf("expected database file to be created: %v", err)
	}
	if !db.Migrator().HasTable(&GameSession{}) || !db.Migrator().HasTable(&PlayerAdmission{}) {
		t.Error("expected ledger tables to be migrated")
	}
}

func TestInitialize_Disabled(t *testing.T) {
	cfg := &core.Config{}
	cfg.Database.Engine = "none"

	if _, err := Initialize(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Initialize() want ErrDisabled, got = %v", err)
	}
}

func TestInitialize_UnknownEngine(t *testing.T) {
	cfg := &core.Config{}
	cfg.Database.Engine = "mysql"

	if _, err := Initialize(cfg); err == nil {
		t.Error("Initialize() expected an error for an unknown engine")
	}
}

func TestFindGameSession_Missing(t *testing.T) {
	db := setUpDatabase(t)

	gs, err := FindGameSession(db, "gsess-missing")
	if err != nil {
		t.Fatalf("FindGameSession() returned an unexpected error: %v", err)
	}
	if gs != nil {
		t.Errorf("FindGameSession() want nil, got = %+v", gs)
	}
}

func TestLedger_SessionLifecycle(t *testing.T) {
	db := setUpDatabase(t)
	ledger := NewLedger(db)

	started := session.Snapshot{
		GameSessionID:               testSessionID,
		MatchmakingConfigurationArn: "arn:config",
		BackfillTicketID:            "ticket-1",
		StartedAt:                   time.Now(),
	}
	if err := ledger.SessionStarted(started); err != nil {
		t.Fatalf("SessionStarted() returned an unexpected error: %v", err)
	}
	// A repeated start updates the same row.
	started.BackfillTicketID = "ticket-2"
	if err := ledger.SessionStarted(started); err != nil {
		t.Fatalf("SessionStarted() returned an unexpected error: %v", err)
	}

	result := session.ShutdownResult{
		BackfillTicketID: "ticket-2",
		BackfillErr:      errors.New("ticket not found"),
	}
	if err := ledger.SessionEnded(started, result); err != nil {
		t.Fatalf("SessionEnded() returned an unexpected error: %v", err)
	}

	var rows []GameSession
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("error listing game sessions: %v", err)
	}
	want := []GameSession{{
		GameSessionID:               testSessionID,
		MatchmakingConfigurationArn: "arn:config",
		BackfillTicketID:            "ticket-2",
		BackfillStopped:             false,
		ShutdownError:               "ticket not found",
	}}
	ignore := cmpopts.IgnoreFields(GameSession{}, "ID", "StartedAt", "EndedAt")
	if diff := cmp.Diff(want, rows, ignore); diff != "" {
		t.Fatalf("game sessions did not match expected; diff:\n%s", diff)
	}
	if rows[0].EndedAt == nil {
		t.Error("expected EndedAt to be set")
	}
}

func TestLedger_SessionEndedWithoutStart(t *testing.T) {
	db := setUpDatabase(t)
	ledger := NewLedger(db)

	s := session.Snapshot{GameSessionID: testSessionID}
	if err := ledger.SessionEnded(s, session.ShutdownResult{}); err != nil {
		t.Fatalf("SessionEnded() returned an unexpected error: %v", err)
	}

	gs, err := FindGameSession(db, testSessionID)
	if err != nil || gs == nil {
		t.Fatalf("FindGameSession() want a row, got = %+v, %v", gs, err)
	}
	if gs.EndedAt == nil || gs.ShutdownError != "" {
		t.Errorf("unexpected game session row: %+v", gs)
	}
}

func TestLedger_RecordAdmission(t *testing.T) {
	db := setUpDatabase(t)
	ledger := NewLedger(db)

	admissions := []PlayerAdmission{
		{GameSessionID: testSessionID, ConnectionID: "c1", RemoteAddr: "10.0.0.1:5000", PlayerSessionID: "psess-1", Accepted: true, Reason: "accepted"},
		{GameSessionID: testSessionID, ConnectionID: "c2", RemoteAddr: "10.0.0.2:5000", Reason: "empty_token"},
		{GameSessionID: "other", ConnectionID: "c3", PlayerSessionID: "psess-3", Reason: "invalid"},
	}
	for i := range admissions {
		if err := ledger.RecordAdmission(&admissions[i]); err != nil {
			t.Fatalf("RecordAdmission() returned an unexpected error: %v", err)
		}
	}

	got, err := FindPlayerAdmissions(db, testSessionID)
	if err != nil {
		t.Fatalf("FindPlayerAdmissions() returned an unexpected error: %v", err)
	}
	ignore := cmpopts.IgnoreFields(PlayerAdmission{}, "ID", "CreatedAt")
	if diff := cmp.Diff(admissions[:2], got, ignore); diff != "" {
		t.Fatalf("admissions did not match expected; diff:\n%s", diff)
	}
}
