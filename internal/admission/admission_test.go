package admission

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core/client"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core/data"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core/debug"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/gamelift"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/gamelift/gamelifttest"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/session"
)

const testSessionID = "arn:aws:gamelift:us-east-1::gamesession/fleet-1234/gsess-1"

var _ Gate = (*session.Host)(nil)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = io.Discard
	return logger
}

func newTestClient(t *testing.T) *client.Client {
	t.Helper()
	server, player := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		player.Close()
	})
	return client.NewClient(server)
}

// newTestServer wires an admission Server to a real session Host backed by the
// fake SDK, with an active game session.
func newTestServer(t *testing.T, ttl time.Duration) (*Server, *gamelifttest.SDK) {
	t.Helper()
	sdk := gamelifttest.New()
	host := session.NewHost(sdk, newTestLogger())
	host.LogFlushDelay = 0
	if err := host.Initialize(1935, nil); err != nil {
		t.Fatalf("Initialize() returned an unexpected error: %v", err)
	}
	sdk.StartGameSession(gamelift.GameSession{GameSessionID: testSessionID})

	cfg := &core.Config{}
	cfg.Admission.DuplicateTokenTTL = ttl

	s := &Server{
		Name:    "ADMISSION",
		Config:  cfg,
		Logger:  newTestLogger(),
		Gate:    host,
		Metrics: debug.NewMetrics(),
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() returned an unexpected error: %v", err)
	}
	return s, sdk
}

func TestServer_InitRequiresGate(t *testing.T) {
	s := &Server{Name: "ADMISSION", Config: &core.Config{}, Logger: newTestLogger()}
	if err := s.Init(context.Background()); err == nil {
		t.Error("Init() expected an error without a gate")
	}
}

func TestServer_Admit(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		want   bool
		result string
	}{
		{name: "reserved player session", token: "psess-valid", want: true, result: ResultAccepted},
		{name: "unknown player session", token: "psess-unknown", want: false, result: ResultInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sdk := newTestServer(t, 0)
			sdk.AddPlayerSession("psess-valid")

			if got := s.Admit(newTestClient(t), tt.token); got != tt.want {
				t.Errorf("Admit(%q) want = %v, got = %v", tt.token, tt.want, got)
			}
			if got := testutil.ToFloat64(s.Metrics.Admissions.WithLabelValues(tt.result)); got != 1 {
				t.Errorf("%s admissions want = 1, got = %v", tt.result, got)
			}
		})
	}
}

func TestServer_AdmitEmptyTokenSkipsGameLift(t *testing.T) {
	s, sdk := newTestServer(t, time.Minute)

	if s.Admit(newTestClient(t), "") {
		t.Error("Admit() accepted an empty token")
	}
	if n := sdk.CallCount(gamelifttest.CallAcceptPlayerSession); n != 0 {
		t.Errorf("AcceptPlayerSession called %d times for an empty token", n)
	}
}

func TestServer_DuplicateToken(t *testing.T) {
	s, sdk := newTestServer(t, time.Minute)
	sdk.AddPlayerSession("psess-valid")

	if !s.Admit(newTestClient(t), "psess-valid") {
		t.Fatal("first Admit() was rejected")
	}
	if s.Admit(newTestClient(t), "psess-valid") {
		t.Error("reused token was accepted")
	}
	if n := sdk.CallCount(gamelifttest.CallAcceptPlayerSession); n != 1 {
		t.Errorf("AcceptPlayerSession called %d times, want 1", n)
	}
	if got := testutil.ToFloat64(s.Metrics.Admissions.WithLabelValues(ResultDuplicate)); got != 1 {
		t.Errorf("duplicate admissions want = 1, got = %v", got)
	}
}

func TestServer_RejectedTokenCanBeRetried(t *testing.T) {
	s, sdk := newTestServer(t, time.Minute)

	if s.Admit(newTestClient(t), "psess-late") {
		t.Fatal("Admit() accepted a token before it was reserved")
	}
	sdk.AddPlayerSession("psess-late")
	if !s.Admit(newTestClient(t), "psess-late") {
		t.Error("Admit() rejected a retried token after it was reserved")
	}
}

func TestServer_DuplicateGuardDisabled(t *testing.T) {
	s, sdk := newTestServer(t, 0)
	sdk.AddPlayerSession("psess-valid")

	for i := 0; i < 2; i++ {
		if !s.Admit(newTestClient(t), "psess-valid") {
			t.Errorf("Admit() attempt %d rejected with the guard disabled", i)
		}
	}
}

func TestServer_RecordsToLedger(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("error initializing test database: %s", err)
	}
	if err := data.Migrate(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = data.Shutdown(db) })

	s, sdk := newTestServer(t, time.Minute)
	s.Ledger = data.NewLedger(db)
	sdk.AddPlayerSession("psess-valid")

	c := newTestClient(t)
	s.Admit(c, "psess-valid")
	s.Admit(c, "psess-bogus")
	s.Refuse(c, "timeout")

	got, err := data.FindPlayerAdmissions(db, testSessionID)
	if err != nil {
		t.Fatalf("FindPlayerAdmissions() returned an unexpected error: %v", err)
	}
	type row struct {
		Token    string
		Accepted bool
		Reason   string
	}
	var rows []row
	for _, a := range got {
		if a.ConnectionID != c.ID {
			t.Errorf("admission recorded for connection %s, want %s", a.ConnectionID, c.ID)
		}
		rows = append(rows, row{a.PlayerSessionID, a.Accepted, a.Reason})
	}
	want := []row{
		{"psess-valid", true, ResultAccepted},
		{"psess-bogus", false, ResultInvalid},
		{"", false, "timeout"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("ledger rows did not match expected; diff:\n%s", diff)
	}
}
