package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/auth"
	"github.com/dalscooter/concern-service/internal/domain"
	"github.com/dalscooter/concern-service/internal/persistence"
)

func TestTokenCmd(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")

	cmd := tokenCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"op1", "--role", "operator"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token command: %v", err)
	}

	claims, err := auth.NewTokenManager("cli-secret", 60).ParseToken(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if claims.SubjectID != "op1" || claims.Subject != domain.SubjectTypeOperator || claims.Role != domain.RoleOperator {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !strings.HasPrefix(errOut.String(), "expires ") {
		t.Fatalf("expected expiry on stderr, got %q", errOut.String())
	}
}

func TestTokenCmd_UnknownRole(t *testing.T) {
	cmd := tokenCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"svc", "--role", "admin"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected unknown role to fail")
	}
}

func TestReasonLabel(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	if got := reasonLabel("MAX_DELIVERIES_EXCEEDED:PERSISTENCE_FAILED"); got != "MAX_DELIVERIES_EXCEEDED:PERSISTENCE_FAILED" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := reasonLabel("MALFORMED_MESSAGE"); got != "MALFORMED_MESSAGE" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestWatchSignals_ReturnsWhenParentEnds(t *testing.T) {
	parent, stopParent := context.WithCancel(context.Background())
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan struct{})
	go func() {
		watchSignals(ctx, cancel, zap.NewNop(), make(chan os.Signal))
		close(done)
	}()

	stopParent()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("signal watcher must exit once the run context ends")
	}
}

func TestWatchSignals_CancelsOnSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	sigCh <- syscall.SIGTERM
	watchSignals(ctx, cancel, zap.NewNop(), sigCh)

	if ctx.Err() == nil {
		t.Fatal("expected SIGTERM to cancel the run context")
	}
}

func TestBrokerFailure(t *testing.T) {
	ctx, fail := context.WithCancelCause(context.Background())
	child, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := brokerFailure(child); err != nil {
		t.Fatalf("expected no failure while running, got %v", err)
	}
	fail(fmt.Errorf("%w: CONNECTION_FORCED", persistence.ErrBrokerClosed))
	if err := brokerFailure(child); err == nil || !strings.Contains(err.Error(), "CONNECTION_FORCED") {
		t.Fatalf("expected broker failure to surface, got %v", err)
	}

	stopped, stop := context.WithCancel(context.Background())
	stop()
	if err := brokerFailure(stopped); err != nil {
		t.Fatalf("plain shutdown is not a failure, got %v", err)
	}
}

func TestConnectionName(t *testing.T) {
	if got := connectionName("concern-service", "assigner"); got != "concern-service:assigner" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := connectionName("", "assigner"); got != "" {
		t.Fatalf("an unset base must stay unset, got %q", got)
	}
}
