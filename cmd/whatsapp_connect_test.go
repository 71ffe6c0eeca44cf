package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/bus"
	"github.com/nextlevelbuilder/omniwp/internal/pairing"
	"github.com/nextlevelbuilder/omniwp/pkg/protocol"
)

func TestRenderPairing(t *testing.T) {
	known := pairing.Indicator{Known: true, Status: protocol.StatusDisconnected}
	tests := []struct {
		name string
		snap pairing.Snapshot
		want []string
	}{
		{"awaiting", pairing.Snapshot{State: pairing.AwaitingQR}, []string{"Generando código QR"}},
		{"showing", pairing.Snapshot{State: pairing.ShowingQR, QR: "x"}, []string{"QRTEXT", "Escanea este código", "Dispositivos vinculados"}},
		{"linking", pairing.Snapshot{State: pairing.Linking, QR: "x"}, []string{"QRTEXT", "Escaneando código"}},
		{"linked", pairing.Snapshot{State: pairing.Linked, PhoneNumber: "5491122334455"}, []string{"conectado exitosamente", "+5491122334455", "esc: cerrar"}},
		{"failed", pairing.Snapshot{State: pairing.Failed, Error: pairing.MsgConnectTimeout}, []string{"Error al conectar WhatsApp", "tardando", "r: reintentar"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := renderPairing(tt.snap, known, "QRTEXT\n", nil, nil, "")
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("view missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestRenderPairing_PushDropAndStaleIndicator(t *testing.T) {
	ind := pairing.Indicator{Known: true, Status: protocol.StatusConnected, Stale: true}
	out := renderPairing(pairing.Snapshot{State: pairing.ShowingQR}, ind, "", nil, errors.New("push connection closed by server"), "")
	for _, w := range []string{"Sin conexión en vivo", "Conectado (sin confirmar)"} {
		if !strings.Contains(out, w) {
			t.Errorf("view missing %q:\n%s", w, out)
		}
	}
}

func TestPairingModel_Update(t *testing.T) {
	ctrl := pairing.NewController(pairing.Config{Bus: bus.New()})
	m := newPairingModel(context.Background(), ctrl, make(chan any))

	next, _ := m.Update(snapshotMsg(pairing.Snapshot{State: pairing.ShowingQR, QR: "2@ref,key,id", Seq: 5}))
	m = next.(pairingModel)
	if m.snap.State != pairing.ShowingQR || m.qrText == "" || m.qrErr != nil {
		t.Fatalf("after QR: state %v, qr %d bytes, err %v", m.snap.State, len(m.qrText), m.qrErr)
	}

	next, _ = m.Update(snapshotMsg(pairing.Snapshot{State: pairing.AwaitingQR, Seq: 3}))
	m = next.(pairingModel)
	if m.snap.Seq != 5 {
		t.Errorf("older snapshot applied: seq %d", m.snap.Seq)
	}

	next, _ = m.Update(indicatorMsg(pairing.Indicator{Known: true, Status: protocol.StatusConnecting}))
	m = next.(pairingModel)
	if m.ind.Status != protocol.StatusConnecting {
		t.Errorf("indicator = %+v", m.ind)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(pairingModel)
	if !m.closed || cmd == nil {
		t.Errorf("esc: closed %v, cmd %v", m.closed, cmd)
	}
	if m.View() != "" {
		t.Error("closed view should render nothing")
	}
}

// hangingConnector never answers until its context ends.
type hangingConnector struct{}

func (hangingConnector) ConnectWhatsApp(ctx context.Context) (*api.ConnectResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPairingModel_RetryWhileRequestPending(t *testing.T) {
	b := bus.New()
	ctrl := pairing.NewController(pairing.Config{Connector: hangingConnector{}, Bus: b})
	ctrl.Open()
	defer ctrl.Close()
	if err := ctrl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	b.Publish(bus.PairingError{Message: "sesión rechazada"})
	if st := ctrl.Snapshot().State; st != pairing.Failed {
		t.Fatalf("state = %v, want Failed", st)
	}

	m := newPairingModel(context.Background(), ctrl, make(chan any))
	next, _ := m.Update(snapshotMsg(ctrl.Snapshot()))
	m = next.(pairingModel)
	if !strings.Contains(m.View(), "r: reintentar") {
		t.Fatalf("retry hint missing:\n%s", m.View())
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	m = next.(pairingModel)
	if cmd == nil {
		t.Fatal("r did not issue a connect")
	}
	next, _ = m.Update(cmd())
	m = next.(pairingModel)
	if !strings.Contains(m.View(), "Ya hay una conexión en curso") {
		t.Errorf("refused retry not shown:\n%s", m.View())
	}

	// A new transition clears the notice.
	next, _ = m.Update(snapshotMsg(pairing.Snapshot{State: pairing.AwaitingQR, Seq: m.snap.Seq + 1}))
	m = next.(pairingModel)
	if m.notice != "" {
		t.Errorf("notice kept after transition: %q", m.notice)
	}
}

func TestConnectNotice(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{pairing.ErrConnectInProgress, "Ya hay una conexión en curso"},
		{pairing.ErrAlreadyLinked, "ya está conectado"},
		{pairing.ErrClosed, ""},
	}
	for _, tt := range tests {
		got := connectNotice(tt.err)
		if tt.want == "" && got != "" || !strings.Contains(got, tt.want) {
			t.Errorf("connectNotice(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
