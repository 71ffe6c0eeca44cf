package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omniwp/internal/bus"
	"github.com/nextlevelbuilder/omniwp/internal/notify"
	"github.com/nextlevelbuilder/omniwp/internal/pairing"
	"github.com/nextlevelbuilder/omniwp/internal/qr"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
)

// How long the view stays up after linking before closing itself.
const linkedLinger = 2 * time.Second

type (
	snapshotMsg    pairing.Snapshot
	indicatorMsg   pairing.Indicator
	pushClosedMsg  struct{ err error }
	connectErrMsg  struct{ err error }
	closeAfterLink struct{}
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// pairingModel is the QR view. All state changes come from the controller;
// the model only renders snapshots and forwards keys.
type pairingModel struct {
	ctx     context.Context
	ctrl    *pairing.Controller
	updates <-chan any

	snap    pairing.Snapshot
	ind     pairing.Indicator
	qrText  string
	qrErr   error
	pushErr error
	notice  string
	closed  bool
}

func newPairingModel(ctx context.Context, ctrl *pairing.Controller, updates <-chan any) pairingModel {
	return pairingModel{ctx: ctx, ctrl: ctrl, updates: updates, snap: ctrl.Snapshot(), ind: ctrl.Linked()}
}

func (m pairingModel) listen() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.updates
		if !ok {
			return nil
		}
		return msg
	}
}

func (m pairingModel) connect() tea.Cmd {
	return func() tea.Msg {
		if err := m.ctrl.Connect(m.ctx); err != nil {
			return connectErrMsg{err: err}
		}
		return nil
	}
}

func (m pairingModel) Init() tea.Cmd {
	return tea.Batch(m.listen(), m.connect())
}

func (m pairingModel) close() (tea.Model, tea.Cmd) {
	m.ctrl.Close()
	m.closed = true
	return m, tea.Quit
}

func (m pairingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c", "q":
			return m.close()
		case "r":
			if m.snap.State == pairing.Failed {
				return m, m.connect()
			}
		}
		return m, nil

	case snapshotMsg:
		s := pairing.Snapshot(msg)
		if s.Seq < m.snap.Seq {
			return m, m.listen()
		}
		if s.QR != m.snap.QR {
			m.qrText, m.qrErr = "", nil
			if s.QR != "" {
				m.qrText, m.qrErr = qr.Render(s.QR)
			}
		}
		m.snap = s
		m.notice = ""
		if s.State == pairing.Linked {
			return m, tea.Batch(m.listen(), tea.Tick(linkedLinger, func(time.Time) tea.Msg { return closeAfterLink{} }))
		}
		return m, m.listen()

	case indicatorMsg:
		m.ind = pairing.Indicator(msg)
		return m, m.listen()

	case pushClosedMsg:
		m.pushErr = msg.err
		if m.pushErr == nil {
			m.pushErr = errors.New("push channel closed")
		}
		return m, m.listen()

	case connectErrMsg:
		slog.Debug("connect not started", "error", msg.err)
		m.notice = connectNotice(msg.err)
		return m, nil

	case closeAfterLink:
		return m.close()
	}
	return m, nil
}

func (m pairingModel) View() string {
	if m.closed {
		return ""
	}
	return renderPairing(m.snap, m.ind, m.qrText, m.qrErr, m.pushErr, m.notice)
}

// connectNotice explains a refused retry in the view.
func connectNotice(err error) string {
	switch {
	case errors.Is(err, pairing.ErrConnectInProgress):
		return "Ya hay una conexión en curso, espera a que termine e intenta nuevamente"
	case errors.Is(err, pairing.ErrAlreadyLinked):
		return "WhatsApp ya está conectado"
	case errors.Is(err, pairing.ErrClosed):
		return ""
	}
	return formatError(err)
}

func renderPairing(s pairing.Snapshot, ind pairing.Indicator, qrText string, qrErr, pushErr error, notice string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Conectar WhatsApp") + "\n")
	b.WriteString(hintStyle.Render("Escanea el código QR con tu teléfono para conectar WhatsApp Web") + "\n\n")

	showQR := func() {
		if qrErr != nil {
			b.WriteString(errStyle.Render("No se pudo mostrar el código QR: "+qrErr.Error()) + "\n")
			return
		}
		b.WriteString(qrText)
	}

	switch s.State {
	case pairing.Idle, pairing.AwaitingQR:
		b.WriteString("Generando código QR...\n")
	case pairing.ShowingQR:
		showQR()
		b.WriteString("Escanea este código con tu teléfono\n")
		b.WriteString(hintStyle.Render("Abre WhatsApp → Menú → Dispositivos vinculados → Vincular un dispositivo") + "\n")
	case pairing.Linking:
		showQR()
		b.WriteString("Escaneando código...\n")
	case pairing.Linked:
		b.WriteString(okStyle.Render("¡WhatsApp conectado exitosamente!") + "\n")
		if s.PhoneNumber != "" {
			b.WriteString("Número: " + validate.DisplayPhone(s.PhoneNumber) + "\n")
		}
		b.WriteString("Ya puedes enviar mensajes desde tu número personal\n")
	case pairing.Failed:
		b.WriteString(errStyle.Render("Error al conectar WhatsApp") + "\n")
		b.WriteString(orDash(s.Error, "Intenta nuevamente") + "\n")
	}

	if notice != "" {
		b.WriteString("\n" + hintStyle.Render(notice) + "\n")
	}
	if pushErr != nil {
		b.WriteString("\n" + errStyle.Render("Sin conexión en vivo: "+pushErr.Error()) + "\n")
	}

	footer := "Estado: " + indicatorLabel(ind) + "   esc: cancelar"
	if s.State == pairing.Failed {
		footer += "   r: reintentar"
	}
	if s.State == pairing.Linked {
		footer = "Estado: " + indicatorLabel(ind) + "   esc: cerrar"
	}
	b.WriteString("\n" + hintStyle.Render(footer))
	return boxStyle.Render(b.String()) + "\n"
}

func whatsappConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Link WhatsApp by scanning a QR code",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			return runPairingView(ctx, a)
		}),
	}
}

func runPairingView(ctx context.Context, a *app) error {
	b := bus.New()
	pc, err := dialPush(ctx, a, b)
	if err != nil {
		return err
	}
	defer pc.Close()

	ind := pairing.NewLinkIndicator()
	ctrl := pairing.NewController(pairing.Config{
		Connector:      a.svc,
		Bus:            b,
		Indicator:      ind,
		ConnectTimeout: a.cfg.WhatsApp.ConnectTimeout.Std(),
	})

	updates := make(chan any, 64)
	forward := func(msg any) {
		select {
		case updates <- msg:
		default:
			slog.Debug("pairing view update dropped")
		}
	}
	ctrl.OnChange(func(s pairing.Snapshot) { forward(snapshotMsg(s)) })
	ind.OnChange(func(i pairing.Indicator) { forward(indicatorMsg(i)) })

	viewCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-pc.Done():
			forward(pushClosedMsg{err: pc.Err()})
		case <-viewCtx.Done():
		}
	}()
	poller := pairing.NewStatusPoller(a.client, ind, pollerConfig(a))
	go poller.Run(viewCtx)

	ctrl.Open()
	defer ctrl.Close()

	// Toasts would tear the full-screen view; errors still print.
	a.toasts.SetQuiet(true)
	defer a.toasts.SetQuiet(false)

	final, err := tea.NewProgram(newPairingModel(viewCtx, ctrl, updates), tea.WithContext(viewCtx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("pairing view: %w", err)
	}
	if fm, ok := final.(pairingModel); ok && fm.snap.State == pairing.Linked {
		a.toasts.SetQuiet(false)
		notify.Success(a.toasts, fmt.Sprintf("¡WhatsApp conectado con éxito! Número: %s", validate.DisplayPhone(fm.snap.PhoneNumber)))
	}
	return nil
}

func pollerConfig(a *app) pairing.PollerConfig {
	w := a.cfg.WhatsApp
	return pairing.PollerConfig{
		Interval:   w.StatusInterval.Std(),
		Timeout:    w.StatusTimeout.Std(),
		Retries:    w.StatusRetries,
		RetryDelay: w.StatusRetryDelay.Std(),
	}
}
